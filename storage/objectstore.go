package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"

	"github.com/kvledger/pagestore/objectid"
)

// ObjectStore is the content-addressed blob store backing both tree-node
// bytes and page values (spec §5, §6): objects live under objectsDir named
// by their uppercase-hex digest; writes land in stagingDir first and are
// only renamed into place once fully flushed to disk, so a reader never
// observes a partially written object (grounded on page_storage_impl.cc's
// FileWriter/StagingToDestination).
type ObjectStore struct {
	objectsDir string
	stagingDir string
	inflight   singleflight.Group
}

// NewObjectStore prepares (creating if needed) the objects/staging
// directory pair rooted at dir.
func NewObjectStore(dir string) (*ObjectStore, error) {
	objectsDir := filepath.Join(dir, "objects")
	stagingDir := filepath.Join(dir, "staging")
	if err := os.MkdirAll(objectsDir, 0o755); err != nil {
		return nil, wrapStatusError(StatusIOError, err, "create objects dir")
	}
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, wrapStatusError(StatusIOError, err, "create staging dir")
	}
	return &ObjectStore{objectsDir: objectsDir, stagingDir: stagingDir}, nil
}

func (s *ObjectStore) path(id objectid.ID) string {
	return filepath.Join(s.objectsDir, id.Hex())
}

// Exists reports whether id is already present in the store.
func (s *ObjectStore) Exists(id objectid.ID) bool {
	_, err := os.Stat(s.path(id))
	return err == nil
}

// Get reads back an object's full contents by id.
func (s *ObjectStore) Get(_ context.Context, id objectid.ID) ([]byte, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, wrapStatusError(StatusNotFound, err, "object %s", id)
		}
		return nil, wrapStatusError(StatusIOError, err, "read object %s", id)
	}
	return data, nil
}

// Put computes data's content-address id and stores it durably, returning
// the id. Concurrent Puts of identical content are coalesced via
// singleflight, matching the teacher's aversion to redundant duplicate
// writes under contention (see SPEC_FULL.md's domain-stack section).
func (s *ObjectStore) Put(_ context.Context, data []byte) (objectid.ID, error) {
	id := objectid.Of(data)
	if s.Exists(id) {
		return id, nil
	}
	_, err, _ := s.inflight.Do(id.Hex(), func() (interface{}, error) {
		if s.Exists(id) {
			return nil, nil
		}
		return nil, s.writeStaged(id, data)
	})
	if err != nil {
		return objectid.Empty, err
	}
	return id, nil
}

// PutStream ingests data from r without buffering it all in memory first
// (spec §5's streaming ingest path), hashing as it writes; the id returned
// is the digest of the bytes read. The result is rejected with IO_ERROR if
// the byte count differs from expectedSize. expectedSize < 0 means the size
// is not known up front and no length check is made.
func (s *ObjectStore) PutStream(_ context.Context, r io.Reader, expectedSize int64) (objectid.ID, error) {
	f, err := os.CreateTemp(s.stagingDir, "obj-*.tmp")
	if err != nil {
		return objectid.Empty, wrapStatusError(StatusIOError, err, "create staging file")
	}
	stagingPath := f.Name()
	cleanup := func() {
		f.Close()
		os.Remove(stagingPath)
	}

	h, err := blake2b.New256(nil)
	if err != nil {
		cleanup()
		return objectid.Empty, wrapStatusError(StatusInternalIOError, err, "init hash")
	}

	n, err := io.Copy(io.MultiWriter(f, h), r)
	if err != nil {
		cleanup()
		return objectid.Empty, wrapStatusError(StatusIOError, err, "stream object")
	}
	if expectedSize >= 0 && n != expectedSize {
		cleanup()
		return objectid.Empty, newStatusError(StatusIOError, "streamed %d bytes, expected %d", n, expectedSize)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return objectid.Empty, wrapStatusError(StatusIOError, err, "fsync staged object")
	}
	if err := f.Close(); err != nil {
		os.Remove(stagingPath)
		return objectid.Empty, wrapStatusError(StatusIOError, err, "close staged object")
	}

	var digest [objectid.Size]byte
	copy(digest[:], h.Sum(nil))
	id, err := objectid.FromBytes(digest[:])
	if err != nil {
		os.Remove(stagingPath)
		return objectid.Empty, wrapStatusError(StatusInternalIOError, err, "digest")
	}

	if err := stagingToDestination(stagingPath, s.path(id)); err != nil {
		return objectid.Empty, err
	}
	return id, nil
}

func (s *ObjectStore) writeStaged(id objectid.ID, data []byte) error {
	f, err := os.CreateTemp(s.stagingDir, "obj-*.tmp")
	if err != nil {
		return wrapStatusError(StatusIOError, err, "create staging file")
	}
	stagingPath := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(stagingPath)
		return wrapStatusError(StatusIOError, err, "write staged object")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(stagingPath)
		return wrapStatusError(StatusIOError, err, "fsync staged object")
	}
	if err := f.Close(); err != nil {
		os.Remove(stagingPath)
		return wrapStatusError(StatusIOError, err, "close staged object")
	}

	return stagingToDestination(stagingPath, s.path(id))
}

// stagingToDestination renames a fully-written staging file into place. If
// the destination already appeared (another writer raced us to the same
// content-addressed name) the staging file is simply discarded: same id
// means same bytes, so there is nothing to reconcile (grounded on
// page_storage_impl.cc's StagingToDestination).
func stagingToDestination(stagingPath, destPath string) error {
	if err := os.Rename(stagingPath, destPath); err != nil {
		if _, statErr := os.Stat(destPath); statErr == nil {
			os.Remove(stagingPath)
			return nil
		}
		os.Remove(stagingPath)
		return wrapStatusError(StatusIOError, err, "rename %s -> %s", stagingPath, destPath)
	}
	return nil
}
