package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/kvledger/pagestore/kv"
	"github.com/kvledger/pagestore/objectid"
)

const defaultNodeSize = 1024

// PageStorage is the facade every caller above the storage layer talks to:
// one page's commit graph, object store and journals, wired together (spec
// §4, grounded on page_storage_impl.cc's PageStorageImpl).
type PageStorage struct {
	PageID string

	objects     *ObjectStore
	metadata    *Metadata
	maxNodeSize uint32
	emptyRootID objectid.ID

	syncMu       sync.RWMutex
	syncDelegate SyncDelegate

	watchersMu sync.Mutex
	watchers   []Watcher

	journalSeq uint64
}

// Open prepares a page's on-disk state under dir, backed by db for
// metadata, creating it (FIRST_COMMIT_ID as the sole head) if this is the
// first time the page has been opened (spec §4.6's Init).
func Open(ctx context.Context, pageID, dir string, db kv.OrderedStore, defaultNodeSizeOverride uint32) (*PageStorage, error) {
	objects, err := NewObjectStore(dir)
	if err != nil {
		return nil, err
	}
	ps := &PageStorage{
		PageID:   pageID,
		objects:  objects,
		metadata: NewMetadata(db),
	}
	if err := ps.init(ctx, defaultNodeSizeOverride); err != nil {
		return nil, err
	}
	return ps, nil
}

func (ps *PageStorage) init(ctx context.Context, requestedNodeSize uint32) error {
	emptyRootID, err := NodeFromEntries(ctx, ps.objects, nil, []objectid.ID{objectid.Empty})
	if err != nil {
		return err
	}
	ps.emptyRootID = emptyRootID

	if size, ok := ps.metadata.GetNodeSize(); ok {
		ps.maxNodeSize = size
	} else {
		size := requestedNodeSize
		if size == 0 {
			size = defaultNodeSize
		}
		ps.maxNodeSize = size
		b := ps.metadata.NewBatch()
		b.SetNodeSize(size)
		if err := b.Commit(); err != nil {
			return err
		}
	}

	if len(ps.metadata.GetHeads()) == 0 {
		first := EmptyCommit(ps.emptyRootID)
		b := ps.metadata.NewBatch()
		b.PutCommit(first)
		b.AddHead(first.ID())
		if err := b.Commit(); err != nil {
			return err
		}
	}

	return ps.replayJournals(ctx)
}

// replayJournals handles journal records left behind by a process that died
// mid-commit (spec §4.5): EXPLICIT journals are never auto-resumed and are
// simply discarded, while IMPLICIT journals represent a single operation
// that was meant to complete unattended, so they are replayed to
// completion (grounded on page_storage_impl.cc's RemoveExplicitJournals +
// implicit-journal replay in Init).
func (ps *PageStorage) replayJournals(ctx context.Context) error {
	type pending struct {
		id   string
		data []byte
	}
	var records []pending
	ps.metadata.ForEachJournalRecord(func(id string, data []byte) bool {
		records = append(records, pending{id: id, data: data})
		return true
	})

	for _, rec := range records {
		typ, baseCommits, baseRootID, edits, err := DecodeJournalRecord(rec.data, ps.GetCommit2(ctx))
		if err != nil || typ == JournalExplicit {
			b := ps.metadata.NewBatch()
			b.DeleteJournalRecord(rec.id)
			if err := b.Commit(); err != nil {
				return err
			}
			continue
		}

		j := NewJournal(rec.id, JournalImplicit, baseCommits, baseRootID, ps.objects, int(ps.maxNodeSize))
		for _, e := range edits {
			if e.Deleted {
				j.Delete(e.Entry.Key)
			} else {
				j.Put(e.Entry.Key, e.Entry.ValueID, e.Entry.Priority)
			}
		}
		if _, err := ps.finishJournal(ctx, j, true, false); err != nil {
			return err
		}
	}
	return nil
}

// GetCommit2 adapts GetCommit to the lookup signature DecodeJournalRecord
// needs; named distinctly because GetCommit itself already has the (ctx,
// id) shape DecodeJournalRecord's callback does not take a context.
func (ps *PageStorage) GetCommit2(ctx context.Context) func(objectid.ID) (*Commit, error) {
	return func(id objectid.ID) (*Commit, error) {
		return ps.GetCommit(ctx, id)
	}
}

// IsFirstCommit reports whether id is the reserved empty/root commit.
func (ps *PageStorage) IsFirstCommit(id objectid.ID) bool { return id == FirstCommitID }

// ContainsCommit reports whether id names a commit this page knows about.
func (ps *PageStorage) ContainsCommit(id objectid.ID) bool {
	return ps.IsFirstCommit(id) || ps.metadata.GetCommitBytes(id) != nil
}

// GetCommit loads a commit by id.
func (ps *PageStorage) GetCommit(_ context.Context, id objectid.ID) (*Commit, error) {
	if ps.IsFirstCommit(id) {
		return EmptyCommit(ps.emptyRootID), nil
	}
	data := ps.metadata.GetCommitBytes(id)
	if data == nil {
		return nil, wrapStatusError(StatusNotFound, ErrNotFound, "commit %s", id)
	}
	return FromStorageBytes(id, data)
}

// GetHeadCommitIDs returns every current head commit id.
func (ps *PageStorage) GetHeadCommitIDs() []objectid.ID { return ps.metadata.GetHeads() }

// nextJournalID hands out a unique per-process journal identifier.
func (ps *PageStorage) nextJournalID() string {
	return fmt.Sprintf("%s-%d", ps.PageID, atomic.AddUint64(&ps.journalSeq, 1))
}

// StartCommit begins an explicit journal whose edits will be applied on
// top of parentID's tree (spec §4.5).
func (ps *PageStorage) StartCommit(ctx context.Context, parentID objectid.ID) (*Journal, error) {
	parent, err := ps.GetCommit(ctx, parentID)
	if err != nil {
		return nil, err
	}
	j := NewJournal(ps.nextJournalID(), JournalExplicit, []*Commit{parent}, parent.RootID(), ps.objects, int(ps.maxNodeSize))
	return j, ps.persistJournalRecord(j)
}

// StartMergeCommit begins an explicit journal reconciling two heads: edits
// are applied on top of leftID's tree, and the resulting commit's parents
// are both leftID and rightID (spec §4.5).
func (ps *PageStorage) StartMergeCommit(ctx context.Context, leftID, rightID objectid.ID) (*Journal, error) {
	left, err := ps.GetCommit(ctx, leftID)
	if err != nil {
		return nil, err
	}
	right, err := ps.GetCommit(ctx, rightID)
	if err != nil {
		return nil, err
	}
	j := NewJournal(ps.nextJournalID(), JournalExplicit, []*Commit{left, right}, left.RootID(), ps.objects, int(ps.maxNodeSize))
	return j, ps.persistJournalRecord(j)
}

func (ps *PageStorage) persistJournalRecord(j *Journal) error {
	b := ps.metadata.NewBatch()
	b.PutJournalRecord(j.ID, j.EncodeRecord())
	return b.Commit()
}

// AddCommitFromLocal commits journal, marking the result unsynced (spec
// §4.4, §5): it was produced on this device and the sync delegate hasn't
// acknowledged it yet.
func (ps *PageStorage) AddCommitFromLocal(ctx context.Context, j *Journal) (*Commit, error) {
	return ps.finishJournal(ctx, j, true, false)
}

func (ps *PageStorage) finishJournal(ctx context.Context, j *Journal, markUnsynced, fromSync bool) (*Commit, error) {
	commit, _, err := j.Commit(ctx)
	if err != nil {
		return nil, err
	}

	b := ps.metadata.NewBatch()
	b.DeleteJournalRecord(j.ID)
	b.PutCommit(commit)
	for _, p := range j.BaseCommits() {
		b.RemoveHead(p.ID())
	}
	b.AddHead(commit.ID())
	if markUnsynced {
		b.MarkUnsynced(commit.ID())
	}
	if err := ps.markReachableTracked(ctx, b, commit, markUnsynced); err != nil {
		return nil, err
	}
	if err := b.Commit(); err != nil {
		return nil, err
	}

	ps.notifyWatchers(commit, fromSync)
	return commit, nil
}

// AddCommitsFromSync lands a batch of commits received from a peer
// atomically (SPEC_FULL.md's generalization of the single-commit AddCommit
// path in page_storage_impl.cc to the multi-commit case sync delivers).
// Objects a commit brings in are not marked unsynced: they arrived through
// the sync delegate, so by definition it already has them.
func (ps *PageStorage) AddCommitsFromSync(ctx context.Context, commits []*Commit) error {
	b := ps.metadata.NewBatch()
	for _, c := range commits {
		b.PutCommit(c)
		for _, pid := range c.ParentIDs() {
			b.RemoveHead(pid)
		}
		b.AddHead(c.ID())
		if err := ps.markReachableTracked(ctx, b, c, false); err != nil {
			return err
		}
	}
	if err := b.Commit(); err != nil {
		return err
	}
	for _, c := range commits {
		ps.notifyWatchers(c, true)
	}
	return nil
}

// markReachableTracked walks commit's tree and drops every object it
// reaches from the untracked set, as part of the same metadata batch that
// lands the commit (spec §4.6): once a commit referencing an object is
// durable, that object can no longer be garbage collected as orphaned. When
// markUnsynced is set (a locally produced commit), every reachable object is
// also added to the object-level unsynced set, mirroring how the commit
// itself is marked unsynced.
func (ps *PageStorage) markReachableTracked(ctx context.Context, b *Batch, commit *Commit, markUnsynced bool) error {
	ids, err := GetObjectIds(ctx, ps.objects, commit.RootID())
	if err != nil {
		return err
	}
	for id := range ids {
		b.MarkTracked(id)
		if markUnsynced {
			b.MarkObjectUnsynced(id)
		}
	}
	return nil
}

// AddCommitWatcher registers w to be notified of every new commit.
func (ps *PageStorage) AddCommitWatcher(w Watcher) {
	ps.watchersMu.Lock()
	defer ps.watchersMu.Unlock()
	ps.watchers = append(ps.watchers, w)
}

// RemoveCommitWatcher unregisters w.
func (ps *PageStorage) RemoveCommitWatcher(w Watcher) {
	ps.watchersMu.Lock()
	defer ps.watchersMu.Unlock()
	for i, existing := range ps.watchers {
		if existing == w {
			ps.watchers = append(ps.watchers[:i], ps.watchers[i+1:]...)
			return
		}
	}
}

func (ps *PageStorage) notifyWatchers(c *Commit, fromSync bool) {
	ps.watchersMu.Lock()
	watchers := append([]Watcher(nil), ps.watchers...)
	ps.watchersMu.Unlock()
	for _, w := range watchers {
		w.OnNewCommit(c, fromSync)
	}
}

// SetSyncDelegate wires (or clears, with nil) the delegate used to fetch
// objects this device doesn't have locally.
func (ps *PageStorage) SetSyncDelegate(d SyncDelegate) {
	ps.syncMu.Lock()
	defer ps.syncMu.Unlock()
	ps.syncDelegate = d
}

func (ps *PageStorage) delegate() SyncDelegate {
	ps.syncMu.RLock()
	defer ps.syncMu.RUnlock()
	return ps.syncDelegate
}

// GetObject returns an object's bytes, fetching it through the sync
// delegate on a local miss if one is configured (spec §5).
func (ps *PageStorage) GetObject(ctx context.Context, id objectid.ID) ([]byte, error) {
	if data, err := ps.objects.Get(ctx, id); err == nil {
		return data, nil
	} else if !isNotFound(err) {
		return nil, err
	}

	delegate := ps.delegate()
	if delegate == nil {
		return nil, wrapStatusError(StatusNotFound, ErrNotFound, "object %s (no sync delegate configured)", id)
	}
	data, err := delegate.GetObject(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := ps.objects.Put(ctx, data); err != nil {
		return nil, err
	}
	return data, nil
}

// AddObjectFromLocal stores data locally as an untracked object: it exists
// but isn't yet known to be reachable from any commit (spec §4.1).
func (ps *PageStorage) AddObjectFromLocal(ctx context.Context, data []byte) (objectid.ID, error) {
	id, err := ps.objects.Put(ctx, data)
	if err != nil {
		return objectid.Empty, err
	}
	b := ps.metadata.NewBatch()
	b.MarkUntracked(id)
	if err := b.Commit(); err != nil {
		return objectid.Empty, err
	}
	return id, nil
}

// MarkObjectTracked records that id is now reachable from a commit and can
// no longer be garbage collected as orphaned.
func (ps *PageStorage) MarkObjectTracked(id objectid.ID) error {
	b := ps.metadata.NewBatch()
	b.MarkTracked(id)
	return b.Commit()
}

// ObjectIsUntracked reports whether id was written locally but is not yet
// known to be reachable from any commit.
func (ps *PageStorage) ObjectIsUntracked(id objectid.ID) bool {
	return ps.metadata.IsUntracked(id)
}

// GetUnsyncedCommits returns every locally created commit the sync delegate
// has not yet acknowledged.
func (ps *PageStorage) GetUnsyncedCommits(ctx context.Context) ([]*Commit, error) {
	var out []*Commit
	for _, id := range ps.metadata.GetUnsyncedCommitIDs() {
		c, err := ps.GetCommit(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// MarkCommitSynced drops id from the unsynced set once the delegate has
// acknowledged it.
func (ps *PageStorage) MarkCommitSynced(id objectid.ID) error {
	b := ps.metadata.NewBatch()
	b.MarkSynced(id)
	return b.Commit()
}

// GetUnsyncedObjectIDs returns every object reachable from commit's tree
// that the sync delegate has not yet acknowledged (spec §6's
// get_unsynced_object_ids(commit), distinct from the commit-level unsynced
// set GetUnsyncedCommits covers).
func (ps *PageStorage) GetUnsyncedObjectIDs(ctx context.Context, commit *Commit) ([]objectid.ID, error) {
	ids, err := GetObjectIds(ctx, ps.objects, commit.RootID())
	if err != nil {
		return nil, err
	}
	var out []objectid.ID
	for id := range ids {
		if ps.metadata.IsObjectUnsynced(id) {
			out = append(out, id)
		}
	}
	return out, nil
}

// MarkObjectSynced drops id from the object-level unsynced set once the
// delegate has acknowledged it.
func (ps *PageStorage) MarkObjectSynced(id objectid.ID) error {
	b := ps.metadata.NewBatch()
	b.MarkObjectSynced(id)
	return b.Commit()
}

// NodeStore exposes the page's content-addressed tree/object store for
// callers that need to walk trees directly (iterator.go, diff.go, ...).
func (ps *PageStorage) NodeStore() NodeStore { return ps.objects }

// MaxNodeSize returns the configured per-node entry budget.
func (ps *PageStorage) MaxNodeSize() uint32 { return ps.maxNodeSize }

func isNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == StatusNotFound
}
