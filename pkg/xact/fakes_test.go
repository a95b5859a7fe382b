package xact

import (
	"context"
	"sync"

	"github.com/mnohosten/laura-mtm/pkg/csn"
	"github.com/mnohosten/laura-mtm/pkg/gtid"
)

// fakeHost is a minimal TransactionHost for coordinator/applier tests.
type fakeHost struct {
	mu            sync.Mutex
	replicated    map[gtid.XID]bool
	localOnly     map[gtid.XID]bool
	prePrepareErr error

	committed []gtid.XID
	aborted   []gtid.XID
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		replicated: make(map[gtid.XID]bool),
		localOnly:  make(map[gtid.XID]bool),
	}
}

func (h *fakeHost) PrePrepare(ctx context.Context, xid gtid.XID) error { return h.prePrepareErr }

func (h *fakeHost) HasReplicatedWrites(xid gtid.XID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.replicated[xid]
}

func (h *fakeHost) TouchesLocalOnlyRelation(xid gtid.XID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.localOnly[xid]
}

func (h *fakeHost) PostPrepare(ctx context.Context, xid gtid.XID, committed bool) {}

func (h *fakeHost) Commit(ctx context.Context, xid gtid.XID, finalCSN csn.CSN) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.committed = append(h.committed, xid)
	return nil
}

func (h *fakeHost) Abort(ctx context.Context, xid gtid.XID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.aborted = append(h.aborted, xid)
	return nil
}

// fakeTransport is a scripted VoteTransport: each test configures the
// votes to deliver for the next BroadcastPrepare call.
type fakeTransport struct {
	mu           sync.Mutex
	votes        []Vote
	prepareErr   error
	liveCount    int
	configCtr    uint64
	lastGid      gtid.GID
	committed    []gtid.GID
	aborted      []gtid.GID
}

func (f *fakeTransport) BroadcastPrepare(ctx context.Context, gid gtid.GID, gt gtid.GTID, commitCsn0 csn.CSN) (<-chan Vote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastGid = gid
	if f.prepareErr != nil {
		return nil, f.prepareErr
	}
	ch := make(chan Vote, len(f.votes))
	for _, v := range f.votes {
		ch <- v
	}
	close(ch)
	return ch, nil
}

func (f *fakeTransport) BroadcastCommit(ctx context.Context, gid gtid.GID, finalCSN csn.CSN) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = append(f.committed, gid)
	return nil
}

func (f *fakeTransport) BroadcastAbort(ctx context.Context, gid gtid.GID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted = append(f.aborted, gid)
	return nil
}

func (f *fakeTransport) LiveNonDisabledCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.liveCount
}

func (f *fakeTransport) ConfigChangeCounter() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.configCtr
}
