package xact

import (
	"context"
	"sync"

	"github.com/mnohosten/laura-mtm/pkg/csn"
	"github.com/mnohosten/laura-mtm/pkg/gtid"
	"github.com/mnohosten/laura-mtm/pkg/txstate"
)

// ApplierState is the remote-participant side of spec.md §4.4:
//
//	BEGIN(remote gtid, snapshot) -> ACTIVE
//	ACTIVE -> PREPARE(gid) -> PREPARED
//	PREPARED -> COMMIT PREPARED -> COMMITTED
//	PREPARED -> ABORT PREPARED -> ABORTED
type ApplierState int

const (
	ApplierActive ApplierState = iota
	ApplierPrepared
	ApplierCommitted
	ApplierAborted
)

func (s ApplierState) String() string {
	switch s {
	case ApplierActive:
		return "ACTIVE"
	case ApplierPrepared:
		return "PREPARED"
	case ApplierCommitted:
		return "COMMITTED"
	case ApplierAborted:
		return "ABORTED"
	default:
		return "INVALID"
	}
}

// Applier replays one remote transaction's row changes and answers its
// coordinator's PREPARE/COMMIT PREPARED/ABORT PREPARED.
type Applier struct {
	mu    sync.Mutex
	state ApplierState
	gid   gtid.GID
	gt    gtid.GTID
}

// ApplierSet tracks every in-flight remote transaction this node is
// replaying, keyed by gid once PREPARE has been received and by GTID
// before that.
type ApplierSet struct {
	clock *csn.Clock
	table *txstate.Table
	host  TransactionHost

	mu     sync.Mutex
	byGtid map[gtid.GTID]*Applier
	byGid  map[gtid.GID]*Applier
}

// NewApplierSet wires the applier side of C4 to the shared clock, state
// table and host engine.
func NewApplierSet(clock *csn.Clock, table *txstate.Table, host TransactionHost) *ApplierSet {
	return &ApplierSet{
		clock:  clock,
		table:  table,
		host:   host,
		byGtid: make(map[gtid.GTID]*Applier),
		byGid:  make(map[gtid.GID]*Applier),
	}
}

// Begin admits a remote transaction into ACTIVE, recording its
// coordinator-assigned snapshot so local readers can apply the
// in-doubt visibility rule once it reaches PREPARED. Sub-transactions
// never arrive here on their own: the originating coordinator already
// folded them into the parent's final status/CSN (xact.Manager's
// BeginSub/inheritToSubXids) before the row changes were ever decoded
// onto the replication stream, so insertAfterParent is always 0 on
// this, the applier side.
func (a *ApplierSet) Begin(gt gtid.GTID, snapshot csn.CSN) (*Applier, error) {
	ap := &Applier{state: ApplierActive, gt: gt}

	if err := a.table.Insert(&txstate.TransactionState{
		Xid:      localXidFor(gt),
		Gtid:     gt,
		Status:   txstate.StatusInProgress,
		Snapshot: snapshot,
	}, 0); err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.byGtid[gt] = ap
	a.mu.Unlock()
	return ap, nil
}

// Prepare transitions ACTIVE -> PREPARED, assigning the node's own CSN
// vote and marking the transaction status Unknown (I5: readers must
// wait or treat it as in-doubt until COMMIT/ABORT PREPARED arrives).
// A duplicate PREPARE for a gid already PREPARED is a no-op returning
// the same vote (R2).
func (a *ApplierSet) Prepare(ctx context.Context, gt gtid.GTID, gid gtid.GID, commitCsn0 csn.CSN) (Vote, error) {
	a.mu.Lock()
	if existing, ok := a.byGid[gid]; ok {
		a.mu.Unlock()
		existing.mu.Lock()
		defer existing.mu.Unlock()
		if existing.state != ApplierPrepared {
			return Vote{}, ErrWrongCoordinatorState
		}
		vote, _ := a.table.Get(localXidFor(existing.gt))
		return Vote{Node: gt.Node, Outcome: VoteReady, CSN: vote.Csn}, nil
	}
	ap, ok := a.byGtid[gt]
	a.mu.Unlock()
	if !ok {
		return Vote{}, ErrNotActive
	}

	ap.mu.Lock()
	defer ap.mu.Unlock()
	if ap.state != ApplierActive {
		return Vote{}, ErrWrongCoordinatorState
	}

	xid := localXidFor(gt)
	a.clock.Sync(commitCsn0)
	vote := a.clock.Assign()

	if err := a.table.Update(xid, func(ts *txstate.TransactionState) {
		ts.Gid = gid
		ts.Status = txstate.StatusUnknown
		ts.Csn = vote
	}); err != nil {
		return Vote{}, err
	}

	ap.state = ApplierPrepared
	ap.gid = gid

	a.mu.Lock()
	a.byGid[gid] = ap
	delete(a.byGtid, gt)
	a.mu.Unlock()

	return Vote{Node: gt.Node, Outcome: VoteReady, CSN: vote}, nil
}

// CommitPrepared finalizes a PREPARED applier transaction at finalCSN.
// Duplicate delivery after COMMITTED is a no-op (R2).
func (a *ApplierSet) CommitPrepared(ctx context.Context, gid gtid.GID, finalCSN csn.CSN) error {
	a.mu.Lock()
	ap, ok := a.byGid[gid]
	a.mu.Unlock()
	if !ok {
		return ErrUnknownGid
	}

	ap.mu.Lock()
	if ap.state == ApplierCommitted {
		ap.mu.Unlock()
		return nil
	}
	if ap.state != ApplierPrepared {
		ap.mu.Unlock()
		return ErrWrongCoordinatorState
	}
	ap.mu.Unlock()

	a.clock.Sync(finalCSN)
	xid := localXidFor(ap.gt)

	if err := a.table.Update(xid, func(ts *txstate.TransactionState) {
		ts.Status = txstate.StatusCommitted
		ts.Csn = finalCSN
	}); err != nil {
		return err
	}

	a.host.PostPrepare(ctx, xid, true)
	if err := a.host.Commit(ctx, xid, finalCSN); err != nil {
		return err
	}

	ap.mu.Lock()
	ap.state = ApplierCommitted
	ap.mu.Unlock()
	return nil
}

// AbortPrepared finalizes a PREPARED applier transaction as aborted.
// Duplicate delivery after ABORTED is a no-op (R2).
func (a *ApplierSet) AbortPrepared(ctx context.Context, gid gtid.GID) error {
	a.mu.Lock()
	ap, ok := a.byGid[gid]
	a.mu.Unlock()
	if !ok {
		return ErrUnknownGid
	}

	ap.mu.Lock()
	if ap.state == ApplierAborted {
		ap.mu.Unlock()
		return nil
	}
	if ap.state != ApplierPrepared {
		ap.mu.Unlock()
		return ErrWrongCoordinatorState
	}
	ap.mu.Unlock()

	xid := localXidFor(ap.gt)
	if err := a.table.Update(xid, func(ts *txstate.TransactionState) {
		ts.Status = txstate.StatusAborted
	}); err != nil {
		return err
	}

	a.host.PostPrepare(ctx, xid, false)
	_ = a.host.Abort(ctx, xid)

	ap.mu.Lock()
	ap.state = ApplierAborted
	ap.mu.Unlock()
	return nil
}

// State returns the applier's current state, for tests and metrics.
func (a *Applier) State() ApplierState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// localXidFor derives the local slot key for a remotely-originated
// transaction. Remote XIDs are scoped by origin node, so the table's
// per-node XID space can't collide with this node's own local XIDs;
// the top 8 bits of the 64-bit XID carry the origin node.
func localXidFor(gt gtid.GTID) gtid.XID {
	return gtid.XID(uint64(gt.Node)<<56 | uint64(gt.Xid)&0x00FFFFFFFFFFFFFF)
}
