package xact

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mnohosten/laura-mtm/pkg/csn"
	"github.com/mnohosten/laura-mtm/pkg/gtid"
	"github.com/mnohosten/laura-mtm/pkg/txstate"
)

// CoordinatorState is the coordinator-side state machine of spec.md §4.4.
type CoordinatorState int

const (
	StateBegin CoordinatorState = iota
	StateActive
	StatePrePrepare
	StatePrepareLocal
	StateAwaitingVotes
	StateCommitting
	StateAborting
	StateCommitted
	StateAborted
)

func (s CoordinatorState) String() string {
	switch s {
	case StateBegin:
		return "BEGIN"
	case StateActive:
		return "ACTIVE"
	case StatePrePrepare:
		return "PRE-PREPARE"
	case StatePrepareLocal:
		return "PREPARE LOCAL"
	case StateAwaitingVotes:
		return "AWAITING VOTES"
	case StateCommitting:
		return "COMMITTING"
	case StateAborting:
		return "ABORTING"
	case StateCommitted:
		return "COMMITTED"
	case StateAborted:
		return "ABORTED"
	default:
		return "INVALID"
	}
}

// Coordinator drives one distributed transaction through PREPARE/COMMIT
// from the originating node.
type Coordinator struct {
	mu    sync.Mutex
	state CoordinatorState

	selfNode  gtid.NodeID
	xid       gtid.XID
	gtid      gtid.GTID
	gid       gtid.GID
	snapshot  csn.CSN
	commitCsn csn.CSN
	distributed bool

	// subXids holds this coordinator's sub-transactions (SAVEPOINTs),
	// in the order BeginSub registered them: each inherits this
	// coordinator's final status and CSN once it commits or aborts
	// (spec.md §3's `subxids[]`).
	subXids []gtid.XID
}

// Manager creates and tracks coordinators for every locally-originated
// transaction, and mediates applier-side (participant) state for
// transactions originated elsewhere.
type Manager struct {
	selfNode  gtid.NodeID
	clock     *csn.Clock
	table     *txstate.Table
	host      TransactionHost
	transport VoteTransport
	gate      RecoveryGate
	config    Config
	faults    FaultHook
	recorder  Recorder

	mu           sync.Mutex
	coordinators map[gtid.XID]*Coordinator
}

// NewManager wires C4 together. gate may be nil, meaning no recovery
// interlock is active (e.g. a single-node or test cluster).
func NewManager(selfNode gtid.NodeID, clock *csn.Clock, table *txstate.Table, host TransactionHost, transport VoteTransport, gate RecoveryGate, cfg Config) *Manager {
	if gate == nil {
		gate = alwaysOpenGate{}
	}
	return &Manager{
		selfNode:     selfNode,
		clock:        clock,
		table:        table,
		host:         host,
		transport:    transport,
		gate:         gate,
		config:       cfg,
		faults:       noFaultHook{},
		recorder:     noRecorder{},
		coordinators: make(map[gtid.XID]*Coordinator),
	}
}

// SetFaultHook wires an administrative fault injector into the PREPARE
// path (spec.md §6: inject-2pc-error). Passing nil restores the no-op
// default.
func (m *Manager) SetFaultHook(h FaultHook) {
	if h == nil {
		h = noFaultHook{}
	}
	m.mu.Lock()
	m.faults = h
	m.mu.Unlock()
}

// SetRecorder wires a cluster-metrics collector so commit/abort/vote
// outcomes show up on the node's /v1/metrics surface. Passing nil
// restores the no-op default.
func (m *Manager) SetRecorder(r Recorder) {
	if r == nil {
		r = noRecorder{}
	}
	m.mu.Lock()
	m.recorder = r
	m.mu.Unlock()
}

func (m *Manager) currentRecorder() Recorder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recorder
}

// Begin starts a local transaction: BEGIN -> ACTIVE, with snapshot taken
// from assign-csn.
func (m *Manager) Begin(xid gtid.XID) (*Coordinator, error) {
	snap := m.clock.Assign()

	co := &Coordinator{
		selfNode: m.selfNode,
		xid:      xid,
		gtid:     gtid.GTID{Node: m.selfNode, Xid: xid},
		snapshot: snap,
		state:    StateActive,
	}

	if err := m.table.Insert(&txstate.TransactionState{
		Xid:      xid,
		Gtid:     co.gtid,
		Status:   txstate.StatusInProgress,
		Snapshot: snap,
	}, 0); err != nil {
		return nil, err
	}
	m.table.AcquireSnapshot(snap)

	m.mu.Lock()
	m.coordinators[xid] = co
	m.mu.Unlock()

	return co, nil
}

// BeginSub starts a sub-transaction (SAVEPOINT) nested under the
// still-active parentXid. Its TransactionState is inserted immediately
// after the parent's in the FIFO so GC reclaims both together, and it
// inherits the parent's snapshot: a sub-transaction never obtains its
// own, final, outcome, only the parent's status/CSN once that parent
// itself commits or aborts (spec.md §4.2, §3's `subxids[]`).
func (m *Manager) BeginSub(parentXid, subXid gtid.XID) (*Coordinator, error) {
	m.mu.Lock()
	parent, ok := m.coordinators[parentXid]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotActive
	}

	parent.mu.Lock()
	if parent.state != StateActive {
		parent.mu.Unlock()
		return nil, ErrWrongCoordinatorState
	}
	snap := parent.snapshot
	parent.mu.Unlock()

	sub := &Coordinator{
		selfNode: m.selfNode,
		xid:      subXid,
		gtid:     gtid.GTID{Node: m.selfNode, Xid: subXid},
		snapshot: snap,
		state:    StateActive,
	}

	if err := m.table.Insert(&txstate.TransactionState{
		Xid:      subXid,
		Gtid:     sub.gtid,
		Status:   txstate.StatusInProgress,
		Snapshot: snap,
	}, parentXid); err != nil {
		return nil, err
	}
	m.table.AcquireSnapshot(snap)

	parent.mu.Lock()
	parent.subXids = append(parent.subXids, subXid)
	parent.mu.Unlock()

	m.mu.Lock()
	m.coordinators[subXid] = sub
	m.mu.Unlock()

	return sub, nil
}

// inheritToSubXids folds the parent's final status and CSN into every
// sub-transaction it registered via BeginSub, then records the full
// list on the parent's own TransactionState.
func (m *Manager) inheritToSubXids(co *Coordinator, status txstate.Status, finalCSN csn.CSN) {
	co.mu.Lock()
	subXids := co.subXids
	co.mu.Unlock()
	if len(subXids) == 0 {
		return
	}

	for _, sub := range subXids {
		m.table.ReleaseSnapshot(co.snapshot)
		_ = m.table.Update(sub, func(ts *txstate.TransactionState) {
			ts.Status = status
			ts.Csn = finalCSN
		})
		m.mu.Lock()
		delete(m.coordinators, sub)
		m.mu.Unlock()
	}

	_ = m.table.Update(co.xid, func(ts *txstate.TransactionState) {
		ts.SubXids = subXids
	})
}

// AbortActive aborts an ACTIVE local transaction outright, without
// ever reaching PREPARE. It exists for external callers that decide a
// transaction must die before it calls Commit — the deadlock
// detector's victim selection (§5) being the only one in this core.
func (m *Manager) AbortActive(ctx context.Context, xid gtid.XID) error {
	m.mu.Lock()
	co, ok := m.coordinators[xid]
	m.mu.Unlock()
	if !ok {
		return ErrNotActive
	}

	co.mu.Lock()
	if co.state != StateActive {
		co.mu.Unlock()
		return ErrWrongCoordinatorState
	}
	co.mu.Unlock()

	m.abortLocal(ctx, co)

	m.table.ReleaseSnapshot(co.snapshot)
	m.mu.Lock()
	delete(m.coordinators, xid)
	m.mu.Unlock()
	return nil
}

// MarkDistributed records that xid performed a replicated write; it
// stays in ACTIVE.
func (m *Manager) MarkDistributed(xid gtid.XID) error {
	m.mu.Lock()
	co, ok := m.coordinators[xid]
	m.mu.Unlock()
	if !ok {
		return ErrNotActive
	}

	co.mu.Lock()
	defer co.mu.Unlock()
	if co.state != StateActive {
		return ErrWrongCoordinatorState
	}
	co.distributed = true
	return nil
}

// SetWaiter records the local process/session identifier that should
// be woken once xid's PREPARE votes finish (spec.md §3's
// `waiter-procno`). Actually waking it is the host SQL engine's job —
// this core has no process table of its own (the same non-goal
// pkg/node's noLocalWaiter stands in for) — so this only makes the
// identifier visible on the TransactionState for the host to poll or
// act on via its own wait/wakeup mechanism.
func (m *Manager) SetWaiter(xid gtid.XID, procNo uint64) error {
	return m.table.Update(xid, func(ts *txstate.TransactionState) {
		ts.WaiterProcNo = procNo
	})
}

// Commit runs the user's COMMIT through PRE-PREPARE, PREPARE LOCAL,
// AWAITING VOTES and either COMMITTING->COMMITTED or
// ABORTING->ABORTED, returning the final commit CSN on success.
func (m *Manager) Commit(ctx context.Context, xid gtid.XID) (csn.CSN, error) {
	m.mu.Lock()
	co, ok := m.coordinators[xid]
	m.mu.Unlock()
	if !ok {
		return 0, ErrNotActive
	}

	co.mu.Lock()
	if co.state != StateActive {
		co.mu.Unlock()
		return 0, ErrWrongCoordinatorState
	}
	co.state = StatePrePrepare
	co.mu.Unlock()

	defer func() {
		m.table.ReleaseSnapshot(co.snapshot)
		m.mu.Lock()
		delete(m.coordinators, xid)
		m.mu.Unlock()
	}()

	if err := m.host.PrePrepare(ctx, xid); err != nil {
		m.abortLocal(ctx, co)
		return 0, err
	}

	// Filtering rule (§4.4): a transaction with no replicated writes, or
	// one confined to a make-table-local relation, never leaves PRE-PREPARE.
	isLocalOnly := m.host.TouchesLocalOnlyRelation(xid) || !m.host.HasReplicatedWrites(xid)
	if isLocalOnly {
		return m.commitLocalOnly(ctx, co)
	}

	if m.gate.ClusterLockAsserted() {
		m.abortLocal(ctx, co)
		return 0, ErrClusterLocked
	}

	return m.runDistributedCommit(ctx, co)
}

// commitLocalOnly finalizes a filtered (non-replicated) transaction
// without ever entering PREPARE LOCAL / AWAITING VOTES.
func (m *Manager) commitLocalOnly(ctx context.Context, co *Coordinator) (csn.CSN, error) {
	finalCSN := m.clock.Assign()

	co.mu.Lock()
	co.state = StateCommitted
	co.commitCsn = finalCSN
	co.mu.Unlock()

	m.table.Update(co.xid, func(ts *txstate.TransactionState) {
		ts.Status = txstate.StatusCommitted
		ts.Csn = finalCSN
		ts.IsLocal = true
	})

	m.host.PostPrepare(ctx, co.xid, true)
	if err := m.host.Commit(ctx, co.xid, finalCSN); err != nil {
		return 0, err
	}
	m.inheritToSubXids(co, txstate.StatusCommitted, finalCSN)
	m.currentRecorder().RecordCommit(true)
	return finalCSN, nil
}

func (m *Manager) runDistributedCommit(ctx context.Context, co *Coordinator) (csn.CSN, error) {
	co.mu.Lock()
	co.gid = gtid.MakeGID(co.gtid)
	csn0 := m.clock.Assign()
	co.commitCsn = csn0
	co.state = StatePrepareLocal
	co.mu.Unlock()

	m.table.Update(co.xid, func(ts *txstate.TransactionState) {
		ts.Gid = co.gid
		ts.Csn = csn0
	})

	m.mu.Lock()
	faults := m.faults
	m.mu.Unlock()

	if faults.ForceAbort(co.gid) {
		m.abortLocal(ctx, co)
		m.currentRecorder().RecordInjectedAbort()
		return 0, ErrInjectedAbort
	}
	if d := faults.DelayPrepare(co.gid); d > 0 {
		time.Sleep(d)
	}

	timeout := m.config.prepareTimeout(co.snapshot, csn0)
	prepareCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	co.mu.Lock()
	co.state = StateAwaitingVotes
	co.mu.Unlock()

	votes, err := m.transport.BroadcastPrepare(prepareCtx, co.gid, co.gtid, csn0)
	if err != nil {
		m.abortLocal(ctx, co)
		_ = m.transport.BroadcastAbort(ctx, co.gid)
		return 0, fmt.Errorf("xact: broadcast prepare: %w", err)
	}

	needed := m.transport.LiveNonDisabledCount()
	configAtStart := m.transport.ConfigChangeCounter()
	maxCSN := csn0
	received := 0

	m.table.Update(co.xid, func(ts *txstate.TransactionState) {
		ts.VotesNeeded = needed
	})

	for received < needed {
		select {
		case v, more := <-votes:
			if !more {
				// Channel closed before every expected vote arrived:
				// treat missing participants as lost quorum rather
				// than hanging forever.
				m.abortLocal(ctx, co)
				_ = m.transport.BroadcastAbort(ctx, co.gid)
				m.currentRecorder().RecordQuorumLost()
				return 0, ErrQuorumLost
			}
			if v.Err != nil || v.Outcome == VoteAborted {
				m.abortLocal(ctx, co)
				_ = m.transport.BroadcastAbort(ctx, co.gid)
				m.currentRecorder().RecordVote(false)
				return 0, ErrVoteRejected
			}
			m.currentRecorder().RecordVote(true)
			if v.CSN > maxCSN {
				maxCSN = v.CSN
			}
			received++
			m.table.Update(co.xid, func(ts *txstate.TransactionState) {
				ts.VotesReceived = received
			})

		case <-prepareCtx.Done():
			m.abortLocal(ctx, co)
			_ = m.transport.BroadcastAbort(ctx, co.gid)
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			m.currentRecorder().RecordPrepareTimeout()
			return 0, ErrPrepareTimeout
		}

		if m.transport.ConfigChangeCounter() != configAtStart {
			needed = m.transport.LiveNonDisabledCount()
			configAtStart = m.transport.ConfigChangeCounter()
			m.table.Update(co.xid, func(ts *txstate.TransactionState) {
				ts.VotesNeeded = needed
			})
			if received >= needed {
				break
			}
		}
	}

	m.table.Update(co.xid, func(ts *txstate.TransactionState) {
		ts.VotingComplete = true
	})

	// COMMITTING: final CSN is the max over all participant votes (I4/P3).
	finalCSN := m.clock.Assign()
	if maxCSN > finalCSN {
		finalCSN = maxCSN
		m.clock.Sync(finalCSN)
	}

	co.mu.Lock()
	co.state = StateCommitting
	co.commitCsn = finalCSN
	co.mu.Unlock()

	m.table.Update(co.xid, func(ts *txstate.TransactionState) {
		ts.Status = txstate.StatusCommitted
		ts.Csn = finalCSN
	})

	m.host.PostPrepare(ctx, co.xid, true)
	commitErr := m.host.Commit(ctx, co.xid, finalCSN)
	_ = m.transport.BroadcastCommit(ctx, co.gid, finalCSN)

	co.mu.Lock()
	co.state = StateCommitted
	co.mu.Unlock()

	m.inheritToSubXids(co, txstate.StatusCommitted, finalCSN)
	m.currentRecorder().RecordCommit(false)

	if commitErr != nil {
		return finalCSN, commitErr
	}
	return finalCSN, nil
}

func (m *Manager) abortLocal(ctx context.Context, co *Coordinator) {
	co.mu.Lock()
	co.state = StateAborting
	co.mu.Unlock()

	m.table.Update(co.xid, func(ts *txstate.TransactionState) {
		ts.Status = txstate.StatusAborted
	})

	m.host.PostPrepare(ctx, co.xid, false)
	_ = m.host.Abort(ctx, co.xid)

	co.mu.Lock()
	co.state = StateAborted
	co.mu.Unlock()

	m.inheritToSubXids(co, txstate.StatusAborted, 0)
	m.currentRecorder().RecordAbort()
}

// State returns the coordinator's current state, for tests and metrics.
func (c *Coordinator) State() CoordinatorState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns the CSN taken at BEGIN.
func (c *Coordinator) Snapshot() csn.CSN {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// GID returns the transaction's global identifier, empty until
// PREPARE LOCAL has run.
func (c *Coordinator) GID() gtid.GID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gid
}
