// Package xact implements the two-phase commit coordinator and applier
// state machines of spec.md §4.4.
package xact

import (
	"context"
	"time"

	"github.com/mnohosten/laura-mtm/pkg/csn"
	"github.com/mnohosten/laura-mtm/pkg/gtid"
)

// TransactionHost is the trait the host SQL engine implements, per
// Design Notes §9: pre-prepare fires exactly once before any row-change
// record is emitted; post-prepare fires once the coordinator knows the
// vote outcome; commit/abort finalize. The core is a consumer of this
// interface, never an implementor.
type TransactionHost interface {
	// PrePrepare is called once, before replication of any row change,
	// to let the host validate the transaction can be distributed (e.g.
	// reject an unsupported isolation level per spec.md §7).
	PrePrepare(ctx context.Context, xid gtid.XID) error

	// HasReplicatedWrites reports whether xid performed any write that
	// must be replicated. A PRE_PREPARE'd transaction with none becomes
	// local-only (spec.md §4.4's Filtering rule), as does one that only
	// touched a session-temporary relation.
	HasReplicatedWrites(xid gtid.XID) bool

	// TouchesLocalOnlyRelation reports whether xid wrote only to a
	// table marked local-only (make-table-local, §6.4), which also
	// forces the transaction local-only regardless of write count.
	TouchesLocalOnlyRelation(xid gtid.XID) bool

	// PostPrepare is called once the coordinator knows whether the
	// transaction will commit or abort, before the terminal Commit/Abort
	// call.
	PostPrepare(ctx context.Context, xid gtid.XID, committed bool)

	// Commit and Abort finalize the transaction in the host engine.
	Commit(ctx context.Context, xid gtid.XID, finalCSN csn.CSN) error
	Abort(ctx context.Context, xid gtid.XID) error
}

// RecoveryGate reports the §4.6 cluster-lock interlock: while a donor's
// wal-sender is "almost caught up", new distributed commits must wait.
type RecoveryGate interface {
	ClusterLockAsserted() bool
}

// alwaysOpenGate is used when the caller has no recovery controller
// wired in (e.g. single-node tests).
type alwaysOpenGate struct{}

func (alwaysOpenGate) ClusterLockAsserted() bool { return false }

// FaultHook lets an administrative fault injector perturb a
// coordinator's PREPARE path (spec.md §6: inject-2pc-error). The zero
// value of noFaultHook is used when nothing is wired in.
type FaultHook interface {
	// DelayPrepare returns how long to sleep before broadcasting
	// PREPARE for gid, or zero for no delay.
	DelayPrepare(gid gtid.GID) time.Duration

	// ForceAbort reports whether gid should be aborted outright instead
	// of going on to PREPARE.
	ForceAbort(gid gtid.GID) bool
}

type noFaultHook struct{}

func (noFaultHook) DelayPrepare(gtid.GID) time.Duration { return 0 }
func (noFaultHook) ForceAbort(gtid.GID) bool            { return false }

// Recorder lets an operator-facing metrics collector observe commit
// outcomes without pkg/xact importing pkg/clustermetrics directly.
// *clustermetrics.Collector satisfies this structurally.
type Recorder interface {
	RecordCommit(localOnly bool)
	RecordAbort()
	RecordVote(ready bool)
	RecordPrepareTimeout()
	RecordQuorumLost()
	RecordInjectedAbort()
}

// LocalTableRegistrar is an optional capability a TransactionHost may
// implement to support the make-table-local administrative operation
// (§6.4): marking name so future transactions touching only it are
// filtered to local-only by TouchesLocalOnlyRelation. A host that
// doesn't implement it rejects the operation (ErrLocalTablesUnsupported).
type LocalTableRegistrar interface {
	MarkTableLocal(name string) error
}

type noRecorder struct{}

func (noRecorder) RecordCommit(bool)     {}
func (noRecorder) RecordAbort()          {}
func (noRecorder) RecordVote(bool)       {}
func (noRecorder) RecordPrepareTimeout() {}
func (noRecorder) RecordQuorumLost()     {}
func (noRecorder) RecordInjectedAbort()  {}

// Config holds the coordinator's timing policy (spec.md §6's numeric
// knobs relevant to C4).
type Config struct {
	MinPrepareTimeout time.Duration
	PrepareRatio      int // percent; timeout = max(min, prepareLatency*ratio/100)
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() Config {
	return Config{
		MinPrepareTimeout: 5 * time.Second,
		PrepareRatio:      200,
	}
}

// prepareTimeout implements spec.md §4.4's timeout formula:
// max(min-2pc-timeout, (csn0 - snapshot) * prepare-ratio / 100).
func (c Config) prepareTimeout(snapshot, csn0 csn.CSN) time.Duration {
	elapsed := time.Duration(0)
	if csn0 > snapshot {
		elapsed = time.Duration(csn0-snapshot) * time.Microsecond
	}
	scaled := elapsed * time.Duration(c.PrepareRatio) / 100
	if scaled < c.MinPrepareTimeout {
		return c.MinPrepareTimeout
	}
	return scaled
}
