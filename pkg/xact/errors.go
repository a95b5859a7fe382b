package xact

import "errors"

var (
	// ErrNotActive is returned when an operation requires a transaction
	// in its ACTIVE state but it is not.
	ErrNotActive = errors.New("xact: transaction not active")

	// ErrWrongCoordinatorState guards the coordinator state machine: an
	// operation was attempted from a state that does not permit it.
	ErrWrongCoordinatorState = errors.New("xact: coordinator not in expected state")

	// ErrClusterLocked is returned when PREPARE is attempted while a
	// donor's "almost caught up" interlock (§4.6) is asserted.
	ErrClusterLocked = errors.New("xact: blocked by recovery cluster lock")

	// ErrQuorumLost is the distributed-commit error of spec.md §7:
	// "cluster configuration changed during commit".
	ErrQuorumLost = errors.New("xact: cluster configuration changed during commit")

	// ErrPrepareTimeout is returned when AWAITING VOTES exceeds the
	// transaction's computed PREPARE timeout.
	ErrPrepareTimeout = errors.New("xact: prepare timeout")

	// ErrVoteRejected is returned when any participant votes ABORTED.
	ErrVoteRejected = errors.New("xact: participant voted to abort")

	// ErrUnknownGid is returned when a remote PREPARE/COMMIT
	// PREPARED/ABORT PREPARED message names a GID this node has no
	// record of.
	ErrUnknownGid = errors.New("xact: unknown gid")

	// ErrDuplicateGid names a gid that arrived twice. ApplierSet.Prepare
	// does not return it: a duplicate PREPARE for an already-PREPARED gid
	// returns the original vote instead (R2: duplicate delivery is a no-op).
	ErrDuplicateGid = errors.New("xact: duplicate gid")

	// ErrInjectedAbort is returned when an administrative fault
	// injector forces a commit to abort (spec.md §6: inject-2pc-error).
	ErrInjectedAbort = errors.New("xact: aborted by injected fault")

	// ErrLocalTablesUnsupported is returned by make-table-local when the
	// host engine wired into this node does not implement
	// LocalTableRegistrar.
	ErrLocalTablesUnsupported = errors.New("xact: host does not support make-table-local")
)
