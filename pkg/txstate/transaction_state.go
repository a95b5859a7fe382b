package txstate

import (
	"github.com/mnohosten/laura-mtm/pkg/csn"
	"github.com/mnohosten/laura-mtm/pkg/gtid"
)

// Status is the lifecycle state of a TransactionState (spec.md's
// `status` attribute). A transaction in Unknown may transition only to
// Committed or Aborted (I3).
type Status int

const (
	StatusInProgress Status = iota
	StatusUnknown
	StatusCommitted
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusInProgress:
		return "in-progress"
	case StatusUnknown:
		return "unknown"
	case StatusCommitted:
		return "committed"
	case StatusAborted:
		return "aborted"
	default:
		return "invalid"
	}
}

// CanTransitionTo reports whether s -> next is a legal status change.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusUnknown:
		return next == StatusCommitted || next == StatusAborted
	case StatusCommitted, StatusAborted:
		return false
	default: // StatusInProgress
		return true
	}
}

// slotID is the arena index backing a TransactionState; it replaces the
// intrusive `next`-pointer list of the source design (Design Notes §9):
// the FIFO used for GC holds slotIDs, not pointers, so the hash index
// and the FIFO never alias each other's memory.
type slotID uint32

const noSlot slotID = ^slotID(0)

// TransactionState is the per-XID record described in spec.md §3.
type TransactionState struct {
	Xid      gtid.XID
	Gtid     gtid.GTID
	Gid      gtid.GID
	Status   Status
	Snapshot csn.CSN
	Csn      csn.CSN // final commit CSN; may rise to the cluster maximum
	IsLocal  bool

	VotesNeeded   int
	VotesReceived int
	VotingComplete bool

	SubXids []gtid.XID // committed sub-transactions inheriting parent status/CSN

	WaiterProcNo uint64 // id of the local waiter to wake on vote completion

	slot slotID // this record's own arena index
	next slotID // FIFO link to the next-inserted record, noSlot if tail
}

// Clone returns a value copy safe to hand to a caller outside the
// table's lock (SubXids is copied; callers must not retain aliasing on
// mutable fields of the original).
func (t *TransactionState) Clone() *TransactionState {
	cp := *t
	if t.SubXids != nil {
		cp.SubXids = append([]gtid.XID(nil), t.SubXids...)
	}
	return &cp
}
