package recovery

// Phase is a donor's view of one recovery slot's catch-up progress
// (spec.md §4.6).
type Phase int

const (
	// PhaseDraining is the default phase: the recoverer is still well
	// behind the donor's wal-lsn.
	PhaseDraining Phase = iota

	// PhaseAlmostCaughtUp is wal-lsn - slot-lsn < min-recovery-lag: the
	// donor must block its own new local commits until the recoverer
	// finishes draining (the C4 cluster-lock interlock).
	PhaseAlmostCaughtUp

	// PhaseCaughtUp is slot-lsn == wal-lsn with zero active transactions
	// on the donor: the recoverer may be re-admitted to the cluster.
	PhaseCaughtUp

	// PhaseDropped means the slot fell behind max-recovery-lag and the
	// donor abandoned it; the recoverer must restart from a base copy.
	PhaseDropped
)

func (p Phase) String() string {
	switch p {
	case PhaseDraining:
		return "draining"
	case PhaseAlmostCaughtUp:
		return "almost-caught-up"
	case PhaseCaughtUp:
		return "caught-up"
	case PhaseDropped:
		return "dropped"
	default:
		return "invalid"
	}
}
