package recovery

import (
	"errors"
	"sync"

	"github.com/mnohosten/laura-mtm/pkg/csn"
	"github.com/mnohosten/laura-mtm/pkg/gtid"
)

// ErrNotRecovering is returned by Recoverer methods that only make
// sense mid-recovery, once BeginRecovery has run and before MarkCaughtUp
// (or Abandon) closes it out.
var ErrNotRecovering = errors.New("recovery: node is not currently recovering")

// membershipGate is the slice of *arbiter.Detector the recoverer drives
// directly; kept as a narrow interface so this package doesn't import
// pkg/arbiter (which may in turn want pkg/recovery for its own wiring
// through pkg/node).
type membershipGate interface {
	DisableSelf()
	EnableNode(id gtid.NodeID)
	MarkRecovered()
	PromoteToOnline()
}

// Recoverer is the joining-node side of C6: it opens a single logical
// channel to one donor, replays its stream in order, and performs the
// catch-up handshake that re-admits this node to the cluster (spec.md
// §4.6). It never opens a second donor channel mid-recovery, so the
// recoverer always sees a linear history (step 1).
type Recoverer struct {
	self   gtid.NodeID
	clock  *csn.Clock
	detect membershipGate

	mu         sync.Mutex
	donor      gtid.NodeID
	recovering bool
}

// NewRecoverer builds a recoverer for self, wired to the shared CSN
// clock (so a sync() on each incoming PREPARE's remote CSN ratchets the
// local clock per step 2) and to the node's failure detector (so the
// I7 disabled-bit bookkeeping happens through the one membership
// component that owns it).
func NewRecoverer(self gtid.NodeID, clock *csn.Clock, detect membershipGate) *Recoverer {
	return &Recoverer{self: self, clock: clock, detect: detect}
}

// BeginRecovery opens the recovery slot against donor and sets this
// node's own disabled bit (I7). Call this once, on boot into recovery.
func (r *Recoverer) BeginRecovery(donor gtid.NodeID) {
	r.mu.Lock()
	r.donor = donor
	r.recovering = true
	r.mu.Unlock()

	r.detect.DisableSelf()
}

// Donor returns the node currently feeding this recovery slot, and
// whether a recovery is in progress at all.
func (r *Recoverer) Donor() (gtid.NodeID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.donor, r.recovering
}

// ApplyRemoteCSN folds a remote commit CSN arriving on the donor's
// stream into the local clock, per step 2 ("each PREPARE arrives with
// a remote CSN that sync() propagates into the local clock").
func (r *Recoverer) ApplyRemoteCSN(remote csn.CSN) {
	r.clock.Sync(remote)
}

// MarkCaughtUp runs the re-admission handshake once the donor reports
// PhaseCaughtUp for this node's slot: the disabled bit clears, the
// node moves from recovery to connected, and the recovery slot closes.
// The caller (pkg/node) is then responsible for opening channels to
// every other node and calling PromoteToOnline once every receiver has
// reconnected (step 3's final clause).
func (r *Recoverer) MarkCaughtUp() error {
	r.mu.Lock()
	if !r.recovering {
		r.mu.Unlock()
		return ErrNotRecovering
	}
	r.recovering = false
	r.mu.Unlock()

	r.detect.EnableNode(r.self)
	r.detect.MarkRecovered()
	return nil
}

// Abandon closes the recovery slot without re-admitting the node, used
// when the donor drops the slot for excess lag (step 4): the node stays
// disabled and a fresh recovery (out of scope here: a full base copy)
// must be started against a new donor.
func (r *Recoverer) Abandon() {
	r.mu.Lock()
	r.recovering = false
	r.mu.Unlock()
}
