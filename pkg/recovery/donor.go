package recovery

import (
	"fmt"
	"sync"

	"github.com/mnohosten/laura-mtm/pkg/gtid"
)

// WalSender tracks one recovering node's catch-up progress from this
// node's (the donor's) point of view. It mirrors the lag bookkeeping
// the ordinary replication master keeps per slave, but against LSNs
// rather than oplog IDs, and with the two named phases spec.md §4.6
// requires instead of a free-running lag duration.
type WalSender struct {
	recoverer     gtid.NodeID
	cfg           Config
	activeTxCount func() int

	mu      sync.RWMutex
	slotLSN LSN
	walLSN  LSN
	phase   Phase
}

// NewWalSender opens a recovery slot for recoverer. activeTxCount
// reports the donor's own current active-transaction count, consulted
// only at the caught-up boundary (step 3: "donor has zero active
// transactions").
func NewWalSender(recoverer gtid.NodeID, cfg Config, activeTxCount func() int) *WalSender {
	return &WalSender{
		recoverer:     recoverer,
		cfg:           cfg,
		activeTxCount: activeTxCount,
	}
}

// Report records the donor's and slot's current LSNs and recomputes
// the slot's phase. Call this each time the recoverer's wal-sender
// reports progress (spec.md §4.6 step 3).
func (w *WalSender) Report(slotLSN, walLSN LSN) Phase {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.slotLSN = slotLSN
	w.walLSN = walLSN

	var lag LSN
	if walLSN > slotLSN {
		lag = walLSN - slotLSN
	}

	switch {
	case lag == 0 && w.activeTxCount() == 0:
		w.phase = PhaseCaughtUp
	case lag >= w.cfg.MaxRecoveryLag:
		w.phase = PhaseDropped
	case lag < w.cfg.MinRecoveryLag:
		w.phase = PhaseAlmostCaughtUp
	default:
		w.phase = PhaseDraining
	}
	return w.phase
}

// Phase returns the slot's last-computed phase.
func (w *WalSender) Phase() Phase {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.phase
}

// Lag returns the slot's last-observed byte lag behind the donor.
func (w *WalSender) Lag() LSN {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.walLSN > w.slotLSN {
		return w.walLSN - w.slotLSN
	}
	return 0
}

// ClusterLockAsserted reports whether this one slot alone would block
// new local commits on the donor (PhaseAlmostCaughtUp).
func (w *WalSender) ClusterLockAsserted() bool {
	return w.Phase() == PhaseAlmostCaughtUp
}

// DonorController is the donor side of C6: it opens and tracks the
// recovery slots it is feeding, and aggregates them into the single
// xact.RecoveryGate the local coordinator consults before starting a
// new PREPARE (spec.md §4.6: "preventing new local commits via the C4
// interlock"). A donor normally feeds one recoverer at a time, but
// nothing here forbids more.
type DonorController struct {
	mu      sync.RWMutex
	senders map[gtid.NodeID]*WalSender
}

// NewDonorController builds an empty donor controller.
func NewDonorController() *DonorController {
	return &DonorController{senders: make(map[gtid.NodeID]*WalSender)}
}

// OpenSlot starts tracking a new recovery slot for recoverer, replacing
// any existing slot for that node.
func (c *DonorController) OpenSlot(recoverer gtid.NodeID, cfg Config, activeTxCount func() int) *WalSender {
	ws := NewWalSender(recoverer, cfg, activeTxCount)
	c.mu.Lock()
	c.senders[recoverer] = ws
	c.mu.Unlock()
	return ws
}

// CloseSlot drops a recovery slot, e.g. once the recoverer is caught
// up or its slot has been dropped for excess lag.
func (c *DonorController) CloseSlot(recoverer gtid.NodeID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.senders, recoverer)
}

// Slot returns the open slot for recoverer, if any.
func (c *DonorController) Slot(recoverer gtid.NodeID) (*WalSender, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ws, ok := c.senders[recoverer]
	return ws, ok
}

// ClusterLockAsserted implements xact.RecoveryGate: any open slot in
// PhaseAlmostCaughtUp blocks new distributed commits on this node.
func (c *DonorController) ClusterLockAsserted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ws := range c.senders {
		if ws.ClusterLockAsserted() {
			return true
		}
	}
	return false
}

// String renders every open slot's phase and lag, for admin/debug
// surfaces.
func (c *DonorController) String() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := fmt.Sprintf("%d open recovery slot(s)", len(c.senders))
	for id, ws := range c.senders {
		s += fmt.Sprintf("; node %d: %s (lag=%d)", id, ws.Phase(), ws.Lag())
	}
	return s
}
