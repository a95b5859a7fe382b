// Package arbiter implements the connectivity-clique failure detector
// of spec.md §4.5 (C5): a heartbeat sender and watchdog publishing
// self-reported connectivity masks through the shared config store,
// plus a Bron–Kerbosch maximum-clique computation that turns those
// masks into an agreed-upon live set and disabled-mask.
//
// Clique recomputation distinguishes two distinct failure states: a
// node with no quorate clique to belong to at all is in-minority,
// while a node excluded from a clique that otherwise meets quorum is
// offline and immediately starts recovering rather than waiting on an
// operator. Both transitions, along with the transition to connected,
// are debounced against node-disable-delay so an intermittent link
// doesn't flap status every watchdog pass; the one-shot calls
// (PromoteToOnline, MarkRecovered, DisableSelf) bypass the window.
package arbiter

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/mnohosten/laura-mtm/pkg/configstore"
	"github.com/mnohosten/laura-mtm/pkg/gtid"
)

// Detector tracks this node's view of cluster connectivity and
// maintains the agreed disabled-mask under a single RWMutex (the
// "state lock" pattern of spec.md §5: nothing below holds it across
// store I/O).
type Detector struct {
	self       gtid.NodeID
	totalNodes int
	store      configstore.Store
	cfg        Config
	now        func() time.Time
	log        *log.Logger

	onDisconnect func(gtid.NodeID)
	onOffline    func()

	mu                  sync.RWMutex
	connMask            gtid.NodeSet // bit i = "I cannot reach node i"
	disabledMask        gtid.NodeSet
	status              Status
	lastStatusChange    time.Time
	liveNodeCount       int
	configChangeCounter uint64
	lastHeartbeat       map[gtid.NodeID]time.Time
}

// NewDetector builds a detector for selfNode in an n-node cluster.
// onDisconnect, if non-nil, is called (outside the lock) whenever the
// watchdog newly marks a peer unreachable. onOffline, if non-nil, is
// called (outside the lock) whenever clique recomputation newly finds
// this node excluded from an otherwise-quorate clique, so the caller
// can disable self and kick off recovery automatically.
func NewDetector(selfNode gtid.NodeID, totalNodes int, store configstore.Store, cfg Config, onDisconnect func(gtid.NodeID), onOffline func()) *Detector {
	return &Detector{
		self:          selfNode,
		totalNodes:    totalNodes,
		store:         store,
		cfg:           cfg,
		now:           time.Now,
		log:           log.New(os.Stderr, "[arbiter] ", log.LstdFlags),
		onDisconnect:  onDisconnect,
		onOffline:     onOffline,
		status:        StatusInitializing,
		lastHeartbeat: make(map[gtid.NodeID]time.Time),
	}
}

// PublishHeartbeat stamps the current time on this node's connectivity
// mask and writes it to the shared config store (spec.md §4.5's
// "Heartbeat send").
func (d *Detector) PublishHeartbeat(ctx context.Context) error {
	d.mu.RLock()
	mask := d.connMask
	d.mu.RUnlock()

	rec := nodeMaskRecord{NodeID: d.self, Mask: mask, Timestamp: d.now().UnixMicro()}
	data, err := encodeNodeMask(rec)
	if err != nil {
		return err
	}
	return d.store.Put(ctx, nodeMaskKey(d.self), data)
}

// RunWatchdogOnce performs one watchdog pass: it reads every other
// node's published heartbeat, marks any overdue peer unreachable in
// the local connectivity mask (spec.md §4.5's "Watchdog"), and then
// recomputes the clique.
func (d *Detector) RunWatchdogOnce(ctx context.Context) error {
	for id := gtid.NodeID(1); int(id) <= d.totalNodes; id++ {
		if id == d.self {
			continue
		}
		data, ok, err := d.store.Get(ctx, nodeMaskKey(id))
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		rec, err := decodeNodeMask(data)
		if err != nil {
			continue
		}

		seen := time.UnixMicro(rec.Timestamp)
		d.mu.Lock()
		prev, known := d.lastHeartbeat[id]
		if !known || seen.After(prev) {
			d.lastHeartbeat[id] = seen
		}
		last := d.lastHeartbeat[id]
		d.mu.Unlock()

		if d.now().Sub(last) > d.cfg.HeartbeatRecvTimeout {
			newlyDisconnected := false
			d.mu.Lock()
			if !d.connMask.Has(id) {
				newlyDisconnected = true
			}
			d.connMask = d.connMask.Add(id)
			d.mu.Unlock()

			if newlyDisconnected {
				d.log.Printf("node %d presumed unreachable (no heartbeat for %s)", id, d.now().Sub(last))
				if d.onDisconnect != nil {
					d.onDisconnect(id)
				}
			}
		}
	}

	return d.RecomputeClique(ctx)
}

// RecomputeClique reads every node's last-published connectivity mask
// (including this node's own), finds a maximum clique over the
// resulting undirected graph and, if it meets quorum, folds every
// node outside it into disabled-mask (spec.md §4.5's clique rule: it
// never silently clears a bit for a node the clique readmits — that
// is recovery's job, via EnableNode).
func (d *Detector) RecomputeClique(ctx context.Context) error {
	masks := make(map[gtid.NodeID]gtid.NodeSet, d.totalNodes)

	d.mu.RLock()
	masks[d.self] = d.connMask
	d.mu.RUnlock()

	for id := gtid.NodeID(1); int(id) <= d.totalNodes; id++ {
		if id == d.self {
			continue
		}
		data, ok, err := d.store.Get(ctx, nodeMaskKey(id))
		if err != nil {
			return err
		}
		if !ok {
			// Never heard from this node: assume it can reach no one,
			// rather than granting it clique membership on silence.
			masks[id] = gtid.NodeSet(0).Complement(d.totalNodes)
			continue
		}
		rec, err := decodeNodeMask(data)
		if err != nil {
			continue
		}
		masks[id] = rec.Mask
	}

	adj := buildAdjacency(masks, d.totalNodes)
	clique := maxClique(adj, d.totalNodes)
	quorum := d.totalNodes/2 + 1

	d.mu.Lock()
	d.configChangeCounter++
	d.liveNodeCount = clique.Count()

	switch {
	case clique.Count() < quorum:
		// No quorate clique exists anywhere in the cluster right now:
		// this node can't have a PREPARE accepted by a majority no
		// matter who it can reach (seed scenario 5: "writes on {1,2}
		// fail with 'node is in minority'").
		d.transitionStatus(StatusInMinority)
		d.mu.Unlock()
		return nil

	case !clique.Has(d.self):
		// A quorate clique exists but excludes this node (spec.md
		// §4.5: "node finds its own bit set by others"). Unlike true
		// in-minority, this is self-recoverable: it auto-triggers
		// recovery instead of waiting on an operator. Once recovery
		// has actually started, leave it alone — exclusion from the
		// clique is expected for the duration and isn't a fresh
		// condition to react to.
		if d.status == StatusRecovery {
			d.mu.Unlock()
			return nil
		}
		wentOffline := d.transitionStatus(StatusOffline)
		d.mu.Unlock()
		if wentOffline && d.onOffline != nil {
			d.onOffline()
		}
		return nil

	default:
		d.disabledMask = d.disabledMask.Union(clique.Complement(d.totalNodes))
		if d.status == StatusInMinority || d.status == StatusInitializing || d.status == StatusOffline {
			d.transitionStatus(StatusConnected)
		}
		d.mu.Unlock()
		return nil
	}
}

// transitionStatus moves to newStatus, honoring the node-disable-delay
// debounce window (spec.md §6: "a node's status change is ignored if
// the previous change occurred within node-disable-delay ms") so an
// intermittent link doesn't flap status on every watchdog pass. The
// very first transition out of initializing is always allowed. Caller
// must hold d.mu for writing. Reports whether the transition happened.
func (d *Detector) transitionStatus(newStatus Status) bool {
	if newStatus == d.status {
		return false
	}
	now := d.now()
	if !d.lastStatusChange.IsZero() && now.Sub(d.lastStatusChange) < d.cfg.NodeDisableDelay {
		return false
	}
	d.status = newStatus
	d.lastStatusChange = now
	return true
}

// PromoteToOnline transitions Connected -> Online once every
// logical-replication receiver has reconnected (spec.md §4.5:
// "Regaining majority -> online when every logical-replication
// receiver has reconnected" — the receiver-reconnect signal itself
// comes from pkg/node, which calls this once it fires).
func (d *Detector) PromoteToOnline() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status == StatusConnected {
		d.status = StatusOnline
		d.lastStatusChange = d.now()
	}
}

// EnableNode clears id from disabled-mask. Only the recovery
// controller (C6) calls this, after its catch-up handshake completes
// (spec.md §4.5: clique membership alone never does this).
func (d *Detector) EnableNode(id gtid.NodeID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disabledMask = d.disabledMask.Remove(id)
	d.configChangeCounter++
}

// DisableSelf sets this node's own bit in disabled-mask and transitions
// to recovery (spec.md I7: "While status = recovery, the node's own
// bit in disabled-mask is set").
func (d *Detector) DisableSelf() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disabledMask = d.disabledMask.Add(d.self)
	d.status = StatusRecovery
	d.lastStatusChange = d.now()
	d.configChangeCounter++
}

// DisableNode administratively sets id's bit in disabled-mask (the
// drop-node operation, §6.4): unlike a watchdog-driven disable, this
// is an explicit operator decision and is never cleared by clique
// recomputation alone, only by EnableNode (add-node) or the recovery
// handshake.
func (d *Detector) DisableNode(id gtid.NodeID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disabledMask = d.disabledMask.Add(id)
	d.configChangeCounter++
}

// MarkRecovered transitions Recovery -> Connected once the recovery
// controller (C6) has cleared this node's disabled bit via EnableNode
// (spec.md §4.6's catch-up handshake). Clique recomputation alone never
// performs this transition (I7: only the recovery handshake clears it).
func (d *Detector) MarkRecovered() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status == StatusRecovery {
		d.status = StatusConnected
		d.lastStatusChange = d.now()
	}
}

// ConnectivityMask returns this node's current self-reported mask.
func (d *Detector) ConnectivityMask() gtid.NodeSet {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connMask
}

// DisabledMask returns the cluster-wide disabled-mask as last computed
// by this node.
func (d *Detector) DisabledMask() gtid.NodeSet {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.disabledMask
}

// Status returns the node's current cluster-wide status.
func (d *Detector) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

// LiveNodeCount returns the popcount of the last computed clique
// (P6: equals live-node-count iff status is online or connected).
func (d *Detector) LiveNodeCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.liveNodeCount
}

// ConfigChangeCounter returns the number of times this detector has
// changed disabled-mask, status, or connectivity, used by pkg/xact's
// VoteTransport to detect membership churn mid-commit.
func (d *Detector) ConfigChangeCounter() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.configChangeCounter
}

// LiveNonDisabledCount returns how many participants besides self a
// PREPARE must currently reach, i.e. the live clique size minus self.
func (d *Detector) LiveNonDisabledCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := d.liveNodeCount - 1
	if n < 0 {
		return 0
	}
	return n
}

// Run starts the heartbeat-send and watchdog loops and blocks until
// ctx is canceled (spec.md §5: "one arbiter thread ... one watchdog
// thread").
func (d *Detector) Run(ctx context.Context) {
	sendTicker := time.NewTicker(d.cfg.HeartbeatSendTimeout)
	defer sendTicker.Stop()
	watchdogTicker := time.NewTicker(d.cfg.HeartbeatRecvTimeout / 2)
	defer watchdogTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sendTicker.C:
			if err := d.PublishHeartbeat(ctx); err != nil {
				d.log.Printf("heartbeat publish failed: %v", err)
			}
		case <-watchdogTicker.C:
			if err := d.RunWatchdogOnce(ctx); err != nil {
				d.log.Printf("watchdog pass failed: %v", err)
			}
		}
	}
}
