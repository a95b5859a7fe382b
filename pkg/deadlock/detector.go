package deadlock

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/mnohosten/laura-mtm/pkg/configstore"
	"github.com/mnohosten/laura-mtm/pkg/gtid"
)

// Config holds the deadlock detector's timing policy.
type Config struct {
	// GossipInterval is how often this node publishes its local graph
	// and re-checks the global union for cycles.
	GossipInterval time.Duration

	// LocalTimeout is the local-deadlock-timeout fallback: if the
	// apply-worker pool has been saturated this long with no forward
	// progress, the detector treats that as an implicit deadlock and
	// aborts the youngest locally-participating transaction (spec.md
	// §5), without waiting on the gossip round-trip.
	LocalTimeout time.Duration
}

// DefaultConfig returns the detector's default timing policy.
func DefaultConfig() Config {
	return Config{
		GossipInterval: time.Second,
		LocalTimeout:   5 * time.Second,
	}
}

// Detector runs one node's side of cross-node deadlock detection: it
// gossips its local wait-for graph, unions peers' graphs, searches for
// cycles, and separately watches for local apply-queue saturation.
type Detector struct {
	self       gtid.NodeID
	totalNodes int
	store      configstore.Store
	local      *Graph
	cfg        Config
	now        func() time.Time
	log        *log.Logger

	onAbort func(gtid.GTID)

	mu           sync.Mutex
	lastProgress time.Time
}

// NewDetector builds a deadlock detector for self in an n-node
// cluster. onAbort is called (outside any lock) with the GTID chosen
// as a cycle's or a stall's victim; the caller is responsible for
// actually aborting that transaction locally.
func NewDetector(self gtid.NodeID, totalNodes int, store configstore.Store, local *Graph, cfg Config, onAbort func(gtid.GTID)) *Detector {
	return &Detector{
		self:         self,
		totalNodes:   totalNodes,
		store:        store,
		local:        local,
		cfg:          cfg,
		now:          time.Now,
		log:          log.New(os.Stderr, "[deadlock] ", log.LstdFlags),
		onAbort:      onAbort,
		lastProgress: time.Now(),
	}
}

// NotifyProgress resets the local-stall clock; call it whenever the
// apply-worker pool completes a transaction.
func (d *Detector) NotifyProgress() {
	d.mu.Lock()
	d.lastProgress = d.now()
	d.mu.Unlock()
}

// RunOnce publishes the local graph, collects the cluster-wide union,
// and aborts PickVictim's choice if a cycle is found.
func (d *Detector) RunOnce(ctx context.Context) error {
	if err := Publish(ctx, d.store, d.self, d.local); err != nil {
		return err
	}

	global, err := CollectGlobal(ctx, d.store, d.totalNodes)
	if err != nil {
		return err
	}

	cycle, found := FindCycle(global)
	if !found {
		return nil
	}

	victim := PickVictim(cycle)
	d.log.Printf("cycle detected (%d nodes), aborting %s", len(cycle), victim)
	if d.onAbort != nil {
		d.onAbort(victim)
	}
	return nil
}

// CheckLocalStall applies the local-deadlock-timeout fallback: if
// saturated is true and LocalTimeout has elapsed since the last
// NotifyProgress call, it aborts youngestLocal's transaction without
// waiting for a gossip round (spec.md §5's saturated-worker-pool
// clause). youngestLocal returns false if there's nothing to abort.
func (d *Detector) CheckLocalStall(saturated bool, youngestLocal func() (gtid.GTID, bool)) {
	if !saturated {
		d.NotifyProgress()
		return
	}

	d.mu.Lock()
	stalledFor := d.now().Sub(d.lastProgress)
	d.mu.Unlock()

	if stalledFor < d.cfg.LocalTimeout {
		return
	}

	victim, ok := youngestLocal()
	if !ok {
		return
	}
	d.log.Printf("apply-worker pool saturated for %s, aborting %s", stalledFor, victim)
	if d.onAbort != nil {
		d.onAbort(victim)
	}
	d.NotifyProgress()
}

// Run starts the gossip loop and blocks until ctx is canceled.
// saturated and youngestLocal are polled on every tick to drive
// CheckLocalStall alongside the cycle search.
func (d *Detector) Run(ctx context.Context, saturated func() bool, youngestLocal func() (gtid.GTID, bool)) {
	ticker := time.NewTicker(d.cfg.GossipInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.RunOnce(ctx); err != nil {
				d.log.Printf("gossip round failed: %v", err)
			}
			if saturated != nil && youngestLocal != nil {
				d.CheckLocalStall(saturated(), youngestLocal)
			}
		}
	}
}
