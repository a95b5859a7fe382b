package arbiter

import (
	"context"
	"testing"
	"time"

	"github.com/mnohosten/laura-mtm/pkg/configstore"
	"github.com/mnohosten/laura-mtm/pkg/gtid"
)

func TestRecomputeCliqueAllReachableGoesOnline(t *testing.T) {
	store := configstore.NewMemStore()
	ctx := context.Background()

	detectors := make(map[gtid.NodeID]*Detector, 3)
	for id := gtid.NodeID(1); id <= 3; id++ {
		detectors[id] = NewDetector(id, 3, store, DefaultConfig(), nil, nil)
		if err := detectors[id].PublishHeartbeat(ctx); err != nil {
			t.Fatalf("PublishHeartbeat(%d): %v", id, err)
		}
	}

	for id, d := range detectors {
		if err := d.RecomputeClique(ctx); err != nil {
			t.Fatalf("RecomputeClique(%d): %v", id, err)
		}
		if d.Status() != StatusConnected {
			t.Fatalf("node %d status = %v, want connected", id, d.Status())
		}
		if d.LiveNodeCount() != 3 {
			t.Fatalf("node %d live count = %d, want 3", id, d.LiveNodeCount())
		}
		if d.DisabledMask() != 0 {
			t.Fatalf("node %d disabled mask = %v, want empty", id, d.DisabledMask().Members())
		}
	}
}

// TestRecomputeCliqueExcludedFromQuorateCliqueGoesOffline covers
// spec.md §4.5's "node finds its own bit set by others" case: the
// quorate side {3,4,5} sees the split as ordinary disabled-mask
// bookkeeping, but 1 and 2 themselves are excluded from a clique that
// otherwise meets quorum, which is offline — distinct from true
// in-minority — and self-recoverable.
func TestRecomputeCliqueExcludedFromQuorateCliqueGoesOffline(t *testing.T) {
	store := configstore.NewMemStore()
	ctx := context.Background()

	// 5-node cluster, {1,2} vs {3,4,5}.
	partitions := map[gtid.NodeID]gtid.NodeSet{
		1: maskOf(3, 4, 5),
		2: maskOf(3, 4, 5),
		3: maskOf(1, 2),
		4: maskOf(1, 2),
		5: maskOf(1, 2),
	}

	detectors := make(map[gtid.NodeID]*Detector, 5)
	for id, mask := range partitions {
		d := NewDetector(id, 5, store, DefaultConfig(), nil, nil)
		d.connMask = mask
		detectors[id] = d
		if err := d.PublishHeartbeat(ctx); err != nil {
			t.Fatalf("PublishHeartbeat(%d): %v", id, err)
		}
	}

	for id, d := range detectors {
		if err := d.RecomputeClique(ctx); err != nil {
			t.Fatalf("RecomputeClique(%d): %v", id, err)
		}
		if id == 1 || id == 2 {
			if d.Status() != StatusOffline {
				t.Fatalf("node %d status = %v, want offline", id, d.Status())
			}
		} else {
			if d.Status() != StatusConnected {
				t.Fatalf("node %d status = %v, want connected", id, d.Status())
			}
			if !d.DisabledMask().Has(1) || !d.DisabledMask().Has(2) {
				t.Fatalf("node %d disabled mask = %v, want {1,2} included", id, d.DisabledMask().Members())
			}
		}
	}
}

// TestRecomputeCliqueOfflineTriggersRecoveryOnce covers the auto-
// trigger half of the same case: going offline fires onOffline exactly
// once (not on every subsequent watchdog pass while recovery is under
// way), matching the automatic in-minority/online transitions that
// already fire without an operator.
func TestRecomputeCliqueOfflineTriggersRecoveryOnce(t *testing.T) {
	store := configstore.NewMemStore()
	ctx := context.Background()

	partitions := map[gtid.NodeID]gtid.NodeSet{
		1: maskOf(3, 4, 5),
		2: maskOf(3, 4, 5),
		3: maskOf(1, 2),
		4: maskOf(1, 2),
		5: maskOf(1, 2),
	}
	for id, mask := range partitions {
		d := NewDetector(id, 5, store, DefaultConfig(), nil, nil)
		d.connMask = mask
		if err := d.PublishHeartbeat(ctx); err != nil {
			t.Fatalf("PublishHeartbeat(%d): %v", id, err)
		}
		_ = d
	}

	var offlineCount int
	d := NewDetector(1, 5, store, DefaultConfig(), nil, func() { offlineCount++ })
	d.connMask = partitions[1]
	if err := d.PublishHeartbeat(ctx); err != nil {
		t.Fatalf("PublishHeartbeat: %v", err)
	}

	if err := d.RecomputeClique(ctx); err != nil {
		t.Fatalf("RecomputeClique: %v", err)
	}
	if offlineCount != 1 {
		t.Fatalf("onOffline called %d times, want 1", offlineCount)
	}

	// DisableSelf is what a real onOffline hook does; once in
	// recovery, a repeat clique exclusion must not refire the hook.
	d.DisableSelf()
	if err := d.RecomputeClique(ctx); err != nil {
		t.Fatalf("RecomputeClique: %v", err)
	}
	if offlineCount != 1 {
		t.Fatalf("onOffline called %d times after entering recovery, want still 1", offlineCount)
	}
	if d.Status() != StatusRecovery {
		t.Fatalf("status = %v, want recovery preserved across repeat exclusion", d.Status())
	}
}

// TestRecomputeCliqueNoQuorateCliqueGoesInMinority covers true
// in-minority: no side of the split meets quorum, so neither side can
// be "excluded from a clique that otherwise meets quorum" — both are
// simply unable to commit.
func TestRecomputeCliqueNoQuorateCliqueGoesInMinority(t *testing.T) {
	store := configstore.NewMemStore()
	ctx := context.Background()

	// 4-node cluster, {1,2} vs {3,4}; quorum is 3, so neither side's
	// clique (size 2) ever meets it.
	partitions := map[gtid.NodeID]gtid.NodeSet{
		1: maskOf(3, 4),
		2: maskOf(3, 4),
		3: maskOf(1, 2),
		4: maskOf(1, 2),
	}

	detectors := make(map[gtid.NodeID]*Detector, 4)
	for id, mask := range partitions {
		d := NewDetector(id, 4, store, DefaultConfig(), nil, nil)
		d.connMask = mask
		detectors[id] = d
		if err := d.PublishHeartbeat(ctx); err != nil {
			t.Fatalf("PublishHeartbeat(%d): %v", id, err)
		}
	}

	for id, d := range detectors {
		if err := d.RecomputeClique(ctx); err != nil {
			t.Fatalf("RecomputeClique(%d): %v", id, err)
		}
		if d.Status() != StatusInMinority {
			t.Fatalf("node %d status = %v, want in-minority", id, d.Status())
		}
	}
}

// TestRecomputeCliqueDebouncesRapidTransitions covers spec.md §6's
// node-disable-delay debounce: a second status-worthy change arriving
// within the delay window of the first is ignored outright.
func TestRecomputeCliqueDebouncesRapidTransitions(t *testing.T) {
	store := configstore.NewMemStore()
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.NodeDisableDelay = time.Hour

	// 3-node cluster, quorum 2: 2 and 3 can't reach each other, but
	// both reach 1, so the clique {1,2} (or {1,3}) is quorate and 1
	// starts out connected.
	d1 := NewDetector(1, 3, store, cfg, nil, nil)
	d2 := NewDetector(2, 3, store, cfg, nil, nil)
	d3 := NewDetector(3, 3, store, cfg, nil, nil)
	d2.connMask = maskOf(3)
	d3.connMask = maskOf(2)
	for _, d := range []*Detector{d1, d2, d3} {
		if err := d.PublishHeartbeat(ctx); err != nil {
			t.Fatalf("PublishHeartbeat: %v", err)
		}
	}
	for _, d := range []*Detector{d1, d2, d3} {
		if err := d.RecomputeClique(ctx); err != nil {
			t.Fatalf("RecomputeClique: %v", err)
		}
	}
	if d1.Status() != StatusConnected {
		t.Fatalf("status = %v, want connected after first pass", d1.Status())
	}

	// Node 1 now loses reachability to both peers, collapsing every
	// clique to a singleton; within the delay window this must NOT
	// flip status, unlike the undebounced path.
	d1.connMask = maskOf(2, 3)
	if err := d1.PublishHeartbeat(ctx); err != nil {
		t.Fatalf("PublishHeartbeat: %v", err)
	}
	if err := d1.RecomputeClique(ctx); err != nil {
		t.Fatalf("RecomputeClique: %v", err)
	}
	if d1.Status() != StatusConnected {
		t.Fatalf("status = %v, want still connected inside debounce window", d1.Status())
	}

	// Past the window, the same change is honored.
	d1.lastStatusChange = d1.lastStatusChange.Add(-2 * time.Hour)
	if err := d1.RecomputeClique(ctx); err != nil {
		t.Fatalf("RecomputeClique: %v", err)
	}
	if d1.Status() != StatusInMinority {
		t.Fatalf("status = %v, want in-minority once past debounce window", d1.Status())
	}
}

func TestWatchdogMarksOverdueUnreachable(t *testing.T) {
	store := configstore.NewMemStore()
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.HeartbeatRecvTimeout = 10 * time.Millisecond

	d1 := NewDetector(1, 2, store, cfg, nil, nil)
	d2 := NewDetector(2, 2, store, cfg, nil, nil)

	if err := d1.PublishHeartbeat(ctx); err != nil {
		t.Fatalf("PublishHeartbeat: %v", err)
	}
	if err := d2.PublishHeartbeat(ctx); err != nil {
		t.Fatalf("PublishHeartbeat: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	var disconnected gtid.NodeID
	d1.onDisconnect = func(id gtid.NodeID) { disconnected = id }

	if err := d1.RunWatchdogOnce(ctx); err != nil {
		t.Fatalf("RunWatchdogOnce: %v", err)
	}
	if disconnected != 2 {
		t.Fatalf("onDisconnect fired for %d, want 2", disconnected)
	}
	if !d1.ConnectivityMask().Has(2) {
		t.Fatalf("connectivity mask = %v, want bit 2 set", d1.ConnectivityMask().Members())
	}
}

func TestPromoteToOnlineOnlyFromConnected(t *testing.T) {
	d := NewDetector(1, 1, configstore.NewMemStore(), DefaultConfig(), nil, nil)
	d.PromoteToOnline()
	if d.Status() != StatusInitializing {
		t.Fatalf("status = %v, want unchanged from initializing", d.Status())
	}

	d.status = StatusConnected
	d.PromoteToOnline()
	if d.Status() != StatusOnline {
		t.Fatalf("status = %v, want online", d.Status())
	}
}

func TestDisableSelfSetsOwnBitAndRecoveryStatus(t *testing.T) {
	d := NewDetector(2, 3, configstore.NewMemStore(), DefaultConfig(), nil, nil)
	d.DisableSelf()
	if d.Status() != StatusRecovery {
		t.Fatalf("status = %v, want recovery", d.Status())
	}
	if !d.DisabledMask().Has(2) {
		t.Fatalf("disabled mask = %v, want self bit set", d.DisabledMask().Members())
	}
}

func TestEnableNodeClearsDisabledBit(t *testing.T) {
	d := NewDetector(1, 3, configstore.NewMemStore(), DefaultConfig(), nil, nil)
	d.disabledMask = gtid.NewNodeSet(2, 3)
	d.EnableNode(2)
	if d.DisabledMask().Has(2) {
		t.Fatalf("disabled mask = %v, want bit 2 cleared", d.DisabledMask().Members())
	}
	if !d.DisabledMask().Has(3) {
		t.Fatalf("disabled mask = %v, want bit 3 still set", d.DisabledMask().Members())
	}
}
