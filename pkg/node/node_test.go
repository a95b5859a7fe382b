package node

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc/test/bufconn"

	"github.com/mnohosten/laura-mtm/pkg/arbiter"
	"github.com/mnohosten/laura-mtm/pkg/configstore"
	"github.com/mnohosten/laura-mtm/pkg/csn"
	"github.com/mnohosten/laura-mtm/pkg/faultinject"
	"github.com/mnohosten/laura-mtm/pkg/gtid"
	"github.com/mnohosten/laura-mtm/pkg/xact"
)

// testHost is a minimal TransactionHost: every transaction is
// replicated, none touch a local-only relation, and commit/abort are
// recorded for assertions.
type testHost struct {
	mu        sync.Mutex
	committed []gtid.XID
	aborted   []gtid.XID
}

func (h *testHost) PrePrepare(ctx context.Context, xid gtid.XID) error { return nil }
func (h *testHost) HasReplicatedWrites(xid gtid.XID) bool              { return true }
func (h *testHost) TouchesLocalOnlyRelation(xid gtid.XID) bool         { return false }
func (h *testHost) PostPrepare(ctx context.Context, xid gtid.XID, committed bool) {}

func (h *testHost) Commit(ctx context.Context, xid gtid.XID, finalCSN csn.CSN) error {
	h.mu.Lock()
	h.committed = append(h.committed, xid)
	h.mu.Unlock()
	return nil
}

func (h *testHost) Abort(ctx context.Context, xid gtid.XID) error {
	h.mu.Lock()
	h.aborted = append(h.aborted, xid)
	h.mu.Unlock()
	return nil
}

func fastArbiterConfig() arbiter.Config {
	return arbiter.Config{
		HeartbeatSendTimeout: 10 * time.Millisecond,
		HeartbeatRecvTimeout: 80 * time.Millisecond,
		NodeDisableDelay:     20 * time.Millisecond,
	}
}

// testCluster wires n node.Context instances over in-process bufconn
// listeners, fully connected, sharing one MemStore — the "goroutine-
// local node.Context wired together via MemStore and in-process gRPC
// on loopback" setup SPEC_FULL.md §8 describes.
type testCluster struct {
	nodes  map[gtid.NodeID]*Context
	hosts  map[gtid.NodeID]*testHost
	cancel context.CancelFunc
}

func newTestCluster(t *testing.T, n int) *testCluster {
	t.Helper()
	store := configstore.NewMemStore()
	secret := []byte("test-cluster-secret")

	cluster := &testCluster{
		nodes: make(map[gtid.NodeID]*Context, n),
		hosts: make(map[gtid.NodeID]*testHost, n),
	}

	listeners := make(map[gtid.NodeID]*bufconn.Listener, n)
	for i := 1; i <= n; i++ {
		id := gtid.NodeID(i)
		host := &testHost{}
		cfg := DefaultConfig(id, n, secret)
		cfg.Arbiter = fastArbiterConfig()
		cfg.EnableFaultInjection = true

		nc := New(cfg, store, host)
		cluster.nodes[id] = nc
		cluster.hosts[id] = host

		lis := bufconn.Listen(1024 * 1024)
		listeners[id] = lis
		go func() { _ = nc.Serve(lis) }()
	}

	runCtx, cancel := context.WithCancel(context.Background())
	cluster.cancel = cancel

	for i := 1; i <= n; i++ {
		self := gtid.NodeID(i)
		for j := 1; j <= n; j++ {
			if i == j {
				continue
			}
			peer := gtid.NodeID(j)
			lis := listeners[peer]
			dialer := func(ctx context.Context, _ string) (net.Conn, error) { return lis.Dial() }
			if err := cluster.nodes[self].DialPeer(runCtx, peer, "passthrough:///bufnet", dialer); err != nil {
				t.Fatalf("node %d dial peer %d: %v", self, peer, err)
			}
		}
	}

	for _, nc := range cluster.nodes {
		go nc.Run(runCtx)
	}

	t.Cleanup(func() {
		cancel()
		for _, nc := range cluster.nodes {
			nc.Stop()
		}
	})

	cluster.waitConnected(t)
	return cluster
}

func (c *testCluster) waitConnected(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		allConnected := true
		for _, nc := range c.nodes {
			if nc.Detector.Status() != arbiter.StatusConnected {
				allConnected = false
				break
			}
		}
		if allConnected {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("cluster never reached StatusConnected on every node")
}

func TestThreeNodeDistributedCommit(t *testing.T) {
	cluster := newTestCluster(t, 3)

	const originXid gtid.XID = 100
	origin := cluster.nodes[1]

	gt := gtid.GTID{Node: 1, Xid: originXid}
	co, err := origin.Manager.Begin(originXid)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	snapshot := co.Snapshot()

	// Simulate row changes already streamed and replayed at every
	// other replica, which is the host engine's job (outside this
	// core): each peer's applier set admits the remote transaction
	// before its coordinator's PREPARE arrives.
	for id, nc := range cluster.nodes {
		if id == 1 {
			continue
		}
		if _, err := nc.Appliers.Begin(gt, snapshot); err != nil {
			t.Fatalf("peer %d applier Begin: %v", id, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	finalCSN, err := origin.Manager.Commit(ctx, originXid)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if finalCSN == 0 {
		t.Fatalf("expected non-zero final csn")
	}

	if len(cluster.hosts[1].committed) != 1 {
		t.Fatalf("origin host.Commit not called exactly once: %v", cluster.hosts[1].committed)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		done := true
		for id, nc := range cluster.nodes {
			if id == 1 {
				continue
			}
			h := cluster.hosts[id]
			h.mu.Lock()
			n := len(h.committed)
			h.mu.Unlock()
			if n != 1 {
				done = false
			}
			_ = nc
		}
		if done {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("not every peer applied COMMIT PREPARED in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// TestMinorityPartitionCommitFails exercises seed scenario 2: a node cut
// off from enough peers to lose quorum must refuse new distributed
// commits rather than commit alone. Removing the origin's transport
// connections to both other nodes simulates the minority side of a
// connectivity-clique split without needing to fake heartbeat timing.
func TestMinorityPartitionCommitFails(t *testing.T) {
	cluster := newTestCluster(t, 3)

	origin := cluster.nodes[1]
	origin.Transport.RemovePeer(2)
	origin.Transport.RemovePeer(3)

	const xid gtid.XID = 300
	co, err := origin.Manager.Begin(xid)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	_ = co.Snapshot()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := origin.Manager.Commit(ctx, xid); err != xact.ErrQuorumLost {
		t.Fatalf("Commit err = %v, want ErrQuorumLost", err)
	}
	if len(cluster.hosts[1].committed) != 0 {
		t.Fatalf("host.Commit must not fire for a transaction the minority side couldn't commit: %v", cluster.hosts[1].committed)
	}
	if len(cluster.hosts[1].aborted) != 1 {
		t.Fatalf("origin host.Abort not called exactly once: %v", cluster.hosts[1].aborted)
	}
}

func TestInjectedForceAbortPreventsCommit(t *testing.T) {
	cluster := newTestCluster(t, 3)

	origin := cluster.nodes[1]
	origin.Faults.Enable()
	origin.Faults.EnableFault(faultinject.KindForceAbort, 1.0)

	const xid gtid.XID = 200
	gt := gtid.GTID{Node: 1, Xid: xid}

	co, err := origin.Manager.Begin(xid)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	snapshot := co.Snapshot()

	for id, nc := range cluster.nodes {
		if id == 1 {
			continue
		}
		if _, err := nc.Appliers.Begin(gt, snapshot); err != nil {
			t.Fatalf("peer %d applier Begin: %v", id, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := origin.Manager.Commit(ctx, xid); err != xact.ErrInjectedAbort {
		t.Fatalf("Commit err = %v, want ErrInjectedAbort", err)
	}
	if len(cluster.hosts[1].aborted) != 1 {
		t.Fatalf("origin host.Abort not called exactly once: %v", cluster.hosts[1].aborted)
	}
	if origin.Faults.GetTriggerCount(faultinject.KindForceAbort) != 1 {
		t.Fatalf("expected force-abort to have fired once")
	}
}
