package node

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/mnohosten/laura-mtm/pkg/arbiter"
	arbiterrpc "github.com/mnohosten/laura-mtm/pkg/arbiter/rpc"
	"github.com/mnohosten/laura-mtm/pkg/clustermetrics"
	"github.com/mnohosten/laura-mtm/pkg/configstore"
	"github.com/mnohosten/laura-mtm/pkg/csn"
	"github.com/mnohosten/laura-mtm/pkg/deadlock"
	"github.com/mnohosten/laura-mtm/pkg/faultinject"
	"github.com/mnohosten/laura-mtm/pkg/gtid"
	"github.com/mnohosten/laura-mtm/pkg/recovery"
	"github.com/mnohosten/laura-mtm/pkg/txstate"
	"github.com/mnohosten/laura-mtm/pkg/xact"
)

// Context is the single explicitly-constructed struct holding one
// node's runtime: every component listed in the package mapping
// (csn, txstate, xact, arbiter, recovery) plus the supporting
// packages (configstore, deadlock, faultinject, clustermetrics) and
// the gRPC plumbing tying them to peers.
type Context struct {
	cfg   Config
	store configstore.Store

	Clock     *csn.Clock
	Table     *txstate.Table
	Appliers  *xact.ApplierSet
	Manager   *xact.Manager
	Detector  *arbiter.Detector
	Transport *arbiterrpc.Transport
	Donor     *recovery.DonorController
	Recoverer *recovery.Recoverer
	Deadlock  *deadlock.Detector
	Metrics   *clustermetrics.Collector
	Faults    *faultinject.Injector

	server      *arbiterrpc.Server
	signingKey  []byte
	grpcServer  *grpc.Server
	localTables xact.LocalTableRegistrar
}

// New wires every component together for selfNode. host is the SQL
// engine's TransactionHost implementation (pre-prepare/post-prepare/
// commit/abort hooks); store is the shared config-store backing the
// arbiter connectivity masks and deadlock lock-graph gossip.
func New(cfg Config, store configstore.Store, host xact.TransactionHost) *Context {
	clock := csn.NewClock()
	table := txstate.NewTable()
	appliers := xact.NewApplierSet(clock, table, host)

	metrics := clustermetrics.NewCollector()
	faults := faultinject.NewInjector(0)

	// detector and recoverer are mutually referential: the detector's
	// onOffline hook needs to pick a donor off the detector's own
	// connectivity view and start recovery, but the recoverer needs the
	// constructed detector as its membership gate. Declare both first
	// and let the closure capture the pointers rather than the values.
	var detector *arbiter.Detector
	var recoverer *recovery.Recoverer

	onOffline := func() {
		donorID, ok := recovery.SelectDonor(cfg.SelfNode, cfg.TotalNodes, detector.ConnectivityMask(), detector.DisabledMask())
		if !ok {
			return
		}
		recoverer.BeginRecovery(donorID)
	}
	detector = arbiter.NewDetector(cfg.SelfNode, cfg.TotalNodes, store, cfg.Arbiter, nil, onOffline)

	signingKey := arbiterrpc.DeriveSigningKey(cfg.ClusterSecret)
	transport := arbiterrpc.NewTransport(cfg.SelfNode, signingKey, detector)
	if cfg.EnableFaultInjection {
		transport.SetDropVoteHook(faults.DropVote)
	}

	donor := recovery.NewDonorController()
	recoverer = recovery.NewRecoverer(cfg.SelfNode, clock, detector)

	manager := xact.NewManager(cfg.SelfNode, clock, table, host, transport, donor, cfg.Xact)
	manager.SetFaultHook(faults)
	manager.SetRecorder(metrics)

	localTables, _ := host.(xact.LocalTableRegistrar)

	dl := deadlock.NewDetector(cfg.SelfNode, cfg.TotalNodes, store, deadlock.NewGraph(), cfg.Deadlock, func(victim gtid.GTID) {
		metrics.RecordDeadlockBroken()
		if victim.Node == cfg.SelfNode {
			_ = manager.AbortActive(context.Background(), victim.Xid)
		}
	})

	return &Context{
		cfg:         cfg,
		store:       store,
		Clock:       clock,
		Table:       table,
		Appliers:    appliers,
		Manager:     manager,
		Detector:    detector,
		Transport:   transport,
		Donor:       donor,
		Recoverer:   recoverer,
		Deadlock:    dl,
		Metrics:     metrics,
		Faults:      faults,
		server:      arbiterrpc.NewServer(appliers, signingKey),
		signingKey:  signingKey,
		localTables: localTables,
	}
}

// Config returns the Config this Context was built from.
func (c *Context) Config() Config { return c.cfg }

// Store returns the shared config store backing connectivity masks and
// lock-graph gossip, so pkg/admin can read the raw gossiped state (e.g.
// dump-lock-graph) without pkg/node growing a pass-through method per
// query.
func (c *Context) Store() configstore.Store { return c.store }

// MakeTableLocal marks name local-only (§6.4), if the wired host engine
// supports it.
func (c *Context) MakeTableLocal(name string) error {
	if c.localTables == nil {
		return xact.ErrLocalTablesUnsupported
	}
	return c.localTables.MarkTableLocal(name)
}

// Serve starts the arbiter-socket gRPC server on lis and blocks until
// it stops. Call it from its own goroutine.
func (c *Context) Serve(lis net.Listener) error {
	gs := grpc.NewServer()
	arbiterrpc.RegisterArbiterServer(gs, c.server)
	c.grpcServer = gs
	return gs.Serve(lis)
}

// Stop gracefully shuts down the arbiter-socket server, if running.
func (c *Context) Stop() {
	if c.grpcServer != nil {
		c.grpcServer.Stop()
	}
}

// DialPeer connects to a peer node's arbiter socket over dialer
// (a loopback TCP or bufconn dialer in tests, a real network dialer in
// production) and registers the resulting connection with Transport.
func (c *Context) DialPeer(ctx context.Context, id gtid.NodeID, target string, dialer func(context.Context, string) (net.Conn, error)) error {
	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if dialer != nil {
		opts = append(opts, grpc.WithContextDialer(dialer))
	}
	cc, err := grpc.NewClient(target, opts...)
	if err != nil {
		return fmt.Errorf("node: dial peer %d: %w", id, err)
	}
	c.Transport.AddPeer(id, cc)
	return nil
}

// Run starts the arbiter detector's goroutine (heartbeats, clique
// recomputation) and the deadlock detector's goroutine (gossip), then
// returns at once; both goroutines stop when ctx is cancelled.
func (c *Context) Run(ctx context.Context) {
	go c.Detector.Run(ctx)
	go c.Deadlock.Run(ctx, c.neverSaturated, c.noLocalWaiter)
}

// neverSaturated and noLocalWaiter stand in for a SQL engine's local
// lock manager, which this core does not implement (no-goal: no SQL
// engine). A host wiring in real lock-wait tracking replaces these via
// its own deadlock.Detector.Run call instead of Context.Run's.
func (c *Context) neverSaturated() bool             { return false }
func (c *Context) noLocalWaiter() (gtid.GTID, bool) { return gtid.GTID{}, false }

// ClusterLockAsserted reports the donor-side interlock (§4.6), wired
// into Manager via the RecoveryGate interface at construction.
func (c *Context) ClusterLockAsserted() bool { return c.Donor.ClusterLockAsserted() }
