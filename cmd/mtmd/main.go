package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/mnohosten/laura-mtm/pkg/admin"
	"github.com/mnohosten/laura-mtm/pkg/configstore"
	"github.com/mnohosten/laura-mtm/pkg/gtid"
	"github.com/mnohosten/laura-mtm/pkg/node"
)

// parsePeers parses "id=host:port,id=host:port,..." into a node-id ->
// dial-target map, skipping self.
func parsePeers(raw string, self gtid.NodeID) (map[gtid.NodeID]string, error) {
	peers := make(map[gtid.NodeID]string)
	if raw == "" {
		return peers, nil
	}
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid -peers entry %q, want id=host:port", entry)
		}
		n, err := strconv.ParseUint(parts[0], 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid node id in -peers entry %q: %w", entry, err)
		}
		id := gtid.NodeID(n)
		if id == self {
			continue
		}
		peers[id] = parts[1]
	}
	return peers, nil
}

func main() {
	nodeID := flag.Int("node-id", 1, "this node's id (1-64)")
	totalNodes := flag.Int("total-nodes", 3, "cluster size (fixed upper bound, add-node only flips enable bits within it)")
	clusterSecret := flag.String("cluster-secret", "", "shared secret the arbiter socket derives its HMAC signing key from")
	arbiterAddr := flag.String("arbiter-addr", ":9090", "listen address for the arbiter socket (gRPC)")
	peersFlag := flag.String("peers", "", "comma-separated id=host:port list of peer arbiter sockets")
	adminAddr := flag.String("admin-addr", ":7070", "listen address for the administrative HTTP API")
	enableFaults := flag.Bool("enable-fault-injection", false, "expose POST /v1/faults/2pc (testing only)")
	flag.Parse()

	if *clusterSecret == "" {
		fmt.Fprintln(os.Stderr, "mtmd: -cluster-secret is required")
		os.Exit(1)
	}

	self := gtid.NodeID(*nodeID)
	peers, err := parsePeers(*peersFlag, self)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mtmd: %v\n", err)
		os.Exit(1)
	}

	cfg := node.DefaultConfig(self, *totalNodes, []byte(*clusterSecret))
	cfg.EnableFaultInjection = *enableFaults

	store := configstore.NewMemStore()
	host := newStandaloneHost()
	nc := node.New(cfg, store, host)

	lis, err := net.Listen("tcp", *arbiterAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mtmd: listen on %s: %v\n", *arbiterAddr, err)
		os.Exit(1)
	}
	go func() {
		if err := nc.Serve(lis); err != nil {
			fmt.Fprintf(os.Stderr, "mtmd: arbiter socket stopped: %v\n", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for id, target := range peers {
		if err := nc.DialPeer(ctx, id, target, nil); err != nil {
			fmt.Fprintf(os.Stderr, "mtmd: dial peer %d at %s: %v\n", id, target, err)
			os.Exit(1)
		}
	}

	go nc.Run(ctx)

	adminCfg := admin.DefaultConfig()
	adminCfg.Addr = *adminAddr
	adminSrv := admin.New(adminCfg, nc)

	if err := adminSrv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "mtmd: admin server error: %v\n", err)
		cancel()
		nc.Stop()
		os.Exit(1)
	}

	cancel()
	nc.Stop()
}
