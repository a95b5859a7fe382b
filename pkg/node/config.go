// Package node wires C1-C6 and their supporting packages into one
// per-process runtime (Design Notes §9): pkg/node.Context is the
// single explicitly-constructed struct holding every component,
// passed to constructors and never stored as a package global.
package node

import (
	"github.com/mnohosten/laura-mtm/pkg/arbiter"
	"github.com/mnohosten/laura-mtm/pkg/deadlock"
	"github.com/mnohosten/laura-mtm/pkg/gtid"
	"github.com/mnohosten/laura-mtm/pkg/recovery"
	"github.com/mnohosten/laura-mtm/pkg/xact"
)

// Config holds the knobs needed to wire one node's Context. Every
// sub-config defaults to its own package's DefaultConfig when left
// zero-valued by callers that only care about cluster topology.
type Config struct {
	SelfNode      gtid.NodeID
	TotalNodes    int
	ClusterSecret []byte

	Arbiter  arbiter.Config
	Recovery recovery.Config
	Xact     xact.Config
	Deadlock deadlock.Config

	// EnableFaultInjection gates /v1/faults/2pc (spec.md §6.4):
	// disabled by default so a fault configured on a test cluster
	// can never leak into a production build's admin surface.
	EnableFaultInjection bool
}

// DefaultConfig returns a Config for selfNode in a totalNodes cluster,
// with every sub-component at its package default.
func DefaultConfig(selfNode gtid.NodeID, totalNodes int, clusterSecret []byte) Config {
	return Config{
		SelfNode:      selfNode,
		TotalNodes:    totalNodes,
		ClusterSecret: clusterSecret,
		Arbiter:       arbiter.DefaultConfig(),
		Recovery:      recovery.DefaultConfig(),
		Xact:          xact.DefaultConfig(),
		Deadlock:      deadlock.DefaultConfig(),
	}
}
