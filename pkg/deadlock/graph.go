// Package deadlock implements cross-node deadlock detection (spec.md
// §5): each node gossips its local wait-for graph through the shared
// config store, unions every peer's graph with its own, and searches
// the result for cycles. It is a supplemented feature: spec.md
// describes the mechanism without naming a package for it.
package deadlock

import (
	"sync"

	"github.com/mnohosten/laura-mtm/pkg/gtid"
)

// Graph is one node's local wait-for graph: an edge waiter -> holder
// means the waiter transaction is blocked acquiring a lock the holder
// transaction currently holds. A waiter may be blocked on more than
// one holder at once (e.g. queued behind a shared lock several
// transactions hold).
type Graph struct {
	mu    sync.RWMutex
	edges map[gtid.GTID][]gtid.GTID
}

// NewGraph builds an empty wait-for graph.
func NewGraph() *Graph {
	return &Graph{edges: make(map[gtid.GTID][]gtid.GTID)}
}

// AddWait records that waiter is blocked on holder. Calling it again
// for an already-recorded pair is a no-op.
func (g *Graph) AddWait(waiter, holder gtid.GTID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, h := range g.edges[waiter] {
		if h == holder {
			return
		}
	}
	g.edges[waiter] = append(g.edges[waiter], holder)
}

// RemoveWaiter drops every edge for waiter, called once it acquires
// its lock or is aborted.
func (g *Graph) RemoveWaiter(waiter gtid.GTID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.edges, waiter)
}

// Snapshot returns a deep copy of the current graph, safe to serialize
// or hand to the cycle search without holding g's lock.
func (g *Graph) Snapshot() map[gtid.GTID][]gtid.GTID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	cp := make(map[gtid.GTID][]gtid.GTID, len(g.edges))
	for waiter, holders := range g.edges {
		hs := make([]gtid.GTID, len(holders))
		copy(hs, holders)
		cp[waiter] = hs
	}
	return cp
}

// MergeGraphs unions any number of per-node snapshots into one global
// wait-for graph (spec.md §5: "unions them").
func MergeGraphs(graphs ...map[gtid.GTID][]gtid.GTID) map[gtid.GTID][]gtid.GTID {
	merged := make(map[gtid.GTID][]gtid.GTID)
	for _, g := range graphs {
		for waiter, holders := range g {
			existing := merged[waiter]
			for _, h := range holders {
				found := false
				for _, e := range existing {
					if e == h {
						found = true
						break
					}
				}
				if !found {
					existing = append(existing, h)
				}
			}
			merged[waiter] = existing
		}
	}
	return merged
}
