package arbiter

import "github.com/mnohosten/laura-mtm/pkg/gtid"

// adjacency is the undirected connectivity graph over [1, n]: an edge
// (i, j) exists iff both i reports j reachable and j reports i
// reachable (spec.md §4.5's clique-computation rule).
type adjacency map[gtid.NodeID]gtid.NodeSet

// buildAdjacency derives the undirected graph from every node's
// self-reported connectivity mask (bit i set means "I cannot reach
// node i"), restricted to the n known node IDs.
func buildAdjacency(masks map[gtid.NodeID]gtid.NodeSet, n int) adjacency {
	adj := make(adjacency, n)
	for id := gtid.NodeID(1); int(id) <= n; id++ {
		reachableFromID := gtid.NodeSet(0)
		maskID, known := masks[id]
		for peer := gtid.NodeID(1); int(peer) <= n; peer++ {
			if peer == id {
				continue
			}
			if known && maskID.Has(peer) {
				continue // id reports it cannot reach peer
			}
			maskPeer, peerKnown := masks[peer]
			if peerKnown && maskPeer.Has(id) {
				continue // peer reports it cannot reach id
			}
			reachableFromID = reachableFromID.Add(peer)
		}
		adj[id] = reachableFromID
	}
	return adj
}

// maxClique runs Bron–Kerbosch with pivoting over the bitset-encoded
// graph restricted to node IDs [1, n], returning one maximum clique.
// N <= gtid.MaxNodes, so every working set fits a single machine word
// and the classic recursive algorithm terminates quickly even for a
// dense N=64 graph.
func maxClique(adj adjacency, n int) gtid.NodeSet {
	var all gtid.NodeSet
	for id := gtid.NodeID(1); int(id) <= n; id++ {
		all = all.Add(id)
	}

	var best gtid.NodeSet
	var bronKerbosch func(r, p, x gtid.NodeSet)
	bronKerbosch = func(r, p, x gtid.NodeSet) {
		if p == 0 && x == 0 {
			if r.Count() > best.Count() {
				best = r
			}
			return
		}

		pivot := choosePivot(p, x, adj)
		candidates := p &^ adj[pivot] // p minus N(pivot)

		for _, v := range candidates.Members() {
			bronKerbosch(r.Add(v), p.Intersect(adj[v]), x.Intersect(adj[v]))
			p = p.Remove(v)
			x = x.Add(v)
		}
	}
	bronKerbosch(0, all, 0)
	return best
}

// choosePivot picks the node in p∪x with the most neighbors in p, the
// standard Bron–Kerbosch pivoting heuristic that keeps the recursion
// from degenerating to the trivial n^2 clique-less case.
func choosePivot(p, x gtid.NodeSet, adj adjacency) gtid.NodeID {
	candidates := p.Union(x)
	var best gtid.NodeID
	bestCount := -1
	for _, v := range candidates.Members() {
		c := p.Intersect(adj[v]).Count()
		if c > bestCount {
			bestCount = c
			best = v
		}
	}
	return best
}
