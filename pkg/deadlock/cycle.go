package deadlock

import "github.com/mnohosten/laura-mtm/pkg/gtid"

// FindCycle searches a wait-for graph for one cycle via depth-first
// search with a recursion stack, returning the cycle's GTIDs in
// traversal order. Iteration order over map keys is randomized by the
// runtime, so which cycle is returned when several exist is undefined;
// every node runs the same deterministic victim selection afterward
// (see PickVictim) so that doesn't matter for correctness.
func FindCycle(graph map[gtid.GTID][]gtid.GTID) ([]gtid.GTID, bool) {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)

	state := make(map[gtid.GTID]int, len(graph))
	var stack []gtid.GTID

	var visit func(n gtid.GTID) ([]gtid.GTID, bool)
	visit = func(n gtid.GTID) ([]gtid.GTID, bool) {
		state[n] = visiting
		stack = append(stack, n)

		for _, next := range graph[n] {
			switch state[next] {
			case visiting:
				// Found the back-edge that closes the cycle: trim the
				// stack down to where next first appeared.
				for i, s := range stack {
					if s == next {
						cycle := make([]gtid.GTID, len(stack)-i)
						copy(cycle, stack[i:])
						return cycle, true
					}
				}
			case unvisited:
				if cycle, ok := visit(next); ok {
					return cycle, true
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[n] = done
		return nil, false
	}

	for n := range graph {
		if state[n] == unvisited {
			if cycle, ok := visit(n); ok {
				return cycle, true
			}
		}
	}
	return nil, false
}

// PickVictim deterministically selects one transaction from a cycle to
// abort: the GTID with the greatest (Node, Xid) ordering. Every node
// runs the identical search and selection independently, so a cycle
// spanning two nodes is resolved to the same victim cluster-wide
// without any extra coordination round (spec.md §5 seed scenario 6:
// "exactly one of T1/T2 is aborted cluster-wide").
func PickVictim(cycle []gtid.GTID) gtid.GTID {
	victim := cycle[0]
	for _, c := range cycle[1:] {
		if c.Node > victim.Node || (c.Node == victim.Node && c.Xid > victim.Xid) {
			victim = c
		}
	}
	return victim
}
