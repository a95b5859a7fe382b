package arbiter

import (
	"testing"

	"github.com/mnohosten/laura-mtm/pkg/gtid"
)

func maskOf(unreachable ...gtid.NodeID) gtid.NodeSet {
	return gtid.NewNodeSet(unreachable...)
}

func TestMaxCliqueFullyConnected(t *testing.T) {
	masks := map[gtid.NodeID]gtid.NodeSet{
		1: maskOf(),
		2: maskOf(),
		3: maskOf(),
	}
	adj := buildAdjacency(masks, 3)
	clique := maxClique(adj, 3)
	if clique.Count() != 3 {
		t.Fatalf("clique = %v (%d members), want all 3 nodes", clique.Members(), clique.Count())
	}
}

func TestMaxCliqueSplitPartition(t *testing.T) {
	// 5-node cluster split into {1,2} and {3,4,5}: every node reports
	// the other partition unreachable.
	masks := map[gtid.NodeID]gtid.NodeSet{
		1: maskOf(3, 4, 5),
		2: maskOf(3, 4, 5),
		3: maskOf(1, 2),
		4: maskOf(1, 2),
		5: maskOf(1, 2),
	}
	adj := buildAdjacency(masks, 5)
	clique := maxClique(adj, 5)
	if clique.Count() != 3 {
		t.Fatalf("clique = %v (%d members), want the 3-node majority partition", clique.Members(), clique.Count())
	}
	for _, id := range []gtid.NodeID{3, 4, 5} {
		if !clique.Has(id) {
			t.Fatalf("clique %v missing expected member %d", clique.Members(), id)
		}
	}
}

func TestMaxCliqueAsymmetricReportRequiresBothDirections(t *testing.T) {
	// Node 1 claims it cannot reach node 2, but node 2 claims it can
	// reach node 1: the edge is absent either way (both must agree).
	masks := map[gtid.NodeID]gtid.NodeSet{
		1: maskOf(2),
		2: maskOf(),
	}
	adj := buildAdjacency(masks, 2)
	if adj[1].Has(2) || adj[2].Has(1) {
		t.Fatalf("asymmetric report must not produce an edge: adj=%v", adj)
	}
	clique := maxClique(adj, 2)
	if clique.Count() != 1 {
		t.Fatalf("clique = %v, want a single isolated node", clique.Members())
	}
}

func TestMaxCliqueSingleNode(t *testing.T) {
	masks := map[gtid.NodeID]gtid.NodeSet{1: maskOf()}
	adj := buildAdjacency(masks, 1)
	clique := maxClique(adj, 1)
	if clique != gtid.NewNodeSet(1) {
		t.Fatalf("clique = %v, want {1}", clique.Members())
	}
}
