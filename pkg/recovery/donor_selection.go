package recovery

import "github.com/mnohosten/laura-mtm/pkg/gtid"

// SelectDonor picks the single donor node a recovery handshake opens
// its slot against (spec.md §4.6's "selects donor slot" responsibility):
// the lowest-numbered node in [1,totalNodes], other than self, that
// self can currently reach and that isn't itself disabled. Picking
// lowest-first keeps the choice deterministic from every node's own
// vantage, without needing an election round just to agree on a donor.
// Reports false if no eligible node exists.
func SelectDonor(self gtid.NodeID, totalNodes int, unreachable, disabled gtid.NodeSet) (gtid.NodeID, bool) {
	for id := gtid.NodeID(1); int(id) <= totalNodes; id++ {
		if id == self || unreachable.Has(id) || disabled.Has(id) {
			continue
		}
		return id, true
	}
	return 0, false
}
