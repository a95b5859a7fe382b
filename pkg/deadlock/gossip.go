package deadlock

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mnohosten/laura-mtm/pkg/configstore"
	"github.com/mnohosten/laura-mtm/pkg/gtid"
)

// edgeRecord is the wire shape of one waiter's outgoing edges; map keys
// aren't valid JSON object keys when they're structs, so the published
// record is a flat slice instead (spec.md §6.3: "values are opaque byte
// blobs").
type edgeRecord struct {
	Waiter  gtid.GTID   `json:"waiter"`
	Holders []gtid.GTID `json:"holders"`
}

func lockGraphKey(id gtid.NodeID) string {
	return fmt.Sprintf("lock-graph-%d", id)
}

// Publish serializes g's current snapshot and writes it under this
// node's lock-graph-<i> key.
func Publish(ctx context.Context, store configstore.Store, self gtid.NodeID, g *Graph) error {
	snap := g.Snapshot()
	records := make([]edgeRecord, 0, len(snap))
	for waiter, holders := range snap {
		records = append(records, edgeRecord{Waiter: waiter, Holders: holders})
	}

	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("deadlock: marshal wait-for graph: %w", err)
	}
	return store.Put(ctx, lockGraphKey(self), data)
}

// CollectGlobal reads every node's lock-graph-<i> key and unions them
// into one global wait-for graph.
func CollectGlobal(ctx context.Context, store configstore.Store, totalNodes int) (map[gtid.GTID][]gtid.GTID, error) {
	graphs := make([]map[gtid.GTID][]gtid.GTID, 0, totalNodes)

	for id := gtid.NodeID(1); int(id) <= totalNodes; id++ {
		data, ok, err := store.Get(ctx, lockGraphKey(id))
		if err != nil {
			return nil, fmt.Errorf("deadlock: read node %d's wait-for graph: %w", id, err)
		}
		if !ok {
			continue
		}

		var records []edgeRecord
		if err := json.Unmarshal(data, &records); err != nil {
			continue
		}

		g := make(map[gtid.GTID][]gtid.GTID, len(records))
		for _, r := range records {
			g[r.Waiter] = r.Holders
		}
		graphs = append(graphs, g)
	}

	return MergeGraphs(graphs...), nil
}
