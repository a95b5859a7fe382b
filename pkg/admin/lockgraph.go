package admin

import (
	"net/http"

	"github.com/mnohosten/laura-mtm/pkg/deadlock"
)

type lockGraphEdge struct {
	Waiter string `json:"waiter"`
	Holder string `json:"holder"`
}

// handleDumpLockGraph implements dump-lock-graph: the cluster-wide
// union of every node's last-gossiped wait-for graph, as this node
// currently sees it.
func (s *Server) handleDumpLockGraph(w http.ResponseWriter, r *http.Request) {
	global, err := deadlock.CollectGlobal(r.Context(), s.nc.Store(), s.nc.Config().TotalNodes)
	if err != nil {
		writeError(w, err)
		return
	}

	edges := make([]lockGraphEdge, 0)
	for waiter, holders := range global {
		for _, holder := range holders {
			edges = append(edges, lockGraphEdge{Waiter: waiter.String(), Holder: holder.String()})
		}
	}
	writeSuccess(w, edges)
}
