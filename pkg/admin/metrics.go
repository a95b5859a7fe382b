package admin

import (
	"fmt"
	"net/http"

	"github.com/mnohosten/laura-mtm/pkg/clustermetrics"
)

// handleMetrics implements GET /v1/metrics, exporting the node's
// clustermetrics.Collector in Prometheus text-exposition format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	exporter := clustermetrics.NewExporter(s.nc.Metrics, "mtm")
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	if err := exporter.WriteMetrics(w); err != nil {
		http.Error(w, fmt.Sprintf("error writing metrics: %v", err), http.StatusInternalServerError)
	}
}
