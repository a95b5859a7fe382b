package admin

import (
	"net/http"
	"time"

	"github.com/mnohosten/laura-mtm/pkg/faultinject"
)

type inject2PCRequest struct {
	Kind        string  `json:"kind"`
	Probability float64 `json:"probability"`
	DelayMS     int     `json:"delay_ms"`
	Message     string  `json:"message"`
}

func parseFaultKind(s string) (faultinject.Kind, error) {
	switch s {
	case "drop-vote":
		return faultinject.KindDropVote, nil
	case "delay-prepare":
		return faultinject.KindDelayPrepare, nil
	case "force-abort":
		return faultinject.KindForceAbort, nil
	default:
		return faultinject.KindNone, &BadRequestError{Message: "unknown fault kind: " + s}
	}
}

// handleInject2PC implements inject-2pc-error (testing only): it is
// only routed when Config.EnableFaultInjection is true (see
// setupRoutes), so a production build's admin surface never exposes
// it.
func (s *Server) handleInject2PC(w http.ResponseWriter, r *http.Request) {
	var req inject2PCRequest
	if err := parseJSONBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	kind, err := parseFaultKind(req.Kind)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Probability <= 0 {
		req.Probability = 1.0
	}

	s.nc.Faults.Enable()
	s.nc.Faults.ConfigureFault(faultinject.Config{
		Kind:        kind,
		Enabled:     true,
		Probability: req.Probability,
		Delay:       time.Duration(req.DelayMS) * time.Millisecond,
		Message:     req.Message,
	})

	writeSuccess(w, map[string]interface{}{
		"kind":        kind.String(),
		"probability": req.Probability,
	})
}
