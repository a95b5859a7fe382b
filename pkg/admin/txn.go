package admin

import "net/http"

// handleGetCSN implements get-csn: the last CSN assigned by this
// node's logical clock.
func (s *Server) handleGetCSN(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, map[string]interface{}{"csn": s.nc.Clock.LastAssigned()})
}

// handleGetSnapshot implements get-snapshot: the oldest snapshot still
// held open by an in-flight transaction, i.e. the GC/visibility
// frontier rather than the clock's current tip (distinct from
// get-csn, which reports the latest assigned value).
func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	oldest, ok := s.nc.Table.OldestActiveSnapshot()
	writeSuccess(w, map[string]interface{}{
		"oldest_active_snapshot": oldest,
		"has_active_transaction": ok,
	})
}
