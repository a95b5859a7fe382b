package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleMakeTableLocal implements make-table-local: future
// transactions touching only this table are filtered to local-only
// (spec.md §4.4's Filtering rule), if the wired host engine supports
// the operation.
func (s *Server) handleMakeTableLocal(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		writeError(w, &BadRequestError{Message: "table name is required"})
		return
	}

	if err := s.nc.MakeTableLocal(name); err != nil {
		writeError(w, &ConflictError{Message: err.Error()})
		return
	}
	writeSuccess(w, map[string]interface{}{"table": name, "local": true})
}
