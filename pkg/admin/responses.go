package admin

import (
	"encoding/json"
	"io"
	"net/http"
)

// BadRequestError marks a request as malformed (bad JSON, missing or
// unparseable path parameter).
type BadRequestError struct{ Message string }

func (e *BadRequestError) Error() string { return e.Message }

// NotFoundError marks a request naming something this node has no
// record of (an unknown node id, gid, or table).
type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

// ConflictError marks a request that is well-formed but cannot be
// satisfied given the node's current state (e.g. the wired host does
// not support make-table-local).
type ConflictError struct{ Message string }

func (e *ConflictError) Error() string { return e.Message }

func parseJSONBody(r *http.Request, target interface{}) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return &BadRequestError{Message: "failed to read request body"}
	}
	defer r.Body.Close()

	if len(body) == 0 {
		return &BadRequestError{Message: "request body is empty"}
	}
	if err := json.Unmarshal(body, target); err != nil {
		return &BadRequestError{Message: "invalid JSON: " + err.Error()}
	}
	return nil
}

func writeError(w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	errorType := "InternalError"

	switch err.(type) {
	case *BadRequestError:
		statusCode = http.StatusBadRequest
		errorType = "BadRequest"
	case *NotFoundError:
		statusCode = http.StatusNotFound
		errorType = "NotFound"
	case *ConflictError:
		statusCode = http.StatusConflict
		errorType = "Conflict"
	}

	response := map[string]interface{}{
		"ok":      false,
		"error":   errorType,
		"message": err.Error(),
		"code":    statusCode,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}

func writeSuccess(w http.ResponseWriter, result interface{}) {
	response := map[string]interface{}{
		"ok":     true,
		"result": result,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}
