package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/playperu/storyline/internal/storyline"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string         `json:"error"`
	Code  storyline.Code `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// readJSON decodes the request body into v. Unknown fields are rejected.
func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return storyline.Wrap(storyline.CodeInvalidInput, "decoding request body", err)
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// statusOf maps a domain error code to its HTTP status.
func statusOf(code storyline.Code) int {
	switch code {
	case storyline.CodeNotAuthenticated:
		return http.StatusUnauthorized
	case storyline.CodeRemoteUnavailable:
		return http.StatusServiceUnavailable
	case storyline.CodeNotFound:
		return http.StatusNotFound
	case storyline.CodeMalformedData:
		return http.StatusUnprocessableEntity
	case storyline.CodeInvalidTransition, storyline.CodeMigrationInProgress:
		return http.StatusConflict
	case storyline.CodeChapterLocked:
		return http.StatusForbidden
	case storyline.CodeInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeErr writes err as a JSON error. Domain errors carry their code and
// message; anything else is logged and reported as an internal error.
func writeErr(w http.ResponseWriter, logger *slog.Logger, err error) {
	var se *storyline.Error
	if !errors.As(err, &se) {
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	status := statusOf(se.Code)
	if status >= http.StatusInternalServerError {
		logger.Warn("request failed", "code", se.Code, "error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: se.Message, Code: se.Code})
}
