package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/stemma/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// opError maps chart operation errors to HTTP responses. Unexpected errors
// are logged and reported as 500.
func opError(w http.ResponseWriter, action, chart string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrRecordNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("record not found"))
	case errors.Is(err, apperr.ErrBoundary):
		writeJSON(w, http.StatusConflict, errorBody("record is already at the edge of its sibling group"))
	case errors.Is(err, apperr.ErrInvalidDocument):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody("chart is not valid"))
	default:
		slog.Error(action+" failed", slog.String("chart", chart), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
