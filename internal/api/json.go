package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/notepad/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// statusFor maps an error kind to its HTTP status. Zero means the error is
// unexpected and should be logged.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errUnknownSession), errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotDirty), errors.Is(err, apperr.ErrSessionClosed):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrSinkUnwritable):
		return http.StatusUnprocessableEntity
	default:
		return 0
	}
}
