package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"handlescope/internal/bootstrap/logging"
	"handlescope/internal/errs"
	"handlescope/internal/ports"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps an error chain to a response status. An explicit status
// attached with errs.WithStatus wins.
func statusFor(err error) int {
	var se *errs.StatusError
	switch {
	case errors.As(err, &se):
		return se.Status()
	case errors.Is(err, ports.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ports.ErrUnsupported):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) int {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.Error(ctx, "request failed", slog.Int("status", status), slog.Any("err", errs.Loggable(err)))
	} else {
		logging.Info(ctx, "request rejected", slog.Int("status", status), slog.Any("err", errs.Loggable(err)))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
	return status
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
