package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"screencap/internal/artifact"
	"screencap/internal/bootstrap"
	"screencap/internal/capture"
	"screencap/internal/device"
	"screencap/internal/export"
	"screencap/internal/jobs"
	"screencap/internal/profile"
)

// errorBody is the JSON shape of every failed request.
type errorBody struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode json response", "error", err)
	}
}

func (s *Server) ok(w http.ResponseWriter, v any) {
	writeJSON(w, s.logger, http.StatusOK, v)
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, s.logger, status, errorBody{
		Error: bootstrap.UserMessage(err),
		Hint:  bootstrap.Hint(err),
	})
}

func (s *Server) badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, s.logger, http.StatusBadRequest, errorBody{Error: message})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, capture.ErrInvalidState),
		errors.Is(err, capture.ErrCancelled),
		errors.Is(err, jobs.ErrJobAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, artifact.ErrNotFound),
		errors.Is(err, bootstrap.ErrNoPendingRecording):
		return http.StatusNotFound
	case errors.Is(err, profile.ErrUnknownProfile),
		errors.Is(err, export.ErrUnknownFormat):
		return http.StatusBadRequest
	case errors.Is(err, export.ErrExceedsMaxDuration):
		return http.StatusUnprocessableEntity
	case errors.Is(err, device.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, device.ErrNotSupported),
		errors.Is(err, device.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
