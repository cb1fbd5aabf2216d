// Package httpapi exposes the recorder over a local HTTP API with a
// websocket event stream and Prometheus metrics.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"screencap/internal/artifact"
	"screencap/internal/bootstrap"
	"screencap/internal/capture"
	"screencap/internal/domain"
	"screencap/internal/jobs"
)

const shutdownTimeout = 30 * time.Second

// Backend is the application surface served over HTTP. *bootstrap.App
// implements it.
type Backend interface {
	ListProfiles() []domain.Profile
	ActiveProfile() domain.Profile
	SelectProfile(id string) (domain.Profile, error)

	StartRecording() (capture.Snapshot, error)
	PauseRecording() capture.Snapshot
	ResumeRecording() capture.Snapshot
	StopRecording() (*bootstrap.PendingRecording, error)
	RecordingStatus() capture.Snapshot

	PendingRecording() *bootstrap.PendingRecording
	SaveRecording() (artifact.Summary, error)
	DiscardRecording() error

	ListRecordings() []artifact.Summary
	DeleteRecording(id string) bool
	RecordingPreview(id string) ([]byte, error)
	OpenBlob(ref string) ([]byte, string, bool)

	Export(id string, format string) (bootstrap.ExportResponse, error)
	CurrentJob() domain.Job
	JobEvents(sinceSeq int64) []jobs.Event
	SubscribeEvents(buffer int) (<-chan jobs.Event, func())

	GetDiagnostics() domain.DiagnosticReport
}

// Server routes API requests to a Backend.
type Server struct {
	backend Backend
	logger  *slog.Logger
	router  *mux.Router
}

// New builds the router.
func New(backend Backend, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		backend: backend,
		logger:  logger.With("component", "httpapi"),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(Metrics(DefaultMetricsConfig()))

	r.HandleFunc("/healthz", s.health).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/profiles", s.listProfiles).Methods("GET")
	api.HandleFunc("/profiles/{id}/activate", s.activateProfile).Methods("POST")

	api.HandleFunc("/session", s.sessionStatus).Methods("GET")
	api.HandleFunc("/session/start", s.startSession).Methods("POST")
	api.HandleFunc("/session/pause", s.pauseSession).Methods("POST")
	api.HandleFunc("/session/resume", s.resumeSession).Methods("POST")
	api.HandleFunc("/session/stop", s.stopSession).Methods("POST")

	api.HandleFunc("/pending", s.getPending).Methods("GET")
	api.HandleFunc("/pending/save", s.savePending).Methods("POST")
	api.HandleFunc("/pending", s.discardPending).Methods("DELETE")

	api.HandleFunc("/recordings", s.listRecordings).Methods("GET")
	api.HandleFunc("/recordings/{id}", s.deleteRecording).Methods("DELETE")
	api.HandleFunc("/recordings/{id}/preview", s.recordingPreview).Methods("GET")
	api.HandleFunc("/recordings/{id}/export", s.exportRecording).Methods("POST")
	api.HandleFunc("/blobs/{ref}", s.blob).Methods("GET")

	api.HandleFunc("/job", s.currentJob).Methods("GET")
	api.HandleFunc("/events", s.events).Methods("GET")
	api.HandleFunc("/events/ws", s.eventStream).Methods("GET")
	api.HandleFunc("/diagnostics", s.diagnostics).Methods("GET")

	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}
	s.logger.Info("http api stopped")
	return nil
}
