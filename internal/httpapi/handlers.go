package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"screencap/internal/bootstrap"
	"screencap/internal/capture"
	"screencap/internal/domain"
)

type profilesResponse struct {
	Active   domain.ProfileID `json:"active"`
	Profiles []domain.Profile `json:"profiles"`
}

type stopResponse struct {
	Session capture.Snapshot            `json:"session"`
	Pending *bootstrap.PendingRecording `json:"pending,omitempty"`
}

type exportRequest struct {
	Format string `json:"format"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.ok(w, map[string]string{"status": "ok"})
}

func (s *Server) listProfiles(w http.ResponseWriter, _ *http.Request) {
	s.ok(w, profilesResponse{
		Active:   s.backend.ActiveProfile().ID,
		Profiles: s.backend.ListProfiles(),
	})
}

func (s *Server) activateProfile(w http.ResponseWriter, r *http.Request) {
	active, err := s.backend.SelectProfile(mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, active)
}

func (s *Server) sessionStatus(w http.ResponseWriter, _ *http.Request) {
	s.ok(w, s.backend.RecordingStatus())
}

func (s *Server) startSession(w http.ResponseWriter, _ *http.Request) {
	snap, err := s.backend.StartRecording()
	if err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, snap)
}

func (s *Server) pauseSession(w http.ResponseWriter, _ *http.Request) {
	s.ok(w, s.backend.PauseRecording())
}

func (s *Server) resumeSession(w http.ResponseWriter, _ *http.Request) {
	s.ok(w, s.backend.ResumeRecording())
}

func (s *Server) stopSession(w http.ResponseWriter, _ *http.Request) {
	pending, err := s.backend.StopRecording()
	if err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, stopResponse{Session: s.backend.RecordingStatus(), Pending: pending})
}

func (s *Server) getPending(w http.ResponseWriter, _ *http.Request) {
	pending := s.backend.PendingRecording()
	if pending == nil {
		s.fail(w, bootstrap.ErrNoPendingRecording)
		return
	}
	s.ok(w, pending)
}

func (s *Server) savePending(w http.ResponseWriter, _ *http.Request) {
	saved, err := s.backend.SaveRecording()
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, s.logger, http.StatusCreated, saved)
}

func (s *Server) discardPending(w http.ResponseWriter, _ *http.Request) {
	if err := s.backend.DiscardRecording(); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listRecordings(w http.ResponseWriter, _ *http.Request) {
	s.ok(w, s.backend.ListRecordings())
}

// deleteRecording is idempotent: a missing id still answers 204.
func (s *Server) deleteRecording(w http.ResponseWriter, r *http.Request) {
	s.backend.DeleteRecording(mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) recordingPreview(w http.ResponseWriter, r *http.Request) {
	jpeg, err := s.backend.RecordingPreview(mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = w.Write(jpeg)
}

func (s *Server) exportRecording(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "request body must be JSON with a format field")
		return
	}
	resp, err := s.backend.Export(mux.Vars(r)["id"], req.Format)
	if err != nil {
		s.fail(w, err)
		return
	}
	status := http.StatusOK
	if resp.JobID != "" {
		status = http.StatusAccepted
	}
	writeJSON(w, s.logger, status, resp)
}

// blob streams a registered reference with range support for playback.
func (s *Server) blob(w http.ResponseWriter, r *http.Request) {
	ref := mux.Vars(r)["ref"]
	data, mimeType, ok := s.backend.OpenBlob(ref)
	if !ok {
		writeJSON(w, s.logger, http.StatusNotFound, errorBody{Error: "That recording no longer exists."})
		return
	}
	if mimeType != "" {
		w.Header().Set("Content-Type", mimeType)
	}
	http.ServeContent(w, r, ref, time.Time{}, bytes.NewReader(data))
}

func (s *Server) currentJob(w http.ResponseWriter, _ *http.Request) {
	s.ok(w, s.backend.CurrentJob())
}

func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	var since int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			s.badRequest(w, "since must be a non-negative integer")
			return
		}
		since = v
	}
	s.ok(w, s.backend.JobEvents(since))
}

func (s *Server) diagnostics(w http.ResponseWriter, _ *http.Request) {
	s.ok(w, s.backend.GetDiagnostics())
}
