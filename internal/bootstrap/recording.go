package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"screencap/internal/artifact"
	"screencap/internal/capture"
	"screencap/internal/domain"
	"screencap/internal/jobs"
)

// ErrNoPendingRecording is returned by save and discard when no stopped
// recording is waiting.
var ErrNoPendingRecording = errors.New("no pending recording")

// PendingRecording is a stopped recording the user has not yet saved or
// discarded. Ref plays it back from the blob registry.
type PendingRecording struct {
	ID       string           `json:"id"`
	Ref      string           `json:"ref"`
	Duration int              `json:"duration"`
	MimeType string           `json:"mimeType"`
	Size     int              `json:"size"`
	Profile  domain.ProfileID `json:"profile"`
	Degraded bool             `json:"degraded"`

	data []byte
}

// StartRecording acquires capture devices using the saved audio choices and
// begins recording. It blocks until recording starts or acquisition fails.
func (a *App) StartRecording() (capture.Snapshot, error) {
	settings := a.currentSettings()
	err := a.Session.Start(context.Background(), capture.Options{
		IncludeMic:         settings.IncludeMic,
		IncludeSystemAudio: settings.IncludeSystemAudio,
	})
	if errors.Is(err, capture.ErrCancelled) {
		a.observer.SessionCancelled()
	}
	return a.Session.Snapshot(), err
}

// PauseRecording pauses the elapsed clock and the encoder.
func (a *App) PauseRecording() capture.Snapshot {
	a.Session.Pause()
	return a.Session.Snapshot()
}

// ResumeRecording continues a paused recording.
func (a *App) ResumeRecording() capture.Snapshot {
	a.Session.Resume()
	return a.Session.Snapshot()
}

// StopRecording finalizes the recording and returns it as pending. A stop
// during acquisition cancels it and returns nil.
func (a *App) StopRecording() (*PendingRecording, error) {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	res, err := a.Session.Stop(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Data) == 0 {
		return nil, nil
	}
	return a.PendingRecording(), nil
}

// RecordingStatus reports the session snapshot.
func (a *App) RecordingStatus() capture.Snapshot {
	return a.Session.Snapshot()
}

// PendingRecording returns the recording awaiting save or discard, or nil.
func (a *App) PendingRecording() *PendingRecording {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending == nil {
		return nil
	}
	view := *a.pending
	view.data = nil
	return &view
}

// SaveRecording moves the pending recording into the library with a preview
// image. Preview failures never fail the save.
func (a *App) SaveRecording() (artifact.Summary, error) {
	a.mu.Lock()
	p := a.pending
	a.pending = nil
	a.mu.Unlock()
	if p == nil {
		return artifact.Summary{}, ErrNoPendingRecording
	}

	opts := []artifact.SaveOption{artifact.WithRef(p.Ref)}
	if thumb := a.renderPreview(p); thumb != nil {
		opts = append(opts, artifact.WithPreview(thumb))
	}
	saved, err := a.Library.Save(p.data, p.Duration, p.MimeType, opts...)
	if err != nil {
		a.Library.Blobs().Revoke(p.Ref)
		return artifact.Summary{}, fmt.Errorf("save recording: %w", err)
	}

	a.observer.Library(a.Library.Len(), a.Library.TotalBytes())
	a.Logger.Info("recording saved",
		"artifact_id", saved.ID,
		"duration_seconds", saved.Duration,
		"bytes", saved.Size,
		"has_preview", len(saved.Preview) > 0,
	)
	a.publishEvent(jobs.Event{
		Source:     jobs.SourceLibrary,
		Type:       jobs.EventTypeResult,
		ArtifactID: saved.ID,
		Message:    "Recording saved",
	})
	return artifact.Summarize(saved), nil
}

// DiscardRecording drops the pending recording and revokes its reference.
func (a *App) DiscardRecording() error {
	a.mu.Lock()
	p := a.pending
	a.pending = nil
	a.mu.Unlock()
	if p == nil {
		return ErrNoPendingRecording
	}

	a.Library.Blobs().Revoke(p.Ref)
	a.Logger.Info("recording discarded", "pending_id", p.ID, "duration_seconds", p.Duration)
	return nil
}

// ListRecordings returns the library, newest first.
func (a *App) ListRecordings() []artifact.Summary {
	items := a.Library.List()
	out := make([]artifact.Summary, 0, len(items))
	for _, item := range items {
		out = append(out, artifact.Summarize(item))
	}
	return out
}

// RecordingPreview returns the JPEG preview of a saved recording.
func (a *App) RecordingPreview(id string) ([]byte, error) {
	item, err := a.Library.Get(id)
	if err != nil {
		return nil, err
	}
	if len(item.Preview) == 0 {
		return nil, fmt.Errorf("%w: %s has no preview", artifact.ErrNotFound, id)
	}
	return item.Preview, nil
}

// DeleteRecording removes a saved recording. Deleting twice is a no-op.
func (a *App) DeleteRecording(id string) bool {
	removed := a.Library.Delete(id)
	if !removed {
		return false
	}
	a.observer.Library(a.Library.Len(), a.Library.TotalBytes())
	a.Logger.Info("recording deleted", "artifact_id", id)
	a.publishEvent(jobs.Event{
		Source:     jobs.SourceLibrary,
		Type:       jobs.EventTypeStatus,
		ArtifactID: id,
		Message:    "Recording deleted",
	})
	return true
}

// OpenBlob resolves a blob reference to its bytes.
func (a *App) OpenBlob(ref string) ([]byte, string, bool) {
	return a.Library.Blobs().Open(ref)
}

// holdPending registers a finished recording for playback, replacing any
// earlier unsaved one.
func (a *App) holdPending(res capture.Result) *PendingRecording {
	p := &PendingRecording{
		ID:       uuid.NewString(),
		Ref:      a.Library.Blobs().Register(res.Data, res.MimeType),
		Duration: res.Duration,
		MimeType: res.MimeType,
		Size:     len(res.Data),
		Profile:  res.Profile,
		Degraded: res.Degraded,
		data:     res.Data,
	}

	a.mu.Lock()
	previous := a.pending
	a.pending = p
	a.mu.Unlock()

	if previous != nil {
		a.Library.Blobs().Revoke(previous.Ref)
		a.Logger.Warn("unsaved recording replaced", "pending_id", previous.ID)
	}
	return p
}

func (a *App) renderPreview(p *PendingRecording) []byte {
	if a.previews == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), previewTimeout)
	defer cancel()

	thumb, err := a.previews.Generate(ctx, p.data, p.Duration)
	if err != nil {
		a.Logger.Warn("preview generation failed", "pending_id", p.ID, "error", err)
		return nil
	}
	return thumb
}
