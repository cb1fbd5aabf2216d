package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"screencap/internal/domain"
	"screencap/internal/export"
	"screencap/internal/jobs"
)

// ExportResponse describes an export request. WebM is written immediately
// and Path is set; MP4 returns the job id and reports the path through a
// result event once the conversion finishes.
type ExportResponse struct {
	Format   domain.ExportFormat `json:"format"`
	Path     string              `json:"path,omitempty"`
	Download *export.Download    `json:"download,omitempty"`
	JobID    string              `json:"jobId,omitempty"`
}

// Export writes a saved recording into the export directory in format.
func (a *App) Export(id string, format string) (ExportResponse, error) {
	f := domain.ExportFormat(strings.ToLower(strings.TrimSpace(format)))
	res, err := a.Exporter.Export(context.Background(), id, f)
	if err != nil {
		if errors.Is(err, jobs.ErrJobAlreadyRunning) {
			a.observer.JobRejected()
		}
		return ExportResponse{}, err
	}

	dir := a.currentSettings().ExportDir
	if res.Download != nil {
		path, err := a.Exporter.WriteTo(dir, *res.Download)
		if err != nil {
			return ExportResponse{}, err
		}
		return ExportResponse{Format: f, Path: path, Download: res.Download}, nil
	}

	jobID := res.Job.ID()
	go a.finishExport(res, dir, id)
	return ExportResponse{Format: f, JobID: jobID}, nil
}

// finishExport waits for the conversion and writes the derived file.
func (a *App) finishExport(res export.Result, dir, artifactID string) {
	download, err := a.Exporter.Complete(context.Background(), res)
	if err != nil {
		a.Logger.Warn("export conversion failed", "artifact_id", artifactID, "error", err)
		return
	}
	path, err := a.Exporter.WriteTo(dir, download)
	a.Exporter.Release(download)
	if err != nil {
		a.Logger.Error("export write failed", "artifact_id", artifactID, "error", err)
		a.publishEvent(jobs.Event{
			Source:     jobs.SourceJob,
			Type:       jobs.EventTypeError,
			JobID:      res.Job.ID(),
			ArtifactID: artifactID,
			Message:    fmt.Sprintf("Could not write the MP4 file: %v", err),
		})
		return
	}
	a.publishEvent(jobs.Event{
		Source:     jobs.SourceJob,
		Type:       jobs.EventTypeResult,
		JobID:      res.Job.ID(),
		ArtifactID: artifactID,
		Status:     string(domain.JobStatusSucceeded),
		Message:    path,
	})
}

// CurrentJob returns current job metadata and status.
func (a *App) CurrentJob() domain.Job {
	return a.Transcoder.Current()
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.Events.Since(sinceSeq)
}
