// Package export routes a saved recording to a download: WebM directly,
// MP4 through the transcode job.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"screencap/internal/artifact"
	"screencap/internal/domain"
	"screencap/internal/transcode"
)

// ErrExceedsMaxDuration is returned when a clip is too long for in-process
// MP4 conversion under the active profile. WebM remains available.
var ErrExceedsMaxDuration = errors.New("recording exceeds the profile's mp4 export limit")

// ErrUnknownFormat is returned for formats other than webm and mp4.
var ErrUnknownFormat = errors.New("unknown export format")

// Transcoder submits conversion jobs.
type Transcoder interface {
	Submit(ctx context.Context, src transcode.Source, format domain.ExportFormat) (*transcode.Job, error)
}

// ProfileSource yields the active profile.
type ProfileSource interface {
	Active() domain.Profile
}

// Download is a byte-addressable file ready to hand to the user.
type Download struct {
	Ref      string              `json:"ref"`
	Filename string              `json:"filename"`
	MimeType string              `json:"mimeType"`
	Format   domain.ExportFormat `json:"format"`

	derived bool
}

// Result is either an immediate download or a pending transcode job.
type Result struct {
	Download *Download
	Job      *transcode.Job
	artifact artifact.Artifact
	format   domain.ExportFormat
}

// Exporter resolves export requests against the artifact store.
type Exporter struct {
	store      *artifact.Store
	transcoder Transcoder
	profiles   ProfileSource
	logger     *slog.Logger
}

// New creates an exporter.
func New(store *artifact.Store, transcoder Transcoder, profiles ProfileSource, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		store:      store,
		transcoder: transcoder,
		profiles:   profiles,
		logger:     logger.With("component", "export"),
	}
}

// Export starts exporting artifact id to format.
func (e *Exporter) Export(ctx context.Context, id string, format domain.ExportFormat) (Result, error) {
	a, err := e.store.Get(id)
	if err != nil {
		return Result{}, err
	}

	switch format {
	case domain.FormatWebM:
		return Result{
			Download: &Download{
				Ref:      a.Ref,
				Filename: artifact.Filename(a.Title, string(domain.FormatWebM)),
				MimeType: a.MimeType,
				Format:   domain.FormatWebM,
			},
			artifact: a,
			format:   format,
		}, nil
	case domain.FormatMP4:
		p := e.profiles.Active()
		if limit := p.Export.MaxDuration; limit > 0 && a.Duration > limit {
			e.logger.Warn("mp4 export refused",
				"artifact_id", a.ID,
				"duration_seconds", a.Duration,
				"max_duration", limit,
				"profile", p.ID,
			)
			return Result{}, fmt.Errorf("%w: %ds > %ds for profile %s", ErrExceedsMaxDuration, a.Duration, limit, p.ID)
		}
		job, err := e.transcoder.Submit(ctx, transcode.Source{
			ArtifactID: a.ID,
			Data:       a.Data,
			Duration:   a.Duration,
		}, format)
		if err != nil {
			return Result{}, err
		}
		return Result{Job: job, artifact: a, format: format}, nil
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// Complete waits for a pending job and registers its output as a new blob.
// Direct results are returned unchanged.
func (e *Exporter) Complete(ctx context.Context, res Result) (Download, error) {
	if res.Download != nil {
		return *res.Download, nil
	}
	if res.Job == nil {
		return Download{}, errors.New("export result has neither download nor job")
	}

	out, err := res.Job.Wait(ctx)
	if err != nil {
		return Download{}, err
	}
	ref := e.store.Blobs().Register(out.Data, out.MimeType)
	return Download{
		Ref:      ref,
		Filename: artifact.Filename(res.artifact.Title, string(res.format)),
		MimeType: out.MimeType,
		Format:   res.format,
		derived:  true,
	}, nil
}

// Release revokes the blob behind a converted download. Direct downloads
// share the artifact's reference and are left alone.
func (e *Exporter) Release(d Download) {
	if !d.derived {
		return
	}
	e.store.Blobs().Revoke(d.Ref)
}

// WriteTo copies a download into dir and returns the written path.
func (e *Exporter) WriteTo(dir string, d Download) (string, error) {
	data, _, ok := e.store.Blobs().Open(d.Ref)
	if !ok {
		return "", fmt.Errorf("%w: %s", artifact.ErrNotFound, d.Ref)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, d.Filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	e.logger.Info("export written", "path", path, "format", d.Format, "bytes", len(data))
	return path, nil
}
