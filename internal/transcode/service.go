package transcode

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"screencap/internal/domain"
	"screencap/internal/jobs"
	"screencap/internal/logging"
)

// ProfileSource yields the active profile's export settings at submit time.
type ProfileSource interface {
	Active() domain.Profile
}

// Source is the recording to convert.
type Source struct {
	ArtifactID string
	Data       []byte
	Duration   int // seconds
}

// Update is delivered to the listener on every status or progress change.
type Update struct {
	Job    domain.Job
	Final  bool
	Output *Output
	Err    error
}

// Listener receives job updates.
type Listener func(Update)

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithListener sets the update listener.
func WithListener(listener Listener) Option {
	return func(s *Service) { s.listener = listener }
}

// WithIDFunc overrides job id generation.
func WithIDFunc(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// Service runs at most one transcode job at a time.
type Service struct {
	manager  *jobs.Manager
	pipeline *Pipeline
	profiles ProfileSource
	logger   *slog.Logger
	sampler  *logging.ProgressSampler
	listener Listener
	newID    func() string
}

// NewService wires the job manager, pipeline and profile source.
func NewService(manager *jobs.Manager, pipeline *Pipeline, profiles ProfileSource, opts ...Option) *Service {
	s := &Service{
		manager:  manager,
		pipeline: pipeline,
		profiles: profiles,
		logger:   slog.Default(),
		sampler:  logging.NewProgressSampler(10),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logging.KeyComponent, "transcode")
	return s
}

// Job is a handle on one submitted conversion.
type Job struct {
	id   string
	done chan struct{}
	out  Output
	err  error
}

// ID returns the job identifier.
func (j *Job) ID() string { return j.id }

// Done is closed when the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the job ends or ctx is done. Returning early on ctx does
// not cancel the job.
func (j *Job) Wait(ctx context.Context) (Output, error) {
	select {
	case <-j.done:
		return j.out, j.err
	case <-ctx.Done():
		return Output{}, ctx.Err()
	}
}

// Submit starts converting src to format. It fails immediately with
// jobs.ErrJobAlreadyRunning while another job holds the slot. The job is not
// bound to ctx cancellation; it runs to completion or failure.
func (s *Service) Submit(ctx context.Context, src Source, format domain.ExportFormat) (*Job, error) {
	if format != domain.FormatMP4 {
		return nil, ErrUnsupportedFormat
	}

	id := s.newID()
	if err := s.manager.Start(id, src.ArtifactID, format); err != nil {
		return nil, err
	}

	export := s.profiles.Active().Export
	job := &Job{id: id, done: make(chan struct{})}

	s.logger.Info("transcode job started",
		logging.KeyJobID, id,
		logging.KeyArtifactID, src.ArtifactID,
		"format", format,
		"duration_seconds", src.Duration,
	)
	s.emit(Update{Job: s.manager.Current()})

	go s.run(context.WithoutCancel(ctx), job, src, export)
	return job, nil
}

// Current returns the job manager snapshot.
func (s *Service) Current() domain.Job {
	return s.manager.Current()
}

// Busy reports whether a job holds the slot.
func (s *Service) Busy() bool {
	return s.manager.Slot().Held()
}

func (s *Service) run(ctx context.Context, job *Job, src Source, export domain.ExportSettings) {
	s.sampler.Reset()

	out, err := s.pipeline.Run(ctx, Request{
		JobID:    job.id,
		Input:    src.Data,
		Duration: float64(src.Duration),
		Export:   export,
		OnProgress: func(pct float64) {
			published, changed := s.manager.Advance(job.id, pct)
			if !changed {
				return
			}
			if s.sampler.ShouldLog(job.id, published) {
				s.logger.Info("transcode progress", logging.KeyJobID, job.id, logging.KeyProgress, published)
			}
			s.emit(Update{Job: s.manager.Current()})
		},
		OnLog: func(line string) {
			s.logger.Debug("ffmpeg", logging.KeyJobID, job.id, "line", line)
		},
	})

	status := domain.JobStatusSucceeded
	if err != nil {
		status = domain.JobStatusFailed
	}
	final, finishErr := s.manager.Finish(job.id, status)
	if finishErr != nil {
		s.logger.Error("transcode job finish failed", logging.KeyJobID, job.id, logging.KeyError, finishErr)
	}

	update := Update{Job: final, Final: true, Err: err}
	if err != nil {
		s.logger.Error("transcode job failed", logging.KeyJobID, job.id, logging.KeyError, err)
	} else {
		s.logger.Info("transcode job succeeded", logging.KeyJobID, job.id, "bytes", len(out.Data))
		update.Output = &out
	}

	job.out, job.err = out, err
	s.emit(update)
	close(job.done)
}

func (s *Service) emit(u Update) {
	if s.listener != nil {
		s.listener(u)
	}
}
