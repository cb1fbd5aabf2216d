// Package capture owns the screen recording session: device acquisition,
// the audio graph, the encoder, the elapsed clock and teardown.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"screencap/internal/audiograph"
	"screencap/internal/device"
	"screencap/internal/domain"
)

// DefaultMaxElapsed is the hard recording ceiling in seconds.
const DefaultMaxElapsed = 1800

var (
	// ErrEmptyRecording is returned when finalization produced no bytes.
	ErrEmptyRecording = errors.New("recording produced no data")
	// ErrCancelled is returned by Start when Stop landed during acquisition.
	ErrCancelled = errors.New("recording cancelled during acquisition")
)

// ProfileSource yields the active profile at start time.
type ProfileSource interface {
	Active() domain.Profile
}

// AudioBuilder assembles the audio graph for a session.
type AudioBuilder interface {
	Build(ctx context.Context, in audiograph.Inputs) (*audiograph.Graph, []error)
}

// Options are the per-recording audio inclusion flags.
type Options struct {
	IncludeMic         bool
	IncludeSystemAudio bool
}

// Result is a finished recording handed back on stop.
type Result struct {
	Data     []byte
	MimeType string
	Duration int // seconds, frozen at stop
	Profile  domain.ProfileID
	Degraded bool
}

// NotificationKind classifies listener callbacks.
type NotificationKind string

const (
	NotifyState   NotificationKind = "state"
	NotifyTick    NotificationKind = "tick"
	NotifyWarning NotificationKind = "warning"
	NotifyResult  NotificationKind = "result"
	NotifyError   NotificationKind = "error"
)

// Notification is delivered to the session listener outside any lock.
type Notification struct {
	Kind    NotificationKind
	State   State
	Elapsed int
	Err     error
	Result  *Result
}

// Listener receives session notifications.
type Listener func(Notification)

// Snapshot is a point-in-time view of the session.
type Snapshot struct {
	State      State     `json:"state"`
	Elapsed    int       `json:"elapsed"`
	MaxElapsed int       `json:"maxElapsed"`
	Degraded   bool      `json:"degraded"`
	Levels     []float64 `json:"levels,omitempty"`
	LastError  string    `json:"lastError,omitempty"`
}

// Config wires a session to its collaborators.
type Config struct {
	Devices    device.Devices
	Audio      AudioBuilder
	Encoders   EncoderFactory
	Profiles   ProfileSource
	MaxElapsed int
	NewTicker  NewTickerFunc
	Listener   Listener
	Logger     *slog.Logger
}

// chunkBuffer accumulates encoder output for one attempt.
type chunkBuffer struct {
	mu     sync.Mutex
	chunks [][]byte
	size   int
}

func (b *chunkBuffer) append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunks = append(b.chunks, chunk)
	b.size += len(chunk)
}

func (b *chunkBuffer) bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Join(b.chunks, nil)
}

// handles are the resources owned by one live recording. They are detached
// from the session under lock so exactly one path releases them.
type handles struct {
	video   device.VideoTrack
	graph   *audiograph.Graph
	encoder Encoder
	ticker  Ticker
	done    chan struct{}
	buffer  *chunkBuffer
}

// Session is the recording state machine. One session value is reused
// across recording attempts.
type Session struct {
	cfg    Config
	logger *slog.Logger

	mu            sync.Mutex
	state         State
	attempt       uint64
	elapsed       int
	degraded      bool
	lastErr       error
	profile       domain.ProfileID
	cancelAcquire context.CancelFunc
	live          *handles
}

// NewSession creates an idle session.
func NewSession(cfg Config) *Session {
	if cfg.MaxElapsed <= 0 {
		cfg.MaxElapsed = DefaultMaxElapsed
	}
	if cfg.NewTicker == nil {
		cfg.NewTicker = NewRealTicker
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		cfg:    cfg,
		logger: logger.With("component", "capture"),
		state:  domain.SessionIdle,
	}
}

// Start acquires devices and begins recording. It fails with ErrInvalidState
// unless the session is idle or failed.
func (s *Session) Start(ctx context.Context, opts Options) error {
	s.mu.Lock()
	next, err := Next(s.state, EventStart)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = next
	s.attempt++
	gen := s.attempt
	s.elapsed = 0
	s.degraded = false
	s.lastErr = nil
	acqCtx, cancel := context.WithCancel(ctx)
	s.cancelAcquire = cancel
	profile := s.cfg.Profiles.Active()
	s.profile = profile.ID
	s.mu.Unlock()
	defer cancel()

	s.logger.Info("acquiring capture devices",
		"session_state", next,
		"profile", profile.ID,
		"include_mic", opts.IncludeMic,
		"include_system_audio", opts.IncludeSystemAudio,
	)
	s.notify(Notification{Kind: NotifyState, State: next})

	display, err := s.cfg.Devices.OpenDisplay(acqCtx, device.DisplayRequest{
		Width:       profile.Capture.Width,
		Height:      profile.Capture.Height,
		FrameRate:   profile.Capture.FrameRate,
		SystemAudio: opts.IncludeSystemAudio,
	})
	if s.cancelled(gen) {
		_ = device.StopAll(trackOrNil(display.Video), audioOrNil(display.SystemAudio))
		return ErrCancelled
	}
	if err == nil && display.Video == nil {
		err = device.ErrUnavailable
	}
	if err != nil {
		_ = device.StopAll(trackOrNil(display.Video), audioOrNil(display.SystemAudio))
		var acqErr *device.AcquisitionError
		if !errors.As(err, &acqErr) {
			err = &device.AcquisitionError{Device: "display", Err: err}
		}
		s.failAcquire(gen, err)
		return err
	}

	var graph *audiograph.Graph
	if s.cfg.Audio != nil {
		var warnings []error
		graph, warnings = s.cfg.Audio.Build(acqCtx, audiograph.Inputs{
			IncludeMic:         opts.IncludeMic,
			IncludeSystemAudio: opts.IncludeSystemAudio,
			SystemAudio:        display.SystemAudio,
		})
		for _, w := range warnings {
			s.logger.Warn("audio source unavailable, recording degraded", "error", w)
			s.notify(Notification{Kind: NotifyWarning, State: domain.SessionAcquiring, Err: w})
		}
		if len(warnings) > 0 {
			s.mu.Lock()
			if s.attempt == gen {
				s.degraded = true
			}
			s.mu.Unlock()
		}
	} else {
		_ = device.StopAll(audioOrNil(display.SystemAudio))
	}

	if s.cancelled(gen) {
		s.release(display.Video, graph)
		return ErrCancelled
	}

	var audio device.AudioTrack
	if graph != nil {
		audio = graph.Output()
	}
	encoder, err := s.cfg.Encoders.NewEncoder(display.Video, audio, EncoderOptions{
		Width:              profile.Capture.Width,
		Height:             profile.Capture.Height,
		FrameRate:          profile.Capture.FrameRate,
		VideoBitsPerSecond: profile.Capture.VideoBitsPerSecond,
		Timeslice:          Timeslice,
	})
	buffer := &chunkBuffer{}
	if err == nil {
		err = encoder.Start(buffer.append)
	}
	if err != nil {
		s.release(display.Video, graph)
		err = fmt.Errorf("start encoder: %w", err)
		s.failAcquire(gen, err)
		return err
	}

	s.mu.Lock()
	if s.attempt != gen || s.state != domain.SessionAcquiring {
		s.mu.Unlock()
		_ = encoder.Stop(context.Background())
		s.release(display.Video, graph)
		return ErrCancelled
	}
	next, _ = Next(s.state, EventAcquired)
	s.state = next
	s.cancelAcquire = nil
	live := &handles{
		video:   display.Video,
		graph:   graph,
		encoder: encoder,
		ticker:  s.cfg.NewTicker(time.Second),
		done:    make(chan struct{}),
		buffer:  buffer,
	}
	s.live = live
	s.mu.Unlock()

	go s.watch(gen, live)

	s.logger.Info("recording started", "session_state", next, "mime_type", encoder.MimeType())
	s.notify(Notification{Kind: NotifyState, State: next})
	return nil
}

// Pause suspends encoding and the clock. It is a no-op outside recording.
func (s *Session) Pause() {
	s.mu.Lock()
	next, err := Next(s.state, EventPause)
	if err != nil || s.state != domain.SessionRecording {
		s.mu.Unlock()
		return
	}
	s.state = next
	encoder := s.live.encoder
	s.mu.Unlock()

	if err := encoder.Pause(); err != nil {
		s.logger.Warn("encoder pause failed", "error", err)
	}
	s.notify(Notification{Kind: NotifyState, State: next})
}

// Resume continues a paused recording. It is a no-op outside paused.
func (s *Session) Resume() {
	s.mu.Lock()
	next, err := Next(s.state, EventResume)
	if err != nil || s.state != domain.SessionPaused {
		s.mu.Unlock()
		return
	}
	s.state = next
	encoder := s.live.encoder
	s.mu.Unlock()

	if err := encoder.Resume(); err != nil {
		s.logger.Warn("encoder resume failed", "error", err)
	}
	s.notify(Notification{Kind: NotifyState, State: next})
}

// Stop finalizes the recording. Called while acquiring it cancels the
// attempt and returns an empty result.
func (s *Session) Stop(ctx context.Context) (Result, error) {
	s.mu.Lock()
	if s.state == domain.SessionAcquiring {
		next, _ := Next(s.state, EventCancel)
		s.state = next
		if s.cancelAcquire != nil {
			s.cancelAcquire()
			s.cancelAcquire = nil
		}
		s.mu.Unlock()
		s.logger.Info("acquisition cancelled", "session_state", next)
		s.notify(Notification{Kind: NotifyState, State: next})
		return Result{}, nil
	}

	next, err := Next(s.state, EventStop)
	if err != nil {
		s.mu.Unlock()
		return Result{}, err
	}
	s.state = next
	live := s.detach()
	duration := s.elapsed
	profile := s.profile
	degraded := s.degraded
	gen := s.attempt
	s.mu.Unlock()

	s.notify(Notification{Kind: NotifyState, State: next, Elapsed: duration})

	encErr := live.encoder.Stop(ctx)
	if encErr != nil {
		s.logger.Warn("encoder finalize failed", "error", encErr)
	}
	s.release(live.video, live.graph)
	data := live.buffer.bytes()

	s.mu.Lock()
	if s.attempt != gen {
		s.mu.Unlock()
		return Result{}, ErrCancelled
	}
	if len(data) == 0 {
		s.state, _ = Next(s.state, EventFinalizeFailed)
		err := ErrEmptyRecording
		if encErr != nil {
			err = fmt.Errorf("%w: %w", ErrEmptyRecording, encErr)
		}
		s.lastErr = err
		state := s.state
		s.mu.Unlock()

		s.logger.Error("recording finalized without data", "session_state", state, "error", err)
		s.notify(Notification{Kind: NotifyError, State: state, Err: err})
		return Result{}, err
	}
	s.state, _ = Next(s.state, EventFinalized)
	state := s.state
	s.mu.Unlock()

	result := Result{
		Data:     data,
		MimeType: live.encoder.MimeType(),
		Duration: duration,
		Profile:  profile,
		Degraded: degraded,
	}
	s.logger.Info("recording finished",
		"session_state", state,
		"duration_seconds", duration,
		"bytes", len(data),
	)
	s.notify(Notification{Kind: NotifyResult, State: state, Elapsed: duration, Result: &result})
	return result, nil
}

// Snapshot reports the current session view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		State:      s.state,
		Elapsed:    s.elapsed,
		MaxElapsed: s.cfg.MaxElapsed,
		Degraded:   s.degraded,
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	if s.live != nil && s.live.graph != nil && s.live.graph.Tap() != nil {
		snap.Levels = s.live.graph.Tap().Levels()
	}
	return snap
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// watch drives the elapsed clock and reacts to the source ending or the
// encoder dying.
func (s *Session) watch(gen uint64, live *handles) {
	for {
		select {
		case <-live.done:
			return
		case <-live.ticker.C():
			if s.tick(gen) {
				s.logger.Info("recording ceiling reached", "max_elapsed", s.cfg.MaxElapsed)
				s.stopFromWatcher(gen)
				return
			}
		case <-live.video.Ended():
			s.logger.Info("capture source ended externally")
			s.stopFromWatcher(gen)
			return
		case err := <-live.encoder.Err():
			if err != nil {
				s.fail(gen, err)
				return
			}
		}
	}
}

// tick advances the clock once and reports whether the ceiling was reached.
func (s *Session) tick(gen uint64) bool {
	s.mu.Lock()
	if s.attempt != gen || s.live == nil {
		s.mu.Unlock()
		return false
	}
	if s.state == domain.SessionRecording {
		s.elapsed++
	}
	state, elapsed := s.state, s.elapsed
	reached := state == domain.SessionRecording && elapsed >= s.cfg.MaxElapsed
	s.mu.Unlock()

	s.notify(Notification{Kind: NotifyTick, State: state, Elapsed: elapsed})
	return reached
}

func (s *Session) stopFromWatcher(gen uint64) {
	s.mu.Lock()
	current := s.attempt == gen && (s.state == domain.SessionRecording || s.state == domain.SessionPaused)
	s.mu.Unlock()
	if !current {
		return
	}
	if _, err := s.Stop(context.Background()); err != nil && !errors.Is(err, ErrInvalidState) {
		s.logger.Warn("automatic stop failed", "error", err)
	}
}

// fail tears the recording down after an encoder error.
func (s *Session) fail(gen uint64, cause error) {
	s.mu.Lock()
	if s.attempt != gen {
		s.mu.Unlock()
		return
	}
	next, err := Next(s.state, EventFail)
	if err != nil {
		s.mu.Unlock()
		return
	}
	s.state = next
	live := s.detach()
	err = fmt.Errorf("encoder failed: %w", cause)
	s.lastErr = err
	s.mu.Unlock()

	_ = live.encoder.Stop(context.Background())
	s.release(live.video, live.graph)

	s.logger.Error("recording failed", "session_state", next, "error", err)
	s.notify(Notification{Kind: NotifyError, State: next, Err: err})
}

// failAcquire moves an acquiring attempt to failed.
func (s *Session) failAcquire(gen uint64, err error) {
	s.mu.Lock()
	if s.attempt != gen || s.state != domain.SessionAcquiring {
		s.mu.Unlock()
		return
	}
	s.state, _ = Next(s.state, EventAcquireFailed)
	s.lastErr = err
	s.cancelAcquire = nil
	state := s.state
	s.mu.Unlock()

	s.logger.Error("capture acquisition failed", "session_state", state, "error", err)
	s.notify(Notification{Kind: NotifyError, State: state, Err: err})
}

// detach takes ownership of the live handles. Callers hold s.mu.
func (s *Session) detach() *handles {
	live := s.live
	s.live = nil
	live.ticker.Stop()
	close(live.done)
	return live
}

func (s *Session) cancelled(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt != gen || s.state != domain.SessionAcquiring
}

// release stops the audio graph and the video track. Both tolerate repeated
// calls.
func (s *Session) release(video device.VideoTrack, graph *audiograph.Graph) {
	if err := graph.Close(); err != nil {
		s.logger.Warn("audio graph teardown failed", "error", err)
	}
	if err := device.StopAll(trackOrNil(video)); err != nil {
		s.logger.Warn("video track release failed", "error", err)
	}
}

func (s *Session) notify(n Notification) {
	if s.cfg.Listener != nil {
		s.cfg.Listener(n)
	}
}

// trackOrNil avoids boxing a nil interface value into a non-nil Track.
func trackOrNil(v device.VideoTrack) device.Track {
	if v == nil {
		return nil
	}
	return v
}

func audioOrNil(a device.AudioTrack) device.Track {
	if a == nil {
		return nil
	}
	return a
}
