// Package device defines the boundary to platform capture sources. The
// capture session only ever consumes "yields a track or fails".
package device

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrPermissionDenied = errors.New("capture permission denied")
	ErrNotSupported     = errors.New("capture source not supported on this platform")
	ErrUnavailable      = errors.New("capture source unavailable")
)

// Kind identifies what a track carries.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// Audio frames are interleaved float32 PCM at this rate and channel count.
const (
	SampleRate   = 48000
	Channels     = 2
	FrameSamples = SampleRate / 50 // 20 ms per channel
	FrameLength  = FrameSamples * Channels
)

// Track is a live capture handle. Stop must tolerate repeated calls.
type Track interface {
	ID() string
	Kind() Kind
	// Ended is closed when the source stops, whether by Stop or externally.
	Ended() <-chan struct{}
	Stop() error
}

// VideoSettings reports what the platform actually granted.
type VideoSettings struct {
	Width     int
	Height    int
	FrameRate int
}

// VideoTrack is a display capture feed.
type VideoTrack interface {
	Track
	Settings() VideoSettings
}

// AudioTrack streams PCM frames of FrameLength samples. The channel is closed
// when the track ends.
type AudioTrack interface {
	Track
	Frames() <-chan []float32
}

// DisplayRequest asks for a display capture at target dimensions.
type DisplayRequest struct {
	Width       int
	Height      int
	FrameRate   int
	SystemAudio bool
}

// Display is the result of a display request. SystemAudio is nil when it
// was not requested or the platform could not provide it.
type Display struct {
	Video       VideoTrack
	SystemAudio AudioTrack
}

// MicrophoneRequest asks for a voice-processed microphone track.
type MicrophoneRequest struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// VoiceMicrophone is the request used for screen recordings.
func VoiceMicrophone() MicrophoneRequest {
	return MicrophoneRequest{EchoCancellation: true, NoiseSuppression: true, AutoGainControl: true}
}

// Devices opens platform capture sources.
type Devices interface {
	OpenDisplay(ctx context.Context, req DisplayRequest) (Display, error)
	OpenMicrophone(ctx context.Context, req MicrophoneRequest) (AudioTrack, error)
}

// AcquisitionError reports a denied or unavailable capture source.
type AcquisitionError struct {
	Device string
	Err    error
}

// Error formats the failing device and cause.
func (e *AcquisitionError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("acquire %s: %v", e.Device, e.Err)
}

// Unwrap exposes the cause for errors.Is / errors.As.
func (e *AcquisitionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// StopAll stops every non-nil track and joins the errors.
func StopAll(tracks ...Track) error {
	var errs []error
	for _, t := range tracks {
		if t == nil {
			continue
		}
		if err := t.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop %s track %s: %w", t.Kind(), t.ID(), err))
		}
	}
	return errors.Join(errs...)
}
