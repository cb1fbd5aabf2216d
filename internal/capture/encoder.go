package capture

import (
	"context"
	"time"

	"screencap/internal/device"
)

// Timeslice is the interval at which the encoder flushes a data chunk.
const Timeslice = time.Second

// EncoderOptions configures one recording encoder.
type EncoderOptions struct {
	Width              int
	Height             int
	FrameRate          int
	VideoBitsPerSecond int
	Timeslice          time.Duration
}

// Encoder turns live tracks into container chunks.
type Encoder interface {
	// Start begins encoding. onChunk is called in capture order from a
	// single goroutine.
	Start(onChunk func([]byte)) error
	Pause() error
	Resume() error
	// Stop flushes and finalizes. It returns only after the last onChunk
	// call for this encoder has completed.
	Stop(ctx context.Context) error
	// Err yields at most one error if the encoder dies on its own.
	Err() <-chan error
	MimeType() string
}

// EncoderFactory builds an encoder for the acquired tracks. audio is nil for
// video-only recordings.
type EncoderFactory interface {
	NewEncoder(video device.VideoTrack, audio device.AudioTrack, opts EncoderOptions) (Encoder, error)
}

// Ticker delivers the once-per-second elapsed clock.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// NewTickerFunc creates a ticker for the given period.
type NewTickerFunc func(d time.Duration) Ticker

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewRealTicker wraps time.Ticker.
func NewRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}
