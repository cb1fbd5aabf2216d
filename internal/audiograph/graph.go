package audiograph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"screencap/internal/device"
)

// Mode describes how the output track was produced.
type Mode string

const (
	ModeMicOnly    Mode = "mic"
	ModeSystemOnly Mode = "system"
	ModeMixed      Mode = "mixed"
)

// ErrSystemAudioMissing is reported when system audio was requested but the
// display source carried none.
var ErrSystemAudioMissing = errors.New("system audio not provided by display source")

const outputBuffer = 16

// MicrophoneOpener is the part of device.Devices the builder needs.
type MicrophoneOpener interface {
	OpenMicrophone(ctx context.Context, req device.MicrophoneRequest) (device.AudioTrack, error)
}

// Inputs carries the independent inclusion flags and the system track.
type Inputs struct {
	IncludeMic         bool
	IncludeSystemAudio bool
	// SystemAudio is the track delivered with the display, nil when absent.
	SystemAudio device.AudioTrack
}

// Builder assembles the mixed audio pipeline for one recording.
type Builder struct {
	mics   MicrophoneOpener
	logger *slog.Logger
}

// NewBuilder creates a builder that requests microphones from mics.
func NewBuilder(mics MicrophoneOpener, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{mics: mics, logger: logger.With("component", "audiograph")}
}

// Build returns the graph, or nil when no source is available. Source
// failures never fail the build; they are returned as warnings.
func (b *Builder) Build(ctx context.Context, in Inputs) (*Graph, []error) {
	var warnings []error

	var mic device.AudioTrack
	if in.IncludeMic {
		track, err := b.openMic(ctx)
		if err != nil {
			warnings = append(warnings, &device.AcquisitionError{Device: "microphone", Err: err})
			b.logger.Warn("microphone unavailable, continuing without it", "error", err)
		} else {
			mic = track
		}
	}

	var system device.AudioTrack
	if in.IncludeSystemAudio {
		if in.SystemAudio == nil {
			warnings = append(warnings, &device.AcquisitionError{Device: "system audio", Err: ErrSystemAudioMissing})
			b.logger.Warn("system audio requested but not provided")
		} else {
			system = in.SystemAudio
		}
	} else if in.SystemAudio != nil {
		// not wanted; release it so the device is not held
		_ = in.SystemAudio.Stop()
	}

	if ctx.Err() != nil {
		_ = device.StopAll(mic, system)
		return nil, append(warnings, ctx.Err())
	}

	switch {
	case mic != nil && system != nil:
		return newMixedGraph(mic, system), warnings
	case mic != nil:
		return newMicGraph(mic), warnings
	case system != nil:
		return newPassthroughGraph(system), warnings
	default:
		return nil, warnings
	}
}

func (b *Builder) openMic(ctx context.Context) (device.AudioTrack, error) {
	if b.mics == nil {
		return nil, device.ErrNotSupported
	}
	track, err := b.mics.OpenMicrophone(ctx, device.VoiceMicrophone())
	if err != nil {
		return nil, err
	}
	if track == nil {
		return nil, device.ErrUnavailable
	}
	return track, nil
}

// Graph is one running audio pipeline plus its processing context.
type Graph struct {
	mode    Mode
	output  device.AudioTrack
	tap     *Analyser
	sources []device.AudioTrack

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// Mode reports how the output was produced.
func (g *Graph) Mode() Mode { return g.mode }

// Output is the single track handed to the encoder.
func (g *Graph) Output() device.AudioTrack { return g.output }

// Tap returns the microphone analyser, nil when no microphone is present.
func (g *Graph) Tap() *Analyser { return g.tap }

// Close releases the processing context and every source track. It is safe
// to call more than once.
func (g *Graph) Close() error {
	if g == nil {
		return nil
	}
	g.closeOnce.Do(func() {
		if g.cancel != nil {
			g.cancel()
		}
		var errs []error
		if g.output != nil {
			if err := g.output.Stop(); err != nil {
				errs = append(errs, fmt.Errorf("stop graph output: %w", err))
			}
		}
		g.wg.Wait()
		tracks := make([]device.Track, 0, len(g.sources))
		for _, s := range g.sources {
			tracks = append(tracks, s)
		}
		if err := device.StopAll(tracks...); err != nil {
			errs = append(errs, err)
		}
		g.closeErr = errors.Join(errs...)
	})
	return g.closeErr
}

func newPassthroughGraph(system device.AudioTrack) *Graph {
	return &Graph{
		mode:    ModeSystemOnly,
		output:  system,
		sources: []device.AudioTrack{system},
	}
}

func newMicGraph(mic device.AudioTrack) *Graph {
	ctx, cancel := context.WithCancel(context.Background())
	out := device.NewPipe("graph-"+mic.ID(), outputBuffer, nil)
	g := &Graph{
		mode:    ModeMicOnly,
		output:  out,
		tap:     NewAnalyser(),
		sources: []device.AudioTrack{mic},
		cancel:  cancel,
	}
	g.wg.Add(1)
	go g.tee(ctx, mic, out)
	return g
}

func newMixedGraph(mic, system device.AudioTrack) *Graph {
	ctx, cancel := context.WithCancel(context.Background())
	out := device.NewPipe("graph-mix", outputBuffer, nil)
	g := &Graph{
		mode:    ModeMixed,
		output:  out,
		tap:     NewAnalyser(),
		sources: []device.AudioTrack{mic, system},
		cancel:  cancel,
	}
	g.wg.Add(1)
	go g.mix(ctx, mic, system, out)
	return g
}

// tee forwards microphone frames untouched while feeding the analyser.
func (g *Graph) tee(ctx context.Context, mic device.AudioTrack, out *device.Pipe) {
	defer g.wg.Done()
	defer out.Close()

	frames := mic.Frames()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			g.tap.Process(frame)
			if !out.Send(frame) {
				return
			}
		}
	}
}

// mix sums the microphone and system streams frame by frame. When one input
// ends the other keeps flowing alone.
func (g *Graph) mix(ctx context.Context, mic, system device.AudioTrack, out *device.Pipe) {
	defer g.wg.Done()
	defer out.Close()

	micFrames, sysFrames := mic.Frames(), system.Frames()
	for micFrames != nil || sysFrames != nil {
		var a, b []float32
		if micFrames != nil {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-micFrames:
				if !ok {
					micFrames = nil
				} else {
					a = frame
					g.tap.Process(frame)
				}
			}
		}
		if sysFrames != nil {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-sysFrames:
				if !ok {
					sysFrames = nil
				} else {
					b = frame
				}
			}
		}
		if a == nil && b == nil {
			continue
		}
		if !out.Send(Sum(a, b)) {
			return
		}
	}
}

// Sum adds two frames sample by sample, clipping to [-1, 1]. The shorter
// frame is treated as silence past its end.
func Sum(a, b []float32) []float32 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		var v float32
		if i < len(a) {
			v += a[i]
		}
		if i < len(b) {
			v += b[i]
		}
		switch {
		case v > 1:
			v = 1
		case v < -1:
			v = -1
		}
		out[i] = v
	}
	return out
}
