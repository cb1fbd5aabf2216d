package ffmpeg

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/google/uuid"

	"screencap/internal/device"
)

const pcmBuffer = 8

// Devices opens capture sources through ffmpeg input devices.
type Devices struct {
	ffmpegPath string
	platform   Platform
	runner     commandRunner
	logger     *slog.Logger
}

// NewDevices creates the production device backend.
func NewDevices(ffmpegPath string, logger *slog.Logger) *Devices {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Devices{
		ffmpegPath: ffmpegPath,
		platform:   HostPlatform(),
		runner:     &execRunner{},
		logger:     logger.With("component", "devices"),
	}
}

// OpenDisplay verifies the screen can be grabbed and returns a track that
// describes the grab input. The recorder process performs the capture.
func (d *Devices) OpenDisplay(ctx context.Context, req device.DisplayRequest) (device.Display, error) {
	input, err := d.platform.Display(req.FrameRate)
	if err != nil {
		return device.Display{}, err
	}
	res, err := d.runner.Run(ctx, nil, d.ffmpegPath, probeArgs(input)...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return device.Display{}, ctxErr
		}
		return device.Display{}, classifyCaptureError(err, res.Stderr)
	}

	video := newDisplayTrack(input, device.VideoSettings{
		Width:     req.Width,
		Height:    req.Height,
		FrameRate: req.FrameRate,
	})
	display := device.Display{Video: video}
	if !req.SystemAudio {
		return display, nil
	}

	sysInput, err := d.platform.SystemAudio()
	if err == nil {
		var pipe *device.Pipe
		pipe, err = d.openPCM(ctx, "system-audio", sysInput, "")
		if err == nil {
			display.SystemAudio = pipe
		}
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			_ = video.Stop()
			return device.Display{}, ctxErr
		}
		d.logger.Warn("system audio unavailable", "error", err)
	}
	return display, nil
}

// OpenMicrophone starts a voice-processed microphone capture.
func (d *Devices) OpenMicrophone(ctx context.Context, req device.MicrophoneRequest) (device.AudioTrack, error) {
	input, err := d.platform.Microphone()
	if err != nil {
		return nil, err
	}
	return d.openPCM(ctx, "microphone", input, MicrophoneFilter(req))
}

// openPCM starts an ffmpeg process decoding in to f32le on stdout and waits
// for the first frame. The process is not bound to ctx; only the wait is.
func (d *Devices) openPCM(ctx context.Context, name string, in Input, filter string) (*device.Pipe, error) {
	cmd := exec.Command(d.ffmpegPath, pcmArgs(in, filter)...)
	stderr := newTailWriter(10)
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%s stdout: %w", name, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s capture: %v", device.ErrUnavailable, name, err)
	}

	pipe := device.NewPipe(name+"-"+uuid.NewString(), pcmBuffer, func() error {
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return err
		}
		return nil
	})

	ready := make(chan struct{})
	exited := make(chan error, 1)
	go func() {
		readPCM(stdout, pipe, ready)
		err := cmd.Wait()
		pipe.Close()
		exited <- err
	}()

	select {
	case <-ready:
		d.logger.Debug("audio capture started", "track", pipe.ID(), "input", in.Device)
		return pipe, nil
	case err := <-exited:
		if err == nil {
			err = errors.New("exited before producing audio")
		}
		return nil, classifyCaptureError(err, stderr.String())
	case <-ctx.Done():
		_ = pipe.Stop()
		return nil, ctx.Err()
	}
}

// readPCM decodes whole frames from r into pipe. ready is closed after the
// first frame. Once the pipe ends the rest of r is discarded so the producer
// never blocks on a full stdout.
func readPCM(r io.Reader, pipe *device.Pipe, ready chan<- struct{}) {
	buf := make([]byte, device.FrameLength*4)
	first := true
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			return
		}
		if first {
			close(ready)
			first = false
		}
		if !pipe.Send(DecodeFrame(buf)) {
			_, _ = io.Copy(io.Discard, r)
			return
		}
	}
}

// DecodeFrame converts little-endian f32 bytes to samples.
func DecodeFrame(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// EncodeFrame appends frame to dst as little-endian f32 bytes.
func EncodeFrame(dst []byte, frame []float32) []byte {
	for _, v := range frame {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
	}
	return dst
}

// classifyCaptureError maps ffmpeg's complaint onto the device sentinels.
func classifyCaptureError(err error, stderr string) error {
	lower := strings.ToLower(stderr)
	last := stderr
	if i := strings.LastIndexByte(strings.TrimSpace(stderr), '\n'); i >= 0 {
		last = strings.TrimSpace(stderr)[i+1:]
	}
	last = strings.TrimSpace(last)
	switch {
	case strings.Contains(lower, "permission denied"),
		strings.Contains(lower, "not authorized"),
		strings.Contains(lower, "operation not permitted"):
		return fmt.Errorf("%w: %s", device.ErrPermissionDenied, last)
	case last == "":
		return fmt.Errorf("%w: %v", device.ErrUnavailable, err)
	default:
		return fmt.Errorf("%w: %v: %s", device.ErrUnavailable, err, last)
	}
}

// DisplayTrack is the acquired screen. It carries the grab input for the
// recorder; Stop only ends the handle.
type DisplayTrack struct {
	id       string
	input    Input
	settings device.VideoSettings

	done chan struct{}
	once sync.Once
}

func newDisplayTrack(input Input, settings device.VideoSettings) *DisplayTrack {
	return &DisplayTrack{
		id:       "display-" + uuid.NewString(),
		input:    input,
		settings: settings,
		done:     make(chan struct{}),
	}
}

func (t *DisplayTrack) ID() string                     { return t.id }
func (t *DisplayTrack) Kind() device.Kind              { return device.KindVideo }
func (t *DisplayTrack) Ended() <-chan struct{}         { return t.done }
func (t *DisplayTrack) Settings() device.VideoSettings { return t.settings }

// Input returns the ffmpeg grab input.
func (t *DisplayTrack) Input() Input { return t.input }

// Stop ends the track. It is safe to call more than once.
func (t *DisplayTrack) Stop() error {
	t.once.Do(func() { close(t.done) })
	return nil
}
