package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"screencap/internal/capture"
	"screencap/internal/device"
)

const (
	CodecVP9 = "libvpx-vp9"
	CodecVP8 = "libvpx"

	audioBitrate = "128k"
	readSize     = 64 * 1024
)

// ffmpeg exits with 255 after a clean SIGINT shutdown.
const interruptedExitCode = 255

// Recorder builds recording encoders around an ffmpeg child process.
type Recorder struct {
	ffmpegPath string
	videoCodec string
	logger     *slog.Logger
}

// NewRecorder creates an encoder factory. videoCodec is CodecVP9 or CodecVP8,
// usually from ProbeVideoCodec.
func NewRecorder(ffmpegPath, videoCodec string, logger *slog.Logger) *Recorder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if videoCodec == "" {
		videoCodec = CodecVP9
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{ffmpegPath: ffmpegPath, videoCodec: videoCodec, logger: logger.With("component", "recorder")}
}

// NewEncoder prepares a WebM encoder for video and the optional audio mix.
func (r *Recorder) NewEncoder(video device.VideoTrack, audio device.AudioTrack, opts capture.EncoderOptions) (capture.Encoder, error) {
	display, ok := video.(*DisplayTrack)
	if !ok {
		return nil, fmt.Errorf("recorder needs an ffmpeg display track, got %T", video)
	}
	if opts.Timeslice <= 0 {
		opts.Timeslice = capture.Timeslice
	}
	return &encoder{
		path:      r.ffmpegPath,
		args:      RecordArgs(display.Input(), audio != nil, r.videoCodec, opts),
		audio:     audio,
		timeslice: opts.Timeslice,
		mime:      MimeType(r.videoCodec, audio != nil),
		logger:    r.logger,
		errCh:     make(chan error, 1),
		stopAudio: make(chan struct{}),
		outDone:   make(chan struct{}),
		exited:    make(chan struct{}),
	}, nil
}

// MimeType describes the recorder's container and codecs.
func MimeType(videoCodec string, withAudio bool) string {
	codec := "vp9"
	if videoCodec == CodecVP8 {
		codec = "vp8"
	}
	if withAudio {
		return "video/webm;codecs=" + codec + ",opus"
	}
	return "video/webm;codecs=" + codec
}

// RecordArgs renders the recorder command line. Audio, when present, arrives
// as f32le on stdin; the WebM stream leaves on stdout.
func RecordArgs(display Input, withAudio bool, videoCodec string, opts capture.EncoderOptions) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	args = append(args, display.Args()...)
	if withAudio {
		args = append(args,
			"-f", "f32le",
			"-ar", strconv.Itoa(device.SampleRate),
			"-ac", strconv.Itoa(device.Channels),
			"-i", "pipe:0",
		)
	}
	args = append(args,
		"-vf", fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=ceil(iw/2)*2:ceil(ih/2)*2", opts.Width, opts.Height),
		"-r", strconv.Itoa(opts.FrameRate),
		"-c:v", videoCodec,
		"-b:v", strconv.Itoa(opts.VideoBitsPerSecond),
		"-deadline", "realtime",
		"-cpu-used", "8",
	)
	if withAudio {
		args = append(args, "-c:a", "libopus", "-b:a", audioBitrate)
	}
	return append(args,
		"-f", "webm",
		"-cluster_time_limit", strconv.FormatInt(opts.Timeslice.Milliseconds(), 10),
		"pipe:1",
	)
}

type encoder struct {
	path      string
	args      []string
	audio     device.AudioTrack
	timeslice time.Duration
	mime      string
	logger    *slog.Logger

	cmd      *exec.Cmd
	stderr   *tailWriter
	paused   atomic.Bool
	stopping atomic.Bool
	stopOnce sync.Once

	errCh     chan error
	stopAudio chan struct{}
	outDone   chan struct{}
	exited    chan struct{}
	waitErr   error
}

func (e *encoder) MimeType() string  { return e.mime }
func (e *encoder) Err() <-chan error { return e.errCh }

// Start launches ffmpeg. The process outlives the caller's context; Stop
// ends it.
func (e *encoder) Start(onChunk func([]byte)) error {
	if e.cmd != nil {
		return errors.New("recorder already started")
	}
	cmd := exec.Command(e.path, e.args...)
	e.stderr = newTailWriter(20)
	cmd.Stderr = e.stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("recorder stdout: %w", err)
	}
	var stdin io.WriteCloser
	if e.audio != nil {
		if stdin, err = cmd.StdinPipe(); err != nil {
			return fmt.Errorf("recorder stdin: %w", err)
		}
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start recorder: %w", err)
	}
	e.cmd = cmd
	e.logger.Info("recorder started", "pid", cmd.Process.Pid, "mime", e.mime)

	if stdin != nil {
		go e.pumpAudio(stdin)
	}
	go e.pumpOutput(stdout, onChunk)
	go e.wait()
	return nil
}

// wait reaps the process after stdout drains and reports unexpected exits.
func (e *encoder) wait() {
	<-e.outDone
	e.waitErr = e.cmd.Wait()
	close(e.exited)
	if e.stopping.Load() {
		return
	}
	err := e.waitErr
	if err == nil {
		err = errors.New("recorder exited")
	}
	if last := e.stderr.Last(); last != "" {
		err = fmt.Errorf("%w: %s", err, last)
	}
	e.errCh <- err
}

// pumpOutput forwards stdout in timeslice-sized chunks from one goroutine.
func (e *encoder) pumpOutput(stdout io.Reader, onChunk func([]byte)) {
	defer close(e.outDone)

	reads := make(chan []byte, 16)
	go func() {
		defer close(reads)
		buf := make([]byte, readSize)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				reads <- bytes.Clone(buf[:n])
			}
			if err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(e.timeslice)
	defer ticker.Stop()

	var pending []byte
	flush := func() {
		if len(pending) > 0 {
			onChunk(pending)
			pending = nil
		}
	}
	for {
		select {
		case b, ok := <-reads:
			if !ok {
				flush()
				return
			}
			pending = append(pending, b...)
		case <-ticker.C:
			flush()
		}
	}
}

// pumpAudio writes mixed frames to ffmpeg's stdin. Frames are dropped while
// paused so a stopped process cannot back up the graph.
func (e *encoder) pumpAudio(stdin io.WriteCloser) {
	defer stdin.Close()

	frames := e.audio.Frames()
	buf := make([]byte, 0, device.FrameLength*4)
	broken := false
	for {
		select {
		case <-e.stopAudio:
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if broken || e.paused.Load() {
				continue
			}
			buf = EncodeFrame(buf[:0], frame)
			if _, err := stdin.Write(buf); err != nil {
				e.logger.Debug("recorder audio input closed", "error", err)
				broken = true
			}
		}
	}
}

func (e *encoder) Pause() error {
	if e.cmd == nil {
		return errors.New("recorder not started")
	}
	if e.paused.Swap(true) {
		return nil
	}
	if err := suspendProcess(e.cmd.Process); err != nil {
		e.paused.Store(false)
		return fmt.Errorf("pause recorder: %w", err)
	}
	return nil
}

func (e *encoder) Resume() error {
	if e.cmd == nil {
		return errors.New("recorder not started")
	}
	if !e.paused.Swap(false) {
		return nil
	}
	if err := resumeProcess(e.cmd.Process); err != nil {
		return fmt.Errorf("resume recorder: %w", err)
	}
	return nil
}

// Stop asks ffmpeg to finish the container and waits until every chunk has
// been delivered. On ctx expiry the process is killed.
func (e *encoder) Stop(ctx context.Context) error {
	if e.cmd == nil {
		return nil
	}
	e.stopOnce.Do(func() {
		e.stopping.Store(true)
		close(e.stopAudio)
		if e.paused.Swap(false) {
			_ = resumeProcess(e.cmd.Process)
		}
		if err := interruptProcess(e.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
			_ = e.cmd.Process.Kill()
		}
	})

	select {
	case <-e.exited:
	case <-ctx.Done():
		_ = e.cmd.Process.Kill()
		<-e.exited
		return fmt.Errorf("finalize recording: %w", ctx.Err())
	}

	if code := exitCode(e.waitErr); e.waitErr != nil && code != interruptedExitCode {
		return fmt.Errorf("recorder exited with code %d: %s", code, e.stderr.Last())
	}
	return nil
}
