package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"log/slog"
	"time"
)

// FrameGrabber decodes one frame of an in-memory recording through ffmpeg.
type FrameGrabber struct {
	ffmpegPath string
	runner     commandRunner
	logger     *slog.Logger
}

// NewFrameGrabber creates a grabber using ffmpegPath.
func NewFrameGrabber(ffmpegPath string, logger *slog.Logger) *FrameGrabber {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FrameGrabber{ffmpegPath: ffmpegPath, runner: &execRunner{}, logger: logger}
}

// Grab seeks to at and returns that frame. If seeking fails (short clips,
// missing cues) it retries with the first frame.
func (g *FrameGrabber) Grab(ctx context.Context, video []byte, at time.Duration) (image.Image, error) {
	if len(video) == 0 {
		return nil, errors.New("grab frame: empty recording")
	}
	res, err := g.runner.Run(ctx, video, g.ffmpegPath, grabArgs(at)...)
	if err != nil || len(res.Stdout) == 0 {
		g.logger.Debug("seeked frame grab failed, retrying from start", "at", at, "error", err)
		res, err = g.runner.Run(ctx, video, g.ffmpegPath, grabArgs(0)...)
		if err != nil {
			return nil, fmt.Errorf("ffmpeg failed: %v, stderr: %s", err, res.Stderr)
		}
	}
	if len(res.Stdout) == 0 {
		return nil, errors.New("ffmpeg produced no frame")
	}

	img, _, err := image.Decode(bytes.NewReader(res.Stdout))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

func grabArgs(at time.Duration) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-i", "pipe:0"}
	if at > 0 {
		args = append(args, "-ss", fmt.Sprintf("%.3f", at.Seconds()))
	}
	return append(args, "-frames:v", "1", "-f", "image2pipe", "-vcodec", "png", "-")
}
