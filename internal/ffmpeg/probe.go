package ffmpeg

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Version returns the first line of `ffmpeg -version`.
func Version(ctx context.Context, ffmpegPath string) (string, error) {
	return version(ctx, &execRunner{}, ffmpegPath)
}

func version(ctx context.Context, runner commandRunner, ffmpegPath string) (string, error) {
	res, err := runner.Run(ctx, nil, ffmpegPath, "-hide_banner", "-version")
	if err != nil {
		return "", fmt.Errorf("run %s -version: %w", ffmpegPath, err)
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(res.Stdout)), "\n")
	return strings.TrimSpace(line), nil
}

// ProbeVideoCodec picks the best WebM video encoder the binary ships,
// preferring VP9 and falling back to VP8.
func ProbeVideoCodec(ctx context.Context, ffmpegPath string) (string, error) {
	return probeVideoCodec(ctx, &execRunner{}, ffmpegPath)
}

func probeVideoCodec(ctx context.Context, runner commandRunner, ffmpegPath string) (string, error) {
	res, err := runner.Run(ctx, nil, ffmpegPath, "-hide_banner", "-encoders")
	if err != nil {
		return "", fmt.Errorf("list encoders: %w", err)
	}
	encoders := parseEncoders(string(res.Stdout))
	for _, codec := range []string{CodecVP9, CodecVP8} {
		if encoders[codec] {
			return codec, nil
		}
	}
	return "", fmt.Errorf("ffmpeg has neither %s nor %s", CodecVP9, CodecVP8)
}

// parseEncoders reads the encoder names from `ffmpeg -encoders` output.
// Lines look like " V....D libvpx-vp9           libvpx VP9".
func parseEncoders(out string) map[string]bool {
	names := make(map[string]bool)
	listing := false
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if !listing {
			listing = strings.HasPrefix(fields[0], "---")
			continue
		}
		names[fields[1]] = true
	}
	return names
}

// ProbeDuration returns the container duration of path in whole seconds,
// rounded up.
func ProbeDuration(ctx context.Context, ffprobePath, path string) (int, error) {
	return probeDuration(ctx, &execRunner{}, ffprobePath, path)
}

func probeDuration(ctx context.Context, runner commandRunner, ffprobePath, path string) (int, error) {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	res, err := runner.Run(ctx, nil, ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(res.Stderr))
	}
	raw := strings.TrimSpace(string(res.Stdout))
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil || seconds <= 0 {
		return 0, fmt.Errorf("ffprobe %s: no duration in %q", path, raw)
	}
	return int(math.Ceil(seconds)), nil
}
