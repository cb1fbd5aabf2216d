package transcode

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	frameTokenRe = regexp.MustCompile(`frame=\s*(\d+)`)
	timeTokenRe  = regexp.MustCompile(`time=(\d+):(\d+):(\d+(?:\.\d+)?)`)
)

// ProgressExtractor turns one encoder log line into a completion percentage.
// ok is false when the line carries no progress signal.
type ProgressExtractor interface {
	Extract(line string) (pct float64, ok bool)
}

// FrameTimeExtractor reads ffmpeg stats lines. The frame counter is preferred;
// the timestamp is used only when no frame token matches.
type FrameTimeExtractor struct {
	TotalFrames float64
	Duration    float64 // seconds
}

// NewFrameTimeExtractor expects max(1, duration*fps) frames in total.
func NewFrameTimeExtractor(durationSeconds float64, fps int) FrameTimeExtractor {
	return FrameTimeExtractor{
		TotalFrames: math.Max(1, durationSeconds*float64(fps)),
		Duration:    durationSeconds,
	}
}

// Extract implements ProgressExtractor. Results are clamped to 0..100.
func (e FrameTimeExtractor) Extract(line string) (float64, bool) {
	if !strings.Contains(line, "frame=") || !strings.Contains(line, "time=") {
		return 0, false
	}

	if m := frameTokenRe.FindStringSubmatch(line); m != nil {
		frames, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			return clampPercent(frames / e.TotalFrames * 100), true
		}
	}

	if m := timeTokenRe.FindStringSubmatch(line); m != nil && e.Duration > 0 {
		seconds, ok := parseClock(m[1], m[2], m[3])
		if ok {
			return clampPercent(seconds / e.Duration * 100), true
		}
	}
	return 0, false
}

// ParseClock converts an H:MM:SS.ss timestamp to seconds.
func ParseClock(value string) (float64, bool) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 3 {
		return 0, false
	}
	return parseClock(parts[0], parts[1], parts[2])
}

func parseClock(h, m, s string) (float64, bool) {
	hours, err := strconv.Atoi(h)
	if err != nil {
		return 0, false
	}
	minutes, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return float64(hours*3600+minutes*60) + seconds, true
}

func clampPercent(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
