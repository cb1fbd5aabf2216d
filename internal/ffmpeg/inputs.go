package ffmpeg

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"screencap/internal/device"
)

// Input is one ffmpeg demuxer input: -f Format [Options...] -i Device.
type Input struct {
	Format  string
	Options []string
	Device  string
}

// Args renders the input flags.
func (in Input) Args() []string {
	args := []string{"-f", in.Format}
	args = append(args, in.Options...)
	return append(args, "-i", in.Device)
}

// Platform selects capture inputs for one operating system.
type Platform struct {
	GOOS   string
	Getenv func(string) string
}

// HostPlatform describes the running process.
func HostPlatform() Platform {
	return Platform{GOOS: runtime.GOOS, Getenv: os.Getenv}
}

func (p Platform) env(key string) string {
	if p.Getenv == nil {
		return ""
	}
	return strings.TrimSpace(p.Getenv(key))
}

// Display returns the screen grab input.
func (p Platform) Display(frameRate int) (Input, error) {
	rate := strconv.Itoa(frameRate)
	switch p.GOOS {
	case "linux", "freebsd", "openbsd", "netbsd":
		display := p.env("DISPLAY")
		if display == "" {
			if p.env("WAYLAND_DISPLAY") != "" {
				return Input{}, fmt.Errorf("%w: x11grab needs an X display and this is a Wayland session", device.ErrNotSupported)
			}
			return Input{}, fmt.Errorf("%w: DISPLAY is not set", device.ErrUnavailable)
		}
		return Input{Format: "x11grab", Options: []string{"-framerate", rate, "-draw_mouse", "1"}, Device: display}, nil
	case "darwin":
		return Input{Format: "avfoundation", Options: []string{"-framerate", rate, "-capture_cursor", "1"}, Device: "Capture screen 0:none"}, nil
	case "windows":
		return Input{Format: "gdigrab", Options: []string{"-framerate", rate, "-draw_mouse", "1"}, Device: "desktop"}, nil
	default:
		return Input{}, fmt.Errorf("%w: %s", device.ErrNotSupported, p.GOOS)
	}
}

// Microphone returns the default capture input.
func (p Platform) Microphone() (Input, error) {
	switch p.GOOS {
	case "linux", "freebsd", "openbsd", "netbsd":
		return Input{Format: "pulse", Options: pulseOptions(), Device: "default"}, nil
	case "darwin":
		return Input{Format: "avfoundation", Device: "none:default"}, nil
	default:
		return Input{}, fmt.Errorf("%w: microphone capture on %s", device.ErrNotSupported, p.GOOS)
	}
}

// SystemAudio returns the loopback input for what the desktop is playing.
func (p Platform) SystemAudio() (Input, error) {
	switch p.GOOS {
	case "linux", "freebsd", "openbsd", "netbsd":
		return Input{Format: "pulse", Options: pulseOptions(), Device: "@DEFAULT_MONITOR@"}, nil
	default:
		return Input{}, fmt.Errorf("%w: system audio capture on %s", device.ErrNotSupported, p.GOOS)
	}
}

func pulseOptions() []string {
	return []string{
		"-sample_rate", strconv.Itoa(device.SampleRate),
		"-channels", strconv.Itoa(device.Channels),
		"-fragment_size", strconv.Itoa(device.FrameLength * 4),
	}
}

// MicrophoneFilter maps voice processing constraints onto audio filters.
// ffmpeg has no echo canceller, so EchoCancellation is not represented.
func MicrophoneFilter(req device.MicrophoneRequest) string {
	var filters []string
	if req.NoiseSuppression {
		filters = append(filters, "highpass=f=80", "afftdn=nf=-25")
	}
	if req.AutoGainControl {
		filters = append(filters, "dynaudnorm=f=150:g=15")
	}
	return strings.Join(filters, ",")
}

// pcmArgs captures in as interleaved float32 frames on stdout.
func pcmArgs(in Input, filter string) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	args = append(args, in.Args()...)
	if filter != "" {
		args = append(args, "-af", filter)
	}
	return append(args,
		"-f", "f32le",
		"-ar", strconv.Itoa(device.SampleRate),
		"-ac", strconv.Itoa(device.Channels),
		"pipe:1",
	)
}

// probeArgs grabs a single frame from in and discards it.
func probeArgs(in Input) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	args = append(args, in.Args()...)
	return append(args, "-frames:v", "1", "-f", "null", "-")
}
