package ffmpeg

import (
	"errors"
	"strings"
	"testing"

	"screencap/internal/device"
)

func platform(goos string, env map[string]string) Platform {
	return Platform{GOOS: goos, Getenv: func(k string) string { return env[k] }}
}

// TestDisplayInputPerPlatform covers the grab device chosen for each OS.
func TestDisplayInputPerPlatform(t *testing.T) {
	linux, err := platform("linux", map[string]string{"DISPLAY": ":1"}).Display(30)
	if err != nil {
		t.Fatalf("linux display: %v", err)
	}
	if got := strings.Join(linux.Args(), " "); got != "-f x11grab -framerate 30 -draw_mouse 1 -i :1" {
		t.Fatalf("linux args = %q", got)
	}

	mac, err := platform("darwin", nil).Display(24)
	if err != nil || mac.Format != "avfoundation" {
		t.Fatalf("darwin = %+v, %v", mac, err)
	}
	win, err := platform("windows", nil).Display(15)
	if err != nil || win.Device != "desktop" {
		t.Fatalf("windows = %+v, %v", win, err)
	}
}

// TestDisplayInputWithoutX reports Wayland and headless sessions.
func TestDisplayInputWithoutX(t *testing.T) {
	_, err := platform("linux", map[string]string{"WAYLAND_DISPLAY": "wayland-0"}).Display(30)
	if !errors.Is(err, device.ErrNotSupported) {
		t.Fatalf("wayland error = %v, want ErrNotSupported", err)
	}
	_, err = platform("linux", nil).Display(30)
	if !errors.Is(err, device.ErrUnavailable) {
		t.Fatalf("headless error = %v, want ErrUnavailable", err)
	}
}

// TestSystemAudioOnlyOnPulse checks loopback availability.
func TestSystemAudioOnlyOnPulse(t *testing.T) {
	in, err := platform("linux", nil).SystemAudio()
	if err != nil || in.Device != "@DEFAULT_MONITOR@" {
		t.Fatalf("linux system audio = %+v, %v", in, err)
	}
	if _, err := platform("darwin", nil).SystemAudio(); !errors.Is(err, device.ErrNotSupported) {
		t.Fatalf("darwin error = %v, want ErrNotSupported", err)
	}
}

// TestPCMArgsApplyVoiceFilters verifies microphone processing and output
// format.
func TestPCMArgsApplyVoiceFilters(t *testing.T) {
	in, err := platform("linux", nil).Microphone()
	if err != nil {
		t.Fatalf("microphone: %v", err)
	}
	args := strings.Join(pcmArgs(in, MicrophoneFilter(device.VoiceMicrophone())), " ")
	for _, want := range []string{"-f pulse", "-af highpass=f=80,afftdn=nf=-25,dynaudnorm=f=150:g=15", "-f f32le -ar 48000 -ac 2 pipe:1"} {
		if !strings.Contains(args, want) {
			t.Fatalf("args %q missing %q", args, want)
		}
	}
	if f := MicrophoneFilter(device.MicrophoneRequest{EchoCancellation: true}); f != "" {
		t.Fatalf("echo-only filter = %q, want empty", f)
	}
}
