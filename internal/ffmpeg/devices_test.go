package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"screencap/internal/device"
)

// TestReadPCMDeliversWholeFrames checks decoding and the ready signal.
func TestReadPCMDeliversWholeFrames(t *testing.T) {
	frame := make([]float32, device.FrameLength)
	for i := range frame {
		frame[i] = float32(i%7) / 10
	}
	raw := EncodeFrame(nil, frame)
	raw = EncodeFrame(raw, frame)
	raw = append(raw, 1, 2, 3)

	pipe := device.NewPipe("mic", 4, nil)
	ready := make(chan struct{})
	readPCM(bytes.NewReader(raw), pipe, ready)
	pipe.Close()

	select {
	case <-ready:
	default:
		t.Fatal("ready not closed after first frame")
	}
	var frames [][]float32
	for f := range pipe.Frames() {
		frames = append(frames, f)
	}
	if len(frames) != 2 {
		t.Fatalf("frames = %d, want 2", len(frames))
	}
	if frames[1][6] != frame[6] {
		t.Fatalf("sample = %v, want %v", frames[1][6], frame[6])
	}
}

// TestClassifyCaptureError maps stderr onto device sentinels.
func TestClassifyCaptureError(t *testing.T) {
	exit := errors.New("exit status 1")
	err := classifyCaptureError(exit, "[x11grab] opening display\nCannot open display :0, error 1: Permission denied\n")
	if !errors.Is(err, device.ErrPermissionDenied) {
		t.Fatalf("error = %v, want ErrPermissionDenied", err)
	}
	err = classifyCaptureError(exit, "default: No such process\n")
	if !errors.Is(err, device.ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
}

// TestOpenDisplayProbeFailure surfaces a failed grab probe.
func TestOpenDisplayProbeFailure(t *testing.T) {
	d := NewDevices("ffmpeg", nil)
	d.platform = platform("linux", map[string]string{"DISPLAY": ":9"})
	d.runner = &fakeRunner{run: func([]byte, []string) (commandResult, error) {
		return commandResult{ExitCode: 1, Stderr: "Cannot open display :9, error 1.\n"}, errors.New("exit status 1")
	}}

	_, err := d.OpenDisplay(context.Background(), device.DisplayRequest{Width: 1280, Height: 720, FrameRate: 30})
	if !errors.Is(err, device.ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
}

// TestOpenDisplayVideoOnly returns a display track carrying the grab input.
func TestOpenDisplayVideoOnly(t *testing.T) {
	d := NewDevices("ffmpeg", nil)
	d.platform = platform("linux", map[string]string{"DISPLAY": ":0"})
	runner := &fakeRunner{run: func([]byte, []string) (commandResult, error) { return commandResult{}, nil }}
	d.runner = runner

	display, err := d.OpenDisplay(context.Background(), device.DisplayRequest{Width: 1280, Height: 720, FrameRate: 30})
	if err != nil {
		t.Fatalf("open display: %v", err)
	}
	if display.SystemAudio != nil {
		t.Fatal("system audio should be nil when not requested")
	}
	track, ok := display.Video.(*DisplayTrack)
	if !ok {
		t.Fatalf("video track = %T", display.Video)
	}
	if track.Input().Device != ":0" || track.Settings().Width != 1280 {
		t.Fatalf("track = %+v / %+v", track.Input(), track.Settings())
	}
	if len(runner.calls) != 1 {
		t.Fatalf("probe calls = %d, want 1", len(runner.calls))
	}

	_ = track.Stop()
	_ = track.Stop()
	select {
	case <-track.Ended():
	default:
		t.Fatal("track not ended after Stop")
	}
}
