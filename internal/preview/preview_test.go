package preview

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/disintegration/imaging"
)

type fakeGrabber struct {
	img image.Image
	err error
	at  time.Duration
}

func (g *fakeGrabber) Grab(_ context.Context, _ []byte, at time.Duration) (image.Image, error) {
	g.at = at
	return g.img, g.err
}

// TestGenerateFillsPreviewBox verifies size and JPEG output.
func TestGenerateFillsPreviewBox(t *testing.T) {
	src := imaging.New(1920, 1080, color.NRGBA{R: 200, A: 255})
	grabber := &fakeGrabber{img: src}

	data, err := NewGenerator(grabber).Generate(context.Background(), []byte("webm"), 12)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if grabber.at != time.Second {
		t.Fatalf("grab offset = %v, want 1s", grabber.at)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != Width || b.Dy() != Height {
		t.Fatalf("bounds = %v, want %dx%d", b, Width, Height)
	}
}

// TestGenerateShortClipGrabsHalfway checks sub-two-second clips.
func TestGenerateShortClipGrabsHalfway(t *testing.T) {
	grabber := &fakeGrabber{img: imaging.New(64, 64, color.White)}
	if _, err := NewGenerator(grabber).Generate(context.Background(), nil, 1); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if grabber.at != 500*time.Millisecond {
		t.Fatalf("grab offset = %v, want 500ms", grabber.at)
	}
}

// TestGenerateGrabFailure propagates frame errors.
func TestGenerateGrabFailure(t *testing.T) {
	boom := errors.New("no frames")
	_, err := NewGenerator(&fakeGrabber{err: boom}).Generate(context.Background(), nil, 5)
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
	var nilGen *Generator
	if _, err := nilGen.Generate(context.Background(), nil, 5); err == nil {
		t.Fatal("expected error from nil generator")
	}
}
