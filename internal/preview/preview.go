// Package preview renders the small still shown next to each saved
// recording.
package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"
)

const (
	Width   = 320
	Height  = 180
	Quality = 80
)

// FrameGrabber extracts one decoded frame from encoded video bytes.
type FrameGrabber interface {
	Grab(ctx context.Context, video []byte, at time.Duration) (image.Image, error)
}

// Generator turns a recording into a JPEG preview.
type Generator struct {
	grabber FrameGrabber
}

// NewGenerator creates a generator over grabber.
func NewGenerator(grabber FrameGrabber) *Generator {
	return &Generator{grabber: grabber}
}

// Generate grabs a frame one second in (or halfway for shorter clips) and
// fills Width x Height.
func (g *Generator) Generate(ctx context.Context, video []byte, durationSeconds int) ([]byte, error) {
	if g == nil || g.grabber == nil {
		return nil, errors.New("preview generator has no frame source")
	}
	at := time.Second
	if durationSeconds < 2 {
		at = time.Duration(durationSeconds) * time.Second / 2
	}

	img, err := g.grabber.Grab(ctx, video, at)
	if err != nil {
		return nil, fmt.Errorf("grab preview frame: %w", err)
	}
	return Encode(img)
}

// Encode fills the preview box and encodes JPEG.
func Encode(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, errors.New("preview frame is nil")
	}
	thumb := imaging.Fill(img, Width, Height, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(Quality)); err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	return buf.Bytes(), nil
}
