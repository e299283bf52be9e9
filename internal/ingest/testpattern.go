package ingest

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync/atomic"
	"time"

	"github.com/technosupport/vms-worker/internal/render"
)

// TestPatternSource synthesizes a gradient frame with "DEMO MODE" text and
// an increasing counter at <=1 Hz (§4.1.4). It is a valid source for every
// downstream stage and never fails to produce a frame.
type TestPatternSource struct {
	Width, Height int

	counter  uint64
	lastEmit time.Time
}

func NewTestPatternSource(width, height int) *TestPatternSource {
	if width <= 0 {
		width = 640
	}
	if height <= 0 {
		height = 480
	}
	return &TestPatternSource{Width: width, Height: height}
}

func (s *TestPatternSource) Open(ctx context.Context) error {
	_, err := s.ReadFrame(ctx)
	return err
}

func (s *TestPatternSource) ReadFrame(ctx context.Context) (Frame, error) {
	if !s.lastEmit.IsZero() {
		elapsed := time.Since(s.lastEmit)
		if elapsed < time.Second {
			time.Sleep(time.Second - elapsed)
		}
	}
	s.lastEmit = time.Now()

	n := atomic.AddUint64(&s.counter, 1)
	img := gradientFrame(s.Width, s.Height, n)
	return Frame{Image: img, Seq: n, At: time.Now()}, nil
}

func (s *TestPatternSource) Close() error { return nil }

func gradientFrame(w, h int, counter uint64) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r := uint8(255 * x / maxInt(w, 1))
			g := uint8(255 * y / maxInt(h, 1))
			b := uint8((counter * 4) % 255)
			img.Set(x, y, color.RGBA{R: r, G: g, B: b, A: 255})
		}
	}
	label := fmt.Sprintf("DEMO MODE #%d", counter)
	render.DrawLabel(img, label, w/2-len(label)*3, h/2, color.White)
	return img
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
