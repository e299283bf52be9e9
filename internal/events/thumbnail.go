package events

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/image/draw"

	"github.com/technosupport/vms-worker/internal/geometry"
)

const (
	thumbnailPadding    = 50
	thumbnailMaxSide    = 640
	thumbnailJPEGQuality = 70
)

// FileThumbnailer crops the violation bounding box (padded and clamped to
// the frame), downsizes it to at most thumbnailMaxSide on its longest
// edge, and writes it under Dir as a content-addressable "<event-id>.jpg"
// (§6.5).
type FileThumbnailer struct {
	Dir string
}

func (t FileThumbnailer) Save(_ context.Context, eventID uuid.UUID, frame []byte, frameWidth, frameHeight int, box geometry.Box) (string, error) {
	src, _, err := image.Decode(bytes.NewReader(frame))
	if err != nil {
		return "", fmt.Errorf("thumbnail: decode frame: %w", err)
	}

	crop := paddedCrop(box, frameWidth, frameHeight)
	cropped := cropImage(src, crop)
	resized := downscale(cropped, thumbnailMaxSide)

	if err := os.MkdirAll(t.Dir, 0o755); err != nil {
		return "", fmt.Errorf("thumbnail: mkdir: %w", err)
	}

	name := eventID.String() + ".jpg"
	path := filepath.Join(t.Dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("thumbnail: create: %w", err)
	}
	defer f.Close()

	if err := jpeg.Encode(f, resized, &jpeg.Options{Quality: thumbnailJPEGQuality}); err != nil {
		return "", fmt.Errorf("thumbnail: encode: %w", err)
	}
	return path, nil
}

// paddedCrop pads box by thumbnailPadding pixels on every side, then
// clamps the result to the frame bounds.
func paddedCrop(box geometry.Box, frameWidth, frameHeight int) image.Rectangle {
	x1 := int(box.X1) - thumbnailPadding
	y1 := int(box.Y1) - thumbnailPadding
	x2 := int(box.X2) + thumbnailPadding
	y2 := int(box.Y2) + thumbnailPadding

	if x1 < 0 {
		x1 = 0
	}
	if y1 < 0 {
		y1 = 0
	}
	if x2 > frameWidth {
		x2 = frameWidth
	}
	if y2 > frameHeight {
		y2 = frameHeight
	}
	return image.Rect(x1, y1, x2, y2)
}

func cropImage(src image.Image, r image.Rectangle) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), src, r.Min, draw.Src)
	return dst
}

// downscale resizes img so its longest side is at most maxSide, leaving
// it untouched when already smaller.
func downscale(img image.Image, maxSide int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxSide && h <= maxSide {
		return img
	}

	scale := float64(maxSide) / float64(w)
	if h > w {
		scale = float64(maxSide) / float64(h)
	}
	nw := int(float64(w) * scale)
	nh := int(float64(h) * scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
