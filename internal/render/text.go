// Package render holds the tiny bit of text/shape drawing shared by the
// annotation overlay and the synthetic test-pattern source, built on
// golang.org/x/image the way dj-oyu's streaming server uses it for frame
// manipulation.
package render

import (
	"image"
	"image/color"
	"image/draw"
	"sort"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// DrawLabel renders text in col with its baseline at (x, y).
func DrawLabel(img draw.Image, text string, x, y int, col color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

// DrawRect outlines a rectangle with the given stroke width.
func DrawRect(img draw.Image, r image.Rectangle, col color.Color, stroke int) {
	if stroke < 1 {
		stroke = 1
	}
	for i := 0; i < stroke; i++ {
		hLine(img, r.Min.X, r.Max.X, r.Min.Y+i, col)
		hLine(img, r.Min.X, r.Max.X, r.Max.Y-1-i, col)
		vLine(img, r.Min.Y, r.Max.Y, r.Min.X+i, col)
		vLine(img, r.Min.Y, r.Max.Y, r.Max.X-1-i, col)
	}
}

func hLine(img draw.Image, x1, x2, y int, col color.Color) {
	for x := x1; x < x2; x++ {
		img.Set(x, y, col)
	}
}

func vLine(img draw.Image, y1, y2, x int, col color.Color) {
	for y := y1; y < y2; y++ {
		img.Set(x, y, col)
	}
}

// FillPolygonMask rasterizes a filled polygon mask of the given size using
// an even-odd scanline fill, used to build the cached zone overlay.
func FillPolygonMask(width, height int, points []image.Point) *image.Alpha {
	mask := image.NewAlpha(image.Rect(0, 0, width, height))
	if len(points) < 3 {
		return mask
	}
	for y := 0; y < height; y++ {
		var xs []int
		n := len(points)
		for i := 0; i < n; i++ {
			a := points[i]
			b := points[(i+1)%n]
			if (a.Y > y) != (b.Y > y) {
				x := a.X + (y-a.Y)*(b.X-a.X)/(b.Y-a.Y)
				xs = append(xs, x)
			}
		}
		sort.Ints(xs)
		for i := 0; i+1 < len(xs); i += 2 {
			for x := xs[i]; x < xs[i+1]; x++ {
				if x >= 0 && x < width {
					mask.SetAlpha(x, y, color.Alpha{A: 80})
				}
			}
		}
	}
	return mask
}
