// Package annotate draws the PPE/zone overlay onto a frame before it is
// published on the bus (§4.1.2), grounded on the teacher's bounding-box
// overlay drawing in cmd/ai-service/inference.go, generalized to two
// detection modes and built on internal/render instead of a hand-rolled
// draw helper per overlay.
package annotate

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/technosupport/vms-worker/internal/detect"
	"github.com/technosupport/vms-worker/internal/geometry"
	"github.com/technosupport/vms-worker/internal/render"
)

var (
	colorCompliant = color.RGBA{G: 200, A: 255}
	colorViolation = color.RGBA{R: 220, A: 255}
	colorUnknown   = color.RGBA{R: 230, G: 200, A: 255}
	colorZoneFill  = color.RGBA{B: 220, A: 255}
)

// maskCacheCapacity bounds the overlay-mask LRU cache; zone polygons are
// rarely reconfigured, so a modest size easily covers every camera's
// active overlay across reconciliations.
const maskCacheCapacity = 256

type maskKey struct {
	width, height int
	digest        string
}

// Overlayer renders the configured detection mode onto frames. One
// Overlayer is shared process-wide; the mask cache is safe for concurrent
// use via the underlying LRU's internal locking.
type Overlayer struct {
	masks *lru.Cache[maskKey, *image.Alpha]
}

func NewOverlayer() *Overlayer {
	c, _ := lru.New[maskKey, *image.Alpha](maskCacheCapacity)
	return &Overlayer{masks: c}
}

// AnnotatePPE draws a labeled box per person: green when compliant, red
// when a violation was found, amber when neither PPE class was observed
// either way (§4.1.2).
func (o *Overlayer) AnnotatePPE(img draw.Image, statuses []detect.PersonStatus) {
	for _, s := range statuses {
		col, label := ppeLabel(s)
		r := boxToRect(s.Person.Box)
		render.DrawRect(img, r, col, 2)
		render.DrawLabel(img, label, r.Min.X, r.Min.Y-4, col)
	}
}

// ppeLabel joins the specific violated/observed PPE items into the label,
// rather than a single fixed string, matching the original vision module's
// annotate_ppe: red "NO HAT, NO VEST"-style joins on violation, green
// "HAT, VEST"-style joins when compliant items were observed, amber "?"
// when neither a violation nor a positive observation was made.
func ppeLabel(s detect.PersonStatus) (color.Color, string) {
	var violations, compliant []string
	if s.NoHardhat {
		violations = append(violations, "NO HAT")
	} else if s.HasHardhat {
		compliant = append(compliant, "HAT")
	}
	if s.NoVest {
		violations = append(violations, "NO VEST")
	} else if s.HasVest {
		compliant = append(compliant, "VEST")
	}

	switch {
	case len(violations) > 0:
		return colorViolation, strings.Join(violations, ", ")
	case len(compliant) > 0:
		return colorCompliant, strings.Join(compliant, ", ")
	default:
		return colorUnknown, "?"
	}
}

// AnnotateZone draws the cached polygon overlay followed by a labeled box
// per person, green outside the zone and red inside it (§4.1.2).
func (o *Overlayer) AnnotateZone(img draw.Image, bounds image.Rectangle, polygon geometry.Polygon, persons []detect.Detection, inZone map[int]bool) {
	mask := o.polygonMask(bounds.Dx(), bounds.Dy(), polygon)
	draw.DrawMask(img, bounds, image.NewUniform(colorZoneFill), image.Point{}, mask, image.Point{}, draw.Over)

	pts := polygonPoints(polygon)
	for i := range pts {
		j := (i + 1) % len(pts)
		drawLine(img, pts[i], pts[j], colorZoneFill)
	}

	for i, p := range persons {
		col, label := colorCompliant, "OK"
		if inZone[i] {
			col, label = colorViolation, "VIOLATION"
		}
		r := boxToRect(p.Box)
		render.DrawRect(img, r, col, 2)
		render.DrawLabel(img, label, r.Min.X, r.Min.Y-4, col)
	}
}

// AnnotateDisabled overlays a centered "AI Disabled" label, used when a
// camera's detection is turned off but frames still stream (§4.1.2).
func AnnotateDisabled(img draw.Image, bounds image.Rectangle) {
	x := bounds.Min.X + bounds.Dx()/2 - 40
	y := bounds.Min.Y + bounds.Dy()/2
	render.DrawLabel(img, "AI Disabled", x, y, color.White)
}

func (o *Overlayer) polygonMask(width, height int, polygon geometry.Polygon) *image.Alpha {
	key := maskKey{width: width, height: height, digest: polygonDigest(polygon)}
	if m, ok := o.masks.Get(key); ok {
		return m
	}
	m := render.FillPolygonMask(width, height, polygonPoints(polygon))
	o.masks.Add(key, m)
	return m
}

func polygonDigest(polygon geometry.Polygon) string {
	s := ""
	for _, p := range polygon {
		s += fmt.Sprintf("%.1f,%.1f;", p.X, p.Y)
	}
	return s
}

func polygonPoints(polygon geometry.Polygon) []image.Point {
	pts := make([]image.Point, len(polygon))
	for i, p := range polygon {
		pts[i] = image.Point{X: int(p.X), Y: int(p.Y)}
	}
	return pts
}

func boxToRect(b geometry.Box) image.Rectangle {
	return image.Rect(int(b.X1), int(b.Y1), int(b.X2), int(b.Y2))
}

func drawLine(img draw.Image, a, b image.Point, col color.Color) {
	dx := b.X - a.X
	dy := b.Y - a.Y
	steps := dx
	if dy > dx {
		steps = dy
	}
	if dx < 0 {
		steps = -dx
	}
	if -dy > steps {
		steps = -dy
	}
	if steps == 0 {
		img.Set(a.X, a.Y, col)
		return
	}
	for i := 0; i <= steps; i++ {
		x := a.X + dx*i/steps
		y := a.Y + dy*i/steps
		img.Set(x, y, col)
	}
}
