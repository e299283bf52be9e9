// Package geometry holds the bounding-box and polygon math shared by
// annotation, dedup grid quantization, and the materializer's violation
// tests. Kept dependency-free so every consumer can import it without
// pulling in detection or bus types.
package geometry

import "math"

// Box is an axis-aligned bounding box in pixel space, x1,y1 inclusive,
// x2,y2 exclusive of the lower-right corner convention used throughout
// the inference frame.
type Box struct {
	X1, Y1, X2, Y2 float64
}

func (b Box) Width() float64  { return b.X2 - b.X1 }
func (b Box) Height() float64 { return b.Y2 - b.Y1 }

func (b Box) Area() float64 {
	w := b.Width()
	h := b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Centroid returns the box's center point.
func (b Box) Centroid() (float64, float64) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// HeadRegion returns the top 30% (by height) of the box, used for the
// hardhat overlap test.
func (b Box) HeadRegion() Box {
	h := b.Height()
	return Box{X1: b.X1, Y1: b.Y1, X2: b.X2, Y2: b.Y1 + h*0.3}
}

// IoU computes intersection-over-union of two boxes.
func IoU(a, b Box) float64 {
	ix1 := math.Max(a.X1, b.X1)
	iy1 := math.Max(a.Y1, b.Y1)
	ix2 := math.Min(a.X2, b.X2)
	iy2 := math.Min(a.Y2, b.Y2)

	iw := ix2 - ix1
	ih := iy2 - iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Point is a 2D point in the same pixel space as Box.
type Point struct {
	X, Y float64
}

// Polygon is an ordered list of vertices, implicitly closed (last vertex
// connects back to the first).
type Polygon []Point

// ContainsPoint reports whether p lies inside the polygon, with points
// exactly on an edge counted as inside. Uses a ray-casting test with an
// explicit on-edge check so boundary points are never misclassified by
// floating point jitter in the crossing count.
func (poly Polygon) ContainsPoint(p Point) bool {
	n := len(poly)
	if n < 3 {
		return false
	}

	for i := 0; i < n; i++ {
		a := poly[i]
		b := poly[(i+1)%n]
		if onSegment(a, b, p) {
			return true
		}
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		vi := poly[i]
		vj := poly[j]
		if (vi.Y > p.Y) != (vj.Y > p.Y) {
			xIntersect := (vj.X-vi.X)*(p.Y-vi.Y)/(vj.Y-vi.Y) + vi.X
			if p.X < xIntersect {
				inside = !inside
			}
		}
	}
	return inside
}

func onSegment(a, b, p Point) bool {
	const eps = 1e-9
	cross := (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
	if math.Abs(cross) > eps {
		return false
	}
	if p.X < math.Min(a.X, b.X)-eps || p.X > math.Max(a.X, b.X)+eps {
		return false
	}
	if p.Y < math.Min(a.Y, b.Y)-eps || p.Y > math.Max(a.Y, b.Y)+eps {
		return false
	}
	return true
}

// GridCell quantizes a centroid into a (row, col) cell of a G x G grid
// over a frame of the given width/height. Cells are half-open intervals;
// out-of-range centroids clamp to the last cell on that axis.
func GridCell(x, y float64, width, height int, grid int) (row, col int) {
	if grid < 1 {
		grid = 1
	}
	cellW := float64(width) / float64(grid)
	cellH := float64(height) / float64(grid)

	col = int(x / cellW)
	row = int(y / cellH)

	if col < 0 {
		col = 0
	}
	if col >= grid {
		col = grid - 1
	}
	if row < 0 {
		row = 0
	}
	if row >= grid {
		row = grid - 1
	}
	return row, col
}
