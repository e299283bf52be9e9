package detect

import "github.com/technosupport/vms-worker/internal/geometry"

const ioUThreshold = 0.1

// DefaultZonePolygon is used in zone mode when a camera has no configured
// polygon, so a misconfigured zone camera still annotates and evaluates
// rather than silently producing no overlay and no violations.
func DefaultZonePolygon() geometry.Polygon {
	return geometry.Polygon{
		{X: 100, Y: 100},
		{X: 500, Y: 100},
		{X: 500, Y: 400},
		{X: 100, Y: 400},
	}
}

// ResolveZonePolygon returns polygon unchanged unless it is empty, in which
// case it returns DefaultZonePolygon.
func ResolveZonePolygon(polygon geometry.Polygon) geometry.Polygon {
	if len(polygon) == 0 {
		return DefaultZonePolygon()
	}
	return polygon
}

// PersonStatus is the PPE-mode evaluation of one detected person against
// every PPE-status box in the same frame (§4.1.2, §4.3.1).
type PersonStatus struct {
	Person     Detection
	NoHardhat  bool
	HasHardhat bool
	NoVest     bool
	HasVest    bool
}

// EvaluatePPE pairs every person with overlapping PPE-status boxes using
// the IoU rules from §4.1.2: NO-Hardhat against the person's head region,
// NO-Safety-Vest against the full person box, strict IoU > 0.1.
func EvaluatePPE(dets []Detection) []PersonStatus {
	var out []PersonStatus
	for _, d := range dets {
		if d.ClassID != ClassPerson {
			continue
		}
		status := PersonStatus{Person: d}
		head := d.Box.HeadRegion()

		for _, other := range dets {
			switch other.ClassID {
			case ClassNoHardhat:
				if geometry.IoU(head, other.Box) > ioUThreshold {
					status.NoHardhat = true
				}
			case ClassHardhat:
				if geometry.IoU(head, other.Box) > ioUThreshold {
					status.HasHardhat = true
				}
			case ClassNoSafetyVest:
				if geometry.IoU(d.Box, other.Box) > ioUThreshold {
					status.NoVest = true
				}
			case ClassSafetyVest:
				if geometry.IoU(d.Box, other.Box) > ioUThreshold {
					status.HasVest = true
				}
			}
		}
		out = append(out, status)
	}
	return out
}

// Compliant reports whether a person has no detected violation and both
// PPE items were positively observed.
func (s PersonStatus) Compliant() bool {
	return !s.NoHardhat && !s.NoVest && s.HasHardhat && s.HasVest
}

// HasViolation reports whether either PPE rule was violated.
func (s PersonStatus) HasViolation() bool {
	return s.NoHardhat || s.NoVest
}

// PersonsInZone returns, for zone mode, every person detection whose
// bounding-box centroid lies inside polygon (§4.1.2, §4.3.2). Centroids
// exactly on the boundary count as inside.
func PersonsInZone(dets []Detection, polygon geometry.Polygon) []Detection {
	var out []Detection
	for _, d := range dets {
		if d.ClassID != ClassPerson {
			continue
		}
		cx, cy := d.Box.Centroid()
		if polygon.ContainsPoint(geometry.Point{X: cx, Y: cy}) {
			out = append(out, d)
		}
	}
	return out
}
