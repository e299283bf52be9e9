package model

import (
	"context"
	"image"
	"math/rand"

	"github.com/technosupport/vms-worker/internal/detect"
	"github.com/technosupport/vms-worker/internal/geometry"
)

// MockPredictor produces image-size-aware synthetic detections when no
// real weights are loaded, the same fallback the teacher's ai-service
// falls back to when its ONNX Runtime DLL/model files are absent
// (cmd/ai-service/inference.go smartMockDetection): deterministic enough
// for tests, varied enough to exercise every downstream class.
type MockPredictor struct {
	// Rand lets tests pin the sequence; nil uses a fresh RNG seeded with 1
	// on every call, so each Predict yields the same detections for the
	// same frame size.
	Rand *rand.Rand
}

func (p *MockPredictor) rng() *rand.Rand {
	if p.Rand != nil {
		return p.Rand
	}
	return rand.New(rand.NewSource(1))
}

func (p *MockPredictor) Predict(ctx context.Context, img image.Image, confidence float64, size int) ([]detect.Detection, error) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		w, h = size, size
	}
	r := p.rng()

	var out []detect.Detection
	numPeople := 1 + r.Intn(2)
	for i := 0; i < numPeople; i++ {
		person := randomBox(r, w, h)
		out = append(out, detect.Detection{
			Box:        person,
			ClassID:    detect.ClassPerson,
			ClassName:  detect.ClassName(detect.ClassPerson),
			Confidence: 0.7 + r.Float64()*0.25,
		})

		if r.Float64() < 0.3 {
			out = append(out, ppeStatusBox(r, person, detect.ClassNoHardhat, person.HeadRegion()))
		} else {
			out = append(out, ppeStatusBox(r, person, detect.ClassHardhat, person.HeadRegion()))
		}

		if r.Float64() < 0.3 {
			out = append(out, ppeStatusBox(r, person, detect.ClassNoSafetyVest, person))
		} else {
			out = append(out, ppeStatusBox(r, person, detect.ClassSafetyVest, person))
		}
	}

	filtered := out[:0]
	for _, d := range out {
		if d.Confidence >= confidence {
			filtered = append(filtered, d)
		}
	}
	return filtered, nil
}

func ppeStatusBox(r *rand.Rand, person geometry.Box, classID int, region geometry.Box) detect.Detection {
	return detect.Detection{
		Box:        shrink(region, 0.9),
		ClassID:    classID,
		ClassName:  detect.ClassName(classID),
		Confidence: 0.6 + r.Float64()*0.35,
	}
}

func shrink(b geometry.Box, factor float64) geometry.Box {
	cx, cy := b.Centroid()
	hw := b.Width() / 2 * factor
	hh := b.Height() / 2 * factor
	return geometry.Box{X1: cx - hw, Y1: cy - hh, X2: cx + hw, Y2: cy + hh}
}

func randomBox(r *rand.Rand, w, h int) geometry.Box {
	bw := float64(w) * (0.15 + r.Float64()*0.2)
	bh := float64(h) * (0.3 + r.Float64()*0.3)
	x1 := r.Float64() * (float64(w) - bw)
	y1 := r.Float64() * (float64(h) - bh)
	return geometry.Box{X1: x1, Y1: y1, X2: x1 + bw, Y2: y1 + bh}
}
