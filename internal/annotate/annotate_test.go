package annotate_test

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/technosupport/vms-worker/internal/annotate"
	"github.com/technosupport/vms-worker/internal/detect"
	"github.com/technosupport/vms-worker/internal/geometry"
)

func TestAnnotatePPE_DrawsWithoutPanicking(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	o := annotate.NewOverlayer()

	statuses := []detect.PersonStatus{
		{Person: detect.Detection{Box: geometry.Box{X1: 10, Y1: 10, X2: 60, Y2: 200}}, NoHardhat: true},
		{Person: detect.Detection{Box: geometry.Box{X1: 100, Y1: 10, X2: 150, Y2: 200}}, HasHardhat: true, HasVest: true},
	}

	assert.NotPanics(t, func() { o.AnnotatePPE(img, statuses) })
}

func TestAnnotateZone_CachesMaskAcrossCalls(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	bounds := img.Bounds()
	o := annotate.NewOverlayer()
	poly := geometry.Polygon{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 100}, {X: 0, Y: 100}}

	persons := []detect.Detection{{Box: geometry.Box{X1: 10, Y1: 10, X2: 30, Y2: 60}}}
	inZone := map[int]bool{0: true}

	assert.NotPanics(t, func() {
		o.AnnotateZone(img, bounds, poly, persons, inZone)
		o.AnnotateZone(img, bounds, poly, persons, inZone)
	})
}

func TestAnnotateDisabled_DrawsWithoutPanicking(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	assert.NotPanics(t, func() { annotate.AnnotateDisabled(img, img.Bounds()) })
}
