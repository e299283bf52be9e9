package detect_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/technosupport/vms-worker/internal/detect"
	"github.com/technosupport/vms-worker/internal/geometry"
)

func TestEvaluatePPE_NoHardhatRequiresHeadOverlap(t *testing.T) {
	person := detect.Detection{Box: geometry.Box{X1: 0, Y1: 0, X2: 100, Y2: 200}, ClassID: detect.ClassPerson}
	noHardhat := detect.Detection{Box: geometry.Box{X1: 10, Y1: 0, X2: 90, Y2: 60}, ClassID: detect.ClassNoHardhat}

	statuses := detect.EvaluatePPE([]detect.Detection{person, noHardhat})
	assert.Len(t, statuses, 1)
	assert.True(t, statuses[0].NoHardhat)
	assert.True(t, statuses[0].HasViolation())
}

func TestEvaluatePPE_CompliantWhenBothPositiveClassesPresent(t *testing.T) {
	person := detect.Detection{Box: geometry.Box{X1: 0, Y1: 0, X2: 100, Y2: 200}, ClassID: detect.ClassPerson}
	hardhat := detect.Detection{Box: geometry.Box{X1: 10, Y1: 0, X2: 90, Y2: 60}, ClassID: detect.ClassHardhat}
	vest := detect.Detection{Box: geometry.Box{X1: 0, Y1: 0, X2: 100, Y2: 200}, ClassID: detect.ClassSafetyVest}

	statuses := detect.EvaluatePPE([]detect.Detection{person, hardhat, vest})
	assert.True(t, statuses[0].Compliant())
	assert.False(t, statuses[0].HasViolation())
}

func TestEvaluatePPE_NoViolationBelowIoUThreshold(t *testing.T) {
	person := detect.Detection{Box: geometry.Box{X1: 0, Y1: 0, X2: 100, Y2: 200}, ClassID: detect.ClassPerson}
	// Barely clips the head region's corner -- IoU should land at/under 0.1.
	tinyOverlap := detect.Detection{Box: geometry.Box{X1: 95, Y1: 55, X2: 105, Y2: 65}, ClassID: detect.ClassNoHardhat}

	statuses := detect.EvaluatePPE([]detect.Detection{person, tinyOverlap})
	assert.False(t, statuses[0].NoHardhat)
}

func TestPersonsInZone_CentroidOnBoundaryCountsAsInside(t *testing.T) {
	square := geometry.Polygon{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 100}, {X: 0, Y: 100}}
	// Centroid lands exactly on the right edge, x=100.
	person := detect.Detection{Box: geometry.Box{X1: 90, Y1: 40, X2: 110, Y2: 60}, ClassID: detect.ClassPerson}

	in := detect.PersonsInZone([]detect.Detection{person}, square)
	assert.Len(t, in, 1)
}

func TestResolveZonePolygon_FallsBackWhenUnconfigured(t *testing.T) {
	assert.Equal(t, detect.DefaultZonePolygon(), detect.ResolveZonePolygon(nil))

	configured := geometry.Polygon{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}}
	assert.Equal(t, configured, detect.ResolveZonePolygon(configured))
}
