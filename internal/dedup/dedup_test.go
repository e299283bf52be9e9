package dedup_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/vms-worker/internal/dedup"
	"github.com/technosupport/vms-worker/internal/detect"
)

func TestShouldEmit_IdempotentWithinCooldown(t *testing.T) {
	d := dedup.New(30*time.Second, 3)
	cam := uuid.New()

	emit, sig := d.ShouldEmit(cam, detect.ClassNoHardhat, 320, 240, 640, 480)
	require.True(t, emit)

	d.Register(sig, uuid.New())

	emit, _ = d.ShouldEmit(cam, detect.ClassNoHardhat, 320, 240, 640, 480)
	assert.False(t, emit, "a second sighting within the cooldown must not re-emit")
}

func TestShouldEmit_ReEmitsAfterCooldown(t *testing.T) {
	d := dedup.New(10*time.Millisecond, 3)
	cam := uuid.New()

	emit, sig := d.ShouldEmit(cam, detect.ClassNoHardhat, 320, 240, 640, 480)
	require.True(t, emit)
	d.Register(sig, uuid.New())

	time.Sleep(20 * time.Millisecond)

	emit, _ = d.ShouldEmit(cam, detect.ClassNoHardhat, 320, 240, 640, 480)
	assert.True(t, emit)
}

func TestShouldEmit_DifferentCellsDoNotCollide(t *testing.T) {
	d := dedup.New(30*time.Second, 3)
	cam := uuid.New()

	emit1, sig1 := d.ShouldEmit(cam, detect.ClassNoHardhat, 10, 10, 600, 600)
	d.Register(sig1, uuid.New())
	emit2, _ := d.ShouldEmit(cam, detect.ClassNoHardhat, 590, 590, 600, 600)

	assert.True(t, emit1)
	assert.True(t, emit2, "a different grid cell must not be suppressed by the other's entry")
}

func TestCleanupStale_RemovesOldEntriesOnly(t *testing.T) {
	d := dedup.New(30*time.Second, 3)
	cam := uuid.New()

	_, sigOld := d.ShouldEmit(cam, detect.ClassNoHardhat, 10, 10, 600, 600)
	d.Register(sigOld, uuid.New())

	time.Sleep(20 * time.Millisecond)

	_, sigNew := d.ShouldEmit(cam, detect.ClassNoSafetyVest, 300, 300, 600, 600)
	d.Register(sigNew, uuid.New())

	d.CleanupStale(15 * time.Millisecond)

	assert.Equal(t, 1, d.Len())
}

func TestGridClamping_OutOfRangeCentroidUsesLastCell(t *testing.T) {
	d := dedup.New(30*time.Second, 3)
	cam := uuid.New()

	emitA, sigA := d.ShouldEmit(cam, detect.ClassNoHardhat, 10000, 10000, 600, 600)
	require.True(t, emitA)
	d.Register(sigA, uuid.New())

	emitB, _ := d.ShouldEmit(cam, detect.ClassNoHardhat, 599, 599, 600, 600)
	assert.False(t, emitB, "an out-of-range centroid clamps to the same last cell as an in-range one near the edge")
}
