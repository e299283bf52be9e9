// Package dedup implements the process-wide violation deduplicator
// (§4.3), grounded directly on the teacher's LRU+TTL event dedup
// (internal/nvr/event_dedup.go), generalized from an NVR event digest to
// a (camera, violation class, grid cell) ViolationSignature.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/google/uuid"

	"github.com/technosupport/vms-worker/internal/geometry"
)

// maxTrackedSignatures bounds the deduplicator's memory: cooldown windows
// are short (default 30s) so a capacity far above any realistic
// concurrent-violation count never actually evicts a live entry early;
// it only protects against unbounded growth if cleanup ever falls behind.
const maxTrackedSignatures = 200_000

// Signature is the dedup key: camera, violation class, and the
// containing cell of a G x G grid over the inference frame (§3).
type Signature struct {
	CameraID uuid.UUID
	ClassID  int
	Row, Col int
}

// Digest reduces a Signature to a short stable string for use as a map
// key / log field.
func (s Signature) Digest() string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d|%d", s.CameraID, s.ClassID, s.Row, s.Col)))
	return hex.EncodeToString(h[:])[:16]
}

// entry is the per-signature bookkeeping (§3 DedupEntry).
type entry struct {
	lastSeen time.Time
	eventID  uuid.UUID
}

// Deduplicator is the single process-wide structure keyed by
// ViolationSignature. A single mutex guards the map; critical sections
// are O(1) apart from cleanup (§4.3).
type Deduplicator struct {
	mu       sync.Mutex
	entries  *lru.Cache[string, *entry]
	cooldown time.Duration
	grid     int
}

func New(cooldown time.Duration, grid int) *Deduplicator {
	if grid < 1 {
		grid = 3
	}
	c, _ := lru.New[string, *entry](maxTrackedSignatures)
	return &Deduplicator{
		entries:  c,
		cooldown: cooldown,
		grid:     grid,
	}
}

// ShouldEmit quantizes bbox to a grid cell, forms the signature, and
// returns true iff no entry exists or the existing entry is older than
// the cooldown. On true the entry is NOT written yet; the caller commits
// by calling Register after successful persistence (§4.3).
func (d *Deduplicator) ShouldEmit(cameraID uuid.UUID, classID int, centroidX, centroidY float64, frameWidth, frameHeight int) (bool, Signature) {
	row, col := geometry.GridCell(centroidX, centroidY, frameWidth, frameHeight, d.grid)
	sig := Signature{CameraID: cameraID, ClassID: classID, Row: row, Col: col}
	digest := sig.Digest()

	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries.Peek(digest)
	now := time.Now()
	if !ok || now.Sub(e.lastSeen) >= d.cooldown {
		return true, sig
	}

	e.lastSeen = now
	return false, sig
}

// Register commits a signature that ShouldEmit reported as emittable,
// recording the identifier of the event that materialized it. Callers
// must only call this after the Event has been durably persisted (§4.3
// durability ordering).
func (d *Deduplicator) Register(sig Signature, eventID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries.Add(sig.Digest(), &entry{lastSeen: time.Now(), eventID: eventID})
}

// CleanupStale removes entries older than maxAge (default 300s).
func (d *Deduplicator) CleanupStale(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, k := range d.entries.Keys() {
		e, ok := d.entries.Peek(k)
		if ok && e.lastSeen.Before(cutoff) {
			d.entries.Remove(k)
		}
	}
}

// Len reports the number of tracked signatures, for tests and metrics.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.entries.Len()
}
