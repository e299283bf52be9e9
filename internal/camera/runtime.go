// Package camera owns the per-camera worker state machine and the
// supervisor that reconciles the configured camera set against the
// running workers (§4.1, §4.5). Grounded on the teacher's
// internal/health scheduler for the ticker+worker-pool shape and on
// tiUlisses-cam-bus's supervisor for the add/remove/restart
// reconciliation pattern.
package camera

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/technosupport/vms-worker/internal/detect"
	"github.com/technosupport/vms-worker/internal/inference"
	"github.com/technosupport/vms-worker/internal/ingest"
	"github.com/technosupport/vms-worker/internal/store"
)

// Runtime is the live operational state for one camera (§3 CameraRuntime):
// its current source handle, status, counters, and the decoupled
// inference dispatcher. One Runtime backs exactly one Worker.
type Runtime struct {
	Camera store.Camera

	mu     sync.RWMutex
	source ingest.Source
	status store.CameraStatus
	lastErr string

	framesRead    atomic.Uint64
	streamFPS     atomic.Uint64 // fixed-point, x1000
	lastFrameAt   atomic.Int64  // unix nanos

	Dispatcher *inference.Dispatcher
}

func NewRuntime(cam store.Camera) *Runtime {
	return &Runtime{Camera: cam, status: store.StatusIdle}
}

func (r *Runtime) SetStatus(status store.CameraStatus, lastErr string) {
	r.mu.Lock()
	r.status = status
	r.lastErr = lastErr
	r.mu.Unlock()
}

func (r *Runtime) Status() (store.CameraStatus, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status, r.lastErr
}

func (r *Runtime) setSource(s ingest.Source) {
	r.mu.Lock()
	r.source = s
	r.mu.Unlock()
}

func (r *Runtime) currentSource() ingest.Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.source
}

func (r *Runtime) recordFrame() {
	now := time.Now()
	prevNanos := r.lastFrameAt.Swap(now.UnixNano())
	r.framesRead.Add(1)

	if prevNanos == 0 {
		return
	}
	elapsed := now.Sub(time.Unix(0, prevNanos)).Seconds()
	if elapsed <= 0 {
		return
	}
	sample := 1 / elapsed
	prev := float64(r.streamFPS.Load()) / 1000
	next := sample
	if prev > 0 {
		next = 0.2*sample + 0.8*prev
	}
	r.streamFPS.Store(uint64(next * 1000))
}

func (r *Runtime) StreamFPS() float64 {
	return float64(r.streamFPS.Load()) / 1000
}

func (r *Runtime) FramesRead() uint64 {
	return r.framesRead.Load()
}

// LastDetections returns the most recent detection snapshot from this
// camera's dispatcher, or nil if inference hasn't produced one yet or
// inference is disabled for this camera.
func (r *Runtime) LastDetections() []detect.Detection {
	if r.Dispatcher == nil {
		return nil
	}
	return r.Dispatcher.LastDetections()
}
