// Package inference decouples a camera's frame-read cadence from its
// inference cadence (§4.2): at most one predict call is ever in flight
// per camera, and the most recent detection set is published via an
// atomic pointer swap so the annotation stage always reads a consistent
// snapshot without blocking the dispatcher.
package inference

import (
	"context"
	"image"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/technosupport/vms-worker/internal/detect"
	"github.com/technosupport/vms-worker/internal/events"
	"github.com/technosupport/vms-worker/internal/geometry"
	"github.com/technosupport/vms-worker/internal/metrics"
	"github.com/technosupport/vms-worker/internal/model"
	"github.com/technosupport/vms-worker/internal/store"
)

// emaAlpha weights the most recent sample in the FPS moving average;
// matches the smoothing factor the teacher's health scheduler uses for
// its own rolling latency gauge.
const emaAlpha = 0.2

// Dispatcher owns the decoupled-inference state for one camera: the
// in-flight marker, the last detection snapshot, and the inference FPS
// estimate (§4.2, §3 CameraRuntime).
type Dispatcher struct {
	CameraID       uuid.UUID
	OrganizationID uuid.UUID
	Mode           store.DetectionMode
	ZonePolygon    geometry.Polygon
	Confidence     float64
	InferenceSize  int

	Model        *model.SharedModel
	Materializer *events.Materializer
	Logger       *slog.Logger

	inFlight       atomic.Bool
	lastDetections atomic.Pointer[[]detect.Detection]
	lastInferAt    atomic.Int64 // unix nanos
	fpsEMA         atomic.Uint64
}

// Dispatch offers one (frame, raw jpeg) pair to the detector. If a job is
// already running for this camera it is skipped and false is returned;
// otherwise the predict-and-materialize work runs on its own goroutine
// and true is returned immediately (§4.2 step: "dispatch is
// non-blocking").
func (d *Dispatcher) Dispatch(ctx context.Context, frame image.Image, rawJPEG []byte, frameWidth, frameHeight int) bool {
	if !d.inFlight.CompareAndSwap(false, true) {
		metrics.InferenceSkippedInFlightTotal.WithLabelValues(d.CameraID.String()).Inc()
		return false
	}

	metrics.InferenceDispatchedTotal.WithLabelValues(d.CameraID.String()).Inc()
	go d.run(ctx, frame, rawJPEG, frameWidth, frameHeight)
	return true
}

func (d *Dispatcher) run(ctx context.Context, frame image.Image, rawJPEG []byte, frameWidth, frameHeight int) {
	defer d.inFlight.Store(false)

	start := time.Now()
	dets, err := d.Model.Predict(ctx, frame, d.Confidence, d.InferenceSize)
	if err != nil {
		metrics.InferenceErrorsTotal.WithLabelValues(d.CameraID.String()).Inc()
		d.logger().Warn("predict failed", "error", err, "camera_id", d.CameraID)
		return
	}

	d.lastDetections.Store(&dets)
	d.updateFPS(start)

	if d.Materializer != nil {
		fc := events.FrameContext{
			OrganizationID: d.OrganizationID,
			CameraID:       d.CameraID,
			Mode:           d.Mode,
			ZonePolygon:    d.ZonePolygon,
			FrameWidth:     frameWidth,
			FrameHeight:    frameHeight,
			RawFrame:       rawJPEG,
		}
		d.Materializer.Materialize(ctx, fc, dets)
	}
}

// LastDetections returns the most recent detection snapshot, or nil if
// inference has not completed yet for this camera.
func (d *Dispatcher) LastDetections() []detect.Detection {
	p := d.lastDetections.Load()
	if p == nil {
		return nil
	}
	return *p
}

// InFlight reports whether a predict call is currently running.
func (d *Dispatcher) InFlight() bool {
	return d.inFlight.Load()
}

// InferenceFPS returns the current smoothed inference rate estimate.
func (d *Dispatcher) InferenceFPS() float64 {
	return float64(d.fpsEMA.Load()) / 1000
}

func (d *Dispatcher) updateFPS(start time.Time) {
	elapsed := time.Since(start).Seconds()
	if elapsed <= 0 {
		return
	}
	sample := 1 / elapsed

	prev := float64(d.fpsEMA.Load()) / 1000
	next := prev
	if prev == 0 {
		next = sample
	} else {
		next = emaAlpha*sample + (1-emaAlpha)*prev
	}
	d.fpsEMA.Store(uint64(next * 1000))
	metrics.InferenceFPS.WithLabelValues(d.CameraID.String()).Set(next)

	d.lastInferAt.Store(time.Now().UnixNano())
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
