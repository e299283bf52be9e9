// Package model wraps the single loaded detector behind the SharedModel
// contract (§4.2): one predict operation, safe for concurrent camera
// workers to call, serialized internally if the underlying predictor is
// not reentrant.
package model

import (
	"context"
	"image"

	"github.com/technosupport/vms-worker/internal/detect"
)

// Predictor is the black-box detector contract assumed by §1: given a
// frame, a confidence threshold, and a square inference size, it returns
// detections in the frame's pixel space.
type Predictor interface {
	Predict(ctx context.Context, img image.Image, confidence float64, size int) ([]detect.Detection, error)
}

// SharedModel is the single process-wide instance every CameraRuntime's
// InferenceDispatcher calls into.
type SharedModel struct {
	predictor Predictor
	reentrant bool
	jobs      chan predictJob
}

type predictJob struct {
	ctx        context.Context
	img        image.Image
	confidence float64
	size       int
	result     chan predictResult
}

type predictResult struct {
	detections []detect.Detection
	err        error
}

// NewSharedModel wraps predictor. When reentrant is false, a single
// background worker serializes every Predict call, matching §4.2: "if
// the underlying predictor is not reentrant, the dispatcher serializes
// access via a single-worker queue."
func NewSharedModel(predictor Predictor, reentrant bool) *SharedModel {
	m := &SharedModel{predictor: predictor, reentrant: reentrant}
	if !reentrant {
		m.jobs = make(chan predictJob, 32)
		go m.serialize()
	}
	return m
}

func (m *SharedModel) serialize() {
	for job := range m.jobs {
		dets, err := m.predictor.Predict(job.ctx, job.img, job.confidence, job.size)
		job.result <- predictResult{detections: dets, err: err}
	}
}

// Predict runs the detector. Errors from the predictor are returned to
// the caller (the InferenceDispatcher is the one that catches and logs
// them per §7's "inference" error kind).
func (m *SharedModel) Predict(ctx context.Context, img image.Image, confidence float64, size int) ([]detect.Detection, error) {
	if m.reentrant {
		return m.predictor.Predict(ctx, img, confidence, size)
	}

	result := make(chan predictResult, 1)
	select {
	case m.jobs <- predictJob{ctx: ctx, img: img, confidence: confidence, size: size, result: result}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-result:
		return r.detections, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ClampInferenceSize enforces the §9(a) open-question resolution: 400x400
// is the hard upper bound, 320 the default, and any camera-configured
// value is clamped to the bound.
func ClampInferenceSize(configured, cap int) int {
	if configured <= 0 {
		return 320
	}
	if configured > cap {
		return cap
	}
	return configured
}
