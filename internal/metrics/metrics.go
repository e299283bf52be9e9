// Package metrics exposes pipeline counters/gauges as package-level
// promauto vars, the same idiom as the teacher's
// internal/metrics/nvr_health.go, generalized from NVR health checks to
// the camera ingest/inference/dedup pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vms_worker_frames_published_total",
		Help: "Frames published to the bus, per camera.",
	}, []string{"camera_id"})

	InferenceDispatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vms_worker_inference_dispatched_total",
		Help: "Inference jobs dispatched, per camera.",
	}, []string{"camera_id"})

	InferenceSkippedInFlightTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vms_worker_inference_skipped_inflight_total",
		Help: "Inference dispatch windows skipped because a job was already in flight.",
	}, []string{"camera_id"})

	InferenceErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vms_worker_inference_errors_total",
		Help: "Predictor errors caught by the dispatcher.",
	}, []string{"camera_id"})

	EventsMaterializedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vms_worker_events_materialized_total",
		Help: "Events persisted, per organization and violation kind.",
	}, []string{"organization_id", "violation_kind"})

	DedupSuppressedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vms_worker_dedup_suppressed_total",
		Help: "Detections suppressed by the deduplicator within a cooldown window.",
	}, []string{"camera_id"})

	BusPublishRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vms_worker_bus_publish_retries_total",
		Help: "Bus publish operations that needed their one retry.",
	}, []string{"surface"})

	BusPublishDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vms_worker_bus_publish_dropped_total",
		Help: "Bus publishes dropped after exhausting the retry budget.",
	}, []string{"surface"})

	ActiveCameraWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vms_worker_active_camera_workers",
		Help: "Number of CameraRuntimes currently owned by the supervisor.",
	})

	StreamFPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vms_worker_stream_fps",
		Help: "Per-camera stream read FPS EMA.",
	}, []string{"camera_id"})

	InferenceFPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vms_worker_inference_fps",
		Help: "Per-camera inference FPS EMA.",
	}, []string{"camera_id"})
)
