// Package events turns per-frame PPE/zone detections into durable
// violation Events, the materializer stage of the pipeline (§4.3).
// Grounded on the teacher's internal/nvr/event_poller.go for the
// persist-then-publish ordering discipline, generalized from NVR event
// ingestion to violation dedup + thumbnail generation.
package events

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/technosupport/vms-worker/internal/dedup"
	"github.com/technosupport/vms-worker/internal/detect"
	"github.com/technosupport/vms-worker/internal/geometry"
	"github.com/technosupport/vms-worker/internal/metrics"
	"github.com/technosupport/vms-worker/internal/store"
)

// Publisher is the bus-facing dependency the materializer needs: publish
// a materialized event onto the organization's events topic. Kept as a
// narrow interface here so this package never imports the bus package.
type Publisher interface {
	PublishEvent(ctx context.Context, organizationID uuid.UUID, event store.Event) error
}

// Thumbnailer renders and stores a cropped thumbnail for an event,
// returning the path recorded on the Event row.
type Thumbnailer interface {
	Save(ctx context.Context, eventID uuid.UUID, frame []byte, frameWidth, frameHeight int, box geometry.Box) (string, error)
}

// Auditor records a durable trail entry for a materialized violation, the
// ambient audit concern carried over from the teacher's internal/audit
// package (§1 "ambient stack"). Kept as a narrow interface here so this
// package never imports internal/audit directly.
type Auditor interface {
	Record(ctx context.Context, organizationID, cameraID, eventID uuid.UUID, violation store.ViolationKind) error
}

// Materializer evaluates a frame's detections against the camera's
// configured mode and persists/dedupes/publishes the violations found
// (§4.3).
type Materializer struct {
	Events      store.EventModel
	DailyStats  store.DailyStatModel
	Dedup       *dedup.Deduplicator
	Publisher   Publisher
	Thumbnailer Thumbnailer
	Auditor     Auditor
	Logger      *slog.Logger
}

// FrameContext carries the per-frame identifiers the materializer needs
// beyond the detections themselves.
type FrameContext struct {
	OrganizationID uuid.UUID
	CameraID       uuid.UUID
	Mode           store.DetectionMode
	ZonePolygon    geometry.Polygon
	FrameWidth     int
	FrameHeight    int
	RawFrame       []byte
}

// Materialize evaluates dets under fc's configured mode, and for every
// violation that survives deduplication: persists the Event, registers
// the dedup entry, then publishes — in that order, so a crash between any
// two steps never loses durability and never double-counts (§4.3).
func (m *Materializer) Materialize(ctx context.Context, fc FrameContext, dets []detect.Detection) {
	switch fc.Mode {
	case store.ModePPE:
		m.materializePPE(ctx, fc, dets)
	case store.ModeZone:
		m.materializeZone(ctx, fc, dets)
	}
}

func (m *Materializer) materializePPE(ctx context.Context, fc FrameContext, dets []detect.Detection) {
	for _, status := range detect.EvaluatePPE(dets) {
		if status.NoHardhat {
			m.emit(ctx, fc, detect.ClassNoHardhat, store.ViolationNoHardhat, status.Person)
		}
		if status.NoVest {
			m.emit(ctx, fc, detect.ClassNoSafetyVest, store.ViolationNoVest, status.Person)
		}
	}
}

func (m *Materializer) materializeZone(ctx context.Context, fc FrameContext, dets []detect.Detection) {
	for _, person := range detect.PersonsInZone(dets, fc.ZonePolygon) {
		m.emit(ctx, fc, detect.ClassZoneBreach, store.ViolationZoneBreach, person)
	}
}

func (m *Materializer) emit(ctx context.Context, fc FrameContext, classID int, violation store.ViolationKind, person detect.Detection) {
	cx, cy := person.Box.Centroid()
	shouldEmit, sig := m.Dedup.ShouldEmit(fc.CameraID, classID, cx, cy, fc.FrameWidth, fc.FrameHeight)
	if !shouldEmit {
		metrics.DedupSuppressedTotal.WithLabelValues(fc.CameraID.String()).Inc()
		return
	}

	event := store.Event{
		ID:             uuid.New(),
		OrganizationID: fc.OrganizationID,
		CameraID:       fc.CameraID,
		Kind:           eventKind(violation),
		ViolationKind:  violation,
		Severity:       severityFor(violation, person.Confidence),
		Confidence:     person.Confidence,
		BBox:           &person.Box,
	}

	if m.Thumbnailer != nil && fc.RawFrame != nil {
		path, err := m.Thumbnailer.Save(ctx, event.ID, fc.RawFrame, fc.FrameWidth, fc.FrameHeight, person.Box)
		if err != nil {
			m.logger().Warn("thumbnail save failed", "error", err, "camera_id", fc.CameraID)
		} else {
			event.ThumbnailPath = path
		}
	}

	if err := m.Events.Insert(ctx, &event); err != nil {
		m.logger().Error("event insert failed", "error", err, "camera_id", fc.CameraID)
		return
	}

	m.Dedup.Register(sig, event.ID)
	metrics.EventsMaterializedTotal.WithLabelValues(fc.OrganizationID.String(), string(violation)).Inc()

	if m.Auditor != nil {
		if err := m.Auditor.Record(ctx, fc.OrganizationID, fc.CameraID, event.ID, violation); err != nil {
			m.logger().Warn("audit record failed", "error", err, "event_id", event.ID)
		}
	}

	if m.DailyStats.DB != nil {
		if err := m.DailyStats.Increment(ctx, fc.OrganizationID, fc.CameraID, violation); err != nil {
			m.logger().Warn("daily stat increment failed", "error", err, "camera_id", fc.CameraID)
		}
	}

	if m.Publisher != nil {
		if err := m.Publisher.PublishEvent(ctx, fc.OrganizationID, event); err != nil {
			m.logger().Warn("event publish failed", "error", err, "event_id", event.ID)
		}
	}
}

func eventKind(violation store.ViolationKind) store.EventKind {
	if violation == store.ViolationZoneBreach {
		return store.EventZoneViolation
	}
	return store.EventPPEViolation
}

// severityFor applies the default severity rules: zone breaches are
// always critical, PPE violations default by kind but escalate to
// critical when the detector reported high confidence (§4.3).
func severityFor(violation store.ViolationKind, confidence float64) store.Severity {
	if violation == store.ViolationZoneBreach {
		return store.SeverityCritical
	}
	if confidence > 0.8 {
		return store.SeverityCritical
	}
	if violation == store.ViolationNoHardhat {
		return store.SeverityHigh
	}
	return store.SeverityMedium
}

func (m *Materializer) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}
