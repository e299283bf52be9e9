package audit

import (
	"context"

	"github.com/google/uuid"

	"github.com/technosupport/vms-worker/internal/store"
)

// EventAuditor adapts Service to events.Auditor: one audit_logs row per
// materialized violation, keyed by the event's own ID so a retry after a
// partial failure never double-writes (§1 "ambient stack").
type EventAuditor struct {
	Service *Service
}

func (a *EventAuditor) Record(ctx context.Context, organizationID, cameraID, eventID uuid.UUID, violation store.ViolationKind) error {
	return a.Service.WriteEvent(ctx, AuditEvent{
		EventID:    eventID,
		TenantID:   organizationID,
		Action:     "event.materialized",
		TargetType: "camera",
		TargetID:   cameraID.String(),
		Result:     "success",
		ReasonCode: string(violation),
	})
}

// CameraAuditor adapts Service to camera.Auditor: one audit_logs row per
// camera worker lifecycle transition (start, restart, stop).
type CameraAuditor struct {
	Service *Service
}

func (a *CameraAuditor) Record(ctx context.Context, organizationID, cameraID uuid.UUID, action, result string) error {
	return a.Service.WriteEvent(ctx, AuditEvent{
		EventID:    uuid.New(),
		TenantID:   organizationID,
		Action:     action,
		TargetType: "camera",
		TargetID:   cameraID.String(),
		Result:     result,
	})
}
