package audit

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
)

func (s *Service) WriteEvent(ctx context.Context, evt AuditEvent) error {
	// Idempotency: If EventID is empty, generate it.
	if evt.EventID == uuid.Nil {
		evt.EventID = uuid.New()
	}

	// 1. Try DB Write
	query := `
		INSERT INTO audit_logs (
			event_id, tenant_id, actor_user_id, action, target_type, target_id,
			result, reason_code, request_id, client_ip, user_agent, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (event_id) DO NOTHING
	`

	_, err := s.DB.ExecContext(ctx, query,
		evt.EventID, evt.TenantID, evt.ActorUserID, evt.Action, evt.TargetType, evt.TargetID,
		evt.Result, evt.ReasonCode, evt.RequestID, evt.ClientIP, evt.UserAgent, evt.Metadata, evt.CreatedAt,
	)

	if err != nil {
		// 2. Failover to Spool
		log.Printf("Audit DB Write Failed: %v. Spooling event %s", err, evt.EventID)
		if spoolErr := SpoolEvent(evt); spoolErr != nil {
			log.Printf("CRITICAL: Audit Spool FAILED for event %s: %v", evt.EventID, spoolErr)
			return fmt.Errorf("audit critical failure: %v", spoolErr)
		}
		return nil // Swallow DB error if spooled successfully
	}

	return nil
}

// Append-only enforcement: No Update or Delete methods exposed. Query/export
// of the audit trail is out of scope for the worker/frontend pair this repo
// ships (no HTTP surface consumes it); WriteEvent is the only operation
// exercised.
