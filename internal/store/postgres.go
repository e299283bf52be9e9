package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/technosupport/vms-worker/internal/geometry"
)

// CameraModel is the cameras table repository.
type CameraModel struct {
	DB DBTX
}

// ListActive returns every camera with is_active = true across every
// organization, the set the supervisor reconciles against (§4.5).
func (m CameraModel) ListActive(ctx context.Context) ([]Camera, error) {
	query := `
		SELECT id, organization_id, name, zone, source_kind, rtsp_url, encrypted_credentials,
		       placeholder_video, use_placeholder, inference_width, inference_height, target_fps,
		       detection_mode, zone_polygon, confidence_threshold, inference_enabled, is_active,
		       status, last_seen_at, last_error, created_at, updated_at
		FROM cameras
		WHERE is_active = true
		ORDER BY id`

	rows, err := m.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Camera
	for rows.Next() {
		c, err := scanCamera(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCamera(r rowScanner) (Camera, error) {
	var c Camera
	var polygonRaw []byte
	var lastSeen sql.NullTime

	err := r.Scan(
		&c.ID, &c.OrganizationID, &c.Name, &c.Zone, &c.SourceKind, &c.RTSPURL, &c.EncryptedCreds,
		&c.PlaceholderVideo, &c.UsePlaceholder, &c.InferenceWidth, &c.InferenceHeight, &c.TargetFPS,
		&c.DetectionMode, &polygonRaw, &c.ConfidenceThresh, &c.InferenceEnabled, &c.IsActive,
		&c.Status, &lastSeen, &c.LastError, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return Camera{}, err
	}
	if lastSeen.Valid {
		t := lastSeen.Time
		c.LastSeenAt = &t
	}
	poly, err := polygonFromJSON(polygonRaw)
	if err != nil {
		return Camera{}, err
	}
	c.ZonePolygon = poly
	return c, nil
}

// GetByID fetches a single camera.
func (m CameraModel) GetByID(ctx context.Context, id uuid.UUID) (Camera, error) {
	query := `
		SELECT id, organization_id, name, zone, source_kind, rtsp_url, encrypted_credentials,
		       placeholder_video, use_placeholder, inference_width, inference_height, target_fps,
		       detection_mode, zone_polygon, confidence_threshold, inference_enabled, is_active,
		       status, last_seen_at, last_error, created_at, updated_at
		FROM cameras WHERE id = $1`

	row := m.DB.QueryRowContext(ctx, query, id)
	c, err := scanCamera(row)
	if err == sql.ErrNoRows {
		return Camera{}, ErrNotFound
	}
	return c, err
}

// SetStatus mirrors a CameraRuntime state transition to the store (§4.1).
func (m CameraModel) SetStatus(ctx context.Context, id uuid.UUID, status CameraStatus, lastError string) error {
	query := `UPDATE cameras SET status = $1, last_error = $2, updated_at = NOW() WHERE id = $3`
	_, err := m.DB.ExecContext(ctx, query, status, lastError, id)
	return err
}

// TouchLastSeen records a successful frame read.
func (m CameraModel) TouchLastSeen(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE cameras SET last_seen_at = NOW() WHERE id = $1`
	_, err := m.DB.ExecContext(ctx, query, id)
	return err
}

// EventModel is the events table repository.
type EventModel struct {
	DB DBTX
}

// Insert persists a materialized violation. The materializer calls this
// before registering the dedup entry and before publishing to the bus
// (§4.3 durability ordering).
func (m EventModel) Insert(ctx context.Context, e *Event) error {
	bboxRaw, err := bboxToJSON(e.BBox)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO events (
			id, organization_id, camera_id, event_kind, violation_kind, severity,
			confidence, bbox, thumbnail_path, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id, created_at`

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	return m.DB.QueryRowContext(ctx, query,
		e.ID, e.OrganizationID, e.CameraID, e.Kind, e.ViolationKind, e.Severity,
		e.Confidence, bboxRaw, e.ThumbnailPath, e.CreatedAt,
	).Scan(&e.ID, &e.CreatedAt)
}

// bboxToJSON encodes the four-integer bbox column from §6.2; a nil box
// (system_alert events carry none) stores SQL NULL.
func bboxToJSON(b *geometry.Box) ([]byte, error) {
	if b == nil {
		return nil, nil
	}
	ints := [4]int{int(b.X1), int(b.Y1), int(b.X2), int(b.Y2)}
	return json.Marshal(ints)
}

// DailyStatModel increments the daily_stats counters (§6.2), an ambient
// reporting aggregate the Non-goals never exclude.
type DailyStatModel struct {
	DB DBTX
}

func (m DailyStatModel) Increment(ctx context.Context, orgID, cameraID uuid.UUID, violation ViolationKind) error {
	query := `
		INSERT INTO daily_stats (organization_id, camera_id, date, total, breakdown)
		VALUES ($1, $2, CURRENT_DATE, 1, hstore($3, '1'))
		ON CONFLICT (organization_id, camera_id, date) DO UPDATE SET
			total = daily_stats.total + 1,
			breakdown = daily_stats.breakdown || hstore($3,
				(COALESCE(daily_stats.breakdown -> $3, '0')::int + 1)::text)`
	_, err := m.DB.ExecContext(ctx, query, orgID, cameraID, string(violation))
	return err
}
