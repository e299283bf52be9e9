// Package store is the thin repository layer over the relational schema
// this system assumes is externally provisioned (§6.2). It follows the
// DBTX + per-aggregate *Model convention used throughout the teacher's
// internal/data package.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/technosupport/vms-worker/internal/geometry"
)

var ErrNotFound = errors.New("store: record not found")

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type SourceKind string

const (
	SourceRTSP SourceKind = "rtsp"
	SourceFile SourceKind = "file"
	SourceNone SourceKind = "none"
)

type DetectionMode string

const (
	ModePPE  DetectionMode = "ppe"
	ModeZone DetectionMode = "zone"
)

type CameraStatus string

const (
	StatusIdle       CameraStatus = "idle"
	StatusConnecting CameraStatus = "connecting"
	StatusStreaming  CameraStatus = "streaming"
	StatusError      CameraStatus = "error"
	StatusStopped    CameraStatus = "stopped"
	StatusOffline    CameraStatus = "offline"
)

// Camera is the tenant-authored configuration row. The core only ever
// reads it and writes back status/last-error/last-seen.
type Camera struct {
	ID                uuid.UUID
	OrganizationID    uuid.UUID
	Name              string
	Zone              string
	SourceKind        SourceKind
	RTSPURL           string
	EncryptedCreds    []byte // envelope-encrypted "username:password"
	PlaceholderVideo  string
	UsePlaceholder    bool
	InferenceWidth    int
	InferenceHeight   int
	TargetFPS         float64
	DetectionMode     DetectionMode
	ZonePolygon       geometry.Polygon
	ConfidenceThresh  float64
	InferenceEnabled  bool
	IsActive          bool
	Status            CameraStatus
	LastSeenAt        *time.Time
	LastError         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// SourceFieldsEqual reports whether the two cameras' source-affecting
// fields are identical, the test the supervisor uses to decide between a
// worker restart and an in-place mutation during reconciliation (§4.5).
func (c Camera) SourceFieldsEqual(o Camera) bool {
	return c.SourceKind == o.SourceKind &&
		c.RTSPURL == o.RTSPURL &&
		string(c.EncryptedCreds) == string(o.EncryptedCreds) &&
		c.UsePlaceholder == o.UsePlaceholder &&
		c.PlaceholderVideo == o.PlaceholderVideo
}

type EventKind string

const (
	EventPPEViolation  EventKind = "ppe_violation"
	EventZoneViolation EventKind = "zone_violation"
	EventSystemAlert   EventKind = "system_alert"
)

type ViolationKind string

const (
	ViolationNoHardhat ViolationKind = "no_hardhat"
	ViolationNoVest    ViolationKind = "no_vest"
	ViolationNoMask    ViolationKind = "no_mask"
	ViolationZoneBreach ViolationKind = "zone_breach"
	ViolationOther     ViolationKind = "other"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Event is the persisted record of a materialized violation (§3).
type Event struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	CameraID       uuid.UUID
	Kind           EventKind
	ViolationKind  ViolationKind
	Severity       Severity
	Confidence     float64
	BBox           *geometry.Box
	ThumbnailPath  string
	CreatedAt      time.Time
}

// pointJSON is the wire shape of one vertex in the zone_polygon JSON
// column backing ZonePolygon (BBox is encoded by bboxToJSON).
type pointJSON [2]float64

func polygonToJSON(p geometry.Polygon) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	out := make([]pointJSON, len(p))
	for i, v := range p {
		out[i] = pointJSON{v.X, v.Y}
	}
	return json.Marshal(out)
}

func polygonFromJSON(raw []byte) (geometry.Polygon, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var pts []pointJSON
	if err := json.Unmarshal(raw, &pts); err != nil {
		return nil, err
	}
	poly := make(geometry.Polygon, len(pts))
	for i, v := range pts {
		poly[i] = geometry.Point{X: v[0], Y: v[1]}
	}
	return poly, nil
}
