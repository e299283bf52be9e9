package camera_test

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/vms-worker/internal/annotate"
	"github.com/technosupport/vms-worker/internal/bus"
	"github.com/technosupport/vms-worker/internal/camera"
	"github.com/technosupport/vms-worker/internal/config"
	"github.com/technosupport/vms-worker/internal/model"
	"github.com/technosupport/vms-worker/internal/store"
)

var cameraColumns = []string{
	"id", "organization_id", "name", "zone", "source_kind", "rtsp_url", "encrypted_credentials",
	"placeholder_video", "use_placeholder", "inference_width", "inference_height", "target_fps",
	"detection_mode", "zone_polygon", "confidence_threshold", "inference_enabled", "is_active",
	"status", "last_seen_at", "last_error", "created_at", "updated_at",
}

type driverValue = any

func rowFor(cam store.Camera) []driverValue {
	return []driverValue{
		cam.ID, cam.OrganizationID, cam.Name, cam.Zone, cam.SourceKind, cam.RTSPURL, cam.EncryptedCreds,
		cam.PlaceholderVideo, cam.UsePlaceholder, cam.InferenceWidth, cam.InferenceHeight, cam.TargetFPS,
		cam.DetectionMode, []byte(nil), cam.ConfidenceThresh, cam.InferenceEnabled, cam.IsActive,
		cam.Status, nil, cam.LastError, time.Now(), time.Now(),
	}
}

func baseCamera() store.Camera {
	return store.Camera{
		ID:               uuid.New(),
		OrganizationID:   uuid.New(),
		SourceKind:       store.SourceNone,
		DetectionMode:    store.ModePPE,
		InferenceWidth:   320,
		InferenceHeight:  320,
		ConfidenceThresh: 0.25,
		InferenceEnabled: false, // no dispatch needed for a reconciliation-shape test
		IsActive:         true,
		Status:           store.StatusIdle,
	}
}

func TestSupervisor_ReconcileStartsAndStopsWorkers(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cam := baseCamera()

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows(cameraColumns).AddRow(rowFor(cam)...))
	mock.ExpectExec("UPDATE cameras SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows(cameraColumns))
	mock.ExpectExec("UPDATE cameras SET status").WillReturnResult(sqlmock.NewResult(0, 1))

	cameras := store.CameraModel{DB: db}
	broker := bus.NewMemBroker()
	overlayer := annotate.NewOverlayer()
	sharedModel := model.NewSharedModel(&model.MockPredictor{}, true)
	cfg := config.Default()
	cfg.SupervisorRefreshS = 1

	sup := camera.NewSupervisor(cameras, broker, overlayer, sharedModel, nil, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	time.Sleep(1500 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not shut down")
	}
}
