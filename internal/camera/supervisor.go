package camera

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/technosupport/vms-worker/internal/annotate"
	"github.com/technosupport/vms-worker/internal/bus"
	"github.com/technosupport/vms-worker/internal/config"
	"github.com/technosupport/vms-worker/internal/events"
	"github.com/technosupport/vms-worker/internal/ingest"
	"github.com/technosupport/vms-worker/internal/model"
	"github.com/technosupport/vms-worker/internal/store"
)

// managedWorker pairs a running Worker with the camera config it was
// started with, so reconciliation can detect drift without re-reading
// the worker's live runtime state.
type managedWorker struct {
	worker *Worker
	config store.Camera
}

// Auditor records a camera worker lifecycle transition to the audit
// trail. Kept as a narrow interface so this package never imports
// internal/audit directly.
type Auditor interface {
	Record(ctx context.Context, organizationID, cameraID uuid.UUID, action, result string) error
}

// Supervisor owns every running camera Worker and reconciles the
// database's active-camera set against it on a timer (§4.5), grounded on
// tiUlisses-cam-bus's startOrUpdateCamera/stopCamera/stopAll shape:
// unchanged source fields mutate the running worker in place, a changed
// source restarts it, and a removed camera stops it.
type Supervisor struct {
	Cameras   store.CameraModel
	Broker    bus.Broker
	Overlayer *annotate.Overlayer
	Model     *model.SharedModel
	Decryptor ingest.CredentialDecryptor
	Cfg       config.Config
	Logger    *slog.Logger

	// Materializer turns each worker's inference detections into
	// persisted/deduplicated Events (§4.3). Optional: a nil Materializer
	// leaves inference running with detections annotated but never
	// evaluated for violations, which is only useful in tests of the
	// streaming path in isolation.
	Materializer *events.Materializer

	// Auditor records camera worker lifecycle transitions to the audit
	// trail (§1 "ambient stack"). Optional.
	Auditor Auditor

	mu      sync.Mutex
	workers map[uuid.UUID]*managedWorker
}

func NewSupervisor(cameras store.CameraModel, broker bus.Broker, overlayer *annotate.Overlayer, sharedModel *model.SharedModel, decryptor ingest.CredentialDecryptor, cfg config.Config) *Supervisor {
	return &Supervisor{
		Cameras:   cameras,
		Broker:    broker,
		Overlayer: overlayer,
		Model:     sharedModel,
		Decryptor: decryptor,
		Cfg:       cfg,
		workers:   make(map[uuid.UUID]*managedWorker),
	}
}

// Run reconciles immediately, then on every SupervisorRefresh tick, until
// ctx is cancelled, at which point every worker is stopped within the
// configured grace period (§4.5).
func (s *Supervisor) Run(ctx context.Context) {
	s.reconcile(ctx)

	ticker := time.NewTicker(s.Cfg.SupervisorRefresh())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.stopAll()
			return
		case <-ticker.C:
			s.reconcile(ctx)
		}
	}
}

func (s *Supervisor) reconcile(ctx context.Context) {
	cameras, err := s.Cameras.ListActive(ctx)
	if err != nil {
		s.logger().Error("reconciliation: list active cameras failed", "error", err)
		return
	}

	seen := make(map[uuid.UUID]struct{}, len(cameras))
	for _, cam := range cameras {
		seen[cam.ID] = struct{}{}
		s.startOrUpdate(ctx, cam)
	}

	s.mu.Lock()
	var stale []uuid.UUID
	for id := range s.workers {
		if _, ok := seen[id]; !ok {
			stale = append(stale, id)
		}
	}
	s.mu.Unlock()

	for _, id := range stale {
		s.stop(id)
	}
}

func (s *Supervisor) startOrUpdate(ctx context.Context, cam store.Camera) {
	s.mu.Lock()
	existing, ok := s.workers[cam.ID]
	s.mu.Unlock()

	if ok {
		if existing.config.SourceFieldsEqual(cam) {
			s.mu.Lock()
			existing.worker.Runtime.Camera = cam
			existing.config = cam
			s.mu.Unlock()
			return
		}

		s.logger().Info("camera source changed, restarting worker", "camera_id", cam.ID)
		s.auditRecord(ctx, cam.OrganizationID, cam.ID, "camera.restart", "source_changed")
		s.stop(cam.ID)
	}

	runtime := NewRuntime(cam)
	worker := &Worker{
		Runtime:      runtime,
		Broker:       s.Broker,
		Overlayer:    s.Overlayer,
		Model:        s.Model,
		Decryptor:    s.Decryptor,
		Cameras:      s.Cameras,
		Cfg:          s.Cfg,
		Logger:       s.Logger,
		Materializer: s.Materializer,
	}
	worker.Start(context.Background())

	s.mu.Lock()
	s.workers[cam.ID] = &managedWorker{worker: worker, config: cam}
	s.mu.Unlock()

	if !ok {
		s.auditRecord(ctx, cam.OrganizationID, cam.ID, "camera.start", "ok")
	}
}

func (s *Supervisor) stop(id uuid.UUID) {
	s.mu.Lock()
	mw, ok := s.workers[id]
	if ok {
		delete(s.workers, id)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	mw.worker.Stop(s.Cfg.ShutdownGrace())
	s.auditRecord(context.Background(), mw.config.OrganizationID, id, "camera.stop", "ok")
}

// auditRecord reports a lifecycle transition through Auditor, if one is
// configured. Failures are logged, never fatal to the reconciliation loop.
func (s *Supervisor) auditRecord(ctx context.Context, organizationID, cameraID uuid.UUID, action, result string) {
	if s.Auditor == nil {
		return
	}
	if err := s.Auditor.Record(ctx, organizationID, cameraID, action, result); err != nil {
		s.logger().Warn("audit record failed", "error", err, "camera_id", cameraID, "action", action)
	}
}

func (s *Supervisor) stopAll() {
	s.mu.Lock()
	ids := make([]uuid.UUID, 0, len(s.workers))
	for id := range s.workers {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			s.stop(id)
		}(id)
	}
	wg.Wait()
}

func (s *Supervisor) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
