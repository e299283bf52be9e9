// Command worker is the ingestion/inference process: it loads the active
// camera set, resolves each camera's frame source, runs PPE/zone
// detection, and publishes annotated frames plus materialized violation
// events onto the bus (§4). Wiring follows cmd/server/main.go's env-var
// config plus a single yaml overlay.
package main

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/technosupport/vms-worker/internal/annotate"
	"github.com/technosupport/vms-worker/internal/audit"
	"github.com/technosupport/vms-worker/internal/bus"
	"github.com/technosupport/vms-worker/internal/camera"
	"github.com/technosupport/vms-worker/internal/config"
	"github.com/technosupport/vms-worker/internal/crypto"
	"github.com/technosupport/vms-worker/internal/dedup"
	"github.com/technosupport/vms-worker/internal/events"
	"github.com/technosupport/vms-worker/internal/model"
	"github.com/technosupport/vms-worker/internal/store"
)

const serviceName = "vms-worker"

func main() {
	cfg := config.Load("config/default.yaml")
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db open error: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("db ping error: %v", err)
	}

	keyring := crypto.NewKeyring()
	if err := keyring.LoadFromEnv(); err != nil {
		log.Fatalf("keyring init error: %v", err)
	}
	codec := &crypto.CredentialCodec{Keyring: keyring}

	broker := bus.Dial(cfg, serviceName, logger)

	cameras := store.CameraModel{DB: db}
	eventModel := store.EventModel{DB: db}
	dailyStats := store.DailyStatModel{DB: db}

	audit.ConfigureFailover(cfg.AuditSpoolDir, cfg.AuditSpoolMaxMB)
	auditSvc := audit.NewService(db)

	materializer := &events.Materializer{
		Events:      eventModel,
		DailyStats:  dailyStats,
		Dedup:       dedup.New(cfg.Cooldown(), cfg.DedupGrid),
		Publisher:   broker, // bus.Broker.PublishEvent satisfies events.Publisher directly
		Thumbnailer: events.FileThumbnailer{Dir: cfg.ThumbnailDir},
		Auditor:     &audit.EventAuditor{Service: auditSvc},
		Logger:      logger,
	}

	sharedModel := model.NewSharedModel(&model.MockPredictor{}, true)
	overlayer := annotate.NewOverlayer()

	sup := camera.NewSupervisor(cameras, broker, overlayer, sharedModel, codec, cfg)
	sup.Materializer = materializer
	sup.Auditor = &audit.CameraAuditor{Service: auditSvc}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	auditSvc.StartReplayer(ctx)

	logger.Info("worker starting", "service", serviceName)

	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	go runCleanupLoop(ctx, materializer.Dedup, cfg.DedupStale())

	<-ctx.Done()
	logger.Info("shutdown signal received, draining workers", "grace", cfg.ShutdownGrace())

	select {
	case <-done:
		logger.Info("worker stopped gracefully")
	case <-time.After(cfg.ShutdownGrace() + 2*time.Second):
		logger.Warn("worker shutdown exceeded grace period")
	}
}

func runCleanupLoop(ctx context.Context, d *dedup.Deduplicator, maxAge time.Duration) {
	ticker := time.NewTicker(maxAge)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.CleanupStale(maxAge)
		}
	}
}
