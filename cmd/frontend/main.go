// Command frontend is the browser-facing relay process (§2 "Frontend",
// §4.4): it holds no camera pipelines of its own, subscribing instead to
// the same bus the worker publishes onto and fanning frames out through a
// shared Broadcaster per camera plus a direct per-organization event
// relay. REST CRUD, auth, and the HTML dashboard are out of scope
// (spec.md §1); this is the MJPEG + event-stream core only. Wiring
// follows cmd/server/main.go's env-driven config and graceful shutdown.
package main

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/technosupport/vms-worker/internal/broadcaster"
	"github.com/technosupport/vms-worker/internal/bus"
	"github.com/technosupport/vms-worker/internal/config"
	"github.com/technosupport/vms-worker/internal/frontend"
	"github.com/technosupport/vms-worker/internal/store"
)

const serviceName = "vms-frontend"

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

	broker := bus.Dial(cfg, serviceName, logger)
	cameras := store.CameraModel{DB: db}
	fanout := broadcaster.New(broker, cfg.BroadcasterQueueDepth)

	mjpeg := &frontend.MJPEGHandler{Broadcaster: fanout, Broker: broker, Cameras: cameras, Logger: logger}
	events := &frontend.EventStreamHandler{Broker: broker}

	mux := http.NewServeMux()
	mux.Handle("GET /cameras/{id}/stream.mjpeg", mjpeg)
	mux.Handle("GET /organizations/{id}/events", events)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8090"
	}

	server := &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}

	logger.Info("frontend starting", "service", serviceName, "port", port)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()

	logger.Info("shutdown signal received, draining connections", "grace", cfg.ShutdownGrace())
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace())
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown error", "error", err)
	} else {
		logger.Info("frontend stopped gracefully")
	}
}
