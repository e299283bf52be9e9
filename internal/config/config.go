// Package config loads worker/frontend configuration the way
// cmd/server/main.go does: named environment variables with hardcoded
// fallback defaults, optionally overlaid by a YAML file.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every named, defaulted value from the configuration
// surface, plus the ambient fields (bus/store backend selection,
// connection strings) needed to wire the rest of the dependency stack.
type Config struct {
	RTSPMaxRetries  int `yaml:"rtsp_max_retries"`
	RTSPBaseDelayS  int `yaml:"rtsp_base_delay_s"`
	RTSPMaxDelayS   int `yaml:"rtsp_max_delay_s"`

	DefaultConf      float64 `yaml:"default_conf"`
	DefaultImgSize   int     `yaml:"default_imgsz"`
	DefaultTargetFPS float64 `yaml:"default_target_fps"`

	StreamFPSMax        float64 `yaml:"stream_fps_max"`
	StreamJPEGQuality   int     `yaml:"stream_jpeg_quality"`
	ThumbnailJPEGQuality int    `yaml:"thumbnail_jpeg_quality"`

	CooldownS           int `yaml:"cooldown_s"`
	DedupGrid           int `yaml:"dedup_grid"`
	DedupStaleS         int `yaml:"dedup_stale_s"`
	SupervisorRefreshS  int `yaml:"supervisor_refresh_s"`
	ShutdownGraceS      int `yaml:"shutdown_grace_s"`
	InferenceSizeCapPx  int `yaml:"inference_size_cap_px"`

	BroadcasterQueueDepth int `yaml:"broadcaster_queue_depth"`

	LatestFrameTTLS int `yaml:"latest_frame_ttl_s"`
	CameraMetaTTLS  int `yaml:"camera_meta_ttl_s"`

	// Ambient wiring, not named by the numbered configuration table but
	// required to stand the process up.
	BusBackend     string `yaml:"bus_backend"` // mem | redis | nats
	RedisAddr      string `yaml:"redis_addr"`
	NatsURL        string `yaml:"nats_url"`
	DatabaseURL    string `yaml:"database_url"`
	ThumbnailDir   string `yaml:"thumbnail_dir"`
	MasterKeysEnv  string `yaml:"-"`
	ActiveMasterKID string `yaml:"-"`
	DemoVideoURL   string `yaml:"demo_video_url"`

	AuditSpoolDir    string `yaml:"audit_spool_dir"`
	AuditSpoolMaxMB  int64  `yaml:"audit_spool_max_mb"`
}

// Default returns the configuration with every value from §6.6 set to its
// documented default.
func Default() Config {
	return Config{
		RTSPMaxRetries: 5,
		RTSPBaseDelayS: 1,
		RTSPMaxDelayS:  60,

		DefaultConf:      0.25,
		DefaultImgSize:   320,
		DefaultTargetFPS: 0.5,

		StreamFPSMax:         15,
		StreamJPEGQuality:    65,
		ThumbnailJPEGQuality: 70,

		CooldownS:          30,
		DedupGrid:          3,
		DedupStaleS:        300,
		SupervisorRefreshS: 60,
		ShutdownGraceS:     5,
		InferenceSizeCapPx: 400,

		BroadcasterQueueDepth: 5,

		LatestFrameTTLS: 10,
		CameraMetaTTLS:  30,

		BusBackend:   "mem",
		RedisAddr:    "localhost:6379",
		NatsURL:      "nats://localhost:4222",
		ThumbnailDir: "./thumbnails",
		DemoVideoURL: "./assets/demo.mp4",

		AuditSpoolDir:   "/var/lib/vms-worker/audit_spool",
		AuditSpoolMaxMB: 1024,
	}
}

// Load starts from Default, overlays config/default.yaml if present (a
// missing file is not an error, matching cmd/server/main.go), then applies
// environment variable overrides, matching the same env-first-class
// wiring style as the teacher's main.go.
func Load(yamlPath string) Config {
	cfg := Default()

	if yamlPath != "" {
		if raw, err := os.ReadFile(yamlPath); err == nil {
			_ = yaml.Unmarshal(raw, &cfg)
		}
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("BUS_BACKEND"); v != "" {
		cfg.BusBackend = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NatsURL = v
	}
	if v := os.Getenv("THUMBNAIL_DIR"); v != "" {
		cfg.ThumbnailDir = v
	}
	if v := os.Getenv("AUDIT_SPOOL_DIR"); v != "" {
		cfg.AuditSpoolDir = v
	}
	if v := os.Getenv("AUDIT_SPOOL_MAX_MB"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.AuditSpoolMaxMB = n
		}
	}
	if v := os.Getenv("SUPERVISOR_REFRESH_S"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SupervisorRefreshS = n
		}
	}
	cfg.MasterKeysEnv = "MASTER_KEYS"
	cfg.ActiveMasterKID = os.Getenv("ACTIVE_MASTER_KID")

	return cfg
}

func (c Config) RTSPBaseDelay() time.Duration {
	return time.Duration(c.RTSPBaseDelayS) * time.Second
}

func (c Config) RTSPMaxDelay() time.Duration {
	return time.Duration(c.RTSPMaxDelayS) * time.Second
}

func (c Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownS) * time.Second
}

func (c Config) DedupStale() time.Duration {
	return time.Duration(c.DedupStaleS) * time.Second
}

func (c Config) SupervisorRefresh() time.Duration {
	return time.Duration(c.SupervisorRefreshS) * time.Second
}

func (c Config) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceS) * time.Second
}

func (c Config) LatestFrameTTL() time.Duration {
	return time.Duration(c.LatestFrameTTLS) * time.Second
}

func (c Config) CameraMetaTTL() time.Duration {
	return time.Duration(c.CameraMetaTTLS) * time.Second
}
