package bus

import (
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/technosupport/vms-worker/internal/config"
)

// Dial constructs the Broker selected by cfg.BusBackend, shared by
// cmd/worker and cmd/frontend so both processes agree on the same wire
// format for whichever backend is configured. A NATS dial failure falls
// back to the in-process broker rather than refusing to start, matching
// cmd/server/main.go's "warn and continue with event polling disabled"
// posture for its own NATS connection.
func Dial(cfg config.Config, serviceName string, logger *slog.Logger) Broker {
	switch cfg.BusBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return NewRedisBroker(client, 1)
	case "nats":
		nc, err := nats.Connect(cfg.NatsURL, nats.Name(serviceName))
		if err != nil {
			logger.Warn("nats connect failed, falling back to in-process bus", "error", err)
			return NewMemBroker()
		}
		return NewNATSBroker(nc, 1)
	default:
		return NewMemBroker()
	}
}
