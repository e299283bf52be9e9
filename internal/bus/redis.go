package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/technosupport/vms-worker/internal/metrics"
	"github.com/technosupport/vms-worker/internal/store"
)

// RedisBroker is the multi-instance Broker: frame/event topics map to
// Redis Pub/Sub channels, and the two TTL surfaces map to SET EX / HSET +
// EXPIRE. Publish retries follow the same fixed-step backoff as the
// teacher's NATS publisher, generalized across every publish surface.
type RedisBroker struct {
	client     *redis.Client
	maxRetries int
}

func NewRedisBroker(client *redis.Client, maxRetries int) *RedisBroker {
	if maxRetries < 0 {
		maxRetries = 3
	}
	return &RedisBroker{client: client, maxRetries: maxRetries}
}

func framesChannel(cameraID uuid.UUID) string { return "frames/" + cameraID.String() }
func eventsChannel(orgID uuid.UUID) string    { return "events/" + orgID.String() }
func latestFrameKey(cameraID uuid.UUID) string { return "latest_frame/" + cameraID.String() }
func cameraMetaKey(cameraID uuid.UUID) string  { return "camera_meta/" + cameraID.String() }

func (b *RedisBroker) publishWithRetry(ctx context.Context, surface, channel string, payload []byte) error {
	var err error
	for i := 0; i <= b.maxRetries; i++ {
		if err = b.client.Publish(ctx, channel, payload).Err(); err == nil {
			if i > 0 {
				metrics.BusPublishRetriesTotal.WithLabelValues(surface).Inc()
			}
			return nil
		}
		time.Sleep(time.Duration(i*100) * time.Millisecond)
	}
	metrics.BusPublishDroppedTotal.WithLabelValues(surface).Inc()
	return fmt.Errorf("bus: publish to %s failed after %d retries: %w", channel, b.maxRetries, err)
}

func (b *RedisBroker) PublishFrame(ctx context.Context, cameraID uuid.UUID, jpeg []byte, seq uint64) error {
	msg := FrameMessage{CameraID: cameraID, JPEG: jpeg, Seq: seq, At: time.Now()}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.publishWithRetry(ctx, "frames", framesChannel(cameraID), payload)
}

func (b *RedisBroker) SetLatestFrame(ctx context.Context, cameraID uuid.UUID, jpeg []byte) error {
	return b.client.Set(ctx, latestFrameKey(cameraID), jpeg, latestFrameTTL).Err()
}

func (b *RedisBroker) GetLatestFrame(ctx context.Context, cameraID uuid.UUID) ([]byte, bool) {
	data, err := b.client.Get(ctx, latestFrameKey(cameraID)).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

func (b *RedisBroker) SetCameraMeta(ctx context.Context, cameraID uuid.UUID, meta CameraMeta) error {
	key := cameraMetaKey(cameraID)
	pairs := make([]any, 0, len(meta)*2)
	for k, v := range meta {
		pairs = append(pairs, k, v)
	}
	pipe := b.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(pairs) > 0 {
		pipe.HSet(ctx, key, pairs...)
	}
	pipe.Expire(ctx, key, cameraMetaTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (b *RedisBroker) GetCameraMeta(ctx context.Context, cameraID uuid.UUID) (CameraMeta, bool) {
	data, err := b.client.HGetAll(ctx, cameraMetaKey(cameraID)).Result()
	if err != nil || len(data) == 0 {
		return nil, false
	}
	return CameraMeta(data), true
}

func (b *RedisBroker) PublishEvent(ctx context.Context, organizationID uuid.UUID, event store.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.publishWithRetry(ctx, "events", eventsChannel(organizationID), payload)
}

func (b *RedisBroker) SubscribeFrames(cameraID uuid.UUID) (<-chan FrameMessage, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sub := b.client.Subscribe(ctx, framesChannel(cameraID))
	out := make(chan FrameMessage, 8)

	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var fm FrameMessage
			if err := json.Unmarshal([]byte(msg.Payload), &fm); err != nil {
				continue
			}
			select {
			case out <- fm:
			default:
			}
		}
	}()

	release := func() {
		cancel()
		sub.Close()
	}
	return out, release
}

func (b *RedisBroker) SubscribeEvents(organizationID uuid.UUID) (<-chan store.Event, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sub := b.client.Subscribe(ctx, eventsChannel(organizationID))
	out := make(chan store.Event, 8)

	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var ev store.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			select {
			case out <- ev:
			default:
			}
		}
	}()

	release := func() {
		cancel()
		sub.Close()
	}
	return out, release
}
