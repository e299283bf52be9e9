package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/technosupport/vms-worker/internal/metrics"
	"github.com/technosupport/vms-worker/internal/store"
)

// NATSBroker is a multi-instance Broker backed by NATS core pub/sub,
// grounded directly on the teacher's NATSPublisher (internal/nvr/nats_publisher.go):
// same fixed-step retry loop, generalized from one VmsEvent subject to
// every bus surface. The two TTL registers have no NATS primitive, so
// this broker keeps them in an in-process map exactly like MemBroker —
// multi-instance deployments needing a shared TTL register should pair
// this with Redis for those two surfaces instead.
type NATSBroker struct {
	conn       *nats.Conn
	maxRetries int

	mu           sync.Mutex
	latestFrames map[uuid.UUID]ttlValue[[]byte]
	cameraMetas  map[uuid.UUID]ttlValue[CameraMeta]
}

func NewNATSBroker(conn *nats.Conn, maxRetries int) *NATSBroker {
	if maxRetries < 0 {
		maxRetries = 3
	}
	return &NATSBroker{
		conn:         conn,
		maxRetries:   maxRetries,
		latestFrames: make(map[uuid.UUID]ttlValue[[]byte]),
		cameraMetas:  make(map[uuid.UUID]ttlValue[CameraMeta]),
	}
}

func (b *NATSBroker) publishWithRetry(surface, subject string, payload []byte) error {
	var err error
	for i := 0; i <= b.maxRetries; i++ {
		if err = b.conn.Publish(subject, payload); err == nil {
			if i > 0 {
				metrics.BusPublishRetriesTotal.WithLabelValues(surface).Inc()
			}
			return nil
		}
		time.Sleep(time.Duration(i*100) * time.Millisecond)
	}
	metrics.BusPublishDroppedTotal.WithLabelValues(surface).Inc()
	return fmt.Errorf("bus: publish to %s failed after %d retries: %w", subject, b.maxRetries, err)
}

func (b *NATSBroker) PublishFrame(_ context.Context, cameraID uuid.UUID, jpeg []byte, seq uint64) error {
	msg := FrameMessage{CameraID: cameraID, JPEG: jpeg, Seq: seq, At: time.Now()}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.publishWithRetry("frames", framesChannel(cameraID), payload)
}

func (b *NATSBroker) SetLatestFrame(_ context.Context, cameraID uuid.UUID, jpeg []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.latestFrames[cameraID] = ttlValue[[]byte]{value: jpeg, expires: time.Now().Add(latestFrameTTL)}
	return nil
}

func (b *NATSBroker) GetLatestFrame(_ context.Context, cameraID uuid.UUID) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.latestFrames[cameraID]
	if !ok || time.Now().After(v.expires) {
		return nil, false
	}
	return v.value, true
}

func (b *NATSBroker) SetCameraMeta(_ context.Context, cameraID uuid.UUID, meta CameraMeta) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cameraMetas[cameraID] = ttlValue[CameraMeta]{value: meta, expires: time.Now().Add(cameraMetaTTL)}
	return nil
}

func (b *NATSBroker) GetCameraMeta(_ context.Context, cameraID uuid.UUID) (CameraMeta, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.cameraMetas[cameraID]
	if !ok || time.Now().After(v.expires) {
		return nil, false
	}
	return v.value, true
}

func (b *NATSBroker) PublishEvent(_ context.Context, organizationID uuid.UUID, event store.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.publishWithRetry("events", eventsChannel(organizationID), payload)
}

func (b *NATSBroker) SubscribeFrames(cameraID uuid.UUID) (<-chan FrameMessage, func()) {
	out := make(chan FrameMessage, 8)
	sub, err := b.conn.Subscribe(framesChannel(cameraID), func(msg *nats.Msg) {
		var fm FrameMessage
		if err := json.Unmarshal(msg.Data, &fm); err != nil {
			return
		}
		select {
		case out <- fm:
		default:
		}
	})
	if err != nil {
		close(out)
		return out, func() {}
	}
	return out, func() { _ = sub.Unsubscribe(); close(out) }
}

func (b *NATSBroker) SubscribeEvents(organizationID uuid.UUID) (<-chan store.Event, func()) {
	out := make(chan store.Event, 8)
	sub, err := b.conn.Subscribe(eventsChannel(organizationID), func(msg *nats.Msg) {
		var ev store.Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return
		}
		select {
		case out <- ev:
		default:
		}
	})
	if err != nil {
		close(out)
		return out, func() {}
	}
	return out, func() { _ = sub.Unsubscribe(); close(out) }
}
