// Package bus is the pub/sub and TTL-register fan-out layer frames and
// events cross to reach consumers outside the camera worker (§4.4, §6.4).
// The default Broker is in-process; RedisBroker and NATSBroker trade
// process-locality for multi-instance fan-out, both grounded on the
// teacher's internal/nvr publishers.
package bus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/technosupport/vms-worker/internal/store"
)

// FrameMessage is one published frame on a camera's frames/<camera-id>
// topic.
type FrameMessage struct {
	CameraID uuid.UUID
	JPEG     []byte
	Seq      uint64
	At       time.Time
}

// CameraMeta is the short-lived per-camera status map published to
// camera_meta/<camera-id> (§6.4): status, stream and inference FPS, and
// detection count, fields consumers poll without hitting the store.
type CameraMeta map[string]string

// Broker is the bus contract every camera worker and frontend consumer
// depends on. Subscribe* calls return a receive channel and an unsubscribe
// func; callers must call it to release their slot.
type Broker interface {
	PublishFrame(ctx context.Context, cameraID uuid.UUID, jpeg []byte, seq uint64) error
	SetLatestFrame(ctx context.Context, cameraID uuid.UUID, jpeg []byte) error
	GetLatestFrame(ctx context.Context, cameraID uuid.UUID) ([]byte, bool)
	SetCameraMeta(ctx context.Context, cameraID uuid.UUID, meta CameraMeta) error
	GetCameraMeta(ctx context.Context, cameraID uuid.UUID) (CameraMeta, bool)
	PublishEvent(ctx context.Context, organizationID uuid.UUID, event store.Event) error

	SubscribeFrames(cameraID uuid.UUID) (<-chan FrameMessage, func())
	SubscribeEvents(organizationID uuid.UUID) (<-chan store.Event, func())
}

const (
	latestFrameTTL = 10 * time.Second
	cameraMetaTTL  = 30 * time.Second
)

type ttlValue[T any] struct {
	value   T
	expires time.Time
}

// MemBroker is the default, single-process Broker (§6.4): topics are
// fanned out to bounded per-subscriber channels, and the two TTL surfaces
// are plain maps guarded by a mutex with lazy expiry on read.
type MemBroker struct {
	mu            sync.Mutex
	frameSubs     map[uuid.UUID]map[chan FrameMessage]struct{}
	eventSubs     map[uuid.UUID]map[chan store.Event]struct{}
	latestFrames  map[uuid.UUID]ttlValue[[]byte]
	cameraMetas   map[uuid.UUID]ttlValue[CameraMeta]
	latestFrameTTL time.Duration
	cameraMetaTTL  time.Duration
}

func NewMemBroker() *MemBroker {
	return &MemBroker{
		frameSubs:      make(map[uuid.UUID]map[chan FrameMessage]struct{}),
		eventSubs:      make(map[uuid.UUID]map[chan store.Event]struct{}),
		latestFrames:   make(map[uuid.UUID]ttlValue[[]byte]),
		cameraMetas:    make(map[uuid.UUID]ttlValue[CameraMeta]),
		latestFrameTTL: latestFrameTTL,
		cameraMetaTTL:  cameraMetaTTL,
	}
}

func (b *MemBroker) PublishFrame(_ context.Context, cameraID uuid.UUID, jpeg []byte, seq uint64) error {
	msg := FrameMessage{CameraID: cameraID, JPEG: jpeg, Seq: seq, At: time.Now()}

	b.mu.Lock()
	subs := b.frameSubs[cameraID]
	chans := make([]chan FrameMessage, 0, len(subs))
	for ch := range subs {
		chans = append(chans, ch)
	}
	b.mu.Unlock()

	for _, ch := range chans {
		select {
		case ch <- msg:
		default:
			// Slow subscriber drops the frame rather than blocking the
			// publisher; the broadcaster layer is the place bounded
			// per-client queues live (§4.4).
		}
	}
	return nil
}

func (b *MemBroker) SetLatestFrame(_ context.Context, cameraID uuid.UUID, jpeg []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.latestFrames[cameraID] = ttlValue[[]byte]{value: jpeg, expires: time.Now().Add(b.latestFrameTTL)}
	return nil
}

func (b *MemBroker) GetLatestFrame(_ context.Context, cameraID uuid.UUID) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.latestFrames[cameraID]
	if !ok || time.Now().After(v.expires) {
		return nil, false
	}
	return v.value, true
}

func (b *MemBroker) SetCameraMeta(_ context.Context, cameraID uuid.UUID, meta CameraMeta) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cameraMetas[cameraID] = ttlValue[CameraMeta]{value: meta, expires: time.Now().Add(b.cameraMetaTTL)}
	return nil
}

func (b *MemBroker) GetCameraMeta(_ context.Context, cameraID uuid.UUID) (CameraMeta, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.cameraMetas[cameraID]
	if !ok || time.Now().After(v.expires) {
		return nil, false
	}
	return v.value, true
}

func (b *MemBroker) PublishEvent(_ context.Context, organizationID uuid.UUID, event store.Event) error {
	b.mu.Lock()
	subs := b.eventSubs[organizationID]
	chans := make([]chan store.Event, 0, len(subs))
	for ch := range subs {
		chans = append(chans, ch)
	}
	b.mu.Unlock()

	for _, ch := range chans {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (b *MemBroker) SubscribeFrames(cameraID uuid.UUID) (<-chan FrameMessage, func()) {
	ch := make(chan FrameMessage, 8)

	b.mu.Lock()
	if b.frameSubs[cameraID] == nil {
		b.frameSubs[cameraID] = make(map[chan FrameMessage]struct{})
	}
	b.frameSubs[cameraID][ch] = struct{}{}
	b.mu.Unlock()

	release := func() {
		b.mu.Lock()
		delete(b.frameSubs[cameraID], ch)
		b.mu.Unlock()
		close(ch)
	}
	return ch, release
}

func (b *MemBroker) SubscribeEvents(organizationID uuid.UUID) (<-chan store.Event, func()) {
	ch := make(chan store.Event, 8)

	b.mu.Lock()
	if b.eventSubs[organizationID] == nil {
		b.eventSubs[organizationID] = make(map[chan store.Event]struct{})
	}
	b.eventSubs[organizationID][ch] = struct{}{}
	b.mu.Unlock()

	release := func() {
		b.mu.Lock()
		delete(b.eventSubs[organizationID], ch)
		b.mu.Unlock()
		close(ch)
	}
	return ch, release
}
