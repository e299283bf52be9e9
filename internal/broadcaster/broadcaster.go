// Package broadcaster fans a single bus subscription per camera out to
// many bounded per-client queues (§4.4's SharedFrameBroadcaster), so N
// viewers of the same camera never cost N bus subscriptions.
package broadcaster

import (
	"sync"

	"github.com/google/uuid"

	"github.com/technosupport/vms-worker/internal/bus"
)

// defaultQueueDepth is the per-client buffer size; once a client is this
// many frames behind, newly published frames are dropped for it until it
// drains its queue, rather than stalling the fan-out.
const defaultQueueDepth = 5

// Broadcaster is the process-wide frame fan-out. One instance is shared
// by every frontend connection handler.
type Broadcaster struct {
	broker     bus.Broker
	queueDepth int

	mu      sync.Mutex
	cameras map[uuid.UUID]*fanout
}

type fanout struct {
	mu       sync.Mutex
	refCount int
	release  func()
	clients  map[chan bus.FrameMessage]struct{}
}

func New(broker bus.Broker, queueDepth int) *Broadcaster {
	if queueDepth < 1 {
		queueDepth = defaultQueueDepth
	}
	return &Broadcaster{
		broker:     broker,
		queueDepth: queueDepth,
		cameras:    make(map[uuid.UUID]*fanout),
	}
}

// Subscribe returns a bounded per-client channel of frames for cameraID
// and a release func the caller must call exactly once when done. The
// underlying bus subscription is created on the first subscriber and torn
// down when the last one releases (§4.4).
func (b *Broadcaster) Subscribe(cameraID uuid.UUID) (<-chan bus.FrameMessage, func()) {
	b.mu.Lock()
	fo, ok := b.cameras[cameraID]
	if !ok {
		fo = b.startFanout(cameraID)
		b.cameras[cameraID] = fo
	}
	b.mu.Unlock()

	client := make(chan bus.FrameMessage, b.queueDepth)

	fo.mu.Lock()
	fo.clients[client] = struct{}{}
	fo.refCount++
	fo.mu.Unlock()

	released := false
	release := func() {
		if released {
			return
		}
		released = true
		b.releaseClient(cameraID, fo, client)
	}
	return client, release
}

func (b *Broadcaster) startFanout(cameraID uuid.UUID) *fanout {
	upstream, cancel := b.broker.SubscribeFrames(cameraID)
	fo := &fanout{
		release: cancel,
		clients: make(map[chan bus.FrameMessage]struct{}),
	}

	go func() {
		for msg := range upstream {
			fo.mu.Lock()
			for ch := range fo.clients {
				select {
				case ch <- msg:
				default:
					// Drop for this one slow client; others keep flowing.
				}
			}
			fo.mu.Unlock()
		}
	}()

	return fo
}

func (b *Broadcaster) releaseClient(cameraID uuid.UUID, fo *fanout, client chan bus.FrameMessage) {
	fo.mu.Lock()
	delete(fo.clients, client)
	close(client)
	fo.refCount--
	last := fo.refCount == 0
	fo.mu.Unlock()

	if !last {
		return
	}

	b.mu.Lock()
	if b.cameras[cameraID] == fo {
		delete(b.cameras, cameraID)
	}
	b.mu.Unlock()
	fo.release()
}
