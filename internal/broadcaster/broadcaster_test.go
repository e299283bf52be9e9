package broadcaster_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/vms-worker/internal/broadcaster"
	"github.com/technosupport/vms-worker/internal/bus"
)

func TestBroadcaster_MultipleSubscribersAllReceiveFrame(t *testing.T) {
	broker := bus.NewMemBroker()
	b := broadcaster.New(broker, 2)
	cameraID := uuid.New()

	ch1, release1 := b.Subscribe(cameraID)
	defer release1()
	ch2, release2 := b.Subscribe(cameraID)
	defer release2()

	require.NoError(t, broker.PublishFrame(context.Background(), cameraID, []byte("frame"), 1))

	for _, ch := range []<-chan bus.FrameMessage{ch1, ch2} {
		select {
		case msg := <-ch:
			assert.Equal(t, uint64(1), msg.Seq)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive frame")
		}
	}
}

func TestBroadcaster_ReleaseStopsDelivery(t *testing.T) {
	broker := bus.NewMemBroker()
	b := broadcaster.New(broker, 2)
	cameraID := uuid.New()

	ch, release := b.Subscribe(cameraID)
	release()

	require.NoError(t, broker.PublishFrame(context.Background(), cameraID, []byte("frame"), 1))

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after release")
	case <-time.After(100 * time.Millisecond):
		t.Fatal("channel neither closed nor delivered")
	}
}
