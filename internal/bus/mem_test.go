package bus_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/vms-worker/internal/bus"
	"github.com/technosupport/vms-worker/internal/store"
)

func TestMemBroker_FrameSubscriberReceivesPublishedFrame(t *testing.T) {
	b := bus.NewMemBroker()
	cameraID := uuid.New()

	ch, release := b.SubscribeFrames(cameraID)
	defer release()

	require.NoError(t, b.PublishFrame(context.Background(), cameraID, []byte("jpeg"), 1))

	select {
	case msg := <-ch:
		assert.Equal(t, uint64(1), msg.Seq)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

func TestMemBroker_LatestFrameReadableWithinTTL(t *testing.T) {
	b := bus.NewMemBroker()
	cameraID := uuid.New()

	require.NoError(t, b.SetLatestFrame(context.Background(), cameraID, []byte("jpeg")))
	_, ok := b.GetLatestFrame(context.Background(), cameraID)
	assert.True(t, ok)
}

func TestMemBroker_EventSubscriberReceivesPublishedEvent(t *testing.T) {
	b := bus.NewMemBroker()
	orgID := uuid.New()

	ch, release := b.SubscribeEvents(orgID)
	defer release()

	ev := store.Event{OrganizationID: orgID, ViolationKind: store.ViolationNoHardhat}
	require.NoError(t, b.PublishEvent(context.Background(), orgID, ev))

	select {
	case got := <-ch:
		assert.Equal(t, store.ViolationNoHardhat, got.ViolationKind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestMemBroker_UnknownCameraMetaReportsMissing(t *testing.T) {
	b := bus.NewMemBroker()
	_, ok := b.GetCameraMeta(context.Background(), uuid.New())
	assert.False(t, ok)
}
