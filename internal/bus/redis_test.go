package bus_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/vms-worker/internal/bus"
)

func newTestRedisBroker(t *testing.T) *bus.RedisBroker {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return bus.NewRedisBroker(client, 2)
}

func TestRedisBroker_LatestFrameRoundTrips(t *testing.T) {
	b := newTestRedisBroker(t)
	cameraID := uuid.New()

	require.NoError(t, b.SetLatestFrame(context.Background(), cameraID, []byte("jpeg-bytes")))

	got, ok := b.GetLatestFrame(context.Background(), cameraID)
	require.True(t, ok)
	require.Equal(t, []byte("jpeg-bytes"), got)
}

func TestRedisBroker_CameraMetaRoundTrips(t *testing.T) {
	b := newTestRedisBroker(t)
	cameraID := uuid.New()

	meta := bus.CameraMeta{"status": "streaming", "fps": "12.0"}
	require.NoError(t, b.SetCameraMeta(context.Background(), cameraID, meta))

	got, ok := b.GetCameraMeta(context.Background(), cameraID)
	require.True(t, ok)
	require.Equal(t, "streaming", got["status"])
}

func TestRedisBroker_MissingLatestFrameReportsMissing(t *testing.T) {
	b := newTestRedisBroker(t)
	_, ok := b.GetLatestFrame(context.Background(), uuid.New())
	require.False(t, ok)
}
