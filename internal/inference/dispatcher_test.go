package inference_test

import (
	"context"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/vms-worker/internal/detect"
	"github.com/technosupport/vms-worker/internal/inference"
	"github.com/technosupport/vms-worker/internal/model"
)

type blockingPredictor struct {
	release chan struct{}
	calls   int
	mu      sync.Mutex
}

func (p *blockingPredictor) Predict(ctx context.Context, img image.Image, confidence float64, size int) ([]detect.Detection, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	<-p.release
	return []detect.Detection{{ClassID: detect.ClassPerson, Confidence: 0.9}}, nil
}

func TestDispatch_SecondCallSkippedWhileFirstInFlight(t *testing.T) {
	predictor := &blockingPredictor{release: make(chan struct{})}
	d := &inference.Dispatcher{
		CameraID: uuid.New(),
		Model:    model.NewSharedModel(predictor, true),
	}

	frame := image.NewRGBA(image.Rect(0, 0, 10, 10))

	ok1 := d.Dispatch(context.Background(), frame, nil, 10, 10)
	require.True(t, ok1)

	// Dispatch sets the in-flight marker itself; give the goroutine a
	// moment to reach the blocking predictor.
	time.Sleep(10 * time.Millisecond)
	ok2 := d.Dispatch(context.Background(), frame, nil, 10, 10)
	assert.False(t, ok2, "a second dispatch while one is in flight must be skipped")

	close(predictor.release)
	time.Sleep(10 * time.Millisecond)
	assert.False(t, d.InFlight())
}

func TestDispatch_PublishesLastDetectionsAfterCompletion(t *testing.T) {
	predictor := &blockingPredictor{release: make(chan struct{})}
	close(predictor.release)
	d := &inference.Dispatcher{
		CameraID: uuid.New(),
		Model:    model.NewSharedModel(predictor, true),
	}

	frame := image.NewRGBA(image.Rect(0, 0, 10, 10))
	require.True(t, d.Dispatch(context.Background(), frame, nil, 10, 10))

	require.Eventually(t, func() bool {
		return d.LastDetections() != nil
	}, time.Second, 5*time.Millisecond)

	assert.Len(t, d.LastDetections(), 1)
}
