package camera

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResizeToInference_ProducesRequestedDimensions(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1920, 1080))

	out := resizeToInference(src, 320, 320)
	assert.Equal(t, 320, out.Bounds().Dx())
	assert.Equal(t, 320, out.Bounds().Dy())
}

func TestResizeToInference_NoopWhenAlreadyTargetSize(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 320, 320))

	out := resizeToInference(src, 320, 320)
	assert.Same(t, src, out)
}

func TestResizeToInference_NoopWhenUnconfigured(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1920, 1080))

	out := resizeToInference(src, 0, 0)
	assert.Same(t, src, out)
}
