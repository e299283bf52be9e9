//go:build onnx

package model

import (
	"context"
	"fmt"
	"image"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/technosupport/vms-worker/internal/detect"
	"github.com/technosupport/vms-worker/internal/geometry"
)

// ONNXPredictor loads a real detector through onnxruntime_go. It is
// built only with -tags onnx, the same CGO boundary the teacher's
// ai-service ran into and worked around with a mock
// (cmd/ai-service/inference.go): a host without the onnxruntime shared
// library can still build and run this repository against MockPredictor.
type ONNXPredictor struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	classes []string
}

// NewONNXPredictor initializes the ONNX Runtime environment and loads the
// model at modelPath. inputSize is the square side the model expects.
func NewONNXPredictor(modelPath string, inputSize int, classes []string) (*ONNXPredictor, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("model: init onnxruntime: %w", err)
	}

	inputShape := ort.NewShape(1, 3, int64(inputSize), int64(inputSize))
	input, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("model: alloc input tensor: %w", err)
	}

	outputShape := ort.NewShape(1, int64(len(classes)), 25200, 6)
	output, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		return nil, fmt.Errorf("model: alloc output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"images"}, []string{"output"},
		[]ort.Value{input}, []ort.Value{output}, nil)
	if err != nil {
		return nil, fmt.Errorf("model: load onnx session: %w", err)
	}

	return &ONNXPredictor{session: session, input: input, output: output, classes: classes}, nil
}

func (p *ONNXPredictor) Predict(ctx context.Context, img image.Image, confidence float64, size int) ([]detect.Detection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := writeLetterbox(p.input.GetData(), img, size); err != nil {
		return nil, err
	}
	if err := p.session.Run(); err != nil {
		return nil, fmt.Errorf("model: onnx run: %w", err)
	}
	return decodeYOLOOutput(p.output.GetData(), confidence, img.Bounds().Dx(), img.Bounds().Dy(), size, p.classes), nil
}

func (p *ONNXPredictor) Close() error {
	p.input.Destroy()
	p.output.Destroy()
	return p.session.Destroy()
}

// writeLetterbox resizes img into a size x size square RGB plane, scaled
// to [0,1], in CHW order, matching the input layout typical of
// YOLO-family ONNX exports.
func writeLetterbox(dst []float32, img image.Image, size int) error {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return fmt.Errorf("model: empty frame")
	}

	plane := size * size
	for y := 0; y < size; y++ {
		sy := y * h / size
		for x := 0; x < size; x++ {
			sx := x * w / size
			r, g, b, _ := img.At(bounds.Min.X+sx, bounds.Min.Y+sy).RGBA()
			idx := y*size + x
			dst[idx] = float32(r>>8) / 255
			dst[plane+idx] = float32(g>>8) / 255
			dst[2*plane+idx] = float32(b>>8) / 255
		}
	}
	return nil
}

// decodeYOLOOutput turns a raw [N,6] (x1,y1,x2,y2,conf,class) detection
// tensor back into pixel-space Detections, filtering by confidence.
func decodeYOLOOutput(raw []float32, confidence float64, frameW, frameH, modelSize int, classes []string) []detect.Detection {
	var out []detect.Detection
	stride := 6
	sx := float64(frameW) / float64(modelSize)
	sy := float64(frameH) / float64(modelSize)

	for i := 0; i+stride <= len(raw); i += stride {
		conf := float64(raw[i+4])
		if conf < confidence {
			continue
		}
		classID := int(raw[i+5])
		name := ""
		if classID >= 0 && classID < len(classes) {
			name = classes[classID]
		}
		out = append(out, detect.Detection{
			Box: geometry.Box{
				X1: float64(raw[i]) * sx,
				Y1: float64(raw[i+1]) * sy,
				X2: float64(raw[i+2]) * sx,
				Y2: float64(raw[i+3]) * sy,
			},
			ClassID:    classID,
			ClassName:  name,
			Confidence: conf,
		})
	}
	return out
}
