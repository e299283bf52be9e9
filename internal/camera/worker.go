package camera

import (
	"bytes"
	"context"
	"image"
	"image/draw"
	"image/jpeg"
	"log/slog"
	"strconv"
	"time"

	ximage "golang.org/x/image/draw"

	"github.com/technosupport/vms-worker/internal/annotate"
	"github.com/technosupport/vms-worker/internal/bus"
	"github.com/technosupport/vms-worker/internal/config"
	"github.com/technosupport/vms-worker/internal/detect"
	"github.com/technosupport/vms-worker/internal/events"
	"github.com/technosupport/vms-worker/internal/inference"
	"github.com/technosupport/vms-worker/internal/ingest"
	"github.com/technosupport/vms-worker/internal/metrics"
	"github.com/technosupport/vms-worker/internal/model"
	"github.com/technosupport/vms-worker/internal/store"
)

// Worker runs one camera's state machine (§4.1): connect, stream frames,
// dispatch inference at its own cadence, annotate, and publish. Exactly
// one Worker goroutine runs per Runtime.
type Worker struct {
	Runtime      *Runtime
	Broker       bus.Broker
	Overlayer    *annotate.Overlayer
	Model        *model.SharedModel
	Decryptor    ingest.CredentialDecryptor
	Cameras      store.CameraModel
	Cfg          config.Config
	Logger       *slog.Logger
	Materializer *events.Materializer

	cancel context.CancelFunc
	done   chan struct{}
}

// Start launches the worker's goroutine. Calling Stop waits for it to
// exit, up to Stop's timeout.
func (w *Worker) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	w.cancel = cancel
	w.done = make(chan struct{})

	w.Runtime.Dispatcher = &inference.Dispatcher{
		CameraID:       w.Runtime.Camera.ID,
		OrganizationID: w.Runtime.Camera.OrganizationID,
		Mode:           w.Runtime.Camera.DetectionMode,
		ZonePolygon:    detect.ResolveZonePolygon(w.Runtime.Camera.ZonePolygon),
		Confidence:     w.Runtime.Camera.ConfidenceThresh,
		InferenceSize:  model.ClampInferenceSize(w.Runtime.Camera.InferenceWidth, w.Cfg.InferenceSizeCapPx),
		Model:          w.Model,
		Materializer:   w.Materializer,
		Logger:         w.logger(),
	}

	metrics.ActiveCameraWorkers.Inc()
	go w.run(ctx)
}

// Stop cancels the worker's context and waits for its goroutine to exit,
// bounded by the supervisor's shutdown grace period.
func (w *Worker) Stop(timeout time.Duration) {
	if w.cancel == nil {
		return
	}
	w.cancel()
	select {
	case <-w.done:
	case <-time.After(timeout):
		w.logger().Warn("camera worker did not stop within grace period", "camera_id", w.Runtime.Camera.ID)
	}
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	defer metrics.ActiveCameraWorkers.Dec()
	defer w.setStatus(ctx, store.StatusStopped, "")

	backoff := ingest.Backoff{
		Base:       w.Cfg.RTSPBaseDelay(),
		Max:        w.Cfg.RTSPMaxDelay(),
		MaxRetries: w.Cfg.RTSPMaxRetries,
	}

	for {
		if ctx.Err() != nil {
			return
		}

		w.setStatus(ctx, store.StatusConnecting, "")
		src, err := ingest.Resolve(ctx, w.Runtime.Camera, w.Decryptor, w.Cfg.DemoVideoURL, backoff)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.setStatus(ctx, store.StatusError, err.Error())
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff.Max):
			}
			continue
		}

		w.Runtime.setSource(src)
		w.setStatus(ctx, store.StatusStreaming, "")
		w.streamLoop(ctx, src)
		_ = src.Close()

		if ctx.Err() != nil {
			return
		}
	}
}

// streamLoop reads frames until the source errors or the context is
// cancelled, dispatching inference at the camera's target FPS and
// publishing an annotated frame at stream_fps_max (§4.1 steps 1-9).
func (w *Worker) streamLoop(ctx context.Context, src ingest.Source) {
	targetInterval := fpsInterval(w.Runtime.Camera.TargetFPS, w.Cfg.DefaultTargetFPS)
	streamInterval := fpsInterval(w.Cfg.StreamFPSMax, w.Cfg.StreamFPSMax)

	infW, infH := w.Runtime.Camera.InferenceWidth, w.Runtime.Camera.InferenceHeight
	if sizeCap := w.Cfg.InferenceSizeCapPx; sizeCap > 0 {
		infW, infH = min(infW, sizeCap), min(infH, sizeCap)
	}

	var lastDispatch, lastPublish time.Time
	var seq uint64

	for {
		if ctx.Err() != nil {
			return
		}

		frame, err := src.ReadFrame(ctx)
		if err != nil {
			w.setStatus(ctx, store.StatusError, err.Error())
			return
		}

		img := resizeToInference(frame.Image, infW, infH)

		w.Runtime.recordFrame()
		metrics.StreamFPS.WithLabelValues(w.Runtime.Camera.ID.String()).Set(w.Runtime.StreamFPS())
		_ = w.Cameras.TouchLastSeen(ctx, w.Runtime.Camera.ID)

		now := time.Now()
		var rawJPEG []byte
		if w.Runtime.Camera.InferenceEnabled && now.Sub(lastDispatch) >= targetInterval {
			rawJPEG = encodeJPEG(img, w.Cfg.StreamJPEGQuality)
			if w.Runtime.Dispatcher.Dispatch(ctx, img, rawJPEG, infW, infH) {
				lastDispatch = now
			}
		}

		if now.Sub(lastPublish) >= streamInterval {
			seq++
			w.publishFrame(ctx, img, seq)
			lastPublish = now
		}
	}
}

func (w *Worker) publishFrame(ctx context.Context, img image.Image, seq uint64) {
	annotated := w.annotate(img)
	jpegBytes := encodeJPEG(annotated, w.Cfg.StreamJPEGQuality)

	_ = w.Broker.PublishFrame(ctx, w.Runtime.Camera.ID, jpegBytes, seq)
	_ = w.Broker.SetLatestFrame(ctx, w.Runtime.Camera.ID, jpegBytes)
	_ = w.Broker.SetCameraMeta(ctx, w.Runtime.Camera.ID, bus.CameraMeta{
		"status":          string(w.currentStatus()),
		"stream_fps":      formatFloat(w.Runtime.StreamFPS()),
		"inference_fps":   formatFloat(w.inferenceFPS()),
		"detection_count": strconv.Itoa(len(w.Runtime.LastDetections())),
	})
}

func (w *Worker) annotate(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)

	if !w.Runtime.Camera.InferenceEnabled {
		annotate.AnnotateDisabled(dst, b)
		return dst
	}

	dets := w.Runtime.LastDetections()
	if dets == nil {
		return dst
	}

	switch w.Runtime.Camera.DetectionMode {
	case store.ModePPE:
		w.Overlayer.AnnotatePPE(dst, detect.EvaluatePPE(dets))
	case store.ModeZone:
		polygon := detect.ResolveZonePolygon(w.Runtime.Camera.ZonePolygon)
		persons := detect.PersonsInZone(dets, polygon)
		inZone := make(map[int]bool, len(persons))
		allPersons := make([]detect.Detection, 0, len(dets))
		for _, d := range dets {
			if d.ClassID != detect.ClassPerson {
				continue
			}
			idx := len(allPersons)
			allPersons = append(allPersons, d)
			for _, p := range persons {
				if p == d {
					inZone[idx] = true
				}
			}
		}
		w.Overlayer.AnnotateZone(dst, b, polygon, allPersons, inZone)
	}
	return dst
}

func (w *Worker) setStatus(ctx context.Context, status store.CameraStatus, lastErr string) {
	w.Runtime.SetStatus(status, lastErr)
	_ = w.Cameras.SetStatus(ctx, w.Runtime.Camera.ID, status, lastErr)
}

func (w *Worker) currentStatus() store.CameraStatus {
	status, _ := w.Runtime.Status()
	return status
}

func (w *Worker) inferenceFPS() float64 {
	if w.Runtime.Dispatcher == nil {
		return 0
	}
	return w.Runtime.Dispatcher.InferenceFPS()
}

func (w *Worker) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}

// resizeToInference resizes img to exactly width x height (§4.1 step 1), the
// coordinate space every downstream stage -- inference, annotation,
// publish, dedup grid quantization, and thumbnail cropping -- shares from
// here on. A camera with no configured inference size streams at native
// resolution unchanged.
func resizeToInference(img image.Image, width, height int) image.Image {
	if width <= 0 || height <= 0 {
		return img
	}
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	ximage.CatmullRom.Scale(dst, dst.Bounds(), img, b, ximage.Over, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) []byte {
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	return buf.Bytes()
}

func fpsInterval(fps, fallback float64) time.Duration {
	if fps <= 0 {
		fps = fallback
	}
	if fps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / fps)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}
