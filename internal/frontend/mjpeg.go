// Package frontend implements the relay handlers that turn the bus's
// frame and event surfaces into the two things a browser can actually
// consume: an MJPEG stream per camera and a server-push event stream per
// organization (§4.4, §2 "Frontend" responsibility). REST reads, auth,
// and the HTML dashboard are out of scope (spec.md §1); this package only
// contains the two relay paths the spec's core depends on a frontend
// process existing at all.
package frontend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/jpeg"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/technosupport/vms-worker/internal/broadcaster"
	"github.com/technosupport/vms-worker/internal/bus"
	"github.com/technosupport/vms-worker/internal/ingest"
	"github.com/technosupport/vms-worker/internal/store"
)

const mjpegBoundary = "vms-frame-boundary"

// MJPEGHandler relays one camera's frame topic to an
// multipart/x-mixed-replace HTTP response, fanning out through a shared
// Broadcaster so N browsers watching the same camera cost one bus
// subscription (§4.4). The camera ID is read with r.PathValue("id").
type MJPEGHandler struct {
	Broadcaster *broadcaster.Broadcaster
	Broker      bus.Broker
	Cameras     store.CameraModel
	Logger      *slog.Logger
}

func (h *MJPEGHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cameraID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid camera id", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if _, err := h.Cameras.GetByID(ctx, cameraID); err != nil {
		h.logger().Warn("camera lookup failed", "camera_id", cameraID, "error", err)
		http.Error(w, "camera not found", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", fmt.Sprintf("multipart/x-mixed-replace; boundary=%s", mjpegBoundary))
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(http.StatusOK)

	// A viewer that just opened the page shouldn't stare at a blank tab
	// until the next publish; render the latest-frame register (or a
	// placeholder if even that TTL has lapsed) first (§7 "frontend
	// displays a placeholder MJPEG when no frames are available within
	// the latest-frame TTL").
	if jpg, ok := h.Broker.GetLatestFrame(ctx, cameraID); ok {
		writeMJPEGPart(w, jpg)
		flusher.Flush()
	} else {
		writeMJPEGPart(w, placeholderJPEG())
		flusher.Flush()
	}

	frames, release := h.Broadcaster.Subscribe(cameraID)
	defer release()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, open := <-frames:
			if !open {
				return
			}
			if err := writeMJPEGPart(w, msg.JPEG); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *MJPEGHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func writeMJPEGPart(w http.ResponseWriter, jpg []byte) error {
	_, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, len(jpg))
	if err != nil {
		return err
	}
	if _, err := w.Write(jpg); err != nil {
		return err
	}
	_, err = fmt.Fprint(w, "\r\n")
	return err
}

// placeholderJPEG synthesizes one "DEMO MODE" frame the same way a
// camera worker does when it has no real source (§4.1.4), reused here so
// a browser that lands on a camera with no frames yet still sees
// something recognizable rather than a broken image icon.
func placeholderJPEG() []byte {
	src := ingest.NewTestPatternSource(640, 480)
	frame, err := src.ReadFrame(context.Background())
	if err != nil {
		return nil
	}
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, frame.Image, &jpeg.Options{Quality: 65})
	return buf.Bytes()
}

// eventWire is the §6.4 JSON payload shape for a published event.
type eventWire struct {
	ID            string  `json:"id"`
	CameraID      string  `json:"camera_id"`
	EventType     string  `json:"event_type"`
	ViolationType string  `json:"violation_type,omitempty"`
	Severity      string  `json:"severity"`
	Confidence    float64 `json:"confidence"`
	ThumbnailPath string  `json:"thumbnail_path,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

func toWire(e store.Event) eventWire {
	return eventWire{
		ID:            e.ID.String(),
		CameraID:      e.CameraID.String(),
		EventType:     string(e.Kind),
		ViolationType: string(e.ViolationKind),
		Severity:      string(e.Severity),
		Confidence:    roundTo2(e.Confidence),
		ThumbnailPath: e.ThumbnailPath,
		CreatedAt:     e.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func roundTo2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

// EventStreamHandler relays one organization's event topic as a
// newline-delimited JSON stream (§4.4: "does no fan-out batching; each
// client streams the full event topic for its tenant").
type EventStreamHandler struct {
	Broker bus.Broker
}

func (h *EventStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid organization id", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(http.StatusOK)

	events, cancel := h.Broker.SubscribeEvents(orgID)
	defer cancel()

	ctx := r.Context()
	enc := json.NewEncoder(w)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			if err := enc.Encode(toWire(ev)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
