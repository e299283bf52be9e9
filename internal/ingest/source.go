// Package ingest implements the FrameSource contract: a source yields
// decoded raster frames at its own native rate, agnostic of what feeds
// downstream inference. RTSP/file decoding itself is delegated to ffmpeg
// subprocesses (§1 treats decoding as an external concern; this package
// only owns the "frame source" boundary above it).
package ingest

import (
	"context"
	"errors"
	"image"
	"time"
)

// ErrNoFrame is returned by ReadFrame when the source is temporarily
// unable to produce a frame (a transient-source error per §7).
var ErrNoFrame = errors.New("ingest: no frame available")

// ErrSourceClosed is returned once Close has been called.
var ErrSourceClosed = errors.New("ingest: source closed")

// Frame is one decoded raster frame with its wall-clock arrival time.
type Frame struct {
	Image image.Image
	Seq   uint64
	At    time.Time
}

// Source is a FrameSource: something that can be opened, read from at its
// own pace, and closed. Open only returns successfully once the first
// frame has actually been read, matching §4.1.3's "a connect is
// successful only after one frame is read".
type Source interface {
	Open(ctx context.Context) error
	ReadFrame(ctx context.Context) (Frame, error)
	Close() error
}
