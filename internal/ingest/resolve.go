package ingest

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/technosupport/vms-worker/internal/store"
)

// CredentialDecryptor decrypts a camera's envelope-encrypted credential
// blob into the plaintext "username:password" form (§6.1).
type CredentialDecryptor interface {
	DecryptCredentials(organizationID, cameraID string, blob []byte) (string, error)
}

// Backoff implements the exponential reconnection policy of §4.1.3:
// delay = min(base * 2^attempt, max), used between resolve attempts.
type Backoff struct {
	Base       time.Duration
	Max        time.Duration
	MaxRetries int
}

func (b Backoff) Delay(attempt int) time.Duration {
	d := time.Duration(float64(b.Base) * math.Pow(2, float64(attempt)))
	if d > b.Max || d <= 0 {
		d = b.Max
	}
	return d
}

// Resolve implements the source-selection fallback chain of §4.1.1: try
// each candidate in order, open it (which blocks until one frame is
// read), and use the first that succeeds.
func Resolve(ctx context.Context, cam store.Camera, decryptor CredentialDecryptor, demoVideoURL string, backoff Backoff) (Source, error) {
	var lastErr error

	if cam.UsePlaceholder && cam.PlaceholderVideo != "" {
		if src, err := openWithRetry(ctx, func() Source { return NewFFmpegSource(cam.PlaceholderVideo) }, backoff); err == nil {
			return src, nil
		} else {
			lastErr = err
		}
	}

	if cam.SourceKind == store.SourceRTSP && cam.RTSPURL != "" {
		url, err := resolveRTSPURL(cam, decryptor)
		if err != nil {
			lastErr = fmt.Errorf("ingest: credential error: %w", err)
		} else if src, err := openWithRetry(ctx, func() Source { return NewFFmpegSource(url) }, backoff); err == nil {
			return src, nil
		} else {
			lastErr = err
		}
	}

	if cam.SourceKind == store.SourceFile && cam.PlaceholderVideo != "" {
		if src, err := openWithRetry(ctx, func() Source { return NewFFmpegSource(cam.PlaceholderVideo) }, backoff); err == nil {
			return src, nil
		} else {
			lastErr = err
		}
	}

	if demoVideoURL != "" {
		if src, err := openWithRetry(ctx, func() Source { return NewFFmpegSource(demoVideoURL) }, backoff); err == nil {
			return src, nil
		} else {
			lastErr = err
		}
	}

	src := NewTestPatternSource(cam.InferenceWidth, cam.InferenceHeight)
	if err := src.Open(ctx); err != nil {
		if lastErr != nil {
			return nil, fmt.Errorf("ingest: all sources failed, last: %v: %w", lastErr, err)
		}
		return nil, err
	}
	return src, nil
}

func resolveRTSPURL(cam store.Camera, decryptor CredentialDecryptor) (string, error) {
	if len(cam.EncryptedCreds) == 0 {
		return BuildRTSPURL(cam.RTSPURL, "", "")
	}
	plain, err := decryptor.DecryptCredentials(cam.OrganizationID.String(), cam.ID.String(), cam.EncryptedCreds)
	if err != nil {
		return "", err
	}
	user, pass := SplitCredentials(plain)
	return BuildRTSPURL(cam.RTSPURL, user, pass)
}

// openWithRetry applies the exponential backoff policy across up to
// MaxRetries attempts to Open a freshly constructed source.
func openWithRetry(ctx context.Context, newSrc func() Source, backoff Backoff) (Source, error) {
	maxRetries := backoff.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		src := newSrc()
		err := src.Open(ctx)
		if err == nil {
			return src, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff.Delay(attempt)):
		}
	}
	return nil, fmt.Errorf("ingest: source exhausted %d attempts: %w", maxRetries, lastErr)
}
