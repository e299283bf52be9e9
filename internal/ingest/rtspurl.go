package ingest

import (
	"fmt"
	"net/url"
	"strings"
)

// BuildRTSPURL injects decrypted "username:password" credentials into a
// base RTSP URL, stripping anything already embedded, matching §6.1.
// Grounded on the teacher's rtsp adapter credential re-injection
// (internal/nvr/adapters/rtsp/adapter.go) and media.SanitizeRTSPURL.
func BuildRTSPURL(base string, username, password string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("ingest: parse rtsp url: %w", err)
	}
	if u.Scheme == "" {
		u.Scheme = "rtsp"
	}
	u.User = nil

	if username == "" && password == "" {
		return u.String(), nil
	}
	u.User = url.UserPassword(username, password)
	return u.String(), nil
}

// SplitCredentials splits the decrypted "<username>:<password>" plaintext
// the crypto keyring returns.
func SplitCredentials(plain string) (username, password string) {
	parts := strings.SplitN(plain, ":", 2)
	if len(parts) == 0 {
		return "", ""
	}
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

// SanitizeRTSPURL strips embedded credentials, used when logging or
// surfacing a connect error so secrets never leak (§6.1, §7).
func SanitizeRTSPURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.User = nil
	return u.String()
}
