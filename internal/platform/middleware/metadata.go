package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"kycore/internal/device"
)

type metadataKey struct{}

// Metadata carries request provenance captured for audit trails.
type Metadata struct {
	IP     string
	Device string
}

// CaptureMetadata extracts the client IP and a human-readable device label
// from the request and stores them in the context for downstream audit use.
func CaptureMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta := Metadata{
			IP:     clientIP(r),
			Device: device.ParseUserAgent(r.UserAgent()),
		}
		ctx := context.WithValue(r.Context(), metadataKey{}, meta)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetMetadata returns the request metadata, or a zero value when the
// capture middleware is not installed.
func GetMetadata(ctx context.Context) Metadata {
	meta, _ := ctx.Value(metadataKey{}).(Metadata)
	return meta
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
