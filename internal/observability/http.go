package observability

import (
	"context"
	"net"
	"net/http"
	"strings"
)

const (
	headerDeviceID  = "X-Device-Id"
	headerRequestID = "X-Request-Id"
	headerForwarded = "X-Forwarded-For"
	headerRealIP    = "X-Real-Ip"
)

type requestIDKey struct{}

func DeviceIDFromRequest(r *http.Request) string {
	return r.Header.Get(headerDeviceID)
}

func RequestIDFromRequest(r *http.Request) string {
	return r.Header.Get(headerRequestID)
}

// WithRequestID stores the request id so services can tag audit and event records.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// IPFromRequest prefers the first X-Forwarded-For hop, then X-Real-Ip, then the socket peer.
func IPFromRequest(r *http.Request) string {
	if first, _, _ := strings.Cut(r.Header.Get(headerForwarded), ","); strings.TrimSpace(first) != "" {
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get(headerRealIP); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
