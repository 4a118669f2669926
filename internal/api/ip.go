package api

import (
	"net"
	"net/http"
	"strings"
)

// clientKey derives the rate-limit key for a request. Proxy headers are
// consulted first so every replica behind the same load balancer sees the
// same key for a given sender. Requests with no usable address all share
// the "unknown" bucket rather than bypassing the limiter.
func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		// First hop is the original client; later entries are proxies.
		for _, part := range strings.Split(fwd, ",") {
			candidate := strings.TrimSpace(part)
			if ip := net.ParseIP(candidate); ip != nil {
				return ip.String()
			}
		}
	}

	if real := r.Header.Get("X-Real-IP"); real != "" {
		if ip := net.ParseIP(strings.TrimSpace(real)); ip != nil {
			return ip.String()
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}

	return "unknown"
}
