package http

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the caller's address: the first X-Forwarded-For entry,
// then X-Real-IP, then the connection's remote address. The value is not
// trusted for anything beyond IP geolocation.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
