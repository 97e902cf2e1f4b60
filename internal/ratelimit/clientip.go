package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP extracts the caller's address for limit keys. The first
// X-Forwarded-For hop wins when it parses as an IP; otherwise the peer
// address is used.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
