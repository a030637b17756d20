package shared

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the first X-Forwarded-For hop when it parses as an
// address, otherwise the host of the connection's remote address.
func ClientIP(r *http.Request) string {
	first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
	if addr, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
		return addr.Unmap().String()
	}
	remote := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(remote); err == nil && host != "" {
		return host
	}
	return remote
}
