package netwatch

import (
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// IsLoopbackAddr reports whether host (a "host", "host:port", or full URL)
// refers to the local machine. Used to skip reachability polling against
// an external probe address when the stream itself never leaves the box —
// a local Unix-socket-backed demo or test server gains nothing from an
// "is the internet up" check.
func IsLoopbackAddr(target string) bool {
	host := target
	if u, err := url.Parse(target); err == nil && u.Host != "" {
		host = u.Host
	}
	h, _, err := net.SplitHostPort(host)
	if err != nil {
		h = strings.Trim(host, "[]")
	}
	if h == "localhost" {
		return true
	}
	ip, err := netip.ParseAddr(h)
	if err != nil {
		return false
	}
	return ip.IsLoopback()
}
