package security

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP returns the caller's address for rate limiting and audit logs.
//
// Forwarding headers are only honored when trustProxy is set. X-Forwarded-For
// is read right to left: the last trustedProxyCount hops are our own proxies
// and the entry before them is the client. A count of 0 is treated as 1.
func GetClientIP(r *http.Request, trustProxy bool, trustedProxyCount int) string {
	if trustProxy {
		if ip := clientFromForwardedFor(r.Header.Get("X-Forwarded-For"), trustedProxyCount); ip != "" {
			return ip
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(ip) != nil {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func clientFromForwardedFor(xff string, trustedProxyCount int) string {
	if xff == "" {
		return ""
	}
	hops := strings.Split(xff, ",")

	if trustedProxyCount <= 0 {
		trustedProxyCount = 1
	}
	idx := len(hops) - trustedProxyCount - 1
	if idx < 0 {
		idx = 0
	}

	ip := strings.TrimSpace(hops[idx])
	if net.ParseIP(ip) == nil {
		return ""
	}
	return ip
}
