package util

import (
	"net"
	"strings"
)

// IsLoopbackHostname reports whether hostname (without port) is "localhost"
// or a loopback IP literal. IPv6 brackets are accepted.
func IsLoopbackHostname(hostname string) bool {
	if strings.EqualFold(hostname, "localhost") {
		return true
	}
	hostname = strings.TrimSuffix(strings.TrimPrefix(hostname, "["), "]")
	ip := net.ParseIP(hostname)
	return ip != nil && ip.IsLoopback()
}

// IsPrivateOrInternal reports whether ip is anything other than a public
// unicast address: loopback, private, link-local or unspecified.
func IsPrivateOrInternal(ip net.IP) bool {
	if ip == nil {
		return true
	}
	return ip.IsUnspecified() ||
		ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast()
}
