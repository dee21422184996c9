package utils

import (
	"net"
	"strings"
)

// NormalizeIP strips port information from an address, so that
// "192.168.1.1:25565" becomes "192.168.1.1" and "[2001:db8::1]:25565"
// becomes "2001:db8::1". Already-bare addresses pass through unchanged.
func NormalizeIP(addr string) string {
	if addr == "" {
		return addr
	}

	// Bracketed IPv6 with or without a port.
	if strings.HasPrefix(addr, "[") {
		if end := strings.Index(addr, "]"); end != -1 {
			return addr[1:end]
		}
	}

	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}

	// Unbracketed IPv6 followed by a port: split on the last colon and
	// keep the prefix only when it still parses as an address.
	if idx := strings.LastIndex(addr, ":"); idx > 0 {
		prefix, suffix := addr[:idx], addr[idx+1:]
		if isDigits(suffix) && net.ParseIP(prefix) != nil {
			return prefix
		}
	}

	return addr
}

// IsValidIP reports whether s is a literal IPv4 or IPv6 address.
func IsValidIP(s string) bool {
	return net.ParseIP(s) != nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
