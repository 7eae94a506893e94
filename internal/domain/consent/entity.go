package consent

import (
	"net"
	"strings"
	"time"
)

// Record is an append-only log entry written when a session accepts the
// legal disclaimer.
type Record struct {
	ID                int64     `json:"id"`
	SessionHash       string    `json:"session_hash"`
	DisclaimerVersion string    `json:"disclaimer_version"`
	MaskedIP          string    `json:"ip_masked"`
	CreatedAt         time.Time `json:"created_at"`
}

// MaskIP redacts the most specific segment of a client address:
// 192.168.1.123 -> 192.168.1.xxx, 2001:db8::1 -> 2001:db8::xxxx.
func MaskIP(addr string) string {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "unknown"
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return "unknown"
	}
	if v4 := ip.To4(); v4 != nil {
		s := v4.String()
		return s[:strings.LastIndex(s, ".")] + ".xxx"
	}
	s := ip.String()
	return s[:strings.LastIndex(s, ":")] + ":xxxx"
}
