package auth

import (
	"strconv"
	"time"
)

// ParseTTL interprets a token-expiration duration string whose final
// character is a unit (s, m, h, d); any other unit yields 0. Used for the
// CMS_ACCESS_TOKEN_TTL / CMS_REFRESH_TOKEN_TTL configuration values, which need a
// "d" (day) unit that time.ParseDuration does not support.
func ParseTTL(s string) time.Duration {
	if len(s) < 2 {
		return 0
	}
	unit := s[len(s)-1]
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return 0
	}

	switch unit {
	case 's':
		return time.Duration(n) * time.Second
	case 'm':
		return time.Duration(n) * time.Minute
	case 'h':
		return time.Duration(n) * time.Hour
	case 'd':
		return time.Duration(n) * 24 * time.Hour
	default:
		return 0
	}
}
