package observability

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxRouteLength  = 180
	maxMethodLength = 10
	maxIDLength     = 64

	sessionOwnerPrefix = "session:"
	visibleSessionRune = 4
)

// clip drops control characters (newlines included) so a single value cannot forge extra
// log lines, then truncates to limit runes.
func clip(value string, limit int) string {
	var b strings.Builder
	b.Grow(min(len(value), limit*utf8.UTFMax))
	n := 0
	for _, r := range value {
		if unicode.IsControl(r) {
			continue
		}
		if n == limit {
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

// SanitizeRoute cleans a request path or route pattern for logging.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return clip(route, maxRouteLength)
}

// SanitizeMethod cleans an HTTP method for logging.
func SanitizeMethod(method string) string {
	return clip(strings.ToUpper(method), maxMethodLength)
}

// RedactOwnerKey masks guest session tokens in cart owner keys. Session tokens authorise
// access to a guest cart, so only a short prefix is kept. Customer keys pass through.
func RedactOwnerKey(key string) string {
	token, ok := strings.CutPrefix(key, sessionOwnerPrefix)
	if !ok {
		return clip(key, maxIDLength)
	}
	token = clip(token, maxIDLength)
	if utf8.RuneCountInString(token) <= visibleSessionRune {
		return sessionOwnerPrefix + "***"
	}
	return sessionOwnerPrefix + string([]rune(token)[:visibleSessionRune]) + "***"
}
