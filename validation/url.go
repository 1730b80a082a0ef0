package validation

import (
	"fmt"
	"regexp"
)

// urlPattern accepts http(s) URLs, bare domains, localhost, and dotted IPs
// with optional port and path.
var urlPattern = regexp.MustCompile(`(?i)^(https?://)?` +
	`(?:(?:[A-Z0-9](?:[A-Z0-9-]{0,61}[A-Z0-9])?\.)+[A-Z]{2,6}\.?|` +
	`localhost|` +
	`\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})` +
	`(?::\d+)?` +
	`(?:/?|[/?]\S+)$`)

// IsURL reports whether s looks like a launchable URL. The scheme is
// optional; the kiosk prefixes http:// when absent.
func IsURL(s string) bool {
	return urlPattern.MatchString(s)
}

// URL requires a string accepted by IsURL.
func URL() Func {
	return func(value any) error {
		s, ok := value.(string)
		if !ok || !IsURL(s) {
			return fmt.Errorf("%w: must be a valid URL", ErrInvalid)
		}
		return nil
	}
}
