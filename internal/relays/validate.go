package relays

import (
	"fmt"
	"net/url"
	"regexp"
)

var validHostname = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// ValidateURL checks that raw is a ws:// or wss:// URL with a plausible host.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return fmt.Errorf("invalid scheme '%s', expected 'ws' or 'wss'", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("missing host")
	}
	if len(host) > 253 {
		return fmt.Errorf("hostname too long")
	}
	if !validHostname.MatchString(host) {
		return fmt.Errorf("invalid hostname characters")
	}
	return nil
}
