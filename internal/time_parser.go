// internal/time_parser.go
// ------------------------
// Helpers for turning the time values the control plane sends back into Go
// types: Retry-After headers on throttled or accepted responses, and the
// loosely formatted UTC timestamps in operation status bodies.
package internal

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// ParseRetryAfter converts a Retry-After header value into a wait relative
// to now. It accepts delta-seconds ("5"), an HTTP-date, or Go duration text
// ("1s", "6m0s"). The boolean is false when the value is absent or unusable.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if sec, err := strconv.Atoi(value); err == nil {
		if sec < 0 {
			return 0, false
		}
		return time.Duration(sec) * time.Second, true
	}

	if d, err := time.ParseDuration(value); err == nil {
		if d < 0 {
			return 0, false
		}
		return d, true
	}

	if at, err := http.ParseTime(value); err == nil {
		wait := at.Sub(now)
		if wait < 0 {
			wait = 0
		}
		return wait, true
	}

	return 0, false
}

// ParseTimestamp parses the timestamps found in operation status bodies,
// which are not consistently RFC 3339. Zero is returned for empty or
// unparseable input.
func ParseTimestamp(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	t, err := dateparse.ParseIn(value, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}
