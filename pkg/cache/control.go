package cache

import (
	"strconv"
	"strings"
	"time"
)

// Control is the subset of Cache-Control this system consumes.
type Control struct {
	// MaxAge is the parsed max-age directive. Nil when absent or
	// unparseable, which means the response is cached without expiry.
	MaxAge *time.Duration

	// NoStore reports a no-store directive: the response must not be
	// written to the cache at all.
	NoStore bool
}

// ParseControl extracts max-age and no-store from a Cache-Control header
// value. Directive names are matched case-insensitively; malformed or
// negative max-age values are ignored rather than rejected, matching the
// tolerant parsing applied to origin headers elsewhere.
func ParseControl(header string) Control {
	var ctl Control

	for _, part := range strings.Split(header, ",") {
		directive := strings.ToLower(strings.TrimSpace(part))

		if directive == "no-store" {
			ctl.NoStore = true
			continue
		}

		if value, ok := strings.CutPrefix(directive, "max-age="); ok {
			seconds, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil || seconds < 0 {
				continue
			}
			maxAge := time.Duration(seconds) * time.Second
			ctl.MaxAge = &maxAge
		}
	}

	return ctl
}

// Metadata converts the parsed control into store metadata.
func (c Control) Metadata() Metadata {
	return Metadata{MaxAge: c.MaxAge}
}
