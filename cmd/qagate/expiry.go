package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var expiryParser = func() *when.Parser {
	p := when.New(nil)
	p.Add(en.All...)
	p.Add(common.All...)
	return p
}()

// parseExpiry accepts RFC 3339 timestamps, dates, Go durations ("72h") and
// English phrases ("in 30 days", "next friday") relative to now.
func parseExpiry(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("--expires is required")
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return now.Add(d), nil
	}

	r, err := expiryParser.Parse(raw, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse --expires %q: %w", raw, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("invalid --expires format %q. Examples: in 30 days, next friday, 72h, 2026-12-31", raw)
	}
	return r.Time, nil
}
