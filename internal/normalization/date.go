package normalization

import (
	"strings"
	"time"
)

// DateLayout is the normalized form every parsed date is rendered back into.
const DateLayout = "2006-01-02"

// dateLayouts covers the formats observed across the source exports. Order
// matters: the first layout that parses wins.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"01/2006",
	"2006-01",
	"Jan 2006",
	"January 2006",
	"2006",
}

// ParseDate parses a raw date value into UTC midnight. Returns false when the
// value is blank, a null sentinel, or matches none of the known layouts.
func ParseDate(raw string) (time.Time, bool) {
	v := strings.TrimSpace(raw)
	if IsBlank(v) {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), true
		}
	}
	// Timestamps: keep the calendar date, drop the time part.
	if len(v) > len(DateLayout) {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			y, m, d := t.UTC().Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
		}
		if t, err := time.Parse(DateLayout, v[:len(DateLayout)]); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// FormatDate renders a date in the normalized layout.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// IsOpenEndedDate reports whether the raw value is one of the open-ended
// sentinels sources use for "still ongoing" (placeholder far-future dates or
// textual markers).
func IsOpenEndedDate(raw string) bool {
	v := ParseInputString(raw)
	switch v {
	case "present", "current", "ongoing", "now", "to date":
		return true
	}
	if t, ok := ParseDate(raw); ok && t.Year() >= 9000 {
		return true
	}
	return false
}
