package collector

import (
	"strings"
	"time"

	"github.com/woozymasta/vitals/internal/models"
)

// TimeLayout is the format of last_update written by the collector.
const TimeLayout = time.RFC3339Nano

// legacyLayouts are accepted for stores written by older collectors (naive local time).
var legacyLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseLastUpdate parses a receipt timestamp. A trailing "Z" is accepted for both
// RFC3339 and legacy layouts.
func ParseLastUpdate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t, true
	}

	for _, layout := range legacyLayouts {
		if t, err := time.ParseInLocation(layout, strings.TrimSuffix(s, "Z"), time.Local); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

// StatusAt derives online/offline for a receipt timestamp.
// A missing or unparsable timestamp is offline.
func StatusAt(lastUpdate string, now time.Time, timeout time.Duration) string {
	t, ok := ParseLastUpdate(lastUpdate)
	if !ok || now.Sub(t) > timeout {
		return models.StatusOffline
	}

	return models.StatusOnline
}
