package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var cutoffLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseCutoff turns a retention cutoff into an absolute UTC time. Absolute
// values are accepted in RFC3339 or date-only form; relative values such as
// "30d" or "36h" are subtracted from now.
func ParseCutoff(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty cutoff")
	}

	for _, layout := range cutoffLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}

	if strings.HasSuffix(value, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(value, "d"))
		if err == nil {
			if days < 0 {
				return time.Time{}, fmt.Errorf("negative age %q", value)
			}
			return now.UTC().AddDate(0, 0, -days), nil
		}
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognised cutoff %q", value)
	}
	if d < 0 {
		return time.Time{}, fmt.Errorf("negative age %q", value)
	}
	return now.UTC().Add(-d), nil
}
