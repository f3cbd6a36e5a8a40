package parse

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var spaceRe = regexp.MustCompile(`\s+`)

// NormalizePlate trims a license plate, collapses inner whitespace and upper-cases it.
func NormalizePlate(raw string) string {
	s := strings.TrimSpace(raw)
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.ToUpper(s)
}

// timeLayouts are the formats accepted from devices, most specific first.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Time parses a device-supplied timestamp. Values without a zone are read as UTC.
func Time(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse time: %q", raw)
}
