package timehelper

import (
	"strings"
	"time"

	"golang.org/x/xerrors"
)

const (
	DateLayout      = "2006-01-02"
	TimestampLayout = "2006-01-02T15:04"
)

var acceptedLayouts = []string{
	TimestampLayout,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	time.RFC3339,
}

func GetTodaysDateString(loc *time.Location) string {
	return time.Now().In(loc).Format(DateLayout)
}

// ParseTimestamp reads the timestamps stored on matches and parties. Values
// without an offset are interpreted in loc.
func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range acceptedLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, xerrors.Errorf("unrecognized timestamp %q", value)
}

func FormatTimestamp(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(TimestampLayout)
}

func ParseDate(value string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(value), loc)
}

// SameDay reports whether t falls on the calendar day that starts at day.
func SameDay(t, day time.Time) bool {
	t = t.In(day.Location())
	y1, m1, d1 := t.Date()
	y2, m2, d2 := day.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
