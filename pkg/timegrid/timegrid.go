// Package timegrid converts the textual slot start-times stored on
// availability rows into minutes-of-day. Historical rows carry more than
// one format (24-hour, 12-hour with meridiem, and ranged "start - end"
// strings), so parsing returns a tagged result rather than guessing.
package timegrid

import (
	"fmt"
	"strings"
	"time"
)

// MinutesPerDay is the number of minutes in a calendar day.
const MinutesPerDay = 1440

// DateLayout is the canonical textual form of a calendar date.
const DateLayout = "2006-01-02"

// Slot is the tagged result of parsing one stored slot string. When
// Parsed is false, Minute is meaningless and Raw holds the original text.
type Slot struct {
	Raw    string
	Minute int
	Parsed bool
}

var startLayouts = []string{
	"15:04",
	"15:04:05",
	"3:04 PM",
	"3:04PM",
}

// ParseStartMinute parses a stored slot start-time into a minute-of-day.
// Ranged strings ("10:00 AM - 11:00 AM") resolve to the range start.
func ParseStartMinute(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if i := strings.Index(s, " - "); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	upper := strings.ToUpper(s)
	for _, layout := range startLayouts {
		t, err := time.Parse(layout, upper)
		if err != nil {
			continue
		}
		return t.Hour()*60 + t.Minute(), true
	}
	return 0, false
}

// ParseSlots parses every stored slot string, preserving order and the
// original text for unparsable entries.
func ParseSlots(raw []string) []Slot {
	out := make([]Slot, 0, len(raw))
	for _, r := range raw {
		m, ok := ParseStartMinute(r)
		out = append(out, Slot{Raw: r, Minute: m, Parsed: ok})
	}
	return out
}

// FormatMinute renders a minute-of-day as 24-hour "HH:MM".
func FormatMinute(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// MinuteOf returns the minute-of-day of an instant in its location.
func MinuteOf(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
