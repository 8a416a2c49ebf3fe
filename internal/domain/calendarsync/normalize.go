package calendarsync

import (
	"time"

	"github.com/clinicbook/clinicbook/pkg/timegrid"
)

// endOfDayMinute is the last blockable minute of a day.
const endOfDayMinute = timegrid.MinutesPerDay - 1

// NormalizeEvent converts an event's start/end instants into busy
// segments per calendar date in the clinic timezone. Pure function.
//
// Single-day events yield one segment. When conversion produces an end
// minute at or before the start minute on the same date, the segment
// defensively extends to end-of-day instead of rejecting the event.
//
// Events whose start and end fall on different local dates yield exactly
// two segments: start date from the start minute to end-of-day, and end
// date from midnight to the end minute. Events spanning more than two
// days get the same treatment, blocking the first and last day only.
func NormalizeEvent(ev ExternalEvent, loc *time.Location) []DaySegment {
	start := ev.Start.In(loc)
	end := ev.End.In(loc)

	startDate := start.Format(timegrid.DateLayout)
	endDate := end.Format(timegrid.DateLayout)
	startMin := timegrid.MinuteOf(start)
	endMin := timegrid.MinuteOf(end)

	if startDate == endDate {
		if endMin <= startMin {
			endMin = endOfDayMinute
		}
		return []DaySegment{{Date: startDate, StartMinute: startMin, EndMinute: endMin}}
	}

	segments := []DaySegment{{Date: startDate, StartMinute: startMin, EndMinute: endOfDayMinute}}
	// An event ending exactly at midnight contributes nothing to its end
	// date: [0, 0) is empty.
	if endMin > 0 {
		segments = append(segments, DaySegment{Date: endDate, StartMinute: 0, EndMinute: endMin})
	}
	return segments
}

// CollectSegments normalizes a batch of events into per-date segment
// lists. Events with missing instants are malformed and skipped; the
// returned count is how many events produced segments.
func CollectSegments(events []ExternalEvent, loc *time.Location) (map[string][]DaySegment, int, []ExternalEvent) {
	byDate := make(map[string][]DaySegment)
	var skipped []ExternalEvent
	seen := 0
	for _, ev := range events {
		if ev.Start.IsZero() || ev.End.IsZero() {
			skipped = append(skipped, ev)
			continue
		}
		seen++
		for _, seg := range NormalizeEvent(ev, loc) {
			byDate[seg.Date] = append(byDate[seg.Date], seg)
		}
	}
	return byDate, seen, skipped
}
