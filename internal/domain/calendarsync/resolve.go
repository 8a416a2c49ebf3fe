package calendarsync

import (
	"github.com/clinicbook/clinicbook/pkg/timegrid"
)

// ResolveRemovals computes which stored slot start-times conflict with
// the day's busy segments. A slot occupies [start, start+slotMinutes) and
// conflicts with a segment [segStart, segEnd) when the half-open
// intervals intersect: a slot ending exactly at a segment's start, or
// starting exactly at its end, is not a conflict.
//
// Removed entries preserve their original stored text so the store can
// subtract them exactly. Slot strings that cannot be parsed are kept --
// never retracted -- and returned separately for operator visibility.
// Pure function; resolving the same inputs twice yields the same set.
func ResolveRemovals(slots []string, segments []DaySegment, slotMinutes int) (removed, unparsable []string) {
	for _, slot := range timegrid.ParseSlots(slots) {
		if !slot.Parsed {
			unparsable = append(unparsable, slot.Raw)
			continue
		}
		for _, seg := range segments {
			if slot.Minute < seg.EndMinute && slot.Minute+slotMinutes > seg.StartMinute {
				removed = append(removed, slot.Raw)
				break
			}
		}
	}
	return removed, unparsable
}

// SubtractSlots returns the slot list with the removed entries taken out,
// preserving order. Removing an absent entry is a no-op, which makes
// re-applying a removal set idempotent.
func SubtractSlots(slots, removed []string) []string {
	if len(removed) == 0 {
		return slots
	}
	drop := make(map[string]bool, len(removed))
	for _, r := range removed {
		drop[r] = true
	}
	kept := make([]string, 0, len(slots))
	for _, s := range slots {
		if !drop[s] {
			kept = append(kept, s)
		}
	}
	return kept
}
