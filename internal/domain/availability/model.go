// Package availability serves the client-facing read side of the booking
// grid: the open, bookable slots per clinician per day. The calendar sync
// engine narrows this data; this package only reads it.
package availability

import (
	"time"

	"github.com/google/uuid"
)

// DayRecord is one stored availability row.
type DayRecord struct {
	ClinicianID uuid.UUID
	Day         string
	Slots       []string
	UpdatedAt   time.Time
}

// DayAvailability is the API view of one day: open slots only, sorted by
// start time, with reserved and unreadable entries filtered out.
type DayAvailability struct {
	Day   string   `json:"day"`
	Slots []string `json:"slots"`
}
