// Package calendarsync reconciles a clinician's external calendar with
// the published booking availability. It periodically pulls changed
// events, maps them onto per-day busy segments in the clinic timezone,
// and retracts exactly the bookable slots that now conflict. Retraction
// is one-way: the engine narrows availability and never re-adds a slot.
package calendarsync

import (
	"time"

	"github.com/google/uuid"
)

// ExternalEvent is one busy event pulled from the clinician's external
// calendar. Transient: produced fresh each fetch cycle, never persisted.
type ExternalEvent struct {
	ID         string
	Summary    string
	Start      time.Time
	End        time.Time
	CalendarID string
}

// DaySegment is a normalized busy interval for one calendar date,
// expressed in minutes-of-day. The interval is half-open:
// [StartMinute, EndMinute).
type DaySegment struct {
	Date        string // timegrid.DateLayout
	StartMinute int
	EndMinute   int
}

// Credential holds the calendar-sync fields of a clinician profile. The
// token material is opaque to the engine beyond authenticating a fetch.
// SyncToken is nil until the first successful fetch and cleared when the
// remote reports it expired.
type Credential struct {
	ClinicianID  uuid.UUID
	AccessToken  string
	RefreshToken string
	CalendarID   string
	SyncToken    *string
	LastSyncedAt *time.Time
}

// Cursor returns the stored sync token, or "" when a full fetch is due.
func (c *Credential) Cursor() string {
	if c.SyncToken == nil {
		return ""
	}
	return *c.SyncToken
}

// DaySlotRecord is one availability row: the ordered bookable slot
// start-times for a (clinician, date). Slot strings keep whatever textual
// format the provisioning flow wrote; removal is exact set-subtraction on
// those strings.
type DaySlotRecord struct {
	ClinicianID uuid.UUID
	Day         string
	Slots       []string
	UpdatedAt   time.Time
}

// activeReservationStatuses is the status set that marks a reservation as
// occupying its slot.
var activeReservationStatuses = []string{"booked", "confirmed", "rescheduled"}

// SyncSummary reports one reconciliation cycle for observability. It is
// never used for correctness decisions.
type SyncSummary struct {
	ClinicianID uuid.UUID           `json:"clinician_id"`
	Incremental bool                `json:"incremental"`
	CursorReset bool                `json:"cursor_reset"`
	EventsSeen  int                 `json:"events_seen"`
	Retracted   map[string][]string `json:"retracted"` // date -> removed slot starts
	StartedAt   time.Time           `json:"started_at"`
	FinishedAt  time.Time           `json:"finished_at"`
}

// RetractedCount returns the total number of slots removed in the cycle.
func (s *SyncSummary) RetractedCount() int {
	n := 0
	for _, slots := range s.Retracted {
		n += len(slots)
	}
	return n
}
