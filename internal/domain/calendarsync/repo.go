package calendarsync

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CredentialRepository reads and updates the calendar-sync fields of
// clinician profiles. Connecting and disconnecting a calendar happens
// elsewhere; this engine only advances the cursor and token material.
type CredentialRepository interface {
	// ListConnected returns every clinician with a stored credential.
	ListConnected(ctx context.Context) ([]*Credential, error)
	// Get returns one clinician's credential, or ErrNotConnected.
	Get(ctx context.Context, clinicianID uuid.UUID) (*Credential, error)
	// SaveCursor persists the cursor and last-synced timestamp after a
	// successful cycle.
	SaveCursor(ctx context.Context, clinicianID uuid.UUID, cursor string, syncedAt time.Time) error
	// ClearCursor forces the next fetch to be a full one.
	ClearCursor(ctx context.Context, clinicianID uuid.UUID) error
	// UpdateTokens persists refreshed token material.
	UpdateTokens(ctx context.Context, clinicianID uuid.UUID, accessToken, refreshToken string) error
}

// AvailabilityRepository is the engine's sole mutation path into the
// availability store. Both operations are batched: one round trip per
// call regardless of how many dates a cycle touches.
type AvailabilityRepository interface {
	// LoadByDates returns the slot records for the given dates, keyed by
	// date. Dates without a record are absent from the map.
	LoadByDates(ctx context.Context, clinicianID uuid.UUID, dates []string) (map[string]*DaySlotRecord, error)
	// ApplyRemovals subtracts the given slot start-times per date. Dates
	// with no removals must not be touched; an empty map is a no-op.
	ApplyRemovals(ctx context.Context, clinicianID uuid.UUID, removals map[string][]string) error
}

// ReservationRepository gives read-only access to active bookings. Used
// only to suppress blocked-slot notifications for slots a client already
// holds, never to gate a removal.
type ReservationRepository interface {
	// ListActiveByDates returns, per date, the set of actively reserved
	// slot start-times.
	ListActiveByDates(ctx context.Context, clinicianID uuid.UUID, dates []string) (map[string]map[string]bool, error)
}
