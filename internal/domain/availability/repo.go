package availability

import (
	"context"

	"github.com/google/uuid"
)

// Repository reads stored availability rows.
type Repository interface {
	// GetRange returns the rows for days in [from, to], ordered by day.
	GetRange(ctx context.Context, clinicianID uuid.UUID, from, to string) ([]*DayRecord, error)
}

// ReservationReader reports which slots are actively reserved, per date.
type ReservationReader interface {
	ListActiveByDates(ctx context.Context, clinicianID uuid.UUID, dates []string) (map[string]map[string]bool, error)
}
