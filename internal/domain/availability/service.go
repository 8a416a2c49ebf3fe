package availability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicbook/clinicbook/pkg/timegrid"
)

// ErrInvalidRange is returned for a malformed or backwards date range.
var ErrInvalidRange = errors.New("invalid availability date range")

// maxRangeDays bounds a single availability query.
const maxRangeDays = 60

// Service assembles the open-slot view: stored slots minus actively
// reserved ones, minus entries that cannot be read as start times.
type Service struct {
	repo         Repository
	reservations ReservationReader
	logger       zerolog.Logger
}

func NewService(repo Repository, reservations ReservationReader, logger zerolog.Logger) *Service {
	return &Service{repo: repo, reservations: reservations, logger: logger}
}

// ListOpenSlots returns, per day in [from, to], the bookable slots sorted
// by start time. Days without a stored row are omitted.
func (s *Service) ListOpenSlots(ctx context.Context, clinicianID uuid.UUID, from, to string) ([]DayAvailability, error) {
	fromDay, err := time.Parse(timegrid.DateLayout, from)
	if err != nil {
		return nil, fmt.Errorf("%w: bad from date %q", ErrInvalidRange, from)
	}
	toDay, err := time.Parse(timegrid.DateLayout, to)
	if err != nil {
		return nil, fmt.Errorf("%w: bad to date %q", ErrInvalidRange, to)
	}
	if toDay.Before(fromDay) {
		return nil, fmt.Errorf("%w: to precedes from", ErrInvalidRange)
	}
	if toDay.Sub(fromDay) > maxRangeDays*24*time.Hour {
		return nil, fmt.Errorf("%w: range exceeds %d days", ErrInvalidRange, maxRangeDays)
	}

	records, err := s.repo.GetRange(ctx, clinicianID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}
	if len(records) == 0 {
		return []DayAvailability{}, nil
	}

	dates := make([]string, 0, len(records))
	for _, rec := range records {
		dates = append(dates, rec.Day)
	}
	var reserved map[string]map[string]bool
	if s.reservations != nil {
		reserved, err = s.reservations.ListActiveByDates(ctx, clinicianID, dates)
		if err != nil {
			return nil, fmt.Errorf("load reservations: %w", err)
		}
	}

	out := make([]DayAvailability, 0, len(records))
	for _, rec := range records {
		taken := reserved[rec.Day]
		open := make([]timegrid.Slot, 0, len(rec.Slots))
		for _, slot := range timegrid.ParseSlots(rec.Slots) {
			if !slot.Parsed {
				s.logger.Warn().
					Str("clinician_id", clinicianID.String()).
					Str("day", rec.Day).
					Str("slot", slot.Raw).
					Msg("hiding unreadable slot entry from availability")
				continue
			}
			if taken[slot.Raw] {
				continue
			}
			open = append(open, slot)
		}
		sort.Slice(open, func(i, j int) bool { return open[i].Minute < open[j].Minute })

		slots := make([]string, 0, len(open))
		for _, slot := range open {
			slots = append(slots, slot.Raw)
		}
		out = append(out, DayAvailability{Day: rec.Day, Slots: slots})
	}
	return out, nil
}
