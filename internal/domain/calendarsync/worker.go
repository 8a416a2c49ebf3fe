package calendarsync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicbook/clinicbook/internal/platform/telemetry"
)

// Notifier receives newly retracted slots, already filtered against
// active reservations. Delivery is an external concern; the default
// implementation just logs.
type Notifier interface {
	SlotsRetracted(ctx context.Context, clinicianID uuid.UUID, date string, slots []string, reason string)
}

// LogNotifier logs retractions instead of delivering them anywhere.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (n LogNotifier) SlotsRetracted(_ context.Context, clinicianID uuid.UUID, date string, slots []string, reason string) {
	n.Logger.Info().
		Str("clinician_id", clinicianID.String()).
		Str("date", date).
		Strs("slots", slots).
		Str("reason", reason).
		Msg("slots retracted by calendar sync")
}

// WorkerConfig wires a Worker.
type WorkerConfig struct {
	Fetcher      Fetcher
	Credentials  CredentialRepository
	Availability AvailabilityRepository
	Reservations ReservationRepository // optional
	Notifier     Notifier              // optional
	Metrics      *telemetry.Provider   // optional
	Logger       zerolog.Logger

	Location    *time.Location
	SlotMinutes int
	WindowDays  int
}

// Worker runs one reconciliation cycle for one clinician:
// fetch → normalize → resolve → write → persist cursor. Each stage feeds
// the next; the cursor is persisted only after a successful write, so a
// crash in between replays the same events against an idempotent
// resolver on the next cycle.
type Worker struct {
	fetcher      Fetcher
	creds        CredentialRepository
	avail        AvailabilityRepository
	reservations ReservationRepository
	notifier     Notifier
	metrics      *telemetry.Provider
	logger       zerolog.Logger

	loc         *time.Location
	slotMinutes int
	windowDays  int
}

// NewWorker builds a Worker, applying defaults for optional fields.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("calendarsync: worker requires a fetcher")
	}
	if cfg.Credentials == nil || cfg.Availability == nil {
		return nil, errors.New("calendarsync: worker requires credential and availability repositories")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.SlotMinutes <= 0 {
		cfg.SlotMinutes = 60
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 21
	}
	return &Worker{
		fetcher:      cfg.Fetcher,
		creds:        cfg.Credentials,
		avail:        cfg.Availability,
		reservations: cfg.Reservations,
		notifier:     cfg.Notifier,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		loc:          cfg.Location,
		slotMinutes:  cfg.SlotMinutes,
		windowDays:   cfg.WindowDays,
	}, nil
}

// SyncClinician runs one full cycle for one clinician. On any error the
// availability store and the stored cursor are left exactly as they
// were, except for the documented cursor-expiry recovery path.
func (w *Worker) SyncClinician(ctx context.Context, clinicianID uuid.UUID) (*SyncSummary, error) {
	summary := &SyncSummary{
		ClinicianID: clinicianID,
		Retracted:   map[string][]string{},
		StartedAt:   time.Now(),
	}

	cred, err := w.creds.Get(ctx, clinicianID)
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}

	res, err := w.fetcher.Fetch(ctx, *cred, w.windowDays, cred.Cursor())
	if errors.Is(err, ErrCursorExpired) {
		// Recover in-cycle: clear the stored cursor and retry once as a
		// full fetch. A failure on the retry is an ordinary transient
		// error for this cycle.
		w.logger.Warn().
			Str("clinician_id", clinicianID.String()).
			Msg("sync cursor expired, falling back to full fetch")
		w.metrics.CursorReset()
		summary.CursorReset = true
		if cerr := w.creds.ClearCursor(ctx, clinicianID); cerr != nil {
			return nil, fmt.Errorf("clear expired cursor: %w", cerr)
		}
		res, err = w.fetcher.Fetch(ctx, *cred, w.windowDays, "")
	}
	if err != nil {
		return nil, fmt.Errorf("fetch calendar events: %w", err)
	}
	summary.Incremental = res.Incremental

	if res.TokenRefreshed {
		if terr := w.creds.UpdateTokens(ctx, clinicianID, res.Credential.AccessToken, res.Credential.RefreshToken); terr != nil {
			// The refreshed token still works for this cycle; losing it
			// only forces another refresh next time.
			w.logger.Warn().Err(terr).
				Str("clinician_id", clinicianID.String()).
				Msg("failed to persist refreshed calendar token")
		}
	}

	segmentsByDate, seen, skipped := CollectSegments(res.Events, w.loc)
	summary.EventsSeen = seen
	w.metrics.EventsSeen(seen)
	for _, ev := range skipped {
		w.logger.Warn().
			Str("clinician_id", clinicianID.String()).
			Str("event_id", ev.ID).
			Msg("skipping external event with malformed times")
	}

	if len(segmentsByDate) > 0 {
		if err := w.resolveAndApply(ctx, clinicianID, segmentsByDate, summary); err != nil {
			return nil, err
		}
	}

	// Persist the cursor only after the write completed. A crash before
	// this point replays the same events from the old cursor, which the
	// idempotent resolver absorbs.
	if res.NextCursor != "" {
		if err := w.creds.SaveCursor(ctx, clinicianID, res.NextCursor, time.Now()); err != nil {
			return nil, fmt.Errorf("persist sync cursor: %w", err)
		}
	}

	summary.FinishedAt = time.Now()
	w.metrics.SlotsRetracted(summary.RetractedCount())
	return summary, nil
}

func (w *Worker) resolveAndApply(ctx context.Context, clinicianID uuid.UUID, segmentsByDate map[string][]DaySegment, summary *SyncSummary) error {
	dates := make([]string, 0, len(segmentsByDate))
	for d := range segmentsByDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	records, err := w.avail.LoadByDates(ctx, clinicianID, dates)
	if err != nil {
		return fmt.Errorf("load availability: %w", err)
	}

	removals := make(map[string][]string)
	for _, date := range dates {
		rec := records[date]
		if rec == nil {
			// No published availability for this date; nothing to retract.
			continue
		}
		removed, unparsable := ResolveRemovals(rec.Slots, segmentsByDate[date], w.slotMinutes)
		if len(unparsable) > 0 {
			w.metrics.UnparsableSlots(len(unparsable))
			w.logger.Warn().
				Str("clinician_id", clinicianID.String()).
				Str("date", date).
				Strs("slots", unparsable).
				Msg("unparsable slot strings kept in availability, needs operator review")
		}
		if len(removed) > 0 {
			removals[date] = removed
		}
	}

	if len(removals) == 0 {
		return nil
	}
	if err := w.avail.ApplyRemovals(ctx, clinicianID, removals); err != nil {
		return fmt.Errorf("apply slot removals: %w", err)
	}
	summary.Retracted = removals

	w.notifyRetractions(ctx, clinicianID, dates, removals)
	return nil
}

// notifyRetractions reports newly blocked slots, skipping slots a client
// already actively holds. The reservation read is a courtesy cross-check
// only; failures here never fail the cycle.
func (w *Worker) notifyRetractions(ctx context.Context, clinicianID uuid.UUID, dates []string, removals map[string][]string) {
	if w.notifier == nil {
		return
	}
	var reserved map[string]map[string]bool
	if w.reservations != nil {
		var err error
		reserved, err = w.reservations.ListActiveByDates(ctx, clinicianID, dates)
		if err != nil {
			w.logger.Warn().Err(err).
				Str("clinician_id", clinicianID.String()).
				Msg("reservation cross-check failed, notifying without it")
		}
	}
	for date, slots := range removals {
		notify := slots
		if taken := reserved[date]; len(taken) > 0 {
			notify = nil
			for _, s := range slots {
				if !taken[s] {
					notify = append(notify, s)
				}
			}
		}
		if len(notify) > 0 {
			w.notifier.SlotsRetracted(ctx, clinicianID, date, notify, "external calendar conflict")
		}
	}
}
