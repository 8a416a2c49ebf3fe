package calendarsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicbook/clinicbook/pkg/timegrid"
)

// =========== Credential Repository ===========

type credentialRepoPG struct{ pool *pgxpool.Pool }

func NewCredentialRepoPG(pool *pgxpool.Pool) CredentialRepository {
	return &credentialRepoPG{pool: pool}
}

const credCols = `clinician_id, access_token, refresh_token, calendar_id, sync_token, last_synced_at`

func scanCredential(row pgx.Row) (*Credential, error) {
	var c Credential
	var refresh *string
	err := row.Scan(&c.ClinicianID, &c.AccessToken, &refresh, &c.CalendarID, &c.SyncToken, &c.LastSyncedAt)
	if err != nil {
		return nil, err
	}
	if refresh != nil {
		c.RefreshToken = *refresh
	}
	return &c, nil
}

func (r *credentialRepoPG) ListConnected(ctx context.Context) ([]*Credential, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+credCols+` FROM clinician_calendar_credential ORDER BY clinician_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *credentialRepoPG) Get(ctx context.Context, clinicianID uuid.UUID) (*Credential, error) {
	c, err := scanCredential(r.pool.QueryRow(ctx,
		`SELECT `+credCols+` FROM clinician_calendar_credential WHERE clinician_id = $1`, clinicianID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotConnected
	}
	return c, err
}

func (r *credentialRepoPG) SaveCursor(ctx context.Context, clinicianID uuid.UUID, cursor string, syncedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE clinician_calendar_credential
		SET sync_token = $2, last_synced_at = $3, updated_at = NOW()
		WHERE clinician_id = $1`,
		clinicianID, cursor, syncedAt)
	return err
}

func (r *credentialRepoPG) ClearCursor(ctx context.Context, clinicianID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE clinician_calendar_credential
		SET sync_token = NULL, updated_at = NOW()
		WHERE clinician_id = $1`,
		clinicianID)
	return err
}

func (r *credentialRepoPG) UpdateTokens(ctx context.Context, clinicianID uuid.UUID, accessToken, refreshToken string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE clinician_calendar_credential
		SET access_token = $2, refresh_token = COALESCE(NULLIF($3, ''), refresh_token), updated_at = NOW()
		WHERE clinician_id = $1`,
		clinicianID, accessToken, refreshToken)
	return err
}

// =========== Availability Repository ===========

type availabilityRepoPG struct{ pool *pgxpool.Pool }

func NewAvailabilityRepoPG(pool *pgxpool.Pool) AvailabilityRepository {
	return &availabilityRepoPG{pool: pool}
}

func (r *availabilityRepoPG) LoadByDates(ctx context.Context, clinicianID uuid.UUID, dates []string) (map[string]*DaySlotRecord, error) {
	out := make(map[string]*DaySlotRecord, len(dates))
	if len(dates) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT clinician_id, day, slots, updated_at
		FROM availability_day
		WHERE clinician_id = $1 AND day = ANY($2::date[])`,
		clinicianID, dates)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var rec DaySlotRecord
		var day time.Time
		if err := rows.Scan(&rec.ClinicianID, &day, &rec.Slots, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Day = day.Format(timegrid.DateLayout)
		out[rec.Day] = &rec
	}
	return out, rows.Err()
}

// ApplyRemovals issues one UPDATE per affected date inside a single
// pgx.Batch, so the whole removal set is one round trip. Dates without
// removals are never part of the batch, avoiding spurious updated_at
// churn on untouched rows.
func (r *availabilityRepoPG) ApplyRemovals(ctx context.Context, clinicianID uuid.UUID, removals map[string][]string) error {
	if len(removals) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for day, slots := range removals {
		if len(slots) == 0 {
			continue
		}
		batch.Queue(`
			UPDATE availability_day
			SET slots = (
				SELECT COALESCE(array_agg(s ORDER BY ord), '{}')
				FROM unnest(slots) WITH ORDINALITY AS t(s, ord)
				WHERE s <> ALL($3)
			), updated_at = NOW()
			WHERE clinician_id = $1 AND day = $2`,
			clinicianID, day, slots)
	}
	if batch.Len() == 0 {
		return nil
	}
	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("apply removals batch statement %d: %w", i, err)
		}
	}
	return nil
}

// =========== Reservation Repository ===========

type reservationRepoPG struct{ pool *pgxpool.Pool }

func NewReservationRepoPG(pool *pgxpool.Pool) ReservationRepository {
	return &reservationRepoPG{pool: pool}
}

func (r *reservationRepoPG) ListActiveByDates(ctx context.Context, clinicianID uuid.UUID, dates []string) (map[string]map[string]bool, error) {
	out := make(map[string]map[string]bool, len(dates))
	if len(dates) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT day, slot_start
		FROM reservation
		WHERE clinician_id = $1 AND day = ANY($2::date[]) AND status = ANY($3)`,
		clinicianID, dates, activeReservationStatuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var day time.Time
		var slot string
		if err := rows.Scan(&day, &slot); err != nil {
			return nil, err
		}
		d := day.Format(timegrid.DateLayout)
		if out[d] == nil {
			out[d] = make(map[string]bool)
		}
		out[d][slot] = true
	}
	return out, rows.Err()
}
