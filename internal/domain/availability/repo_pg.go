package availability

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicbook/clinicbook/pkg/timegrid"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) GetRange(ctx context.Context, clinicianID uuid.UUID, from, to string) ([]*DayRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT clinician_id, day, slots, updated_at
		FROM availability_day
		WHERE clinician_id = $1 AND day BETWEEN $2::date AND $3::date
		ORDER BY day`,
		clinicianID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*DayRecord
	for rows.Next() {
		var rec DayRecord
		var day time.Time
		if err := rows.Scan(&rec.ClinicianID, &day, &rec.Slots, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Day = day.Format(timegrid.DateLayout)
		records = append(records, &rec)
	}
	return records, rows.Err()
}
