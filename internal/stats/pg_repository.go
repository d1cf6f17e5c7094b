package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
	zone string // clinic IANA zone; buckets are clinic-local
}

func NewPgRepository(pool *pgxpool.Pool, zone string) *PgRepository {
	return &PgRepository{pool: pool, zone: zone}
}

func (r *PgRepository) FetchCounts(ctx context.Context, from, to time.Time) ([]CountRow, error) {
	// A slot counts as booked when any confirmed/completed appointment's
	// range covers it. EXTRACT(DOW) is 0=Sunday, matching time.Weekday.
	rows, err := r.pool.Query(ctx, `
		SELECT g.provider_id,
		       EXTRACT(DOW FROM g.slot_start AT TIME ZONE $3)::int AS weekday,
		       to_char(g.slot_start AT TIME ZONE $3, 'HH24:MI') AS slot_time,
		       COUNT(*)::int AS offered,
		       COUNT(a.id)::int AS booked
		FROM slot_grid g
		LEFT JOIN appointments a
		  ON a.provider_id = g.provider_id
		 AND a.status IN ('confirmed', 'completed')
		 AND a.starts_at <= g.slot_start
		 AND g.slot_start < a.starts_at + make_interval(mins => a.duration_minutes)
		WHERE g.slot_start >= $1
		  AND g.slot_start < $2
		GROUP BY 1, 2, 3
	`, from.UTC(), to.UTC(), r.zone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []CountRow
	for rows.Next() {
		var row CountRow
		var weekday int
		if err := rows.Scan(&row.ProviderID, &weekday, &row.SlotTime, &row.Offered, &row.Booked); err != nil {
			return nil, err
		}
		row.Weekday = time.Weekday(weekday)
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) ReplaceRecords(ctx context.Context, records []Record) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin replace tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `TRUNCATE utilization_records`); err != nil {
		return fmt.Errorf("truncate utilization records: %w", err)
	}

	for _, rec := range records {
		_, err := tx.Exec(ctx, `
			INSERT INTO utilization_records (provider_id, weekday, slot_time, booking_rate, computed_at)
			VALUES ($1, $2, $3, $4, now())
		`, rec.ProviderID, int(rec.Weekday), rec.SlotTime, rec.BookingRate)
		if err != nil {
			return fmt.Errorf("insert utilization record: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace tx: %w", err)
	}

	return nil
}

func (r *PgRepository) GetForWeekday(ctx context.Context, providerID uuid.UUID, weekday time.Weekday) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT provider_id, weekday, slot_time, booking_rate
		FROM utilization_records
		WHERE provider_id = $1
		  AND weekday = $2
		ORDER BY slot_time
	`, providerID, int(weekday))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Record
	for rows.Next() {
		var rec Record
		var weekday int
		if err := rows.Scan(&rec.ProviderID, &weekday, &rec.SlotTime, &rec.BookingRate); err != nil {
			return nil, err
		}
		rec.Weekday = time.Weekday(weekday)
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
