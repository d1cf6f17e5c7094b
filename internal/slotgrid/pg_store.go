package slotgrid

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicflow/slot-sync/internal/clinictime"
)

type PgStore struct {
	pool *pgxpool.Pool
	tz   *clinictime.Normalizer
}

func NewPgStore(pool *pgxpool.Pool, tz *clinictime.Normalizer) *PgStore {
	return &PgStore{pool: pool, tz: tz}
}

func (s *PgStore) GetAvailability(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Slot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT slot_start, is_available
		FROM slot_grid
		WHERE provider_id = $1
		  AND slot_start >= $2
		  AND slot_start < $3
		ORDER BY slot_start
	`, providerID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("query slot grid: %w", err)
	}
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		slot := Slot{ProviderID: providerID}
		if err := rows.Scan(&slot.StartsAt, &slot.Available); err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slot.StartsAt = slot.StartsAt.UTC()
		result = append(result, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *PgStore) SetAvailability(ctx context.Context, providerID uuid.UUID, start, end time.Time, available bool) error {
	starts := clinictime.SlotsCovering(start.UTC(), end.UTC())
	if len(starts) == 0 {
		return nil
	}

	_, err := s.pool.Exec(ctx, `
		UPDATE slot_grid
		SET is_available = $3,
		    updated_at = now()
		WHERE provider_id = $1
		  AND slot_start = ANY($2)
		  AND is_available <> $3
	`, providerID, starts, available)
	if err != nil {
		return fmt.Errorf("set availability: %w", err)
	}

	return nil
}

// Reserve flips every covered slot from available to unavailable inside one
// transaction. The WHERE is_available = true predicate is the compare-and-set
// that decides the winner of a confirmation race; a partial match rolls back.
func (s *PgStore) Reserve(ctx context.Context, providerID uuid.UUID, start time.Time, duration time.Duration) error {
	starts := clinictime.SlotsCovering(start.UTC(), start.UTC().Add(duration))
	if len(starts) == 0 {
		return ErrSlotUnavailable
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin reserve tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, `
		UPDATE slot_grid
		SET is_available = false,
		    updated_at = now()
		WHERE provider_id = $1
		  AND slot_start = ANY($2)
		  AND is_available = true
	`, providerID, starts)
	if err != nil {
		return fmt.Errorf("reserve slots: %w", err)
	}

	// Every covered slot must have flipped; a missing or already-taken slot
	// means the whole reservation loses.
	if tag.RowsAffected() != int64(len(starts)) {
		return ErrSlotUnavailable
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit reserve tx: %w", err)
	}

	return nil
}

func (s *PgStore) EnsureGrid(ctx context.Context, providerID uuid.UUID, from time.Time, days int) error {
	starts := GridSlotStarts(s.tz, from, days)
	if len(starts) == 0 {
		return nil
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO slot_grid (provider_id, slot_start, is_available)
		SELECT $1, unnest($2::timestamptz[]), true
		ON CONFLICT (provider_id, slot_start) DO NOTHING
	`, providerID, starts)
	if err != nil {
		return fmt.Errorf("ensure grid: %w", err)
	}

	return nil
}

// GridSlotStarts enumerates the UTC slot starts for the working-hours grid
// over the given number of clinic-local days, weekdays only.
func GridSlotStarts(tz *clinictime.Normalizer, from time.Time, days int) []time.Time {
	var starts []time.Time

	day := tz.ToClinicLocal(from)
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, tz.Location())

	for i := 0; i < days; i++ {
		d := day.AddDate(0, 0, i)
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		open := time.Date(d.Year(), d.Month(), d.Day(), GridDayStartHour, 0, 0, 0, tz.Location())
		close := time.Date(d.Year(), d.Month(), d.Day(), GridDayEndHour, 0, 0, 0, tz.Location())
		for cur := open; cur.Before(close); cur = cur.Add(clinictime.SlotDuration) {
			starts = append(starts, cur.UTC())
		}
	}

	return starts
}
