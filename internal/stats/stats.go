// Package stats aggregates historical booking rates per (provider, weekday,
// time-of-day) bucket. Recomputation is a periodic batch job; booking latency
// never pays for analytics.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Record is the aggregated booking rate for one (provider, weekday,
// time-of-day) bucket over the trailing window. The rate is a bounded
// percentage of offered slots that ended up booked (confirmed or completed).
type Record struct {
	ProviderID  uuid.UUID
	Weekday     time.Weekday
	SlotTime    string // clinic-local "HH:MM"
	BookingRate float64
}

// CountRow is the raw offered/booked tally the repository produces per bucket.
type CountRow struct {
	ProviderID uuid.UUID
	Weekday    time.Weekday
	SlotTime   string
	Offered    int
	Booked     int
}

type Repository interface {
	// FetchCounts tallies offered versus booked slots per bucket over
	// [from, to), grouping by clinic-local weekday and wall clock.
	FetchCounts(ctx context.Context, from, to time.Time) ([]CountRow, error)

	// ReplaceRecords atomically swaps in the freshly computed records.
	ReplaceRecords(ctx context.Context, records []Record) error

	// GetForWeekday reads the records consumed by the recommendation
	// selector.
	GetForWeekday(ctx context.Context, providerID uuid.UUID, weekday time.Weekday) ([]Record, error)
}

type Aggregator struct {
	repo Repository
	log  zerolog.Logger
}

func NewAggregator(repo Repository, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		repo: repo,
		log:  log.With().Str("component", "utilization_aggregator").Logger(),
	}
}

// Recompute rebuilds every utilization record from the trailing window of
// slot and appointment history.
func (a *Aggregator) Recompute(ctx context.Context, windowDays int) error {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -windowDays)

	rows, err := a.repo.FetchCounts(ctx, from, to)
	if err != nil {
		return fmt.Errorf("fetch utilization counts: %w", err)
	}

	records := ComputeRates(rows)
	if err := a.repo.ReplaceRecords(ctx, records); err != nil {
		return fmt.Errorf("replace utilization records: %w", err)
	}

	a.log.Info().
		Int("buckets", len(records)).
		Time("window_from", from).
		Msg("utilization recompute complete")

	return nil
}

// ComputeRates turns raw tallies into bounded percentage records. Buckets
// with nothing offered produce no record at all: no data is different from
// zero demand.
func ComputeRates(rows []CountRow) []Record {
	var records []Record
	for _, row := range rows {
		if row.Offered <= 0 {
			continue
		}
		rate := 100 * float64(row.Booked) / float64(row.Offered)
		if rate < 0 {
			rate = 0
		}
		if rate > 100 {
			rate = 100
		}
		records = append(records, Record{
			ProviderID:  row.ProviderID,
			Weekday:     row.Weekday,
			SlotTime:    row.SlotTime,
			BookingRate: rate,
		})
	}
	return records
}
