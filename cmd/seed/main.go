package main

import (
	"context"
	"log"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicflow/slot-sync/internal/clinictime"
	"github.com/clinicflow/slot-sync/internal/config"
	"github.com/clinicflow/slot-sync/internal/db"
	"github.com/clinicflow/slot-sync/internal/patientpref"
	"github.com/clinicflow/slot-sync/internal/slotgrid"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	tz, err := clinictime.NewNormalizer(cfg.ClinicTimezone)
	if err != nil {
		log.Fatalf("invalid clinic timezone: %v", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	seedCtx := context.Background()

	providerIDs, err := seedProviders(seedCtx, pool, 20)
	if err != nil {
		log.Fatalf("seed providers: %v", err)
	}
	patientIDs, err := seedPatients(seedCtx, pool, 2000)
	if err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedPreferences(seedCtx, pool, patientIDs); err != nil {
		log.Fatalf("seed preferences: %v", err)
	}

	// Grid rows extend backwards over the utilization window so the stats
	// worker has offered slots to count, and forwards over the booking horizon.
	grid := slotgrid.NewPgStore(pool, tz)
	gridFrom := time.Now().UTC().AddDate(0, 0, -cfg.UtilizationWindowDays)
	gridDays := cfg.UtilizationWindowDays + cfg.GridHorizonDays
	log.Printf("seeding slot grid for %d providers (%d days)", len(providerIDs), gridDays)
	for _, id := range providerIDs {
		if err := grid.EnsureGrid(seedCtx, id, gridFrom, gridDays); err != nil {
			log.Fatalf("seed grid for %s: %v", id, err)
		}
	}

	if err := seedHistoricalAppointments(seedCtx, pool, tz, providerIDs, patientIDs, cfg.UtilizationWindowDays); err != nil {
		log.Fatalf("seed appointments: %v", err)
	}

	log.Println("seed complete")
}

func seedProviders(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d providers", count)

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.Name() + " (" + specialties[gofakeit.Number(0, len(specialties)-1)] + ")"

		_, err := tx.Exec(ctx, `
			INSERT INTO providers (id, display_name, calendar_status, created_at, updated_at)
			VALUES ($1, $2, 'not_connected', now(), now())
		`, id, name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("providers seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	ids := make([]uuid.UUID, 0, count)
	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, gofakeit.Name(), gofakeit.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	return ids, nil
}

// seedPreferences gives roughly half the patients a preferred time of day.
func seedPreferences(ctx context.Context, pool *pgxpool.Pool, patientIDs []uuid.UUID) error {
	buckets := []patientpref.Bucket{
		patientpref.Morning,
		patientpref.Afternoon,
		patientpref.Evening,
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	seeded := 0
	for _, id := range patientIDs {
		if gofakeit.Bool() {
			continue
		}
		chosen := []string{string(buckets[gofakeit.Number(0, len(buckets)-1)])}

		_, err := tx.Exec(ctx, `
			INSERT INTO patient_preferences (patient_id, preferred_buckets, created_at, updated_at)
			VALUES ($1, $2, now(), now())
		`, id, chosen)
		if err != nil {
			return err
		}
		seeded++
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Printf("preferences seeded: %d", seeded)
	return nil
}

// seedHistoricalAppointments backfills a few months of confirmed and completed
// bookings so utilization aggregation produces non-trivial rates.
func seedHistoricalAppointments(ctx context.Context, pool *pgxpool.Pool, tz *clinictime.Normalizer, providerIDs, patientIDs []uuid.UUID, windowDays int) error {
	log.Println("seeding historical appointments")

	statuses := []string{"completed", "completed", "completed", "confirmed", "cancelled", "no_show"}
	reasons := []string{"Annual checkup", "Follow-up", "New patient visit", "Consultation", "Lab review"}

	now := time.Now().UTC()
	from := now.AddDate(0, 0, -windowDays)

	const batchSize = 500
	total := 0

	for _, providerID := range providerIDs {
		starts := slotgrid.GridSlotStarts(tz, from, windowDays)

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		inBatch := 0
		for _, start := range starts {
			// Book roughly a third of historical slots.
			if gofakeit.Number(0, 2) != 0 {
				continue
			}

			status := statuses[gofakeit.Number(0, len(statuses)-1)]
			patientID := patientIDs[gofakeit.Number(0, len(patientIDs)-1)]

			_, err := tx.Exec(ctx, `
				INSERT INTO appointments (id, provider_id, patient_id, starts_at, duration_minutes, reason, status, cancelled_at, created_at, updated_at)
				VALUES ($1, $2, $3, $4, 30, $5, $6, CASE WHEN $6 = 'cancelled' THEN $4::timestamptz ELSE NULL END, now(), now())
			`, uuid.New(), providerID, patientID, start,
				reasons[gofakeit.Number(0, len(reasons)-1)], status)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}

			total++
			inBatch++
			if inBatch >= batchSize {
				if err := tx.Commit(ctx); err != nil {
					return err
				}
				tx, err = pool.Begin(ctx)
				if err != nil {
					return err
				}
				inBatch = 0
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}
	}

	log.Printf("appointments seeded: %d", total)
	return nil
}
