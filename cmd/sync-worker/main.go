package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicflow/slot-sync/internal/calendar"
	"github.com/clinicflow/slot-sync/internal/clinictime"
	"github.com/clinicflow/slot-sync/internal/config"
	"github.com/clinicflow/slot-sync/internal/db"
	"github.com/clinicflow/slot-sync/internal/provider"
	"github.com/clinicflow/slot-sync/internal/slotgrid"
)

// The sync worker does two things every interval: extend each provider's
// rolling slot grid, then sweep connected external calendars and block the
// slots their events cover.
func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("config load error")
	}

	log := newLogger(cfg.Env).With().Str("service", "sync-worker").Logger()
	log.Info().Str("env", cfg.Env).Dur("interval", cfg.SyncWorkerInterval).Msg("starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	tz, err := clinictime.NewNormalizer(cfg.ClinicTimezone)
	if err != nil {
		log.Fatal().Err(err).Str("zone", cfg.ClinicTimezone).Msg("invalid clinic timezone")
	}

	providers := provider.NewPgStore(pgPool)
	grid := slotgrid.NewPgStore(pgPool, tz)
	calClient := calendar.NewClient(calendar.ClientConfig{
		TokenURL:     cfg.CalendarTokenURL,
		APIBaseURL:   cfg.CalendarAPIBaseURL,
		ClientID:     cfg.CalendarClientID,
		ClientSecret: cfg.CalendarClientSecret,
	})
	sweeper := calendar.NewSweeper(calClient, providers, grid, tz, log)

	w := worker{
		providers: providers,
		grid:      grid,
		sweeper:   sweeper,
		cfg:       cfg,
		log:       log,
	}

	// Run once at startup so a fresh deploy converges immediately.
	w.runOnce(rootCtx)

	ticker := time.NewTicker(cfg.SyncWorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping sync worker")
			return
		case <-ticker.C:
			w.runOnce(rootCtx)
		}
	}
}

type worker struct {
	providers provider.Store
	grid      slotgrid.Store
	sweeper   *calendar.Sweeper
	cfg       config.Config
	log       zerolog.Logger
}

func (w worker) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	start := time.Now()
	now := start.UTC()

	all, err := w.providers.List(runCtx)
	if err != nil {
		w.log.Error().Err(err).Msg("provider list failed, skipping run")
		return
	}

	for _, prov := range all {
		if err := w.grid.EnsureGrid(runCtx, prov.ID, now, w.cfg.GridHorizonDays); err != nil {
			w.log.Error().Err(err).Str("provider_id", prov.ID.String()).Msg("grid extension failed")
		}
	}

	swept, err := w.sweeper.SweepAll(runCtx, now, now.AddDate(0, 0, w.cfg.SweepHorizonDays))
	if err != nil {
		w.log.Error().Err(err).Msg("sweep finished with errors")
	}

	w.log.Info().
		Int("providers", len(all)).
		Int("swept", swept).
		Dur("duration", time.Since(start)).
		Msg("sync run complete")
}

func newLogger(env string) zerolog.Logger {
	if env == "dev" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
