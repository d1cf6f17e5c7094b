package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicflow/slot-sync/internal/config"
	"github.com/clinicflow/slot-sync/internal/db"
	"github.com/clinicflow/slot-sync/internal/stats"
)

// The stats worker periodically recomputes per-provider booking rates by
// weekday and slot time over a trailing window. Recommendations read the
// resulting records; they never aggregate on the request path.
func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("config load error")
	}

	log := newLogger(cfg.Env).With().Str("service", "stats-worker").Logger()
	log.Info().Str("env", cfg.Env).Dur("interval", cfg.StatsWorkerInterval).Msg("starting up")

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

	agg := stats.NewAggregator(stats.NewPgRepository(pgPool, cfg.ClinicTimezone), log)

	runOnce(rootCtx, agg, cfg, log)

	ticker := time.NewTicker(cfg.StatsWorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping stats worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, agg, cfg, log)
		}
	}
}

func runOnce(ctx context.Context, agg *stats.Aggregator, cfg config.Config, log zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	start := time.Now()
	if err := agg.Recompute(runCtx, cfg.UtilizationWindowDays); err != nil {
		log.Error().Err(err).Msg("utilization recompute failed")
		return
	}
	log.Info().Dur("duration", time.Since(start)).Msg("utilization recompute complete")
}

func newLogger(env string) zerolog.Logger {
	if env == "dev" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
