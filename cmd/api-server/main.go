package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicflow/slot-sync/internal/api"
	"github.com/clinicflow/slot-sync/internal/appointment"
	"github.com/clinicflow/slot-sync/internal/calendar"
	"github.com/clinicflow/slot-sync/internal/clinictime"
	"github.com/clinicflow/slot-sync/internal/config"
	"github.com/clinicflow/slot-sync/internal/db"
	"github.com/clinicflow/slot-sync/internal/notify"
	"github.com/clinicflow/slot-sync/internal/patientpref"
	"github.com/clinicflow/slot-sync/internal/provider"
	"github.com/clinicflow/slot-sync/internal/recommend"
	redisclient "github.com/clinicflow/slot-sync/internal/redis"
	"github.com/clinicflow/slot-sync/internal/slotgrid"
	"github.com/clinicflow/slot-sync/internal/stats"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("config load error")
	}

	log := newLogger(cfg.Env).With().Str("service", "api-server").Logger()
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("starting up")

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

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	tz, err := clinictime.NewNormalizer(cfg.ClinicTimezone)
	if err != nil {
		log.Fatal().Err(err).Str("zone", cfg.ClinicTimezone).Msg("invalid clinic timezone")
	}

	providers := provider.NewPgStore(pgPool)
	grid := slotgrid.NewPgStore(pgPool, tz)
	repo := appointment.NewPgRepository(pgPool)
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)

	calClient := calendar.NewClient(calendar.ClientConfig{
		TokenURL:     cfg.CalendarTokenURL,
		APIBaseURL:   cfg.CalendarAPIBaseURL,
		ClientID:     cfg.CalendarClientID,
		ClientSecret: cfg.CalendarClientSecret,
	})
	outbound := calendar.NewOutbound(calClient, providers, log)
	busyProbe := calendar.NewBusyProbe(calClient, providers, tz)
	sweeper := calendar.NewSweeper(calClient, providers, grid, tz, log)

	svc := appointment.NewService(repo, grid, locker, tz, outbound, busyProbe, notify.NewLogNotifier(log), log)

	statsRepo := stats.NewPgRepository(pgPool, cfg.ClinicTimezone)
	selector := recommend.NewSelector(
		grid,
		statsRepo,
		patientpref.NewPgStore(pgPool),
		recommend.NewHTTPScorer(cfg.ScoringServiceURL),
		tz,
		cfg.UnderUtilizedThreshold,
		log,
	)

	router := api.NewRouter(api.RouterConfig{
		Appointments:     svc,
		Providers:        providers,
		Grid:             grid,
		Sweeper:          sweeper,
		Selector:         selector,
		TZ:               tz,
		SweepHorizonDays: cfg.SweepHorizonDays,
		PgPool:           pgPool,
		Redis:            rdb,
		Env:              cfg.Env,
		Version:          version,
		Log:              log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("api-server stopped")
}

func newLogger(env string) zerolog.Logger {
	if env == "dev" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
