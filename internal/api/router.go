package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinicflow/slot-sync/internal/appointment"
	"github.com/clinicflow/slot-sync/internal/calendar"
	"github.com/clinicflow/slot-sync/internal/clinictime"
	"github.com/clinicflow/slot-sync/internal/provider"
	"github.com/clinicflow/slot-sync/internal/recommend"
	"github.com/clinicflow/slot-sync/internal/slotgrid"
)

type RouterConfig struct {
	Appointments *appointment.Service
	Providers    provider.Store
	Grid         slotgrid.Store
	Sweeper      *calendar.Sweeper
	Selector     *recommend.Selector
	TZ           *clinictime.Normalizer

	SweepHorizonDays int

	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Env     string
	Version string
	Log     zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/providers", func(r chi.Router) {
		r.Get("/", listProvidersHandler(cfg))
		r.Get("/{id}/availability", availabilityHandler(cfg))
		r.Get("/{id}/recommendations", recommendationsHandler(cfg))
		r.Post("/{id}/calendar/connect", connectCalendarHandler(cfg))
		r.Post("/{id}/calendar/disconnect", disconnectCalendarHandler(cfg))
		r.Post("/{id}/calendar/sync", syncProviderHandler(cfg))
	})

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", bookAppointmentHandler(cfg.Appointments))
		r.Get("/", listAppointmentsHandler(cfg.Appointments))
		r.Get("/{id}", getAppointmentHandler(cfg.Appointments))
		r.Post("/{id}/confirm", confirmAppointmentHandler(cfg.Appointments))
		r.Post("/{id}/cancel", cancelAppointmentHandler(cfg.Appointments))
		r.Post("/{id}/complete", completeAppointmentHandler(cfg.Appointments))
		r.Post("/{id}/no-show", noShowAppointmentHandler(cfg.Appointments))
		r.Post("/{id}/reschedule", rescheduleAppointmentHandler(cfg.Appointments))
	})

	return r
}
