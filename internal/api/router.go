package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinic-scheduler/internal/scheduling"
)

type RouterConfig struct {
	Scheduler *scheduling.Scheduler
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	Logger    zerolog.Logger
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints need live store handles; tests wire the router
	// without them.
	if cfg.PgPool != nil && cfg.Redis != nil {
		health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
		r.Get("/health/live", health.Liveness)
		r.Get("/health/ready", health.Readiness)
	}

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", createAppointmentHandler(cfg.Scheduler))
		r.Get("/", listAppointmentsHandler(cfg.Scheduler))
		r.Get("/today", todayAppointmentsHandler(cfg.Scheduler))
		r.Get("/{id}", getAppointmentHandler(cfg.Scheduler))
		r.Put("/{id}", updateAppointmentHandler(cfg.Scheduler))
		r.Put("/{id}/move", moveAppointmentHandler(cfg.Scheduler))
		r.Patch("/{id}/status", changeStatusHandler(cfg.Scheduler))
		r.Delete("/{id}", deleteAppointmentHandler(cfg.Scheduler))
	})

	r.Get("/calendar", calendarHandler(cfg.Scheduler))

	return r
}
