package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/donsiko12-rgb/mechanic-workshop/internal/booking"
)

type RouterConfig struct {
	Service *booking.Service
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Catalog and availability
	r.Get("/services", listServicesHandler(cfg.Service))
	r.Get("/slots", listSlotsHandler(cfg.Service))
	r.Get("/settings", getSettingsHandler(cfg.Service))

	// Appointments
	r.Post("/appointments", bookAppointmentHandler(cfg.Service))
	r.Get("/appointments", listAppointmentsHandler(cfg.Service))
	r.Get("/appointments/{folio}", getAppointmentHandler(cfg.Service))
	r.Get("/appointments/{folio}/qr", qrPayloadHandler(cfg.Service))
	r.Post("/appointments/{folio}/complete", updateStatusHandler(cfg.Service, booking.StatusCompleted))
	r.Post("/appointments/{folio}/cancel", updateStatusHandler(cfg.Service, booking.StatusCancelled))

	// Blocked periods
	r.Get("/blocks", listBlocksHandler(cfg.Service))
	r.Post("/blocks", addBlockHandler(cfg.Service))
	r.Delete("/blocks/{id}", removeBlockHandler(cfg.Service))

	// Admin dashboard
	r.Get("/stats", getStatsHandler(cfg.Service))

	return r
}
