package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/logs"
	"github.com/hackgods/clinic-booking/internal/metrics"
)

type RouterConfig struct {
	Service        *appointment.Service
	Health         *HealthHandler
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler // served on /metrics when set
	JWTSecret      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logs.Discard()
	}
	h := &handlers{svc: cfg.Service, log: log}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(MetricsMiddleware(cfg.Metrics))
	r.Use(middleware.Recoverer)

	// Health endpoints
	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	// Public directory
	r.Get("/doctors", h.listDoctors())
	r.Get("/doctors/{id}", h.doctorProfile())
	r.Get("/doctors/{id}/ratings", h.doctorRatings())

	r.Group(func(r chi.Router) {
		r.Use(ActorMiddleware(cfg.JWTSecret))

		r.Get("/slots", h.listSlots())
		r.Post("/slots", h.publishSlot())
		r.Delete("/slots/{id}", h.withdrawSlot())

		r.Post("/appointments", h.bookAppointment())
		r.Get("/appointments/{id}", h.getAppointment())
		r.Post("/appointments/{id}/cancel", h.cancelAppointment())
		r.Post("/appointments/{id}/complete", h.completeAppointment())

		r.Get("/dashboard/upcoming", h.upcoming())
		r.Get("/dashboard/history", h.history())

		r.Post("/ratings", h.submitRating())
	})

	return r
}
