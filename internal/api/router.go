package api

import (
	"net/http"

	"github.com/leandrocl/kafka-correlation-monitor/internal/api/middleware"

	"github.com/go-chi/chi/v5"
	ChiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func NewRouter(h *Handlers, redisClient *redis.Client) http.Handler {
	r := chi.NewRouter()

	r.Use(ChiMiddleware.Logger)
	r.Use(ChiMiddleware.Recoverer)
	r.Use(ChiMiddleware.RequestID)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/interesting-events", func(r chi.Router) {
			r.Get("/", h.GetAllEvents)
			r.Get("/offset", h.GetEventsWithOffset)
			r.Get("/by-topic", h.GetEventsByTopic)
			r.Get("/by-key", h.GetEventsByKey)
			r.Get("/by-topic-and-key", h.GetEventsByTopicAndKey)
			r.Get("/by-date-range", h.GetEventsByDateRange)
			r.Get("/stats", h.GetEventStats)
			r.Get("/{id}", h.GetEventByID)
			r.Delete("/{id}", h.DeleteEventByID)
		})

		r.Route("/kafka", func(r chi.Router) {
			r.With(middleware.Idempotency(redisClient)).Post("/produce", h.ProduceMessage)
			r.Get("/consumers/topics", h.GetConfiguredTopics)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
