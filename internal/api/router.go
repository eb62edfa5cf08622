package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/remindhub/messaging-scheduler/internal/api/handler"
	apimw "github.com/remindhub/messaging-scheduler/internal/api/middleware"
	"github.com/remindhub/messaging-scheduler/internal/queue"
	"github.com/remindhub/messaging-scheduler/internal/service"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(
	broadcasts *service.BroadcastService,
	cases *service.CaseService,
	q *queue.DueQueue,
	reg prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)            // recover panics, return 500
	r.Use(chimw.RealIP)               // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1 << 20)) // 1 MB max request body
	r.Use(apimw.CorrelationID)        // X-Correlation-ID inject / echo
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	bh := handler.NewBroadcastHandler(broadcasts, logger)
	ch := handler.NewCaseHandler(cases, logger)
	mh := handler.NewMetricsHandler(q)
	hh := handler.NewHealthHandler()

	// --- routes ---
	r.Get("/health", hh.Health)

	// Raw Prometheus scrape endpoint (for Prometheus server / Grafana)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		// Broadcasts. The literal segments must be registered before /{id}
		// so chi does not treat "immediate"/"scheduled" as an ID.
		r.Post("/broadcasts/immediate", bh.CreateImmediate)
		r.Post("/broadcasts/scheduled", bh.CreateScheduled)
		r.Get("/broadcasts", bh.List)
		r.Get("/broadcasts/{id}", bh.GetByID)
		r.Put("/broadcasts/{id}", bh.Update)
		r.Delete("/broadcasts/{id}", bh.Delete)
		r.Get("/broadcasts/{id}/instances", bh.ListInstances)
		r.Post("/broadcasts/{id}/activate", bh.SetActive(true))
		r.Post("/broadcasts/{id}/deactivate", bh.SetActive(false))

		// Case feed
		r.Put("/cases/{id}", ch.Upsert)

		// JSON metrics snapshot
		r.Get("/metrics", mh.GetMetrics)
	})

	return r
}
