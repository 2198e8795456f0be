package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	apihandler "github.com/threadscribe/threadscribe/internal/api/handler"
	apimw "github.com/threadscribe/threadscribe/internal/api/middleware"
	"github.com/threadscribe/threadscribe/internal/ingest"
	"github.com/threadscribe/threadscribe/internal/store"
)

// RouterDeps holds optional dependencies for the router.
type RouterDeps struct {
	Producer *ingest.Producer
}

func NewRouter(logger *slog.Logger, s *store.Store, deps *RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(apimw.Logger(logger))
	r.Use(apimw.CORS)
	r.Use(chimw.Recoverer)

	// Health checks
	health := apihandler.NewHealthHandler(s.Pool())
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	if deps == nil {
		deps = &RouterDeps{}
	}

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		if deps.Producer != nil {
			messages := apihandler.NewMessageHandler(logger, deps.Producer)
			r.Post("/messages", messages.Ingest)

			sweeps := apihandler.NewSweepHandler(logger, deps.Producer)
			r.Post("/sweeps", sweeps.Trigger)
		}

		proposals := apihandler.NewProposalHandler(logger, s)
		r.Route("/proposals", func(r chi.Router) {
			r.Get("/", proposals.List)
			r.Patch("/{id}", proposals.UpdateStatus)
		})

		runs := apihandler.NewRunHandler(logger, s)
		r.Get("/runs", runs.List)
	})

	return r
}
