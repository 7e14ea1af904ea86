package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"ai-image-queue/internal/usecase"
)

type Server struct {
	queueUC   usecase.QueueUseCase
	webhookUC usecase.WebhookUseCase
	janitorUC usecase.JanitorUseCase
	auth      *AuthManager
	log       *zerolog.Logger
}

func NewServer(
	queueUC usecase.QueueUseCase,
	webhookUC usecase.WebhookUseCase,
	janitorUC usecase.JanitorUseCase,
	auth *AuthManager,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "WebServer").Logger()
	return &Server{
		queueUC:   queueUC,
		webhookUC: webhookUC,
		janitorUC: janitorUC,
		auth:      auth,
		log:       &l,
	}
}

// Router builds the HTTP surface: job submit/poll for polling clients, the
// worker callback, and the JWT-guarded cleanup triggers for schedulers.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/jobs", s.handleSubmit)
		r.Get("/jobs/{jobID}", s.handlePoll)
		r.Post("/worker/callback", s.handleWorkerCallback)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.auth.Middleware)
			r.Post("/cleanup/stale", s.sweepHandler("stale", s.janitorUC.SweepStaleProcessing))
			r.Post("/cleanup/retention", s.sweepHandler("retention", s.janitorUC.SweepExpiredTerminal))
		})
	})

	return r
}
