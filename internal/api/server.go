package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/recupero/internal/campaign"
	"github.com/foxzi/recupero/internal/config"
	"github.com/foxzi/recupero/internal/cut"
	"github.com/foxzi/recupero/internal/dispatch"
	"github.com/foxzi/recupero/internal/metrics"
	"github.com/foxzi/recupero/internal/models"
)

// Version is reported by /health
var Version = "dev"

// Dispatcher runs outbound jobs on demand
type Dispatcher interface {
	Run(ctx context.Context, campaignID string, trigger dispatch.Trigger) (*dispatch.Report, error)
	RunReminders(ctx context.Context) (*dispatch.ReminderReport, error)
	RequeueFailed(ctx context.Context, campaignID string) (int, error)
}

// Campaigns reads campaigns and recomputes their derived fields
type Campaigns interface {
	Get(ctx context.Context, id string) (*models.Campaign, error)
	RecomputeDistance(ctx context.Context, id string, maxMeters float64) (*campaign.DistanceResult, error)
}

// Persons reads person detail
type Persons interface {
	Detail(ctx context.Context, id string) (*campaign.PersonDetail, error)
}

// Cutter produces daily cuts
type Cutter interface {
	Run(ctx context.Context, campaignID string) (*cut.Result, error)
}

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	dispatcher Dispatcher
	campaigns  Campaigns
	persons    Persons
	cuts       Cutter
	webhooks   http.Handler
	config     *config.APIConfig
	logger     *slog.Logger
	startTime  time.Time
}

// NewServer creates a new API server. webhooks, when set, is mounted under
// /webhooks outside the API key check.
func NewServer(cfg *config.APIConfig, dispatcher Dispatcher, campaigns Campaigns, persons Persons, cuts Cutter, webhooks http.Handler, logger *slog.Logger) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		dispatcher: dispatcher,
		campaigns:  campaigns,
		persons:    persons,
		cuts:       cuts,
		webhooks:   webhooks,
		config:     cfg,
		logger:     logger.With("component", "api"),
		startTime:  time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(metrics.HTTPMiddleware)
	s.router.Use(middleware.Recoverer)

	// Health check (no auth required)
	s.router.Get("/health", s.handleHealth)

	// Webhooks authenticate by signature
	if s.webhooks != nil {
		s.router.Mount("/webhooks", s.webhooks)
	}

	// API v1 routes (auth required)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.corsMiddleware)
			r.Options("/dispatch", s.handlePreflight)
			r.With(s.authMiddleware).Post("/dispatch", s.handleDispatch)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/reminders", s.handleReminders)
			r.Get("/campaigns/{id}", s.handleCampaign)
			r.Post("/campaigns/{id}/distance", s.handleDistance)
			r.Post("/campaigns/{id}/cut", s.handleCut)
			r.Post("/campaigns/{id}/retry", s.handleRetry)
			r.Get("/persons/{id}", s.handlePerson)
		})
	})
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
