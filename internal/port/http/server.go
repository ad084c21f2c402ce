package http

import (
	"context"
	"net/http"
	"time"

	"github.com/aqmarket/escrow-service/internal/platform/logger"
	"github.com/aqmarket/escrow-service/internal/platform/metrics"
	"github.com/aqmarket/escrow-service/internal/port/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server is the service's HTTP front. Queries are public; every
// lifecycle transition requires an authenticated principal.
type Server struct {
	server *http.Server
	log    logger.Logger
}

func NewServer(cfg ServerConfig, handler *ListingHandler, jwtSecret string, mm *metrics.MetricsManager, log logger.Logger) *Server {
	return &Server{
		server: &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      NewRouter(handler, jwtSecret, mm, log),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: log,
	}
}

func NewRouter(h *ListingHandler, jwtSecret string, mm *metrics.MetricsManager, log logger.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	if mm != nil {
		r.Use(latencyMiddleware(mm))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api/listings", func(r chi.Router) {
		// Public query routes
		r.Get("/", h.ListListings)
		r.Get("/count", h.CountListings)
		r.Get("/disputed", h.ListDisputed)
		r.Get("/search", h.SearchListings)
		r.Get("/{id}", h.GetListing)

		// Lifecycle routes (require JWT authentication)
		r.Group(func(authRouter chi.Router) {
			authRouter.Use(middleware.JWTAuth(jwtSecret, log))

			authRouter.Post("/", h.CreateListing)
			authRouter.Put("/{id}", h.EditListing)
			authRouter.Delete("/{id}", h.DeleteListing)
			authRouter.Post("/{id}/purchase", h.Purchase)
			authRouter.Post("/{id}/cancel", h.CancelPurchase)
			authRouter.Post("/{id}/ship", h.SignShipped)
			authRouter.Post("/{id}/receive", h.SignReceived)
			authRouter.Post("/{id}/arbitration", h.RequestArbitration)
			authRouter.Post("/{id}/arbitrate", h.Arbitrate)
		})
	})

	return r
}

func latencyMiddleware(mm *metrics.MetricsManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			mm.RequestLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
		})
	}
}

func (s *Server) Run() error {
	s.log.Infof("HTTP server starting on %s", s.server.Addr)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("HTTP server shutting down")
	return s.server.Shutdown(ctx)
}
