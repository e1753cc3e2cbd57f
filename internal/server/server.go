package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talentsphere/securecore/internal/auth"
	"github.com/talentsphere/securecore/internal/database"
	"github.com/talentsphere/securecore/internal/handler"
	"github.com/talentsphere/securecore/internal/openapi"
	"github.com/talentsphere/securecore/internal/server/middleware"
)

// reservedResources cannot be mounted as owned resources because fixed
// routes already live under those /api/v1 prefixes.
var reservedResources = []string{"admin", "me", "records", "whoami"}

// Config holds the HTTP server configuration.
type Config struct {
	Host               string
	Port               int
	ShutdownTimeout    time.Duration
	CORSOrigins        []string
	RateLimitPerMinute int   // 0 disables rate limiting
	MaxBodySize        int64 // bytes, 0 disables the limit
	SkipPaths          []string
	OwnerColumn        string
	Development        bool
	Version            string // reported in /openapi.json
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		ShutdownTimeout:    30 * time.Second,
		CORSOrigins:        []string{"*"},
		RateLimitPerMinute: 600,
		MaxBodySize:        1 << 20,
		SkipPaths:          []string{"/healthz", "/readyz", "/metrics", "/openapi.json"},
		OwnerColumn:        "user_id",
	}
}

// Deps are the collaborators the server routes to. Owners and Gatherer may
// be nil.
type Deps struct {
	DB       *database.Manager
	Cache    *auth.TokenCache
	Owners   *database.OwnershipStore
	Gatherer prometheus.Gatherer
}

// Server is the demo HTTP surface over the data-access core. It owns the
// chi router and closes the pool on shutdown.
type Server struct {
	cfg        Config
	deps       Deps
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.HeaderAPIKey, "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if s.cfg.MaxBodySize > 0 {
		r.Use(chimw.RequestSize(s.cfg.MaxBodySize))
	}

	sys := handler.NewSystemHandler(s.deps.DB, s.deps.Cache, s.cfg.Development)

	// --- Health checks and metrics (no auth required) ---
	r.Get("/healthz", sys.Healthz)
	r.Get("/readyz", sys.Readyz)
	if s.deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}

	authOpts := []middleware.AuthenticatorOption{
		middleware.WithAuthLogger(s.logger),
		middleware.WithDevelopment(s.cfg.Development),
	}
	var resources []string
	if s.deps.Owners != nil {
		authOpts = append(authOpts, middleware.WithOwnership(s.deps.Owners))
		for _, res := range s.deps.Owners.Resources() {
			if slices.Contains(reservedResources, res) {
				s.logger.Warn("owned resource shadows a fixed route, not mounted", "resource", res)
				continue
			}
			resources = append(resources, res)
		}
	}
	authn := middleware.NewAuthenticator(s.deps.Cache, authOpts...)
	opts := middleware.AuthOptions{SkipPaths: s.cfg.SkipPaths}
	records := handler.NewRecordsHandler(s.deps.DB, resources, s.cfg.OwnerColumn, s.cfg.Development, s.logger)

	spec := handler.NewOpenAPIHandler(openapi.Options{Version: s.cfg.Version, Resources: resources})
	r.Get("/openapi.json", spec.ServeSpec)

	limit := func(next http.Handler) http.Handler { return next }
	if s.cfg.RateLimitPerMinute > 0 {
		limit = middleware.RateLimitByPrincipal(s.cfg.RateLimitPerMinute)
	}

	// --- API routes ---
	r.Route("/api/v1", func(r chi.Router) {
		r.With(authn.OptionalAuth(opts), limit).Get("/whoami", sys.WhoAmI)

		r.Group(func(r chi.Router) {
			r.Use(authn.Authenticate(opts))
			r.Use(limit)

			r.Get("/me", sys.Me)
			r.With(authn.RequirePermission(auth.PermRecordsRead)).Get("/records/{table}", records.List)

			r.Route("/admin", func(r chi.Router) {
				r.Use(authn.Authorize([]auth.Role{auth.RoleAdmin}, false))
				r.With(authn.RequirePermission(auth.PermDBStats)).Get("/db/stats", sys.DBStats)
				r.With(authn.Authorize([]auth.Role{auth.RoleSuperAdmin}, false)).Post("/db/stats/reset", sys.ResetStats)
			})

			// Owned resources: the owner column is forced on create, every
			// other operation passes the ownership gate first.
			for _, res := range resources {
				r.Post("/"+res, records.Create(res))
				r.Group(func(r chi.Router) {
					r.Use(authn.RequireOwnership("id", res))
					r.With(authn.RequirePermission(auth.PermRecordsRead)).Get("/"+res+"/{id}", records.Get(res))
					r.Patch("/"+res+"/{id}", records.Update(res))
					r.Delete("/"+res+"/{id}", records.Delete(res))
				})
			}
		})
	})

	s.router = r
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests before closing the connection pool.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	if err := s.deps.DB.Close(); err != nil {
		s.logger.Error("closing database pool", "error", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
