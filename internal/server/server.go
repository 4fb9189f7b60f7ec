// Package server exposes the tracker over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/calebtran/momentdeals/internal/server/handler"
	"github.com/calebtran/momentdeals/internal/server/middleware"
	"github.com/calebtran/momentdeals/internal/server/ws"
)

// Config holds the HTTP server settings.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string
	APIKeyHash  string
}

// Handlers bundles the route handlers the server mounts.
type Handlers struct {
	Health   *handler.HealthHandler
	Listings *handler.ListingsHandler
	Verify   *handler.VerifyHandler
	Admin    *handler.AdminHandler
	Archives *handler.ArchivesHandler // nil unless blob storage is wired
	Hub      *ws.Hub
}

// Server is the HTTP front end.
type Server struct {
	cfg    Config
	srv    *http.Server
	logger *slog.Logger
}

// New builds the server with its routes and middleware.
func New(cfg Config, h Handlers, logger *slog.Logger) *Server {
	logger = logger.With("component", "server")

	mux := http.NewServeMux()

	// Health stays outside auth so load balancers can probe it.
	mux.HandleFunc("GET /api/health", h.Health.Health)

	api := http.NewServeMux()
	api.HandleFunc("GET /api/listings", h.Listings.List)
	api.HandleFunc("GET /api/listings/{id}", h.Listings.Get)
	api.HandleFunc("POST /api/listings/{id}/verify", h.Verify.Verify)
	api.HandleFunc("POST /api/admin/reset-sold", h.Admin.ResetSold)
	if h.Archives != nil {
		api.HandleFunc("GET /api/admin/archives", h.Archives.List)
	}
	if h.Hub != nil {
		api.HandleFunc("GET /ws", h.Hub.HandleWS)
	}
	mux.Handle("/", middleware.Auth(cfg.APIKey, cfg.APIKeyHash)(api))

	var root http.Handler = mux
	root = middleware.Logging(logger)(root)
	root = corsMiddleware(cfg.CORSOrigins)(root)

	return &Server{
		cfg:    cfg,
		logger: logger,
		srv: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      root,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.srv.Shutdown(ctx)
}

// corsMiddleware applies the configured allowed origins. An empty list
// disables CORS headers entirely.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	allowAll := false
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowAll || allowed[origin]) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
