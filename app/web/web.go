// Package web implements the HTTP server and JSON API for the taskhook service
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/didip/tollbooth/v8"
	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"
	"github.com/robfig/cron/v3"

	"github.com/umputun/taskhook/app/auth"
	"github.com/umputun/taskhook/app/notify"
	"github.com/umputun/taskhook/app/store"
)

// authLimiter caps register/login attempts per client to slow down credential guessing
var authLimiter = tollbooth.NewLimiter(5, nil)

// Server represents the web server
type Server struct {
	store      store.Interface
	authn      *auth.Service
	dispatcher notify.Dispatcher
	parser     cron.Parser // for next_run calculation on cron-shaped schedules
	version    string
	storeKind  string // active backend name for the status endpoint
	startTime  time.Time
}

// Config holds server configuration
type Config struct {
	Store      store.Interface
	Auth       *auth.Service
	Dispatcher notify.Dispatcher
	Version    string
	StoreKind  string // "embedded" or "external", display only
}

// New creates a new web server
func New(cfg Config) (*Server, error) {
	// validate required dependencies
	if cfg.Store == nil {
		return nil, fmt.Errorf("web server initialization failed: Store is required")
	}
	if cfg.Auth == nil {
		return nil, fmt.Errorf("web server initialization failed: Auth is required")
	}

	dispatcher := cfg.Dispatcher
	if dispatcher == nil {
		dispatcher = notify.NewSimulator()
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	return &Server{
		store:      cfg.Store,
		authn:      cfg.Auth,
		dispatcher: dispatcher,
		parser:     parser,
		version:    cfg.Version,
		storeKind:  cfg.StoreKind,
		startTime:  time.Now(),
	}, nil
}

// Run starts the web server and blocks until the context is canceled
func (s *Server) Run(ctx context.Context, address string) error {
	server := &http.Server{
		Addr:              address,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] failed to shutdown server: %v", err)
		}
	}()

	log.Printf("[INFO] starting web server on %s", address)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server failed: %w", err)
	}
	return nil
}

// routes returns the http.Handler with all routes configured
func (s *Server) routes() http.Handler {
	router := routegroup.New(http.NewServeMux())

	// global middleware - applied to all routes
	router.Use(
		rest.RealIP,
		rest.Recoverer(log.Default()),
		rest.Throttle(1000),
		rest.AppInfo("taskhook", "umputun", s.version),
		rest.Ping,
		rest.Trace,
		rest.SizeLimit(64*1024), // 64KB max request size
		logger.New(logger.Log(log.Default()), logger.Prefix("[DEBUG]")).Handler,
	)

	// auth endpoints, rate limited and open to anonymous callers
	router.Mount("/api/auth").Route(func(api *routegroup.Bundle) {
		api.Use(rest.NoCache, tollbooth.HTTPMiddleware(authLimiter))
		api.HandleFunc("POST /register", s.handleRegister)
		api.HandleFunc("POST /login", s.handleLogin)
	})

	// task and webhook endpoints, bearer token required
	router.Mount("/api").Route(func(api *routegroup.Bundle) {
		api.Use(rest.NoCache, s.authMiddleware)
		api.HandleFunc("GET /tasks", s.handleListTasks)
		api.HandleFunc("POST /tasks", s.handleCreateTask)
		api.HandleFunc("PATCH /tasks/{id}", s.handlePatchTask)
		api.HandleFunc("DELETE /tasks/{id}", s.handleDeleteTask)
		api.HandleFunc("POST /webhooks/register", s.handleRegisterWebhook)
		api.HandleFunc("GET /webhooks", s.handleListWebhooks)
		api.HandleFunc("POST /webhooks/test/{id}", s.handleTestWebhook)
	})

	// JSON API for CLI/programmatic access, no auth
	router.Mount("/api/v1").Route(func(api *routegroup.Bundle) {
		api.Use(rest.NoCache)
		api.HandleFunc("GET /status", s.handleAPIStatus)
	})

	return router
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[WARN] failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes a JSON error response
func (s *Server) writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]string{"error": message}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("[WARN] failed to encode JSON error response: %v", err)
	}
}
