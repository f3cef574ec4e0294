package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/codeyard/dispatch/internal/config"
	"github.com/codeyard/dispatch/internal/discovery"
	"github.com/codeyard/dispatch/internal/scheduler"
	"github.com/codeyard/dispatch/internal/worker"
	"github.com/codeyard/dispatch/pkg/cerr"
	"github.com/codeyard/dispatch/pkg/clog"
)

type Server struct {
	server   *http.Server
	env      *config.Env
	engine   *scheduler.Engine
	registry *worker.Registry
	poller   *discovery.Poller
}

func NewServer(env *config.Env, engine *scheduler.Engine, registry *worker.Registry, poller *discovery.Poller) *Server {
	return &Server{
		env:      env,
		engine:   engine,
		registry: registry,
		poller:   poller,
	}
}

// ListenAndServe starts the HTTP server. The provided context is used as the
// base context for all incoming requests via http.Server.BaseContext, so
// in-flight handlers observe shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.env.HTTPHost, s.env.HTTPPort)
	slog.Info("starting server", "addr", addr)

	s.server = &http.Server{
		Addr: addr,
		Handler: cors.New(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		}).Handler(s.apiKeyMiddleware(s.Handler())),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	return s.server.ListenAndServe()
}

// Handler builds the route tree without binding a listener.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(
			clog.SlogChiMiddleware(),
			cerr.NewJSONResponseChiMiddleware(),
		)
		r.Post("/tasks", s.handleEnqueueTask)
		r.Get("/tasks/{taskID}", s.handleGetTask)
		r.Put("/tasks/{taskID}/status", s.handleUpdateTaskStatus)
		r.Post("/workers", s.handleRegisterWorker)
		r.Put("/workers/{workerID}/status", s.handleUpdateWorkerStatus)
		r.Delete("/workers", s.handleClearWorkers)
		r.Post("/assign", s.handleAssign)
		r.Get("/snapshot", s.handleSnapshot)
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			cerr.SetNewJSONError(r.Context(), cerr.NotFound, "not found", nil)
		})
	})

	mux := http.NewServeMux()
	mux.Handle("/health", &HealthChecker{})
	mux.Handle("/api/", r)
	return mux
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type HealthChecker struct{}

func (hc *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip API key check for the health endpoint.
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey = r.Header.Get("Authorization")
			if len(apiKey) > 7 && apiKey[:7] == "Bearer " {
				apiKey = apiKey[7:]
			}
		}
		if apiKey != s.env.APIKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
