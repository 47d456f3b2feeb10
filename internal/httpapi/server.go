package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ocx/inkgrade/internal/config"
)

// Server wraps an http.Server built from a gorilla/mux router, mirroring
// the teacher's APIServer.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
}

// NewServer builds the router and registers all /api/homework routes
// plus /metrics.
func NewServer(cfg config.ServerConfig, h *Handlers) *Server {
	router := mux.NewRouter()
	router.Use(loggingMiddleware)
	router.Use(corsMiddleware(cfg.CORSAllowOrigins))

	api := router.PathPrefix("/api/homework").Subrouter()
	api.HandleFunc("/templates", h.Templates).Methods(http.MethodGet)
	api.HandleFunc("/analyze", h.Analyze).Methods(http.MethodPost)
	api.HandleFunc("/analyze-stream", h.AnalyzeStream).Methods(http.MethodPost)
	api.HandleFunc("/analyze-single", h.AnalyzeSingle).Methods(http.MethodPost)
	api.HandleFunc("/analyze-single-stream", h.AnalyzeSingleStream).Methods(http.MethodPost)
	api.HandleFunc("/history/{userId}", h.History).Methods(http.MethodGet)
	api.HandleFunc("/growth/{userId}/{charName}", h.Growth).Methods(http.MethodGet)
	api.HandleFunc("/{taskId}", h.GetByTaskID).Methods(http.MethodGet)

	router.Handle("/metrics", promhttp.Handler())

	return &Server{
		router: router,
		httpServer: &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      router,
			ReadTimeout:  time.Duration(cfg.ReadTimeoutSec) * time.Second,
			WriteTimeout: time.Duration(cfg.WriteTimeoutSec) * time.Second,
			IdleTimeout:  time.Duration(cfg.IdleTimeoutSec) * time.Second,
		},
	}
}

func (s *Server) ListenAndServe() error {
	slog.Info("httpapi: listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Info("httpapi: request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func corsMiddleware(allowOrigins []string) mux.MiddlewareFunc {
	allowed := make(map[string]bool, len(allowOrigins))
	wildcard := false
	for _, o := range allowOrigins {
		if o == "*" {
			wildcard = true
		}
		allowed[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case wildcard:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case allowed[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
