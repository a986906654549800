// Package api serves the record store over a small JSON HTTP API.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	stdsync "sync"
	"time"

	"github.com/chmdznr/recsync/internal/config"
	"github.com/chmdznr/recsync/internal/db"
	"github.com/chmdznr/recsync/internal/metrics"
	recsync "github.com/chmdznr/recsync/internal/sync"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// maxUploadSize bounds multipart ingest requests
const maxUploadSize = 64 << 20

// Server exposes records, history, rollback and ingest
type Server struct {
	store   *db.DB
	syncer  *recsync.Syncer
	profile *config.Profile
	metrics *metrics.Metrics
	logger  *slog.Logger

	// The store assumes a serialized writer; ingest and rollback share it.
	writeMu stdsync.Mutex
}

// NewServer creates a server. m may be nil to disable /metrics.
func NewServer(store *db.DB, syncer *recsync.Syncer, profile *config.Profile, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:   store,
		syncer:  syncer,
		profile: profile,
		metrics: m,
		logger:  logger.With("component", "api"),
	}
}

// Router builds the HTTP routes
func (s *Server) Router() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	if s.metrics != nil {
		router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	router.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/records", s.handleListRecords)
		r.Get("/records/{key}", s.handleGetRecord)
		r.Get("/records/{key}/history", s.handleHistory)
		r.Post("/records/{key}/rollback", s.handleRollback)
		r.Post("/ingest", s.handleIngest)
		r.Get("/export", s.handleExport)
	})
	return router
}

// ListenAndServe runs the server until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("starting server", "addr", addr)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("server stopped gracefully")
	return nil
}
