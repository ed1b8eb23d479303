package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lourdrickvalsote/tonguekeeper/internal/archive"
	"github.com/lourdrickvalsote/tonguekeeper/internal/storage"
)

// RunLister reads archived run summaries. Satisfied by *archive.DB.
type RunLister interface {
	ListRecent(ctx context.Context, limit int) ([]archive.RunSummary, error)
}

// ServerOptions wires the HTTP surface's collaborators. Archive and Cache
// may be nil; their routes degrade accordingly.
type ServerOptions struct {
	Addr      string
	Runner    Runner
	Cache     storage.Cache
	Archive   *archive.DB
	StoreType string
	Version   string
	Log       zerolog.Logger
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(opts ServerOptions) *Server {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(opts.Log))

	var pinger Pinger
	var lister RunLister
	if opts.Archive != nil {
		pinger = opts.Archive
		lister = opts.Archive
	}

	health := NewHealthHandler(pinger, opts.StoreType, opts.Version, time.Now())
	process := NewProcessHandler(opts.Runner, opts.Cache, opts.Log)

	r.Get("/api/v1/health", health.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/api/v1/process-video", process.Process)
	r.Get("/api/v1/status/{videoID}", process.Status)
	r.Get("/api/v1/transcripts/{videoID}", process.Transcript)
	r.Get("/api/v1/runs", runsHandler(lister))

	return &Server{
		http: &http.Server{
			Addr:         opts.Addr,
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		log: opts.Log,
	}
}

func runsHandler(lister RunLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if lister == nil {
			WriteError(w, http.StatusServiceUnavailable, "archive not configured")
			return
		}
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				WriteError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = n
		}
		runs, err := lister.ListRecent(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "archive query failed")
			return
		}
		if runs == nil {
			runs = []archive.RunSummary{}
		}
		WriteJSON(w, http.StatusOK, runs)
	}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
