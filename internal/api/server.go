// Package api serves reverse geocoding queries over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/wegman-software/revgeo-go/internal/config"
	"github.com/wegman-software/revgeo-go/internal/logger"
	"github.com/wegman-software/revgeo-go/internal/search"
)

// Searcher answers point queries
type Searcher interface {
	Search(lon, lat float64) ([]search.Result, error)
}

// ReadyFunc reports whether queries can be answered
type ReadyFunc func() bool

type errorResponse struct {
	Error string `json:"error"`
}

// Handler returns the HTTP routes of the service. gatherer may be nil, in
// which case /metrics is not served.
func Handler(s Searcher, ready ReadyFunc, gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /search", searchHandler(s))
	mux.HandleFunc("GET /tarantula", searchHandler(s))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if !ready() {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: search.ErrNotReady.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

func searchHandler(s Searcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		lon, err := strconv.ParseFloat(q.Get("lon"), 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid lon"})
			return
		}
		lat, err := strconv.ParseFloat(q.Get("lat"), 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid lat"})
			return
		}

		results, err := s.Search(lon, lat)
		if errors.Is(err, search.ErrNotReady) {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
			return
		}
		if err != nil {
			logger.Get().Error("Search failed", zap.Float64("lon", lon), zap.Float64("lat", lat), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
			return
		}
		if results == nil {
			results = []search.Result{}
		}
		writeJSON(w, http.StatusOK, results)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Get().Debug("Failed to write response", zap.Error(err))
	}
}

// Server is the HTTP front end of the search engine
type Server struct {
	srv *http.Server
}

// NewServer wraps handler with the configured rate limit and timeouts
func NewServer(cfg *config.Server, handler http.Handler) *Server {
	if cfg.RateLimit > 0 {
		handler = RateLimitMiddleware(cfg.RateLimit, cfg.RateWindow)(handler)
	}
	return &Server{srv: &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}}
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	log := logger.Get()
	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", s.srv.Addr))
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("Shutting down HTTP server")
		return s.srv.Shutdown(shutdownCtx)
	}
}
