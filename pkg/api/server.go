// Package api exposes the reading cache over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/ericogr/dht22-to-mqtt/pkg/sensor"
)

// Cache is the read side of the manager.
type Cache interface {
	Latest(kind sensor.Kind) (sensor.Reading, bool)
	Running() bool
	Interval() time.Duration
}

// Prober checks sensor availability. The environmental probe runs a full
// bus transaction.
type Prober interface {
	IsAvailable(kind sensor.Kind) bool
}

// History lists stored readings, newest first.
type History interface {
	Recent(limit int) ([]sensor.Reading, error)
}

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 1000
)

type Server struct {
	cache   Cache
	prober  Prober
	history History
	metrics http.Handler
	log     *slog.Logger
	router  *mux.Router
}

// NewServer builds the router. metrics may be nil.
func NewServer(cache Cache, prober Prober, metrics http.Handler, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{cache: cache, prober: prober, metrics: metrics, log: log.With("component", "api")}
	r := mux.NewRouter()
	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/readings/{kind}", s.handleLatest).Methods(http.MethodGet)
	r.HandleFunc("/api/readings/{kind}/history", s.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/api/sensors/{kind}/available", s.handleAvailable).Methods(http.MethodGet)
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods(http.MethodGet)
	}
	s.router = r
	return s
}

// WithHistory enables the history route. Without it the route answers 404.
func (s *Server) WithHistory(h History) *Server {
	s.history = h
	return s
}

func (s *Server) Handler() http.Handler {
	return handlers.RecoveryHandler()(s.router)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

type statusResponse struct {
	Running    bool  `json:"running"`
	IntervalMs int64 `json:"interval_ms"`
}

type availabilityResponse struct {
	Kind      sensor.Kind `json:"kind"`
	Available bool        `json:"available"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Running:    s.cache.Running(),
		IntervalMs: s.cache.Interval().Milliseconds(),
	})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.kind(w, r)
	if !ok {
		return
	}
	reading, ok := s.cache.Latest(kind)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no valid reading for " + kind.String()})
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.kind(w, r)
	if !ok {
		return
	}
	if s.history == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "history not configured"})
		return
	}
	limit := DefaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > MaxHistoryLimit {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be in 1.." + strconv.Itoa(MaxHistoryLimit)})
			return
		}
		limit = n
	}
	readings, err := s.history.Recent(limit)
	if err != nil {
		s.log.Error("history query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "history query failed"})
		return
	}
	out := make([]sensor.Reading, 0, len(readings))
	for _, rd := range readings {
		if rd.Kind == kind {
			out = append(out, rd)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAvailable(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.kind(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, availabilityResponse{Kind: kind, Available: s.prober.IsAvailable(kind)})
}

func (s *Server) kind(w http.ResponseWriter, r *http.Request) (sensor.Kind, bool) {
	kind, err := sensor.ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return 0, false
	}
	return kind, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
