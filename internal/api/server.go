package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"shopplanner/internal/db"
	"shopplanner/internal/export"
	"shopplanner/internal/metrics"
	"shopplanner/internal/model"
	"shopplanner/internal/store"
)

// ReadyCheck is a named dependency check for /readyz.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

type Options struct {
	OrganizationID string
	Location       *time.Location
	APIKey         string
	RateLimitRPS   float64
	RateLimitBurst int
	ReadyChecks    []ReadyCheck
	// Tables enables the full table dump at /api/v1/export/tables.
	Tables     export.TableSource
	TableNames []string
}

// Server exposes the planner backend as JSON over HTTP.
type Server struct {
	backend store.Backend
	opts    Options
	logger  zerolog.Logger
	handler http.Handler
	server  *http.Server

	limMu     sync.Mutex
	limiters  map[string]*limiterEntry
	lastSweep time.Time
	now       func() time.Time
}

// limiterIdle is how long a client's bucket survives without requests.
const limiterIdle = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewServer(backend store.Backend, opts Options, logger zerolog.Logger) *Server {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.RateLimitRPS > 0 && opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = int(opts.RateLimitRPS) + 1
	}

	s := &Server{
		backend:  backend,
		opts:     opts,
		logger:   logger.With().Str("component", "api").Logger(),
		limiters: make(map[string]*limiterEntry),
		now:      time.Now,
	}
	s.lastSweep = s.now()

	api := http.NewServeMux()
	api.HandleFunc("GET /api/v1/appointments", s.handleListAppointments)
	api.HandleFunc("POST /api/v1/appointments", s.handleCreateAppointment)
	api.HandleFunc("PUT /api/v1/appointments/{id}", s.handleUpdateAppointment)
	api.HandleFunc("GET /api/v1/appointments/{id}/conflicts", s.handleConflicts)
	api.HandleFunc("POST /api/v1/schedule/check", s.handleScheduleCheck)
	api.HandleFunc("GET /api/v1/technicians", s.handleTechnicians)
	api.HandleFunc("GET /api/v1/bays", s.handleBays)
	api.HandleFunc("GET /api/v1/export/day", s.handleExportDay)
	api.HandleFunc("GET /api/v1/export/tables", s.handleExportTables)

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	root.HandleFunc("GET /readyz", s.handleReady)
	root.Handle("/api/", s.withRateLimit(s.withAuth(api)))

	s.handler = s.withLogging(root)
	return s
}

// Handler returns the root handler including middleware.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on port until Shutdown is called.
func (s *Server) Start(port int) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	s.logger.Info().Int("port", port).Msg("api server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.APIKey != "" {
			key := r.Header.Get("x-api-key")
			if subtle.ConstantTimeCompare([]byte(key), []byte(s.opts.APIKey)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit applies a token bucket per API key, or per client address
// when no key is sent.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	if s.opts.RateLimitRPS <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter(clientKey(r)).Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) limiter(key string) *rate.Limiter {
	s.limMu.Lock()
	defer s.limMu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) >= limiterIdle {
		for k, e := range s.limiters {
			if now.Sub(e.lastSeen) >= limiterIdle {
				delete(s.limiters, k)
			}
		}
		s.lastSweep = now
	}

	e, ok := s.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(s.opts.RateLimitRPS), s.opts.RateLimitBurst)}
		s.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

func clientKey(r *http.Request) string {
	if key := r.Header.Get("x-api-key"); key != "" {
		return "key:" + key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(started)).
			Msg("http request")
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	var failures []string
	for _, check := range s.opts.ReadyChecks {
		if check.Check == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := check.Check(ctx)
		cancel()
		if err != nil {
			name := check.Name
			if name == "" {
				name = "dependency"
			}
			failures = append(failures, name+": "+err.Error())
		}
	}
	if len(failures) > 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(strings.Join(failures, "; ")))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeBackendError maps persistence errors to HTTP status codes.
func (s *Server) writeBackendError(w http.ResponseWriter, endpoint string, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, db.ErrInvalid), errors.Is(err, model.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout")
	default:
		s.logger.Error().Err(err).Str("endpoint", endpoint).Msg("backend error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
	metrics.IncHTTPError(endpoint)
}
