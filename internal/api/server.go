// Package api exposes the leaderboard over HTTP.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"castboard/internal/board"
	"castboard/internal/observability"
	"castboard/internal/reconcile"
	"castboard/internal/storage"
)

type ctxKey int

const requestIDKey ctxKey = iota

// DefaultRequestTimeout bounds a single request, including enrichment.
const DefaultRequestTimeout = 30 * time.Second

// Reconciler is the subset of reconcile.Reconciler the API drives.
type Reconciler interface {
	Reconcile(ctx context.Context) (reconcile.Diff, error)
	Status() reconcile.Status
}

// Options configures a Server.
type Options struct {
	Board          *board.Service
	Reconciler     Reconciler            // optional
	Snapshots      storage.SnapshotStore // optional
	RequestTimeout time.Duration
	AllowedOrigins []string
	Logger         zerolog.Logger
}

// Server routes HTTP requests to the board service.
type Server struct {
	router     *mux.Router
	board      *board.Service
	reconciler Reconciler
	snapshots  storage.SnapshotStore
	timeout    time.Duration
	origins    []string
	logger     zerolog.Logger
	started    time.Time
}

// NewServer creates a Server with all routes registered.
func NewServer(opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	s := &Server{
		router:     mux.NewRouter(),
		board:      opts.Board,
		reconciler: opts.Reconciler,
		snapshots:  opts.Snapshots,
		timeout:    opts.RequestTimeout,
		origins:    opts.AllowedOrigins,
		logger:     opts.Logger,
		started:    time.Now(),
	}
	s.setupRoutes()
	return s
}

// Handler returns the root HTTP handler.
// CORS wraps the router so preflight requests never reach route matching.
func (s *Server) Handler() http.Handler {
	return s.corsMiddleware(s.router)
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)

	s.router.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(s.timeoutMiddleware)
	api.Use(jsonContentTypeMiddleware)

	api.HandleFunc("/health", s.health).Methods(http.MethodGet)
	api.HandleFunc("/status", s.status).Methods(http.MethodGet)

	api.HandleFunc("/leaderboard", s.leaderboard).Methods(http.MethodGet)
	api.HandleFunc("/participants", s.addParticipant).Methods(http.MethodPost)
	api.HandleFunc("/participants/{address}", s.removeParticipant).Methods(http.MethodDelete)
	api.HandleFunc("/participants/{address}/refresh", s.refreshParticipant).Methods(http.MethodPost)
	api.HandleFunc("/participants/{address}/nfts", s.holdings).Methods(http.MethodGet)
	api.HandleFunc("/participants/{address}/history", s.history).Methods(http.MethodGet)

	api.HandleFunc("/reconcile", s.reconcile).Methods(http.MethodPost)
	api.HandleFunc("/snapshots/latest", s.latestSnapshot).Methods(http.MethodGet)

	// Routes used by the original web client.
	api.HandleFunc("/api/leaderboard", s.leaderboard).Methods(http.MethodGet)
	api.HandleFunc("/api/add-user", s.addParticipant).Methods(http.MethodPost)
	api.HandleFunc("/api/remove-user/{address}", s.removeParticipant).Methods(http.MethodDelete)
	api.HandleFunc("/api/nfts/{address}", s.holdings).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(s.notFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.methodNotAllowed)
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()[:8]
		}
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		level := zerolog.DebugLevel
		if wrapper.statusCode >= http.StatusInternalServerError {
			level = zerolog.WarnLevel
		}
		s.logger.WithLevel(level).
			Str("request_id", requestID(r)).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	if len(s.origins) == 0 {
		return strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1")
	}
	for _, o := range s.origins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func requestID(r *http.Request) string {
	if id, ok := r.Context().Value(requestIDKey).(string); ok {
		return id
	}
	return "unknown"
}

// responseWrapper captures HTTP status codes for logging.
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
