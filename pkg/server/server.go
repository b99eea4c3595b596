package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/nstogner/coursemate/pkg/domain"
	"github.com/nstogner/coursemate/pkg/rag"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var httpRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "coursemate",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by status code and method",
	},
	[]string{"code", "method"},
)

// Assistant is the query facade the server exposes. *rag.System
// implements it.
type Assistant interface {
	Query(ctx context.Context, query, sessionID string) (*rag.QueryResult, error)
	CourseAnalytics(ctx context.Context) (*rag.Analytics, error)
	Outline(ctx context.Context, courseName string) (string, error)
	CreateSession(ctx context.Context) (string, error)
	SessionHistory(ctx context.Context, id string) ([]domain.SessionMessage, error)
	Models(ctx context.Context) ([]domain.Model, error)
}

var _ Assistant = (*rag.System)(nil)

// Server serves the REST API and the websocket chat endpoint.
type Server struct {
	assistant    Assistant
	queryTimeout time.Duration
	srv          *http.Server
}

// New creates a new Server. queryTimeout bounds each question; zero means
// no limit beyond the client's own.
func New(assistant Assistant, queryTimeout time.Duration) *Server {
	return &Server{
		assistant:    assistant,
		queryTimeout: queryTimeout,
	}
}

// Handler returns the routed, instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)

	// Questions
	mux.HandleFunc("POST /api/query", s.handleQuery)

	// Catalog
	mux.HandleFunc("GET /api/courses", s.handleCourseStats)
	mux.HandleFunc("GET /api/courses/outline", s.handleCourseOutline)

	// Sessions
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}/history", s.handleSessionHistory)

	// Models
	mux.HandleFunc("GET /api/models", s.handleListModels)

	// WebSocket
	mux.HandleFunc("GET /api/chat", s.handleChatWebSocket)

	mux.Handle("GET /metrics", promhttp.Handler())

	return promhttp.InstrumentHandlerCounter(httpRequestsTotal, s.corsMiddleware(mux))
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting web server", "addr", addr)
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// queryContext applies the configured per-question timeout.
func (s *Server) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.queryTimeout)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, err error) {
	slog.Error("API Error", "status", status, "error", err)
	s.jsonResponse(w, status, errorBody{Detail: err.Error()})
}

type errorBody struct {
	Detail string `json:"detail"`
}
