// Package server exposes the pipeline over a JSON REST API: read
// endpoints for operators inspecting work items and audit trails, and
// command endpoints that drive review transitions.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/kingofalbert/cms-automation-sub000/internal/db"
	"github.com/kingofalbert/cms-automation-sub000/internal/lifecycle"
	"github.com/kingofalbert/cms-automation-sub000/internal/proofreading"
	"github.com/kingofalbert/cms-automation-sub000/internal/server/ratelimit"
	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

// Store is the read and lookup surface the handlers need. *db.DB
// satisfies it.
type Store interface {
	GetWorkItem(ctx context.Context, id uuid.UUID) (*types.WorkItem, error)
	ListWorkItems(ctx context.Context, filters db.WorkItemFilters) ([]types.WorkItem, error)
	GetDocument(ctx context.Context, workItemID uuid.UUID) (*types.CanonicalDocument, error)
	ListSuggestions(ctx context.Context, workItemID uuid.UUID) ([]types.Suggestion, error)
	GetCurrentRun(ctx context.Context, workItemID uuid.UUID) (*types.ProofreadingRun, error)
	ListRunIssues(ctx context.Context, runID uuid.UUID) ([]types.Issue, error)
	ListPublishTasks(ctx context.Context, workItemID uuid.UUID) ([]types.PublishTask, error)
	GetPublishTask(ctx context.Context, id uuid.UUID) (*types.PublishTask, error)
	ListStepRecords(ctx context.Context, taskID uuid.UUID) ([]types.StepRecord, error)
}

// Scanner triggers one immediate source poll and reports how many
// documents were picked up.
type Scanner interface {
	Scan(ctx context.Context) int
}

// Config holds the server's wiring. Store, Ledger and Decisions are
// required; Scanner is optional for deployments that only serve the
// review UI.
type Config struct {
	Port      int
	Store     Store
	Ledger    *lifecycle.Ledger
	Decisions *proofreading.DecisionLedger
	Scanner   Scanner
	Logger    *slog.Logger
}

// Server is the HTTP front end of the pipeline.
type Server struct {
	httpServer  *http.Server
	store       Store
	ledger      *lifecycle.Ledger
	decisions   *proofreading.DecisionLedger
	scanner     Scanner
	rateLimiter *ratelimit.Limiter
	logger      *slog.Logger
}

// New creates a server and registers its routes.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("server requires a store")
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("server requires a status ledger")
	}
	if cfg.Decisions == nil {
		return nil, fmt.Errorf("server requires a decision ledger")
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		store:       cfg.Store,
		ledger:      cfg.Ledger,
		decisions:   cfg.Decisions,
		scanner:     cfg.Scanner,
		rateLimiter: ratelimit.NewLimiter(ratelimit.LoadConfig()),
		logger:      cfg.Logger.With("component", "server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	// Work item queries
	mux.HandleFunc("GET /workitems", s.handleListWorkItems)
	mux.HandleFunc("GET /workitems/{id}", s.handleGetWorkItem)
	mux.HandleFunc("GET /workitems/{id}/history", s.handleWorkItemHistory)

	// Review surfaces
	mux.HandleFunc("GET /workitems/{id}/document", s.handleGetDocument)
	mux.HandleFunc("GET /workitems/{id}/issues", s.handleListIssues)
	mux.HandleFunc("GET /workitems/{id}/decisions", s.handleListDecisions)

	// Publish audit trail
	mux.HandleFunc("GET /workitems/{id}/publish-tasks", s.handleListPublishTasks)
	mux.HandleFunc("GET /publish-tasks/{id}/steps", s.handleListTaskSteps)

	// Commands
	mux.HandleFunc("POST /workitems/{id}/confirm-parsing", s.handleConfirmParsing)
	mux.HandleFunc("POST /workitems/{id}/decisions", s.handleRecordDecision)
	mux.HandleFunc("POST /workitems/{id}/reanalyze", s.handleReanalyze)
	mux.HandleFunc("POST /workitems/{id}/request-publish", s.handleRequestPublish)
	mux.HandleFunc("POST /workitems/{id}/retry", s.handleRetry)
	mux.HandleFunc("POST /scan", s.handleScan)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.withRateLimit(s.withLogging(s.withCORS(mux))),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Start listens until SIGINT or SIGTERM, then drains in-flight requests.
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-stop:
	}
	s.logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	s.logger.Info("server stopped")
	return nil
}

// withCORS adds CORS headers for the review UI.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withLogging logs one line per request.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"duration", time.Since(start))
	})
}

// withRateLimit enforces per-client token buckets.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := s.extractClientID(r)
		allowed, info := s.rateLimiter.Allow(clientID, r.URL.Path, r.Method)

		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, info)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// extractClientID identifies a client by IP. X-Forwarded-For is ignored
// until the server sits behind a trusted proxy.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	if info.RetryAfter > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(info.RetryAfter.Seconds())))
	}
	s.logger.Warn("rate limit exceeded", "limit", info.Limit, "reset", info.ResetTime)
	s.jsonResponse(w, http.StatusTooManyRequests, map[string]any{
		"error":    "rate limit exceeded",
		"limit":    info.Limit,
		"reset_at": info.ResetTime.Format(time.RFC3339),
	})
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response.
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// errorResponse writes an {"error": ...} JSON response.
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// serviceError maps a service failure onto an HTTP response.
func (s *Server) serviceError(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.errorResponse(w, status, err.Error())
}
