package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/newsdesk-sync/internal/metrics"
	"github.com/JakeFAU/newsdesk-sync/internal/syncer"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 100
	handlerTimeout  = 10 * time.Second
)

// RunSource exposes recorded run summaries.
type RunSource interface {
	Latest() (syncer.RunSummary, bool)
	Get(runID string) (syncer.RunSummary, bool)
	List(limit, offset int) []syncer.RunSummary
}

// Server wires HTTP handlers to the run history.
type Server struct {
	router chi.Router
	runs   RunSource
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(runs RunSource, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	s := &Server{
		runs:   runs,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(handlerTimeout))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/status", s.status)
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.listRuns)
		r.Route("/{run_id}", func(r chi.Router) {
			r.Get("/", s.getRun)
			r.Get("/sites", s.getRunSites)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server started", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("status server stopped")
	return nil
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// status handles GET /status. It returns {"run": {...}} for the latest run or
// 404 when no run has finished yet.
func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	run, ok := s.runs.Latest()
	if !ok {
		writeError(w, http.StatusNotFound, "no runs recorded yet")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": toRunDTO(run)})
}

// listRuns handles GET /runs?limit=&offset=.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	runs := s.runs.List(limit, offset)
	out := make([]runDTO, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRunDTO(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.runs.Get(chi.URLParam(r, "run_id"))
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": toRunDTO(run)})
}

func (s *Server) getRunSites(w http.ResponseWriter, r *http.Request) {
	run, ok := s.runs.Get(chi.URLParam(r, "run_id"))
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	sites := run.Sites
	if sites == nil {
		sites = []syncer.SiteSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sites": sites})
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		limit = min(val, maxLimit)
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

type runDTO struct {
	RunID       string               `json:"run_id"`
	StartedAt   time.Time            `json:"started_at"`
	DurationMs  int64                `json:"duration_ms"`
	TotalFound  int                  `json:"total_found"`
	Succeeded   int                  `json:"succeeded"`
	Failed      int                  `json:"failed"`
	Skipped     int                  `json:"skipped"`
	SuccessRate float64              `json:"success_rate"`
	Interrupted bool                 `json:"interrupted"`
	Sites       []syncer.SiteSummary `json:"sites"`
}

func toRunDTO(run syncer.RunSummary) runDTO {
	sites := run.Sites
	if sites == nil {
		sites = []syncer.SiteSummary{}
	}
	return runDTO{
		RunID:       run.RunID,
		StartedAt:   run.StartedAt,
		DurationMs:  run.Duration.Milliseconds(),
		TotalFound:  run.TotalFound,
		Succeeded:   run.Succeeded,
		Failed:      run.Failed,
		Skipped:     run.Skipped(),
		SuccessRate: run.SuccessRate(),
		Interrupted: run.Interrupted,
		Sites:       sites,
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Debug("request completed",
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
