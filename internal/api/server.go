// Package api exposes the HTTP interface for the audit service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bipulgarera-droid/seo-audit-slides/internal/audit"
	"github.com/bipulgarera-droid/seo-audit-slides/internal/config"
	"github.com/bipulgarera-droid/seo-audit-slides/internal/dispatcher"
	"github.com/bipulgarera-droid/seo-audit-slides/internal/export"
	"github.com/bipulgarera-droid/seo-audit-slides/internal/metrics"
	"github.com/bipulgarera-droid/seo-audit-slides/internal/tracker"
	"github.com/bipulgarera-droid/seo-audit-slides/internal/worker"
)

const enqueueTimeout = 5 * time.Second

// Server wires HTTP handlers to the tracker, dispatcher, and stores.
type Server struct {
	router   chi.Router
	tracker  *tracker.Tracker
	records  audit.RecordStore
	dispatch *dispatcher.Dispatcher
	exporter *export.Exporter
	cancels  *worker.CancelRegistry
	clock    audit.Clock
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	trk *tracker.Tracker,
	records audit.RecordStore,
	dispatch *dispatcher.Dispatcher,
	exporter *export.Exporter,
	cancels *worker.CancelRegistry,
	clock audit.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		tracker:  trk,
		records:  records,
		dispatch: dispatch,
		exporter: exporter,
		cancels:  cancels,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(60 * time.Second))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/audits", func(r chi.Router) {
			r.Post("/", s.submitAudit)
			r.Get("/", s.listAudits)
			r.Route("/{task_id}", func(r chi.Router) {
				r.Get("/status", s.getAuditStatus)
				r.Get("/record", s.getAuditRecord)
				r.Post("/export", s.exportAudit)
				r.Post("/cancel", s.cancelAudit)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) submitAudit(w http.ResponseWriter, r *http.Request) {
	var req audit.AuditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.MaxPages == 0 {
		req.MaxPages = s.cfg.Audit.MaxPagesDefault
	}
	task, err := s.tracker.Create(r.Context(), req)
	if err != nil {
		if errors.Is(err, audit.ErrValidation) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("create task failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to create audit")
		return
	}
	queueCtx, cancel := context.WithTimeout(r.Context(), enqueueTimeout)
	defer cancel()
	item := audit.QueueItem{
		TaskID:    task.ID,
		Domain:    task.Domain,
		Sources:   task.RequestedSources(),
		MaxPages:  task.MaxPages,
		Submitted: task.CreatedAt.Unix(),
	}
	if err := s.dispatch.Enqueue(queueCtx, item); err != nil {
		s.logger.Error("enqueue task failed", zap.String("task_id", task.ID), zap.Error(err))
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusRequestTimeout
		}
		s.writeError(w, status, "failed to enqueue audit")
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"task_id": task.ID,
		"status":  task.Status,
	})
}

func (s *Server) listAudits(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.tracker.List(r.Context())
	if err != nil {
		s.logger.Error("list tasks failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list audits")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Server) getAuditStatus(w http.ResponseWriter, r *http.Request) {
	taskID, err := parseTaskID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	task, err := s.tracker.Get(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, audit.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "audit not found")
			return
		}
		s.logger.Error("get task failed", zap.String("task_id", taskID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load audit")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"task": task})
}

func (s *Server) getAuditRecord(w http.ResponseWriter, r *http.Request) {
	taskID, err := parseTaskID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	record, err := s.records.GetRecord(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, audit.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "audit record not found")
			return
		}
		s.logger.Error("get record failed", zap.String("task_id", taskID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load audit record")
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

type exportRequest struct {
	Template string `json:"template"`
}

func (s *Server) exportAudit(w http.ResponseWriter, r *http.Request) {
	taskID, err := parseTaskID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req exportRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	record, err := s.records.GetRecord(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, audit.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "audit record not found")
			return
		}
		s.logger.Error("get record failed", zap.String("task_id", taskID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load audit record")
		return
	}
	uri, artifact, err := s.exporter.Export(r.Context(), record, req.Template)
	if err != nil {
		switch {
		case errors.Is(err, audit.ErrNotFound):
			s.writeError(w, http.StatusNotFound, "export template not found")
		case errors.Is(err, audit.ErrIncompleteRecord):
			s.writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, audit.ErrValidation):
			s.writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("export failed", zap.String("task_id", taskID), zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "failed to export audit")
		}
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"task_id":  taskID,
		"template": artifact.Template,
		"slides":   len(artifact.Slides),
		"uri":      uri,
	})
}

func (s *Server) cancelAudit(w http.ResponseWriter, r *http.Request) {
	taskID, err := parseTaskID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.cancels.Cancel(taskID) {
		s.writeJSON(w, http.StatusAccepted, map[string]any{
			"task_id":  taskID,
			"canceled": true,
		})
		return
	}
	task, err := s.tracker.Get(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, audit.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "audit not found")
			return
		}
		s.logger.Error("get task failed", zap.String("task_id", taskID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load audit")
		return
	}
	s.writeError(w, http.StatusConflict,
		fmt.Sprintf("audit in status %s is not cancelable", task.Status))
}

func parseTaskID(r *http.Request) (string, error) {
	taskID := chi.URLParam(r, "task_id")
	if taskID == "" {
		return "", errors.New("task_id is required")
	}
	if _, err := uuid.Parse(taskID); err != nil {
		return "", errors.New("invalid task_id")
	}
	return taskID, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	writeJSON(w, status, payload, s.logger)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg}, s.logger)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeJSON(w, http.StatusInternalServerError,
						map[string]string{"error": "internal server error"}, logger)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
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

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeJSON(w, http.StatusForbidden, map[string]string{"error": "unauthorized"}, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil && logger != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}
