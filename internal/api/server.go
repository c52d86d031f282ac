// Package api exposes the HTTP interface for the auditor service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mjaros/seo-auditor/internal/audit"
	"github.com/mjaros/seo-auditor/internal/config"
	"github.com/mjaros/seo-auditor/internal/dataforseo"
	"github.com/mjaros/seo-auditor/internal/metrics"
)

// Server wires HTTP handlers to the job store, provider client and
// aggregator.
type Server struct {
	router     chi.Router
	jobStore   audit.JobStore
	client     audit.AnalysisClient
	aggregator audit.Aggregator
	idGen      audit.IDGenerator
	clock      audit.Clock
	cfg        config.Config
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	jobStore audit.JobStore,
	client audit.AnalysisClient,
	aggregator audit.Aggregator,
	idGen audit.IDGenerator,
	clock audit.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		jobStore:   jobStore,
		client:     client,
		aggregator: aggregator,
		idGen:      idGen,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Webhook endpoints stay outside the auth group: the provider cannot
	// send an API key. Pingbacks may arrive as GET or POST.
	r.Get("/webhook/onpage-done", s.handleWebhook(audit.SubtaskOnPage))
	r.Post("/webhook/onpage-done", s.handleWebhook(audit.SubtaskOnPage))
	r.Get("/webhook/lighthouse-done", s.handleWebhook(audit.SubtaskLighthouse))
	r.Post("/webhook/lighthouse-done", s.handleWebhook(audit.SubtaskLighthouse))

	r.Group(func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/start-audit", s.startAudit)
		r.Get("/check-audit-status/{job_id}", s.checkAuditStatus)
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

type startAuditRequest struct {
	Domain string `json:"domain"`
}

type statusResponse struct {
	Status  audit.Status  `json:"status"`
	JobID   string        `json:"job_id,omitempty"`
	Message string        `json:"message,omitempty"`
	Data    *audit.Report `json:"data,omitempty"`
}

func (s *Server) startAudit(w http.ResponseWriter, r *http.Request) {
	var req startAuditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	domain, err := normalizeDomain(req.Domain)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobID, err := s.idGen.NewID()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("generate job id: %v", err))
		return
	}

	// The record is written before any provider call so the job id already
	// exists when the first pingback arrives.
	job := audit.Job{
		ID:               jobID,
		Domain:           domain,
		OnPageStatus:     audit.SubtaskPending,
		LighthouseStatus: audit.SubtaskPending,
		CreatedAt:        s.clock.Now(),
	}
	if err := s.jobStore.CreateJob(r.Context(), job); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("create job: %v", err))
		return
	}

	onpageTaskID, err := s.client.SubmitOnPageTask(r.Context(), domain, jobID)
	if err != nil {
		s.rollbackJob(r.Context(), jobID)
		s.writeError(w, http.StatusBadGateway, fmt.Sprintf("failed to start audit: %v", err))
		return
	}
	lighthouseTaskID, err := s.client.SubmitLighthouseTask(r.Context(), domain, jobID)
	if err != nil {
		s.rollbackJob(r.Context(), jobID)
		s.writeError(w, http.StatusBadGateway, fmt.Sprintf("failed to start audit: %v", err))
		return
	}

	if _, err := s.jobStore.UpdateJob(r.Context(), jobID, audit.JobUpdate{
		OnPageTaskID:     &onpageTaskID,
		LighthouseTaskID: &lighthouseTaskID,
	}); err != nil {
		s.rollbackJob(r.Context(), jobID)
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("store task ids: %v", err))
		return
	}

	metrics.ObserveJobStarted()
	s.logger.Info("audit started",
		zap.String("job_id", jobID),
		zap.String("domain", domain),
		zap.String("onpage_task_id", onpageTaskID),
		zap.String("lighthouse_task_id", lighthouseTaskID),
	)
	s.writeJSON(w, http.StatusAccepted, statusResponse{Status: audit.StatusPending, JobID: jobID})
}

// rollbackJob removes a half-created job so a failed submission leaves no
// orphaned pending record.
func (s *Server) rollbackJob(ctx context.Context, jobID string) {
	if err := s.jobStore.DeleteJob(ctx, jobID); err != nil {
		s.logger.Error("rollback job failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

// handleWebhook translates a provider pingback into a sub-task transition.
// The endpoint always acknowledges receipt, even for unknown jobs or
// upstream failures, so the provider never enters a retry storm.
func (s *Server) handleWebhook(subtask audit.Subtask) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})

		jobID := r.URL.Query().Get("job_id")
		if jobID == "" {
			metrics.ObserveWebhook(string(subtask), "invalid")
			s.logger.Warn("webhook without job_id", zap.String("subtask", string(subtask)))
			return
		}

		succeeded, rawResult := s.readNotification(r, subtask)

		job, err := s.jobStore.GetJob(r.Context(), jobID)
		if err != nil {
			metrics.ObserveWebhook(string(subtask), "unknown_job")
			s.logger.Warn("webhook for unknown job",
				zap.String("subtask", string(subtask)),
				zap.String("job_id", jobID),
				zap.Error(err),
			)
			return
		}

		current := job.OnPageStatus
		if subtask == audit.SubtaskLighthouse {
			current = job.LighthouseStatus
		}
		next, changed := audit.NextSubtaskStatus(current, succeeded)
		if !changed {
			metrics.ObserveWebhook(string(subtask), "duplicate")
			return
		}

		update := audit.JobUpdate{}
		if subtask == audit.SubtaskOnPage {
			update.OnPageStatus = &next
			update.OnPageData = rawResult
		} else {
			update.LighthouseStatus = &next
			update.LighthouseData = rawResult
		}
		if _, err := s.jobStore.UpdateJob(r.Context(), jobID, update); err != nil {
			metrics.ObserveWebhook(string(subtask), "store_error")
			s.logger.Error("webhook update failed",
				zap.String("subtask", string(subtask)),
				zap.String("job_id", jobID),
				zap.Error(err),
			)
			return
		}

		metrics.ObserveWebhook(string(subtask), string(next))
		s.logger.Info("webhook applied",
			zap.String("subtask", string(subtask)),
			zap.String("job_id", jobID),
			zap.String("status", string(next)),
		)
	}
}

// readNotification inspects an optional pingback body. A bare ping counts as
// success: the provider only pings once a task finished. A payload with a
// non-success status code marks the sub-task failed; its result entries are
// kept so aggregation can skip re-fetching the summary.
func (s *Server) readNotification(r *http.Request, subtask audit.Subtask) (bool, json.RawMessage) {
	body, err := io.ReadAll(r.Body)
	if err != nil || len(body) == 0 {
		return true, nil
	}

	var note dataforseo.TaskNotification
	if err := json.Unmarshal(body, &note); err != nil {
		s.logger.Warn("unparseable webhook payload",
			zap.String("subtask", string(subtask)),
			zap.Error(err),
		)
		return true, nil
	}
	if !note.Succeeded() {
		s.logger.Warn("webhook reports upstream failure",
			zap.String("subtask", string(subtask)),
			zap.String("message", note.Message()),
		)
		return false, nil
	}

	var raw json.RawMessage
	if len(note.Tasks) > 0 && len(note.Tasks[0].Result) > 0 {
		raw = note.Tasks[0].Result
	}
	return true, raw
}

func (s *Server) checkAuditStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")

	job, err := s.jobStore.GetJob(r.Context(), jobID)
	if err != nil {
		if !errors.Is(err, audit.ErrNotFound) {
			s.logger.Error("job lookup failed", zap.String("job_id", jobID), zap.Error(err))
		}
		s.writeJSON(w, http.StatusOK, statusResponse{
			Status:  audit.StatusError,
			Message: "Job not found.",
		})
		return
	}

	switch audit.Overall(job) {
	case audit.StatusError:
		message := "Upstream audit processing failed."
		if job.ErrorText != "" {
			message = job.ErrorText
		}
		s.writeJSON(w, http.StatusOK, statusResponse{
			Status:  audit.StatusError,
			Message: message,
		})
	case audit.StatusPending:
		message := "On-page scan (step 1/2) in progress..."
		if job.OnPageStatus == audit.SubtaskCompleted {
			message = "Lighthouse scan (step 2/2) in progress..."
		}
		s.writeJSON(w, http.StatusOK, statusResponse{
			Status:  audit.StatusPending,
			Message: message,
		})
	case audit.StatusCompleted:
		report, err := s.aggregator.BuildReport(r.Context(), job)
		if err != nil {
			s.logger.Error("aggregation failed", zap.String("job_id", jobID), zap.Error(err))
			cause := err
			if unwrapped := errors.Unwrap(err); unwrapped != nil {
				cause = unwrapped
			}
			s.writeJSON(w, http.StatusOK, statusResponse{
				Status:  audit.StatusError,
				Message: fmt.Sprintf("aggregation failed: %v", cause),
			})
			return
		}
		s.writeJSON(w, http.StatusOK, statusResponse{
			Status: audit.StatusCompleted,
			Data:   &report,
		})
	}
}

func normalizeDomain(domain string) (string, error) {
	domain = strings.TrimSpace(domain)
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	domain = strings.TrimSuffix(domain, "/")
	if domain == "" {
		return "", &audit.ValidationError{Field: "domain", Reason: "must not be empty"}
	}
	if strings.ContainsAny(domain, " /?#") {
		return "", &audit.ValidationError{Field: "domain", Reason: "must be a bare hostname"}
	}
	return strings.ToLower(domain), nil
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
		metrics.ObserveHTTPRequest(r.Method, ww.status)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
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

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
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

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
