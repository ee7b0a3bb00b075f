package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		s.writeError(w, http.StatusServiceUnavailable, "async jobs unavailable")
		return
	}
	var body crawlRequest
	if !s.decode(w, r, &body) {
		return
	}
	req, err := s.toCrawlRequest(body)
	if err != nil {
		s.failJob(w, err)
		return
	}
	job, err := s.deps.Jobs.Submit(r.Context(), req)
	if err != nil {
		s.failJob(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
}

func (s *Server) getJobStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.JobStore == nil {
		s.writeError(w, http.StatusServiceUnavailable, "async jobs unavailable")
		return
	}
	job, err := s.deps.JobStore.GetJob(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		s.failJob(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

// getJobResult returns the report of a job that stopped with one. Pending
// and failed jobs answer 409.
func (s *Server) getJobResult(w http.ResponseWriter, r *http.Request) {
	if s.deps.JobStore == nil {
		s.writeError(w, http.StatusServiceUnavailable, "async jobs unavailable")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	job, err := s.deps.JobStore.GetJob(r.Context(), jobID)
	if err != nil {
		s.failJob(w, err)
		return
	}
	switch job.Status {
	case crawler.JobStatusQueued, crawler.JobStatusRunning:
		s.writeJSON(w, http.StatusConflict, map[string]string{"error": "job not finished", "status": string(job.Status)})
		return
	case crawler.JobStatusFailed:
		s.writeJSON(w, http.StatusConflict, map[string]string{"error": job.ErrorText, "status": string(job.Status)})
		return
	}
	rep, err := s.deps.JobStore.GetReport(r.Context(), jobID)
	if errors.Is(err, crawler.ErrReportNotFound) {
		s.writeJSON(w, http.StatusConflict, map[string]string{"error": "no report recorded", "status": string(job.Status)})
		return
	}
	if err != nil {
		s.failJob(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, &rep)
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		s.writeError(w, http.StatusServiceUnavailable, "async jobs unavailable")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	job, err := s.deps.Jobs.Cancel(r.Context(), jobID)
	if err != nil {
		s.failJob(w, err)
		return
	}
	status := job.Status
	if !status.Terminal() {
		// running jobs switch to canceled once the worker records the partial report
		status = crawler.JobStatusCanceled
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID, "status": string(status)})
}

func (s *Server) failJob(w http.ResponseWriter, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("job request failed", zap.Error(err))
	}
	s.writeError(w, status, msg)
}
