package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"aurora/internal/httpkit"
	"aurora/internal/ledger"
	"aurora/internal/pkg/errors"
)

type CreateJobRequest struct {
	JobPackage string `json:"jobpackage"`
}

// PostJob records a QUEUED submission and then publishes it. The row goes in
// first so a local worker that dequeues immediately always finds it. When the
// publish fails the row is marked SUBMIT_FAILED and the error is returned.
func (h *Handler) PostJob(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	var req CreateJobRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		return err
	}
	req.JobPackage = strings.TrimSpace(req.JobPackage)
	if req.JobPackage == "" {
		return errors.ValidationField("jobpackage", "jobpackage is required")
	}

	prepared, err := h.submitter.Prepare(req.JobPackage)
	if err != nil {
		return err
	}
	jobID := prepared.Request.JobID
	log := h.log.FromContext(ctx).WithJobID(jobID)

	sub := &ledger.Submission{
		JobID:      jobID,
		JobPackage: req.JobPackage,
		Status:     ledger.StatusQueued,
	}
	if err := h.ledger.Insert(ctx, sub); err != nil {
		return err
	}

	receipt, err := h.submitter.Publish(ctx, prepared)
	if err != nil {
		if merr := h.ledger.MarkSubmitFailed(ctx, jobID, err.Error()); merr != nil {
			log.Error("failed to mark submission failed", "error", merr.Error())
		}
		return err
	}

	sub.MessageID = receipt.MessageID
	if err := h.ledger.SetMessageID(ctx, jobID, receipt.MessageID); err != nil {
		log.Warn("failed to record message id", "error", err.Error())
	}

	httpkit.WriteJSON(w, http.StatusAccepted, map[string]any{"job": sub})
	return nil
}

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) error {
	status := ledger.Status(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status"))))

	limit := ledger.DefaultListLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 || v > ledger.MaxListLimit {
			return errors.ValidationField("limit", "limit must be between 1 and "+strconv.Itoa(ledger.MaxListLimit))
		}
		limit = v
	}

	jobs, err := h.ledger.List(r.Context(), status, limit)
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{
		"jobs":  jobs,
		"count": len(jobs),
	})
	return nil
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) error {
	jobID := strings.TrimSpace(chi.URLParam(r, "jobId"))
	if jobID == "" {
		return errors.ValidationField("jobId", "jobId is required")
	}

	sub, err := h.ledger.Get(r.Context(), jobID)
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"job": sub})
	return nil
}
