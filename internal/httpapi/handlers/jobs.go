package handlers

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"videogenie/internal/avatar"
	"videogenie/internal/enrichment"
	"videogenie/internal/httpkit"
	"videogenie/internal/models"
	"videogenie/internal/pkg/errors"
	"videogenie/internal/status"
)

func decodeBody(r *http.Request, v any) error {
	if err := httpkit.DecodeJSON(r, v); err != nil {
		return errors.WrapWithCode(err, errors.CodeValidation, "http.decode", "invalid json body")
	}
	return nil
}

// PostJob runs enrichment and answers 202 once the job is queued.
func (h *Handler) PostJob(w http.ResponseWriter, r *http.Request) error {
	var req enrichment.Request
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	jobID, err := h.enricher.EnrichAndEnqueue(r.Context(), req)
	if err != nil {
		return err
	}

	httpkit.WriteJSON(w, http.StatusAccepted, map[string]any{
		"jobId":     jobID,
		"statusUrl": "/jobs/" + jobID,
	})
	return nil
}

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()

	f := models.ListFilter{State: models.JobState(strings.ToLower(strings.TrimSpace(q.Get("state"))))}
	if f.State != "" && !f.State.Valid() {
		return errors.ValidationField("state", "unknown state "+string(f.State))
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return errors.ValidationField("limit", "limit must be a positive integer")
		}
		f.Limit = n
	}

	jobs, err := h.store.List(r.Context(), f)
	if err != nil {
		return err
	}
	if jobs == nil {
		jobs = []*models.Job{}
	}

	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
	return nil
}

// GetJob is the JSON poll of the queued pipeline.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) error {
	jobID := chi.URLParam(r, "jobId")

	res, err := h.status.Poll(r.Context(), jobID)
	if err != nil {
		return err
	}
	res = h.status.WithVideoURL(r.Context(), res, "/jobs/"+jobID+"/video")

	httpkit.WriteJSON(w, http.StatusOK, res)
	return nil
}

func (h *Handler) GetJobVideo(w http.ResponseWriter, r *http.Request) error {
	jobID := chi.URLParam(r, "jobId")
	return h.streamVideo(w, r, jobID, false)
}

// PostRender admits a synchronous avatar render.
func (h *Handler) PostRender(w http.ResponseWriter, r *http.Request) error {
	var req avatar.SubmitRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	res, err := h.avatars.Submit(r.Context(), req)
	if err != nil {
		return err
	}

	httpkit.WriteJSON(w, http.StatusAccepted, res)
	return nil
}

// GetStatus streams the video once completed and answers JSON otherwise.
// Failed renders are a 200 with the reason.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) error {
	jobID := chi.URLParam(r, "jobId")

	res, err := h.status.Poll(r.Context(), jobID)
	if err != nil {
		return err
	}
	if res.State != status.StateCompleted {
		httpkit.WriteJSON(w, http.StatusOK, res)
		return nil
	}
	return h.streamVideo(w, r, jobID, true)
}

func (h *Handler) streamVideo(w http.ResponseWriter, r *http.Request, jobID string, attachment bool) error {
	rc, size, err := h.status.Artifact(r.Context(), jobID)
	if err != nil {
		return err
	}
	defer rc.Close()

	hdr := w.Header()
	hdr.Set("Content-Type", "video/mp4")
	if size > 0 {
		hdr.Set("Content-Length", strconv.FormatInt(size, 10))
	}
	if attachment {
		hdr.Set("Content-Disposition", `attachment; filename="`+jobID+`.mp4"`)
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rc); err != nil {
		h.log.FromContext(r.Context()).Warn("video stream interrupted", "job_id", jobID, "error", err.Error())
	}
	return nil
}
