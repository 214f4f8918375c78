// Package status translates job records into what pollers see. Failed
// renders are an answer, not an error: only unknown ids fail.
package status

import (
	"context"
	"io"
	"time"

	"videogenie/internal/models"
	"videogenie/internal/pkg/errors"
	"videogenie/internal/ports"
	"videogenie/internal/storage"
)

const (
	StateProcessing = "processing"
	StateCompleted  = "completed"
	StateFailed     = "failed"
)

// SignedURLTTL bounds presigned artifact links.
const SignedURLTTL = 15 * time.Minute

type Result struct {
	State       string `json:"state"`
	JobID       string `json:"jobId"`
	ArtifactRef string `json:"artifactRef,omitempty"`
	VideoURL    string `json:"videoUrl,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

type Service struct {
	store ports.JobStore
	gw    *storage.Gateway
}

func NewService(store ports.JobStore, gw *storage.Gateway) *Service {
	return &Service{store: store, gw: gw}
}

// Translate maps a record onto the three poll answers.
func Translate(j *models.Job) Result {
	switch j.State {
	case models.StateCompleted:
		return Result{State: StateCompleted, JobID: j.ID, ArtifactRef: j.ArtifactRef}
	case models.StateFailed:
		return Result{State: StateFailed, JobID: j.ID, Reason: j.Error}
	default:
		return Result{State: StateProcessing, JobID: j.ID}
	}
}

// Poll returns the current answer for jobID. Unknown ids are NOT_FOUND.
func (s *Service) Poll(ctx context.Context, jobID string) (Result, error) {
	j, err := s.store.Get(ctx, jobID)
	if err != nil {
		return Result{}, err
	}
	return Translate(j), nil
}

// WithVideoURL fills VideoURL for completed results: a presigned link when
// the provider supports it, otherwise fallback.
func (s *Service) WithVideoURL(ctx context.Context, r Result, fallback string) Result {
	if r.State != StateCompleted {
		return r
	}
	r.VideoURL = fallback
	if u, ok, err := s.gw.SignedURL(ctx, r.ArtifactRef, SignedURLTTL); err == nil && ok {
		r.VideoURL = u
	}
	return r
}

// Artifact opens the video of a completed job. Any other state is CONFLICT.
func (s *Service) Artifact(ctx context.Context, jobID string) (io.ReadCloser, int64, error) {
	r, err := s.Poll(ctx, jobID)
	if err != nil {
		return nil, 0, err
	}
	if r.State != StateCompleted {
		return nil, 0, errors.Newf(errors.CodeConflict, "job %s is %s", jobID, r.State).
			WithField("state", r.State)
	}

	rc, _, size, err := s.gw.Get(ctx, r.ArtifactRef)
	if errors.IsNotFound(err) {
		return nil, 0, errors.ArtifactMissing(jobID, r.ArtifactRef, err)
	}
	if err != nil {
		return nil, 0, err
	}
	return rc, size, nil
}
