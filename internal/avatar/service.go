// Package avatar admits synchronous render submissions: a face asset plus a
// voice track, rendered in-process by the bounded worker pool.
package avatar

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"videogenie/internal/metrics"
	"videogenie/internal/models"
	"videogenie/internal/pkg/errors"
	"videogenie/internal/pkg/logger"
	"videogenie/internal/ports"
	"videogenie/internal/validation"
	"videogenie/internal/worker/processor"
)

type SubmitRequest struct {
	AvatarID string `json:"avatarId" validate:"required,avatarid"`
	VoiceURL string `json:"voiceUrl" validate:"required,http_url"`
	Quality  string `json:"quality,omitempty" validate:"omitempty,quality"`
}

type SubmitResult struct {
	JobID     string `json:"jobId"`
	StatusURL string `json:"statusUrl"`
}

// Submitter is satisfied by *worker.Pool.
type Submitter interface {
	Submit(task processor.Task) error
}

type Service struct {
	store ports.JobStore
	pool  Submitter
	log   *logger.Logger

	now   func() time.Time
	newID func() string
}

func NewService(store ports.JobStore, pool Submitter, log *logger.Logger) *Service {
	return &Service{
		store: store,
		pool:  pool,
		log:   log.WithComponent("avatar"),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// StatusURL is where a submission is polled.
func StatusURL(jobID string) string {
	return "/status/" + jobID
}

// Submit records the job as queued and hands it to the pool. A saturated
// pool leaves the record failed and returns RESOURCE_EXHAUSTED.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	req.AvatarID = strings.TrimSpace(req.AvatarID)
	req.VoiceURL = strings.TrimSpace(req.VoiceURL)
	req.Quality = strings.ToLower(strings.TrimSpace(req.Quality))
	if err := validation.Struct(req); err != nil {
		return SubmitResult{}, err
	}

	raw, err := json.Marshal(models.JobPayload{
		AvatarID: req.AvatarID,
		VoiceURL: req.VoiceURL,
		Quality:  req.Quality,
	})
	if err != nil {
		return SubmitResult{}, errors.Wrap(err, "avatar.encode", "encode payload")
	}

	id := s.newID()
	log := s.log.FromContext(ctx).WithJobID(id)

	if err := s.store.Create(ctx, models.NewJob(id, models.KindAvatar, raw, s.now())); err != nil {
		return SubmitResult{}, err
	}
	if _, err := s.store.Transition(ctx, id, models.StateQueued, models.Detail{}); err != nil {
		return SubmitResult{}, err
	}

	if err := s.pool.Submit(processor.Task{JobID: id}); err != nil {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if _, terr := s.store.Transition(fctx, id, models.StateFailed, models.Detail{Error: err.Error()}); terr != nil {
			log.Error("could not record rejected submission", "error", terr.Error())
		} else {
			metrics.JobsFinished.WithLabelValues(string(models.StateFailed)).Inc()
		}
		log.Warn("avatar submission rejected", "error", err.Error())
		return SubmitResult{JobID: id}, err
	}

	metrics.JobsAdmitted.WithLabelValues(string(models.KindAvatar)).Inc()
	log.Info("avatar job accepted", "avatar_id", req.AvatarID, "quality", req.Quality)
	return SubmitResult{JobID: id, StatusURL: StatusURL(id)}, nil
}
