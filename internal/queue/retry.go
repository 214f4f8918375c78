package queue

import (
	"context"
	"time"

	"videogenie/internal/metrics"
	"videogenie/internal/models"
	"videogenie/internal/pkg/backoff"
	"videogenie/internal/pkg/errors"
	"videogenie/internal/pkg/logger"
	"videogenie/internal/ports"
)

// RetryingPublisher retries a backend publish with jittered exponential
// backoff and reports the final failure as QUEUE_PUBLISH_ERROR.
type RetryingPublisher struct {
	next     ports.QueuePublisher
	attempts int
	base     time.Duration
	max      time.Duration
	log      *logger.Logger
}

func NewRetryingPublisher(next ports.QueuePublisher, attempts int, log *logger.Logger) *RetryingPublisher {
	if attempts < 1 {
		attempts = 1
	}
	return &RetryingPublisher{
		next:     next,
		attempts: attempts,
		base:     200 * time.Millisecond,
		max:      3 * time.Second,
		log:      log.WithComponent("queue.publisher"),
	}
}

func (p *RetryingPublisher) Publish(ctx context.Context, msg models.JobMessage) error {
	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		err := p.next.Publish(ctx, msg)
		if err == nil {
			metrics.QueuePublishAttempts.WithLabelValues(metrics.OutcomeOK).Inc()
			return nil
		}
		metrics.QueuePublishAttempts.WithLabelValues(metrics.OutcomeError).Inc()
		lastErr = err

		// A malformed message will never publish.
		if errors.IsValidation(err) {
			return errors.QueuePublish(msg.JobID, attempt, err)
		}

		p.log.Warn("publish attempt failed",
			"job_id", msg.JobID,
			"attempt", attempt,
			"max_attempts", p.attempts,
			"error", err.Error(),
		)
		if attempt == p.attempts {
			break
		}
		if err := backoff.Sleep(ctx, backoff.Jittered(p.base, p.max, attempt)); err != nil {
			return errors.QueuePublish(msg.JobID, attempt, lastErr)
		}
	}
	return errors.QueuePublish(msg.JobID, p.attempts, lastErr)
}
