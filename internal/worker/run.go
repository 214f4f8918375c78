package worker

import (
	"context"
	"time"

	"videogenie/internal/models"
	"videogenie/internal/pkg/logger"
	"videogenie/internal/worker/processor"
)

// Run consumes the job queue until ctx is canceled. Every delivered
// message is processed to a terminal state or skipped; the queue acks it
// either way.
func Run(ctx context.Context, d Deps) error {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("worker")

	log.Info("worker started")
	err := d.Queue.Consume(ctx, func(ctx context.Context, msg models.JobMessage) error {
		jobLog := log.WithJobID(msg.JobID)
		jobLog.Info("processing job")
		startTime := time.Now()

		if err := d.Processor.Process(ctx, processor.TaskFromMessage(msg)); err != nil {
			jobLog.Error("job failed",
				"error", err.Error(),
				"duration_ms", time.Since(startTime).Milliseconds(),
			)
			return err
		}
		jobLog.Info("job handled",
			"duration_ms", time.Since(startTime).Milliseconds(),
		)
		return nil
	})

	if ctx.Err() != nil {
		log.Info("worker stopping due to context cancellation")
		return nil
	}
	return err
}
