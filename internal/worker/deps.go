package worker

import (
	"context"

	"videogenie/internal/pkg/logger"
	"videogenie/internal/ports"
	"videogenie/internal/worker/processor"
)

// TaskProcessor is satisfied by *processor.Processor.
type TaskProcessor interface {
	Process(ctx context.Context, task processor.Task) error
}

type Deps struct {
	Queue     ports.QueueConsumer
	Processor TaskProcessor
	Log       *logger.Logger
}
