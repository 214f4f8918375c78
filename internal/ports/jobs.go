package ports

import (
	"context"

	"videogenie/internal/models"
)

// JobStore is the durable source of truth for job state.
//
// Transition enforces models.CanTransition atomically: concurrent callers
// racing on the same job see exactly one winner, the others get
// INVALID_TRANSITION. Unknown ids yield NOT_FOUND.
type JobStore interface {
	Create(ctx context.Context, job *models.Job) error
	Transition(ctx context.Context, jobID string, to models.JobState, d models.Detail) (*models.Job, error)
	Get(ctx context.Context, jobID string) (*models.Job, error)
	List(ctx context.Context, f models.ListFilter) ([]*models.Job, error)
	Ping(ctx context.Context) error
}
