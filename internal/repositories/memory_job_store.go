package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"videogenie/internal/models"
	"videogenie/internal/pkg/errors"
)

// MemoryJobStore is a process-local JobStore for tests and single-binary runs.
type MemoryJobStore struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
	now  func() time.Time
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]*models.Job), now: time.Now}
}

func (s *MemoryJobStore) Ping(context.Context) error { return nil }

func (s *MemoryJobStore) Create(_ context.Context, j *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[j.ID]; ok {
		return errors.DuplicateJob(j.ID)
	}
	s.jobs[j.ID] = j.Clone()
	return nil
}

func (s *MemoryJobStore) Transition(_ context.Context, jobID string, to models.JobState, d models.Detail) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.jobs[jobID]
	if !ok {
		return nil, errors.JobNotFound(jobID)
	}
	next := cur.Clone()
	if err := next.Apply(to, d, s.now()); err != nil {
		return nil, err
	}
	s.jobs[jobID] = next
	return next.Clone(), nil
}

func (s *MemoryJobStore) Get(_ context.Context, jobID string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return nil, errors.JobNotFound(jobID)
	}
	return j.Clone(), nil
}

func (s *MemoryJobStore) List(_ context.Context, f models.ListFilter) ([]*models.Job, error) {
	s.mu.Lock()
	out := make([]*models.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if f.State != "" && j.State != f.State {
			continue
		}
		out = append(out, j.Clone())
	}
	s.mu.Unlock()

	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].ID > out[b].ID
		}
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	if n := clampLimit(f.Limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}
