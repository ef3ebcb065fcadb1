package memory

import (
	"context"
	"sync"

	"lot-auction-service/internal/ports/outbound"
)

// JobStore is an in-memory outbound.JobStore; jobs do not survive a restart
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]outbound.Job
}

// NewJobStore creates an empty job store
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]outbound.Job)}
}

// Put stores job under its slot key, replacing any earlier one
func (s *JobStore) Put(ctx context.Context, job outbound.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.Key()] = job
	return nil
}

// Delete removes the job stored under key
func (s *JobStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, key)
	return nil
}

// List returns the stored jobs in no particular order
func (s *JobStore) List(ctx context.Context) ([]outbound.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := make([]outbound.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	return jobs, nil
}
