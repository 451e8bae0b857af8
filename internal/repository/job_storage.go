package repository

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/veranemoloko/audio-downloader/internal/domain"
	errpkg "github.com/veranemoloko/audio-downloader/internal/errors"
	"github.com/veranemoloko/audio-downloader/internal/metrics"
)

// JobStorage keeps the jobs that are in flight or awaiting delivery. Jobs are
// dropped once their HTTP response completes; nothing is persisted.
type JobStorage struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*domain.Job
}

// NewJobStorage creates an empty JobStorage.
func NewJobStorage() *JobStorage {
	return &JobStorage{jobs: make(map[uuid.UUID]*domain.Job)}
}

// CreateJob registers a new job.
func (r *JobStorage) CreateJob(ctx context.Context, job *domain.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	if _, exists := r.jobs[job.ID]; exists {
		r.mu.Unlock()
		return fmt.Errorf("job %s already exists", job.ID)
	}
	r.jobs[job.ID] = job.Clone()
	count := len(r.jobs)
	r.mu.Unlock()

	metrics.ActiveJobs.Set(float64(count))
	slog.Debug("job registered", "job_id", job.ID)
	return nil
}

// GetJob returns a copy of the job with id.
func (r *JobStorage) GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	job, exists := r.jobs[id]
	r.mu.RUnlock()

	if !exists {
		return nil, errpkg.ErrJobNotFound
	}
	return job.Clone(), nil
}

// UpdateJob applies fn to the stored job under the write lock. If fn fails
// the stored job is left unchanged.
func (r *JobStorage) UpdateJob(ctx context.Context, id uuid.UUID, fn func(*domain.Job) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	job, exists := r.jobs[id]
	if !exists {
		return errpkg.ErrJobNotFound
	}
	updated := job.Clone()
	if err := fn(updated); err != nil {
		return err
	}
	r.jobs[id] = updated
	return nil
}

// DeleteJob forgets the job. Deleting an unknown job is a no-op.
func (r *JobStorage) DeleteJob(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.jobs, id)
	count := len(r.jobs)
	r.mu.Unlock()

	metrics.ActiveJobs.Set(float64(count))
	return nil
}

// ListJobs returns copies of all tracked jobs, oldest first.
func (r *JobStorage) ListJobs(ctx context.Context) ([]*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	jobs := make([]*domain.Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		jobs = append(jobs, job.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs, nil
}
