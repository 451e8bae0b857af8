package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/veranemoloko/audio-downloader/internal/domain"
)

// JobRepo defines the interface for active job bookkeeping.
type JobRepo interface {
	CreateJob(ctx context.Context, job *domain.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	UpdateJob(ctx context.Context, id uuid.UUID, fn func(*domain.Job) error) error
	DeleteJob(ctx context.Context, id uuid.UUID) error
	ListJobs(ctx context.Context) ([]*domain.Job, error)
}
