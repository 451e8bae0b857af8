package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veranemoloko/audio-downloader/internal/domain"
	errpkg "github.com/veranemoloko/audio-downloader/internal/errors"
)

func TestJobStorage_CRUD(t *testing.T) {
	repo := NewJobStorage()
	ctx := context.Background()

	job := domain.NewJob("https://example.com/v1")
	require.NoError(t, repo.CreateJob(ctx, job))
	assert.Error(t, repo.CreateJob(ctx, job), "duplicate id rejected")

	got, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, domain.JobStatePending, got.State)

	err = repo.UpdateJob(ctx, job.ID, func(j *domain.Job) error {
		j.Progress = 42
		return j.Transition(domain.JobStateRunning)
	})
	require.NoError(t, err)

	got, err = repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateRunning, got.State)
	assert.Equal(t, 42.0, got.Progress)

	require.NoError(t, repo.DeleteJob(ctx, job.ID))
	_, err = repo.GetJob(ctx, job.ID)
	assert.True(t, errors.Is(err, errpkg.ErrJobNotFound))
	require.NoError(t, repo.DeleteJob(ctx, job.ID))
}

func TestJobStorage_FailedUpdateLeavesJobUnchanged(t *testing.T) {
	repo := NewJobStorage()
	ctx := context.Background()

	job := domain.NewJob("https://example.com/v1")
	require.NoError(t, repo.CreateJob(ctx, job))

	err := repo.UpdateJob(ctx, job.ID, func(j *domain.Job) error {
		j.Progress = 99
		return j.Finish(0)
	})
	assert.True(t, errors.Is(err, errpkg.ErrInvalidTransition))

	got, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.Progress)
	assert.Equal(t, domain.JobStatePending, got.State)

	err = repo.UpdateJob(ctx, uuid.New(), func(*domain.Job) error { return nil })
	assert.True(t, errors.Is(err, errpkg.ErrJobNotFound))
}

func TestJobStorage_ListJobs(t *testing.T) {
	repo := NewJobStorage()
	ctx := context.Background()

	first := domain.NewJob("https://example.com/a")
	second := domain.NewJob("https://example.com/b")
	second.CreatedAt = first.CreatedAt.Add(1)
	require.NoError(t, repo.CreateJob(ctx, second))
	require.NoError(t, repo.CreateJob(ctx, first))

	jobs, err := repo.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, first.ID, jobs[0].ID)
	assert.Equal(t, second.ID, jobs[1].ID)
}

func TestJobStorage_CanceledContext(t *testing.T) {
	repo := NewJobStorage()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, repo.CreateJob(ctx, domain.NewJob("x")), context.Canceled)
	_, err := repo.ListJobs(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
