package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	errpkg "github.com/veranemoloko/audio-downloader/internal/errors"
)

// Job is one video-to-audio download request.
type Job struct {
	ID         uuid.UUID `json:"job_id"`
	URL        string    `json:"url"`
	OutputPath string    `json:"output_path,omitempty"`
	State      JobState  `json:"state"`
	ExitCode   *int      `json:"exit_code,omitempty"`
	Progress   float64   `json:"progress"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewJob creates a pending job for url.
func NewJob(url string) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.New(),
		URL:       url,
		State:     JobStatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Transition moves the job to next, rejecting backward or repeated moves.
func (j *Job) Transition(next JobState) error {
	if !j.State.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", errpkg.ErrInvalidTransition, j.State, next)
	}
	j.State = next
	j.UpdatedAt = time.Now()
	return nil
}

// Finish records the exit code and moves the job to its terminal state.
func (j *Job) Finish(exitCode int) error {
	next := JobStateSucceeded
	if exitCode != 0 {
		next = JobStateFailed
	}
	if err := j.Transition(next); err != nil {
		return err
	}
	j.ExitCode = &exitCode
	return nil
}

// Clone returns a copy that shares no pointers with j.
func (j *Job) Clone() *Job {
	c := *j
	if j.ExitCode != nil {
		code := *j.ExitCode
		c.ExitCode = &code
	}
	return &c
}
