package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/veranemoloko/audio-downloader/internal/config"
	"github.com/veranemoloko/audio-downloader/internal/cookies"
	"github.com/veranemoloko/audio-downloader/internal/domain"
	errpkg "github.com/veranemoloko/audio-downloader/internal/errors"
	"github.com/veranemoloko/audio-downloader/internal/metrics"
	"github.com/veranemoloko/audio-downloader/internal/process"
	"github.com/veranemoloko/audio-downloader/internal/progress"
	repo "github.com/veranemoloko/audio-downloader/internal/repository"
	"github.com/veranemoloko/audio-downloader/internal/storage"
	"github.com/veranemoloko/audio-downloader/internal/validation"
)

const stderrTailLines = 50

// Publisher receives progress events for broadcast.
type Publisher interface {
	Publish(ev domain.ProgressEvent)
}

// DownloadResult references the audio file produced by a successful job.
// Release must be called once the file has been delivered.
type DownloadResult struct {
	Job      *domain.Job
	FilePath string
	FileName string

	released atomic.Bool
}

// DownloadService is the job controller: it runs one extraction per request
// and reports its progress to the publisher.
type DownloadService struct {
	jobRepo   repo.JobRepo
	files     *storage.FileStorage
	runner    process.Runner
	publisher Publisher
	cookies   cookies.Provider
	gate      cookies.Gate
	slots     *semaphore.Weighted
	cfg       *config.Config
	logger    *slog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewDownloadService creates a DownloadService. cookieProvider may be nil
// when the cookie policy is "never".
func NewDownloadService(
	jobRepo repo.JobRepo,
	files *storage.FileStorage,
	runner process.Runner,
	publisher Publisher,
	cookieProvider cookies.Provider,
	cfg *config.Config,
	logger *slog.Logger,
) *DownloadService {
	baseCtx, cancel := context.WithCancel(context.Background())
	s := &DownloadService{
		jobRepo:   jobRepo,
		files:     files,
		runner:    runner,
		publisher: publisher,
		cookies:   cookieProvider,
		gate:      cookies.Gate{Policy: cookies.Policy(cfg.CookiePolicy), Hosts: cfg.CookieHosts},
		cfg:       cfg,
		logger:    logger,
		baseCtx:   baseCtx,
		cancel:    cancel,
	}
	if cfg.MaxConcurrentJobs > 0 {
		s.slots = semaphore.NewWeighted(int64(cfg.MaxConcurrentJobs))
	}
	return s
}

// Submit runs one download job to completion. On success the returned
// result references the produced file; on failure the error wraps one of
// ErrInvalidInput, ErrAuthUnavailable, ErrToolUnavailable or
// ErrDownloadFailed (optionally ErrAuthRejected).
func (s *DownloadService) Submit(ctx context.Context, videoURL string) (*DownloadResult, error) {
	job := domain.NewJob(strings.TrimSpace(videoURL))
	metrics.JobsSubmitted.Inc()

	if err := s.jobRepo.CreateJob(s.baseCtx, job); err != nil {
		return nil, fmt.Errorf("register job: %w", err)
	}

	s.wg.Add(1)
	defer s.wg.Done()

	if err := validation.ValidateVideoURL(job.URL); err != nil {
		s.logger.Warn("job rejected", "job_id", job.ID, "error", err)
		s.fail(job.ID, "invalid_input", err, false)
		return nil, err
	}

	if err := s.files.EnsureDir(); err != nil {
		err = fmt.Errorf("%w: %v", errpkg.ErrDownloadFailed, err)
		s.fail(job.ID, "workspace", err, true)
		return nil, err
	}

	runCtx, cancelRun := s.runContext(ctx)
	defer cancelRun()

	if s.slots != nil {
		if err := s.slots.Acquire(ctx, 1); err != nil {
			err = fmt.Errorf("wait for download slot: %w", err)
			s.fail(job.ID, "admission", err, true)
			return nil, err
		}
		defer s.slots.Release(1)
	}

	cookieFile, err := s.acquireCookies(runCtx, job)
	if err != nil {
		s.fail(job.ID, "auth_unavailable", err, true)
		return nil, err
	}

	args := s.toolArgs(job, cookieFile)
	s.logger.Info("starting download", "job_id", job.ID, "url", job.URL, "cookies", cookieFile != "")

	proc, err := s.runner.Start(runCtx, s.cfg.ToolBinary, args...)
	if err != nil {
		if !errors.Is(err, errpkg.ErrToolUnavailable) {
			err = fmt.Errorf("%w: %v", errpkg.ErrToolUnavailable, err)
		}
		s.fail(job.ID, "tool_unavailable", err, true)
		return nil, err
	}

	if err := s.jobRepo.UpdateJob(s.baseCtx, job.ID, func(j *domain.Job) error {
		return j.Transition(domain.JobStateRunning)
	}); err != nil {
		s.logger.Error("failed to mark job running", "job_id", job.ID, "error", err)
	}

	started := time.Now()
	stderrTail := s.pump(job.ID, proc)
	result := proc.Wait()
	metrics.JobDuration.Observe(time.Since(started).Seconds())

	if result.ExitCode != 0 {
		return nil, s.failRun(job.ID, result, stderrTail)
	}

	outputPath := s.files.OutputPath(job.ID, s.cfg.AudioFormat)
	var finished *domain.Job
	if err := s.jobRepo.UpdateJob(s.baseCtx, job.ID, func(j *domain.Job) error {
		if err := j.Finish(0); err != nil {
			return err
		}
		j.OutputPath = outputPath
		j.Progress = 100
		finished = j.Clone()
		return nil
	}); err != nil {
		s.logger.Error("failed to mark job succeeded", "job_id", job.ID, "error", err)
		finished = job
	}

	s.publisher.Publish(domain.CompleteEvent(job.ID))
	metrics.JobsSucceeded.Inc()
	s.logger.Info("download completed",
		"job_id", job.ID,
		"file_path", outputPath,
		"duration", time.Since(started),
	)

	return &DownloadResult{
		Job:      finished,
		FilePath: outputPath,
		FileName: "audio." + s.cfg.AudioFormat,
	}, nil
}

// Release deletes a delivered file and forgets its job. Deletion failures
// are logged, never returned. Repeated calls are no-ops.
func (s *DownloadService) Release(result *DownloadResult) {
	if result == nil || !result.released.CompareAndSwap(false, true) {
		return
	}

	if err := s.files.Remove(result.FilePath); err != nil {
		metrics.CleanupErrors.Inc()
		s.logger.Error("failed to delete delivered file", "job_id", result.Job.ID, "file_path", result.FilePath, "error", err)
	} else {
		s.logger.Debug("delivered file deleted", "job_id", result.Job.ID, "file_path", result.FilePath)
	}

	if err := s.jobRepo.DeleteJob(s.baseCtx, result.Job.ID); err != nil {
		s.logger.Error("failed to forget job", "job_id", result.Job.ID, "error", err)
	}
}

// GetJob returns an active job by id.
func (s *DownloadService) GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	return s.jobRepo.GetJob(ctx, id)
}

// ListJobs returns all active jobs.
func (s *DownloadService) ListJobs(ctx context.Context) ([]*domain.Job, error) {
	return s.jobRepo.ListJobs(ctx)
}

// Shutdown waits for in-flight jobs until ctx expires, then kills the
// remaining tool processes.
func (s *DownloadService) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down download service")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		s.logger.Info("download service shutdown completed")
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		s.logger.Warn("download service shutdown timed out, running jobs were killed")
		return ctx.Err()
	}
}

// runContext returns the context tool processes run under. By default it is
// detached from the request so a client disconnect does not stop the job.
func (s *DownloadService) runContext(reqCtx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(s.baseCtx)
	if !s.cfg.CancelOnDisconnect {
		return runCtx, cancel
	}
	stop := context.AfterFunc(reqCtx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (s *DownloadService) acquireCookies(ctx context.Context, job *domain.Job) (string, error) {
	if !s.gate.Required(job.URL) {
		return "", nil
	}
	if s.cookies == nil {
		return "", fmt.Errorf("%w: no cookie provider configured", errpkg.ErrAuthUnavailable)
	}
	path, err := s.cookies.Acquire(ctx)
	if err != nil {
		if !errors.Is(err, errpkg.ErrAuthUnavailable) {
			err = fmt.Errorf("%w: %v", errpkg.ErrAuthUnavailable, err)
		}
		return "", err
	}
	return path, nil
}

func (s *DownloadService) toolArgs(job *domain.Job, cookieFile string) []string {
	args := []string{
		"-x", "--audio-format", s.cfg.AudioFormat,
		"--newline",
		"--progress-template", "%(progress._percent_str)s",
	}
	if cookieFile != "" {
		args = append(args, "--cookies", cookieFile)
	}
	return append(args, "-o", s.files.OutputTemplate(job.ID), job.URL)
}

// pump forwards parsed stdout progress to the publisher until the process
// output is drained and returns the last stderr lines.
func (s *DownloadService) pump(jobID uuid.UUID, proc process.Process) []string {
	var tail []string
	for ev := range proc.Events() {
		switch ev.Stream {
		case process.Stdout:
			pe, ok := progress.ParseLine(ev.Line)
			if !ok {
				s.logger.Debug("tool output", "job_id", jobID, "line", ev.Line)
				continue
			}
			pe.JobID = jobID
			s.publisher.Publish(pe)
			s.logger.Debug("progress", "job_id", jobID, "percent", pe.Percent)
			if err := s.jobRepo.UpdateJob(s.baseCtx, jobID, func(j *domain.Job) error {
				j.Progress = pe.Percent
				return nil
			}); err != nil {
				s.logger.Warn("failed to record progress", "job_id", jobID, "error", err)
			}
		case process.Stderr:
			s.logger.Debug("tool error output", "job_id", jobID, "line", ev.Line)
			if len(tail) == stderrTailLines {
				tail = tail[1:]
			}
			tail = append(tail, ev.Line)
		}
	}
	return tail
}

func (s *DownloadService) failRun(jobID uuid.UUID, result process.Result, stderrTail []string) error {
	dlErr := &errpkg.DownloadError{
		ExitCode:    result.ExitCode,
		Reason:      failureReason(stderrTail, result),
		AuthRelated: isAuthFailure(stderrTail),
	}

	if err := s.jobRepo.UpdateJob(s.baseCtx, jobID, func(j *domain.Job) error {
		return j.Finish(result.ExitCode)
	}); err != nil {
		s.logger.Error("failed to mark job failed", "job_id", jobID, "error", err)
	}

	label := "download_failed"
	if dlErr.AuthRelated {
		label = "auth_rejected"
	}
	s.fail(jobID, label, dlErr, true)

	if err := s.files.RemoveJobArtifacts(jobID); err != nil {
		s.logger.Error("failed to remove partial output", "job_id", jobID, "error", err)
	}
	return dlErr
}

// fail moves the job to failed, optionally publishes the terminal event, and
// forgets the job.
func (s *DownloadService) fail(jobID uuid.UUID, label string, cause error, publish bool) {
	metrics.JobsFailed.WithLabelValues(label).Inc()

	if err := s.jobRepo.UpdateJob(s.baseCtx, jobID, func(j *domain.Job) error {
		j.Error = cause.Error()
		if j.State.IsTerminal() {
			return nil
		}
		return j.Transition(domain.JobStateFailed)
	}); err != nil {
		s.logger.Error("failed to mark job failed", "job_id", jobID, "error", err)
	}

	if publish {
		s.publisher.Publish(domain.FailedEvent(jobID, cause.Error()))
		s.logger.Error("download failed", "job_id", jobID, "reason", label, "error", cause)
	}

	if err := s.jobRepo.DeleteJob(s.baseCtx, jobID); err != nil {
		s.logger.Error("failed to forget job", "job_id", jobID, "error", err)
	}
}

var authMarkers = []string{
	"cookie",
	"sign in",
	"login",
	"log in",
	"authenticat",
	"credential",
}

func isAuthFailure(stderrTail []string) bool {
	for _, line := range stderrTail {
		lower := strings.ToLower(line)
		for _, marker := range authMarkers {
			if strings.Contains(lower, marker) {
				return true
			}
		}
	}
	return false
}

func failureReason(stderrTail []string, result process.Result) string {
	for i := len(stderrTail) - 1; i >= 0; i-- {
		if strings.HasPrefix(stderrTail[i], "ERROR:") {
			return strings.TrimSpace(strings.TrimPrefix(stderrTail[i], "ERROR:"))
		}
	}
	for i := len(stderrTail) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(stderrTail[i]); line != "" {
			return line
		}
	}
	if result.Err != nil {
		return result.Err.Error()
	}
	return fmt.Sprintf("exit code %d", result.ExitCode)
}
