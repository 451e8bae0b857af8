package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/veranemoloko/audio-downloader/internal/domain"
	errpkg "github.com/veranemoloko/audio-downloader/internal/errors"
	"github.com/veranemoloko/audio-downloader/internal/hub"
	"github.com/veranemoloko/audio-downloader/internal/service"
	"github.com/veranemoloko/audio-downloader/internal/validation"
)

const welcomeMessage = "Welcome to the YouTube MP3 Downloader API!"

// DownloadServiceI defines the job controller operations used by the handlers.
type DownloadServiceI interface {
	Submit(ctx context.Context, videoURL string) (*service.DownloadResult, error)
	Release(result *service.DownloadResult)
	GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	ListJobs(ctx context.Context) ([]*domain.Job, error)
}

// ProgressHub is the observer side of the broadcast hub.
type ProgressHub interface {
	Subscribe() *hub.Subscription
	Unsubscribe(id hub.ObserverID)
	Len() int
}

// DownloadHandler serves downloads, progress streams and job inspection.
type DownloadHandler struct {
	downloads DownloadServiceI
	hub       ProgressHub
	heartbeat time.Duration
	logger    *slog.Logger
}

// NewDownloadHandler creates a DownloadHandler. A zero heartbeat disables
// keep-alive comments on the progress stream.
func NewDownloadHandler(downloads DownloadServiceI, progressHub ProgressHub, heartbeat time.Duration, logger *slog.Logger) *DownloadHandler {
	return &DownloadHandler{
		downloads: downloads,
		hub:       progressHub,
		heartbeat: heartbeat,
		logger:    logger,
	}
}

// Root handles GET /.
func (h *DownloadHandler) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, welcomeMessage)
}

// Download handles POST /download: it runs the job to completion and
// streams the produced audio file back as an attachment.
func (h *DownloadHandler) Download(w http.ResponseWriter, r *http.Request) {
	var req domain.DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Warn("failed to decode request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// The job can outlive the server write timeout.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Warn("failed to clear write deadline", "error", err)
	}

	result, err := h.downloads.Submit(r.Context(), req.VideoURL)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	defer h.downloads.Release(result)

	if err := h.deliver(w, r, result); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.logger.Info("file delivered", "job_id", result.Job.ID, "file_name", result.FileName)
}

func (h *DownloadHandler) deliver(w http.ResponseWriter, r *http.Request, result *service.DownloadResult) error {
	f, err := os.Open(result.FilePath)
	if err != nil {
		return fmt.Errorf("%w: open output: %v", errpkg.ErrDeliveryFailed, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat output: %v", errpkg.ErrDeliveryFailed, err)
	}

	w.Header().Set("Content-Type", contentType(result.FileName))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.FileName))
	http.ServeContent(w, r, result.FileName, info.ModTime(), f)
	return nil
}

func contentType(fileName string) string {
	ext := filepath.Ext(fileName)
	if ext == ".mp3" {
		return "audio/mpeg"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// Progress handles GET /progress as a server-sent event stream of every
// job's progress.
func (h *DownloadHandler) Progress(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Warn("failed to clear write deadline", "error", err)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.Error("progress stream not supported", "error", err)
		return
	}

	sub := h.hub.Subscribe()
	defer h.hub.Unsubscribe(sub.ID)
	h.logger.Info("observer connected", "observer_id", sub.ID, "remote_addr", r.RemoteAddr)

	var heartbeat <-chan time.Time
	if h.heartbeat > 0 {
		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	for {
		select {
		case <-r.Context().Done():
			h.logger.Info("observer disconnected", "observer_id", sub.ID)
			return
		case ev, ok := <-sub.Events:
			if !ok {
				h.logger.Info("observer closed", "observer_id", sub.ID)
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", ev.Payload()); err != nil {
				return
			}
		case <-heartbeat:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// Health handles GET /health.
func (h *DownloadHandler) Health(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.downloads.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, domain.HealthResponse{
		Status:     "ok",
		ActiveJobs: len(jobs),
		Observers:  h.hub.Len(),
	})
}

// ListJobs handles GET /jobs.
func (h *DownloadHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.downloads.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, domain.JobListResponse{Jobs: jobs})
}

// GetJob handles GET /jobs/{jobID}.
func (h *DownloadHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job ID")
		return
	}

	job, err := h.downloads.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, errpkg.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error("failed to get job", "job_id", jobID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *DownloadHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, validation.ErrURLRequired):
		writeError(w, http.StatusBadRequest, validation.MissingURLMessage)
	case errors.Is(err, errpkg.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errpkg.ErrAuthRejected):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errpkg.ErrAuthUnavailable):
		h.logger.Error("cookies unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, "authentication cookies unavailable")
	case errors.Is(err, errpkg.ErrToolUnavailable):
		h.logger.Error("extraction tool unavailable", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to download audio.")
	case errors.Is(err, errpkg.ErrDeliveryFailed):
		h.logger.Error("delivery failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to send file.")
	case errors.Is(err, errpkg.ErrDownloadFailed):
		writeError(w, http.StatusInternalServerError, "Failed to download audio.")
	default:
		h.logger.Error("download request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
