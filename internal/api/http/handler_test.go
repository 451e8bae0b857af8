package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veranemoloko/audio-downloader/internal/config"
	"github.com/veranemoloko/audio-downloader/internal/domain"
	errpkg "github.com/veranemoloko/audio-downloader/internal/errors"
	"github.com/veranemoloko/audio-downloader/internal/hub"
	"github.com/veranemoloko/audio-downloader/internal/process/processtest"
	"github.com/veranemoloko/audio-downloader/internal/repository"
	"github.com/veranemoloko/audio-downloader/internal/service"
	"github.com/veranemoloko/audio-downloader/internal/storage"
)

type testServer struct {
	*httptest.Server
	hub    *hub.Hub
	runner *processtest.Runner
	cfg    *config.Config
}

func newTestServer(t *testing.T, script processtest.Script, tweak func(*config.Config)) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{
		DownloadDir:        t.TempDir(),
		ToolBinary:         "yt-dlp",
		AudioFormat:        "mp3",
		CookiePolicy:       "never",
		ObserverBuffer:     16,
		CORSAllowedOrigins: []string{"*"},
	}
	if tweak != nil {
		tweak(cfg)
	}

	runner := &processtest.Runner{Script: script}
	progressHub := hub.New(cfg.ObserverBuffer, logger)
	files := storage.NewFileStorage(cfg.DownloadDir)
	svc := service.NewDownloadService(repository.NewJobStorage(), files, runner, progressHub, nil, cfg, logger)

	srv := httptest.NewServer(NewRouter(svc, progressHub, cfg, logger))
	t.Cleanup(func() {
		// Kill blocked jobs and end progress streams so Close does not wait on them.
		progressHub.Close()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_ = svc.Shutdown(ctx)
		srv.Close()
	})
	return &testServer{Server: srv, hub: progressHub, runner: runner, cfg: cfg}
}

func audioOutput(body string) func(args []string) {
	return func(args []string) {
		path := processtest.ResolveOutput(processtest.OutputArg(args), "mp3")
		_ = os.WriteFile(path, []byte(body), 0o644)
	}
}

func postDownload(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url+"/download", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decodeError(t *testing.T, resp *http.Response) string {
	t.Helper()
	var data map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&data))
	return data["error"]
}

func TestDownloadHandler_Root(t *testing.T) {
	srv := newTestServer(t, processtest.Script{}, nil)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, welcomeMessage, string(body))
}

func TestDownloadHandler_DownloadSuccess(t *testing.T) {
	srv := newTestServer(t, processtest.Script{
		Events:  processtest.Stdout("10.0%", "55.5%"),
		OnStart: audioOutput("ID3-audio"),
	}, nil)

	resp := postDownload(t, srv.URL, `{"videoUrl":"https://example.com/watch?v=abc"}`)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename="audio.mp3"`, resp.Header.Get("Content-Disposition"))
	assert.Equal(t, "ID3-audio", string(body))

	assert.Eventually(t, func() bool {
		entries, err := os.ReadDir(srv.cfg.DownloadDir)
		return err == nil && len(entries) == 0
	}, time.Second, 10*time.Millisecond, "delivered file is deleted")
}

func TestDownloadHandler_DownloadErrors(t *testing.T) {
	tests := []struct {
		name       string
		script     processtest.Script
		body       string
		wantStatus int
		wantError  string
	}{
		{
			name:       "missing url",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "You must provide a video URL.",
		},
		{
			name:       "empty body",
			body:       ``,
			wantStatus: http.StatusBadRequest,
			wantError:  "You must provide a video URL.",
		},
		{
			name:       "malformed json",
			body:       `{"videoUrl":`,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid request body",
		},
		{
			name: "tool exits non-zero",
			script: processtest.Script{
				Events:   processtest.Stderr("ERROR: Video unavailable"),
				ExitCode: 1,
			},
			body:       `{"videoUrl":"https://example.com/v"}`,
			wantStatus: http.StatusInternalServerError,
			wantError:  "Failed to download audio.",
		},
		{
			name: "auth rejected",
			script: processtest.Script{
				Events:   processtest.Stderr("ERROR: Sign in to confirm your age"),
				ExitCode: 1,
			},
			body:       `{"videoUrl":"https://example.com/v"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "tool missing",
			script:     processtest.Script{StartErr: errpkg.ErrToolUnavailable},
			body:       `{"videoUrl":"https://example.com/v"}`,
			wantStatus: http.StatusInternalServerError,
			wantError:  "Failed to download audio.",
		},
		{
			name:       "output missing",
			script:     processtest.Script{},
			body:       `{"videoUrl":"https://example.com/v"}`,
			wantStatus: http.StatusInternalServerError,
			wantError:  "Failed to send file.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.script, nil)

			resp := postDownload(t, srv.URL, tt.body)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			msg := decodeError(t, resp)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, msg)
			} else {
				assert.NotEmpty(t, msg)
			}
		})
	}
}

func TestDownloadHandler_AuthUnavailable(t *testing.T) {
	srv := newTestServer(t, processtest.Script{}, func(c *config.Config) {
		c.CookiePolicy = "always"
	})

	resp := postDownload(t, srv.URL, `{"videoUrl":"https://example.com/v"}`)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Empty(t, srv.runner.Calls())
}

func TestDownloadHandler_RateLimit(t *testing.T) {
	srv := newTestServer(t, processtest.Script{}, func(c *config.Config) {
		c.DownloadRateLimit = 0.001
		c.DownloadRateBurst = 1
	})

	first := postDownload(t, srv.URL, `{}`)
	first.Body.Close()
	assert.Equal(t, http.StatusBadRequest, first.StatusCode)

	second := postDownload(t, srv.URL, `{}`)
	defer second.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
}

// readEvents collects SSE data payloads up to and including until.
func readEvents(t *testing.T, body io.Reader, until string) []string {
	t.Helper()
	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	var got []string
	timeout := time.After(3 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return got
			}
			payload, found := strings.CutPrefix(line, "data: ")
			if !found {
				continue
			}
			got = append(got, payload)
			if payload == until {
				return got
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %q, got %v", until, got)
		}
	}
}

func subscribe(t *testing.T, srv *testServer, want int) *http.Response {
	t.Helper()
	resp, err := http.Get(srv.URL + "/progress")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	require.Eventually(t, func() bool { return srv.hub.Len() == want }, time.Second, 5*time.Millisecond)
	return resp
}

func TestDownloadHandler_ProgressStream(t *testing.T) {
	srv := newTestServer(t, processtest.Script{
		Events:  processtest.Stdout("10.0%", "noise", "55.5%", "100%"),
		OnStart: audioOutput("x"),
	}, nil)

	a := subscribe(t, srv, 1)
	defer a.Body.Close()
	b := subscribe(t, srv, 2)
	defer b.Body.Close()

	resp := postDownload(t, srv.URL, `{"videoUrl":"https://example.com/v"}`)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	want := []string{"10.0", "55.5", "100", "complete"}
	assert.Equal(t, want, readEvents(t, a.Body, "complete"))
	assert.Equal(t, want, readEvents(t, b.Body, "complete"))
}

func TestDownloadHandler_ProgressStreamFailure(t *testing.T) {
	srv := newTestServer(t, processtest.Script{
		Events:   append(processtest.Stdout("1.0%"), processtest.Stderr("ERROR: nope")...),
		ExitCode: 2,
	}, nil)

	stream := subscribe(t, srv, 1)
	defer stream.Body.Close()

	resp := postDownload(t, srv.URL, `{"videoUrl":"https://example.com/v"}`)
	resp.Body.Close()

	assert.Equal(t, []string{"1.0", "failed"}, readEvents(t, stream.Body, "failed"))
}

func TestDownloadHandler_ProgressDisconnectUnsubscribes(t *testing.T) {
	srv := newTestServer(t, processtest.Script{}, nil)

	stream := subscribe(t, srv, 1)
	stream.Body.Close()

	assert.Eventually(t, func() bool { return srv.hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestDownloadHandler_Heartbeat(t *testing.T) {
	srv := newTestServer(t, processtest.Script{}, func(c *config.Config) {
		c.SSEHeartbeat = 20 * time.Millisecond
	})

	stream := subscribe(t, srv, 1)
	defer stream.Body.Close()

	reader := bufio.NewReader(stream.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": ping\n", line)
}

func TestDownloadHandler_Health(t *testing.T) {
	srv := newTestServer(t, processtest.Script{}, nil)
	stream := subscribe(t, srv, 1)
	defer stream.Body.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var health domain.HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, domain.HealthResponse{Status: "ok", ActiveJobs: 0, Observers: 1}, health)
}

func TestDownloadHandler_Jobs(t *testing.T) {
	srv := newTestServer(t, processtest.Script{Block: true}, nil)

	go func() {
		resp, err := http.Post(srv.URL+"/download", "application/json",
			bytes.NewReader([]byte(`{"videoUrl":"https://example.com/slow"}`)))
		if err == nil {
			resp.Body.Close()
		}
	}()

	var jobs domain.JobListResponse
	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/jobs")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		jobs = domain.JobListResponse{}
		return json.NewDecoder(resp.Body).Decode(&jobs) == nil &&
			len(jobs.Jobs) == 1 && jobs.Jobs[0].State == domain.JobStateRunning
	}, 2*time.Second, 10*time.Millisecond)

	job := jobs.Jobs[0]
	assert.Equal(t, "https://example.com/slow", job.URL)

	resp, err := http.Get(fmt.Sprintf("%s/jobs/%s", srv.URL, job.ID))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got domain.Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, job.ID, got.ID)

	notFound, err := http.Get(fmt.Sprintf("%s/jobs/%s", srv.URL, uuid.New()))
	require.NoError(t, err)
	defer notFound.Body.Close()
	assert.Equal(t, http.StatusNotFound, notFound.StatusCode)

	bad, err := http.Get(srv.URL + "/jobs/not-a-uuid")
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}
