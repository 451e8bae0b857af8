// Package process launches external commands and exposes their output as a
// stream of typed events followed by a terminal result.
package process

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	errpkg "github.com/veranemoloko/audio-downloader/internal/errors"
)

// Stream identifies which pipe a line came from.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// Event is one line of process output.
type Event struct {
	Stream Stream
	Line   string
}

// Result is the terminal outcome of a process. ExitCode is -1 when the
// process was killed by a signal or could not be waited on.
type Result struct {
	ExitCode int
	Err      error
}

// Process is a running command. Events must be drained until closed before
// Wait returns.
type Process interface {
	Events() <-chan Event
	Wait() Result
}

// Runner starts processes.
type Runner interface {
	Start(ctx context.Context, name string, args ...string) (Process, error)
}

const maxLineSize = 1024 * 1024

// ExecRunner runs commands through os/exec.
type ExecRunner struct {
	logger *slog.Logger
}

// NewExecRunner creates an ExecRunner that logs process lifecycle with logger.
func NewExecRunner(logger *slog.Logger) *ExecRunner {
	return &ExecRunner{logger: logger}
}

// Start launches name with args. A binary that cannot be found or started
// returns an error wrapping ErrToolUnavailable.
func (r *ExecRunner) Start(ctx context.Context, name string, args ...string) (Process, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errpkg.ErrToolUnavailable, name, err)
	}

	cmd := exec.CommandContext(ctx, path, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", errpkg.ErrToolUnavailable, name, err)
	}

	r.logger.Debug("process started", "binary", path, "pid", cmd.Process.Pid)

	p := &execProcess{
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go p.pump(&wg, Stdout, stdout)
	go p.pump(&wg, Stderr, stderr)

	go func() {
		wg.Wait()
		close(p.events)
		p.result = toResult(cmd.Wait())
		r.logger.Debug("process exited", "binary", path, "exit_code", p.result.ExitCode)
		close(p.done)
	}()

	return p, nil
}

type execProcess struct {
	events chan Event
	done   chan struct{}
	result Result
}

func (p *execProcess) Events() <-chan Event { return p.events }

func (p *execProcess) Wait() Result {
	<-p.done
	return p.result
}

func (p *execProcess) pump(wg *sync.WaitGroup, stream Stream, r io.Reader) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	scanner.Split(ScanLinesOrCR)
	for scanner.Scan() {
		p.events <- Event{Stream: stream, Line: scanner.Text()}
	}
	// Keep the pipe empty so the child never blocks on a full buffer.
	_, _ = io.Copy(io.Discard, r)
}

func toResult(err error) Result {
	if err == nil {
		return Result{ExitCode: 0}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return Result{ExitCode: exitErr.ExitCode(), Err: err}
	}
	return Result{ExitCode: -1, Err: err}
}

// ScanLinesOrCR is a bufio.SplitFunc that ends a token at '\n' or '\r',
// dropping a trailing "\r\n" pair as one terminator. Empty tokens are skipped.
func ScanLinesOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	for start < len(data) && (data[start] == '\n' || data[start] == '\r') {
		start++
	}
	if atEOF && start == len(data) {
		return len(data), nil, nil
	}
	if i := bytes.IndexAny(data[start:], "\r\n"); i >= 0 {
		return start + i + 1, data[start : start+i], nil
	}
	if atEOF {
		return len(data), data[start:], nil
	}
	return start, nil, nil
}
