// Package processtest provides a scripted process.Runner for tests.
package processtest

import (
	"context"
	"strings"
	"sync"

	"github.com/veranemoloko/audio-downloader/internal/process"
)

// Script describes what a fake process prints and how it exits.
type Script struct {
	Events   []process.Event
	ExitCode int
	// StartErr is returned from Start instead of launching anything.
	StartErr error
	// OnStart runs before any output is emitted, e.g. to create the output file.
	OnStart func(args []string)
	// Block holds the process open until its context is cancelled.
	Block bool
}

// Call records one Start invocation.
type Call struct {
	Name string
	Args []string
}

// Runner replays Script for every Start call.
type Runner struct {
	Script Script

	mu    sync.Mutex
	calls []Call
}

// Start implements process.Runner.
func (r *Runner) Start(ctx context.Context, name string, args ...string) (process.Process, error) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Name: name, Args: append([]string(nil), args...)})
	r.mu.Unlock()

	if r.Script.StartErr != nil {
		return nil, r.Script.StartErr
	}
	if r.Script.OnStart != nil {
		r.Script.OnStart(args)
	}

	p := &fakeProcess{events: make(chan process.Event), done: make(chan struct{})}
	go func() {
		defer close(p.done)
		defer close(p.events)
		for _, ev := range r.Script.Events {
			select {
			case p.events <- ev:
			case <-ctx.Done():
				p.result = process.Result{ExitCode: -1, Err: ctx.Err()}
				return
			}
		}
		if r.Script.Block {
			<-ctx.Done()
			p.result = process.Result{ExitCode: -1, Err: ctx.Err()}
			return
		}
		p.result = process.Result{ExitCode: r.Script.ExitCode}
	}()
	return p, nil
}

// Calls returns the recorded Start invocations.
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

type fakeProcess struct {
	events chan process.Event
	done   chan struct{}
	result process.Result
}

func (p *fakeProcess) Events() <-chan process.Event { return p.events }

func (p *fakeProcess) Wait() process.Result {
	<-p.done
	return p.result
}

// Stdout builds stdout events from lines.
func Stdout(lines ...string) []process.Event {
	return lines2events(process.Stdout, lines)
}

// Stderr builds stderr events from lines.
func Stderr(lines ...string) []process.Event {
	return lines2events(process.Stderr, lines)
}

func lines2events(stream process.Stream, lines []string) []process.Event {
	events := make([]process.Event, 0, len(lines))
	for _, l := range lines {
		events = append(events, process.Event{Stream: stream, Line: l})
	}
	return events
}

// OutputArg returns the value following -o in args.
func OutputArg(args []string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "-o" {
			return args[i+1]
		}
	}
	return ""
}

// ResolveOutput substitutes the %(ext)s placeholder of an output template.
func ResolveOutput(template, ext string) string {
	return strings.ReplaceAll(template, "%(ext)s", ext)
}
