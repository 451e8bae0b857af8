package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// EventKind distinguishes progress updates from terminal markers.
type EventKind string

const (
	EventPercent  EventKind = "percent"
	EventComplete EventKind = "complete"
	EventFailed   EventKind = "failed"
)

// ProgressEvent is a unit of broadcast information. It is never persisted.
type ProgressEvent struct {
	Kind    EventKind
	JobID   uuid.UUID
	Percent float64
	// Text is the percentage exactly as the tool printed it, e.g. "10.0".
	Text   string
	Reason string
	At     time.Time
}

func PercentEvent(value float64, text string) ProgressEvent {
	return ProgressEvent{Kind: EventPercent, Percent: value, Text: text, At: time.Now()}
}

func CompleteEvent(jobID uuid.UUID) ProgressEvent {
	return ProgressEvent{Kind: EventComplete, JobID: jobID, Percent: 100, At: time.Now()}
}

func FailedEvent(jobID uuid.UUID, reason string) ProgressEvent {
	return ProgressEvent{Kind: EventFailed, JobID: jobID, Reason: reason, At: time.Now()}
}

// IsTerminal reports whether the event ends a job's reporting cycle.
func (e ProgressEvent) IsTerminal() bool {
	return e.Kind == EventComplete || e.Kind == EventFailed
}

// Payload renders the event for the progress stream: the bare percentage,
// or the literal "complete" / "failed".
func (e ProgressEvent) Payload() string {
	switch e.Kind {
	case EventPercent:
		if e.Text != "" {
			return e.Text
		}
		return strconv.FormatFloat(e.Percent, 'f', -1, 64)
	case EventComplete:
		return "complete"
	default:
		return "failed"
	}
}
