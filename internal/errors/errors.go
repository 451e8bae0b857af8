package errors

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrAuthUnavailable   = errors.New("authentication cookies unavailable")
	ErrToolUnavailable   = errors.New("extraction tool unavailable")
	ErrDownloadFailed    = errors.New("download failed")
	ErrAuthRejected      = errors.New("authentication rejected")
	ErrDeliveryFailed    = errors.New("delivery failed")
	ErrInvalidTransition = errors.New("invalid job state transition")
	ErrJobNotFound       = errors.New("job not found")
)

// DownloadError describes a tool run that exited with a non-zero code.
// It matches ErrDownloadFailed and, when AuthRelated is set, ErrAuthRejected.
type DownloadError struct {
	ExitCode    int
	Reason      string
	AuthRelated bool
}

func (e *DownloadError) Error() string {
	kind := ErrDownloadFailed.Error()
	if e.AuthRelated {
		kind = ErrAuthRejected.Error()
	}
	if e.Reason == "" {
		return fmt.Sprintf("%s: exit code %d", kind, e.ExitCode)
	}
	return fmt.Sprintf("%s: exit code %d: %s", kind, e.ExitCode, e.Reason)
}

func (e *DownloadError) Unwrap() []error {
	if e.AuthRelated {
		return []error{ErrDownloadFailed, ErrAuthRejected}
	}
	return []error{ErrDownloadFailed}
}
