package domain

// JobState represents the lifecycle position of a Job.
type JobState string

const (
	JobStatePending   JobState = "pending"
	JobStateRunning   JobState = "running"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s JobState) IsTerminal() bool {
	return s == JobStateSucceeded || s == JobStateFailed
}

// CanTransition reports whether moving from s to next keeps the lifecycle monotonic.
func (s JobState) CanTransition(next JobState) bool {
	switch s {
	case JobStatePending:
		return next == JobStateRunning || next == JobStateFailed
	case JobStateRunning:
		return next == JobStateSucceeded || next == JobStateFailed
	default:
		return false
	}
}
