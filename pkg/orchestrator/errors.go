package orchestrator

import (
	"fmt"
)

// SubmissionError means the backend (or a precondition) rejected the request
// before a job existed. Fatal to the attempt; never retried automatically.
type SubmissionError struct {
	Cause error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission rejected: %v", e.Cause)
}

func (e *SubmissionError) Unwrap() error {
	return e.Cause
}

// AnalysisFailedError means the job reached failed with no usable partial
// data. Terminal; retryable only by resubmission.
type AnalysisFailedError struct {
	JobID   string
	Message string
}

func (e *AnalysisFailedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("analysis %s failed", e.JobID)
	}
	return fmt.Sprintf("analysis %s failed: %s", e.JobID, e.Message)
}

// JobVanishedError means the referenced job no longer exists server-side
// (404 while polling). Polling stops immediately.
type JobVanishedError struct {
	JobID string
}

func (e *JobVanishedError) Error() string {
	return fmt.Sprintf("analysis %s no longer exists", e.JobID)
}

// PollingExhaustedError means the transport retry budget was spent without a
// single successful poll. Terminal; the user must resubmit.
type PollingExhaustedError struct {
	JobID    string
	Attempts int
}

func (e *PollingExhaustedError) Error() string {
	return fmt.Sprintf("gave up polling analysis %s after %d consecutive failures", e.JobID, e.Attempts)
}
