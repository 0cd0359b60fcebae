package model

import "time"

// JobStatus is the lifecycle state of a job record in the registry.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusTimedOut  JobStatus = "timed_out"
)

// Finished reports whether no further updates are expected.
func (s JobStatus) Finished() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusTimedOut:
		return true
	}
	return false
}

// Job is the registry record for one pipeline run. It never holds the
// access credential.
type Job struct {
	ID          string          `json:"job_id"`
	Status      JobStatus       `json:"status"`
	Stage       Stage           `json:"stage,omitempty"`
	Progress    int             `json:"progress"`
	CurrentStep string          `json:"current_step,omitempty"`
	Error       *string         `json:"error,omitempty"`
	Prompt      string          `json:"prompt"`
	Result      *PipelineResult `json:"result,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// ProgressEvent is emitted by the pipeline at stage boundaries and per
// resolved candidate.
type ProgressEvent struct {
	Stage   Stage
	Step    int
	Total   int
	Message string
}
