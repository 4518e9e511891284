// Package models contains the job, algorithm and network types shared by the
// server, workers and CLI.
package models

import (
	"strings"
	"time"
)

// JobStatus is the lifecycle state of an inference job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusSubmitted JobStatus = "submitted"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// AllJobStatuses lists every status in lifecycle order.
var AllJobStatuses = []JobStatus{
	JobStatusPending,
	JobStatusSubmitted,
	JobStatusRunning,
	JobStatusCompleted,
	JobStatusFailed,
	JobStatusCancelled,
}

// IsTerminal reports whether no further transitions are permitted.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

func (s JobStatus) Valid() bool {
	for _, v := range AllJobStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// ParseJobStatus accepts any casing ("RUNNING", "running").
func ParseJobStatus(s string) (JobStatus, bool) {
	st := JobStatus(strings.ToLower(strings.TrimSpace(s)))
	return st, st.Valid()
}

// ErrorKind classifies why a job ended in FAILED.
type ErrorKind string

const (
	ErrorKindNone            ErrorKind = ""
	ErrorKindExitCode        ErrorKind = "exit_code"
	ErrorKindMissingOutput   ErrorKind = "missing_output"
	ErrorKindMalformedOutput ErrorKind = "malformed_output"
	ErrorKindTimeout         ErrorKind = "timeout"
	ErrorKindDispatch        ErrorKind = "dispatch"
	ErrorKindLost            ErrorKind = "lost"
	ErrorKindInternal        ErrorKind = "internal"
)

// Job is one requested execution of an algorithm against a dataset.
// The job directory is ResultPath; it holds LogFile and the network output.
type Job struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Description  *string        `json:"description,omitempty"`
	DatasetID    string         `json:"dataset_id"`
	Algorithm    string         `json:"algorithm"`
	Parameters   map[string]any `json:"parameters"`
	Status       JobStatus      `json:"status"`
	Progress     float64        `json:"progress"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	EndedAt      *time.Time     `json:"ended_at,omitempty"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	ErrorKind    ErrorKind      `json:"error_kind,omitempty"`
	TaskHandle   *string        `json:"task_handle,omitempty"`
	ResultPath   string         `json:"result_path"`
	LogFile      string         `json:"log_file"`
	Metrics      *NetworkStats  `json:"metrics,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// NetworkStats is recorded on a job when its output has been parsed.
type NetworkStats struct {
	NumEdges    int    `json:"num_edges"`
	NumNodes    int    `json:"num_nodes"`
	SkippedRows int    `json:"skipped_rows"`
	OutputFile  string `json:"output_file"`
}

// Duration returns the elapsed run time, or zero if the job never started.
func (j *Job) Duration(now time.Time) time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	end := now
	if j.EndedAt != nil {
		end = *j.EndedAt
	}
	return end.Sub(*j.StartedAt)
}
