package domain

import (
	"encoding/json"
	"time"
)

// Stage identifies a job's position inside a generation pipeline. Standalone
// jobs use StageSingle.
type Stage string

const (
	StageVideo               Stage = "video"
	StageReferenceExtraction Stage = "reference_extraction"
	StageProfileImage        Stage = "profile_image"
	StageBodymap             Stage = "bodymap"
	StageSingle              Stage = "single"
)

// JobStatus enumerates job lifecycle states. Ready and failed are terminal:
// once reached no further transition is permitted.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusSubmitted  JobStatus = "submitted"
	JobStatusProcessing JobStatus = "processing"
	JobStatusReady      JobStatus = "ready"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusReady || s == JobStatusFailed
}

// Job tracks one request to the external generation provider from creation to
// its terminal outcome. Invariant: exactly one of ResultURL/FailureCode is set
// once Status is terminal.
type Job struct {
	ID             string
	PipelineID     string // empty for standalone jobs
	UserID         string
	Stage          Stage
	Status         JobStatus
	ProviderTaskID string // empty until submission succeeds
	Payload        json.RawMessage
	ResultURL      string
	FailureCode    string
	FailureMessage string
	Attempts       int
	MaxAttempts    int
	CreatedAt      time.Time
	SubmittedAt    *time.Time
	SettledAt      *time.Time
}

// Terminal reports whether the job has settled.
func (j *Job) Terminal() bool {
	return j.Status.Terminal()
}
