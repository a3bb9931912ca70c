package models

import "time"

// JobStatus is the lifecycle state of a processing job.
type JobStatus string

const (
	JobPending       JobStatus = "PENDING"
	JobPreprocessing JobStatus = "PREPROCESSING"
	JobExtracting    JobStatus = "EXTRACTING"
	JobTranslating   JobStatus = "TRANSLATING"
	JobCompleted     JobStatus = "COMPLETED"
	JobFailed        JobStatus = "FAILED"
)

// forward edges of the state machine; Failed is reachable from every
// non-terminal state and is handled in CanTransition.
var nextStatus = map[JobStatus]JobStatus{
	JobPending:       JobPreprocessing,
	JobPreprocessing: JobExtracting,
	JobExtracting:    JobTranslating,
	JobTranslating:   JobCompleted,
}

// Progress returns the percentage reported when a job enters the status.
// Failed keeps whatever progress the job had, so it reports -1.
func (s JobStatus) Progress() int {
	switch s {
	case JobPending:
		return 0
	case JobPreprocessing:
		return 25
	case JobExtracting:
		return 50
	case JobTranslating:
		return 75
	case JobCompleted:
		return 100
	}
	return -1
}

func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobPending, JobPreprocessing, JobExtracting, JobTranslating, JobCompleted, JobFailed:
		return true
	}
	return false
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to JobStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if to == JobFailed {
		return true
	}
	return nextStatus[from] == to
}

type Job struct {
	ID           int64          `json:"id"`
	Title        string         `json:"title"`
	SourcePath   string         `json:"source_path"`
	Status       JobStatus      `json:"status"`
	Progress     int            `json:"progress"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	Metadata     map[string]any `json:"metadata"`
	CollectionID int64          `json:"collection_id"`
}

// JobStatusView is the public status projection of a job.
type JobStatusView struct {
	Status   JobStatus      `json:"status"`
	Progress int            `json:"progress"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata"`
}
