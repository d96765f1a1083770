package models

import "time"

// JobState tracks a job through the transcribe/summarize pipeline.
type JobState string

const (
	JobCreated      JobState = "created"
	JobTranscribing JobState = "transcribing"
	JobSummarizing  JobState = "summarizing"
	JobDone         JobState = "done"
	JobFailed       JobState = "failed"
	JobCancelled    JobState = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s JobState) Terminal() bool {
	switch s {
	case JobDone, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// Job is one uploaded audio artifact and its processing outcome.
type Job struct {
	ID           string     `json:"id"`
	Token        string     `json:"filename"`
	SourcePath   string     `json:"-"`
	OriginalName string     `json:"original_name"`
	MimeType     string     `json:"mime_type"`
	Size         int64      `json:"size"`
	State        JobState   `json:"state"`
	Transcript   string     `json:"transcript,omitempty"`
	Summary      string     `json:"summary,omitempty"`
	Error        string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	RemovedAt    *time.Time `json:"removed_at,omitempty"`
}
