package store

import "time"

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Progress labels used at phase boundaries
const (
	StepQueued     = "queued"
	StepExtracting = "extracting"
	StepAnalyzing  = "analyzing"
	StepGenerating = "generating sections"
	StepSaving     = "saving"
	StepDone       = "done"
)

// GenerationJob tracks a long-running generation for polling clients
type GenerationJob struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	SourceID    string    `json:"sourceId"`
	Status      JobStatus `json:"status"`
	Percentage  int       `json:"percentage"`
	CurrentStep string    `json:"currentStep"`
	NoteID      string    `json:"noteId,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
