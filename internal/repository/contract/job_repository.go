package contract

import (
	"context"

	"study-pipeline-be/pkg/store"
)

// IJobRepository is the Job Tracker. Terminal jobs reject every mutation with
// INVALID_STATE.
type IJobRepository interface {
	Create(sessionID, sourceID string) store.GenerationJob
	Get(jobID string) (store.GenerationJob, error)
	BindCancel(jobID string, cancel context.CancelFunc) error
	Advance(jobID string, percentage int, step string) (store.GenerationJob, error)
	Complete(jobID, noteID string) (store.GenerationJob, error)
	Fail(jobID, reason string) (store.GenerationJob, error)
	Cancel(jobID string) (store.GenerationJob, error)
}
