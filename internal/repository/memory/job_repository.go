package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"study-pipeline-be/internal/repository/contract"
	"study-pipeline-be/pkg/apperror"
	"study-pipeline-be/pkg/store"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

type jobEntry struct {
	mu     sync.Mutex
	job    store.GenerationJob
	cancel context.CancelFunc
}

// JobRepository tracks generation jobs and enforces their state machine:
// queued -> processing -> completed | failed. Terminal jobs are frozen.
type JobRepository struct {
	cache *cache.Cache
}

var _ contract.IJobRepository = (*JobRepository)(nil)

func NewJobRepository() *JobRepository {
	return &JobRepository{
		cache: cache.New(cache.NoExpiration, 0),
	}
}

// Create registers a queued job at 0%.
func (r *JobRepository) Create(sessionID, sourceID string) store.GenerationJob {
	now := time.Now()
	entry := &jobEntry{
		job: store.GenerationJob{
			ID:          uuid.NewString(),
			SessionID:   sessionID,
			SourceID:    sourceID,
			Status:      store.JobStatusQueued,
			Percentage:  0,
			CurrentStep: store.StepQueued,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}
	r.cache.Set(entry.job.ID, entry, cache.NoExpiration)
	return entry.job
}

func (r *JobRepository) entry(jobID string) (*jobEntry, error) {
	if x, found := r.cache.Get(jobID); found {
		return x.(*jobEntry), nil
	}
	return nil, apperror.NotFound("job %s not found", jobID)
}

func (r *JobRepository) Get(jobID string) (store.GenerationJob, error) {
	e, err := r.entry(jobID)
	if err != nil {
		return store.GenerationJob{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job, nil
}

// BindCancel attaches the cancel func of the routine working on the job.
func (r *JobRepository) BindCancel(jobID string, cancel context.CancelFunc) error {
	e, err := r.entry(jobID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancel = cancel
	return nil
}

// Advance moves the job to processing with a new percentage and step label.
func (r *JobRepository) Advance(jobID string, percentage int, step string) (store.GenerationJob, error) {
	return r.mutate(jobID, func(job *store.GenerationJob) error {
		if percentage < job.Percentage {
			return apperror.InvalidState("job %s progress cannot go back from %d%% to %d%%", jobID, job.Percentage, percentage)
		}
		if percentage > 99 {
			percentage = 99
		}
		job.Status = store.JobStatusProcessing
		job.Percentage = percentage
		job.CurrentStep = step
		return nil
	})
}

// Complete finishes the job at 100% with the id of the produced output.
func (r *JobRepository) Complete(jobID, noteID string) (store.GenerationJob, error) {
	return r.mutate(jobID, func(job *store.GenerationJob) error {
		job.Status = store.JobStatusCompleted
		job.Percentage = 100
		job.CurrentStep = store.StepDone
		job.NoteID = noteID
		return nil
	})
}

// Fail marks the job failed; the reason is kept for later inspection.
func (r *JobRepository) Fail(jobID, reason string) (store.GenerationJob, error) {
	if strings.TrimSpace(reason) == "" {
		reason = "generation failed"
	}
	return r.mutate(jobID, func(job *store.GenerationJob) error {
		job.Status = store.JobStatusFailed
		job.Error = reason
		return nil
	})
}

// Cancel fails a non-terminal job and signals its routine to stop.
func (r *JobRepository) Cancel(jobID string) (store.GenerationJob, error) {
	e, err := r.entry(jobID)
	if err != nil {
		return store.GenerationJob{}, err
	}
	job, err := r.Fail(jobID, "cancelled by client")
	if err != nil {
		return store.GenerationJob{}, err
	}
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return job, nil
}

func (r *JobRepository) mutate(jobID string, fn func(*store.GenerationJob) error) (store.GenerationJob, error) {
	e, err := r.entry(jobID)
	if err != nil {
		return store.GenerationJob{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.job.Status.Terminal() {
		return store.GenerationJob{}, apperror.InvalidState("job %s is already %s", jobID, e.job.Status)
	}
	updated := e.job
	if err := fn(&updated); err != nil {
		return store.GenerationJob{}, err
	}
	updated.UpdatedAt = time.Now()
	e.job = updated
	return e.job, nil
}
