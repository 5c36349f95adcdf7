package service

import (
	"context"
	"encoding/json"

	"study-pipeline-be/internal/dto"
	"study-pipeline-be/internal/metrics"
	"study-pipeline-be/internal/pkg/logger"
	"study-pipeline-be/internal/repository/contract"
	"study-pipeline-be/pkg/events"
	"study-pipeline-be/pkg/generator"
	"study-pipeline-be/pkg/store"
)

const jobModule = "JOB"

// JobNotifier receives every job state change, e.g. to push it to websocket
// subscribers.
type JobNotifier interface {
	NotifyJob(job store.GenerationJob)
}

type nopNotifier struct{}

func (nopNotifier) NotifyJob(store.GenerationJob) {}

type IJobService interface {
	StartNoteJob(ctx context.Context, sessionId string, req *dto.StartNoteJobRequest) (*dto.StartJobResponse, error)
	GetJobStatus(ctx context.Context, jobId string) (*store.GenerationJob, error)
	CancelJob(ctx context.Context, jobId string) (*store.GenerationJob, error)
}

type jobService struct {
	sessions         contract.ISessionRepository
	jobs             contract.IJobRepository
	publisherService IPublisherService
	events           *events.PipelinePublisher
	notifier         JobNotifier
	metrics          *metrics.Collector
	logger           logger.ILogger
}

func NewJobService(
	sessions contract.ISessionRepository,
	jobs contract.IJobRepository,
	publisherService IPublisherService,
	events *events.PipelinePublisher,
	notifier JobNotifier,
	metrics *metrics.Collector,
	logger logger.ILogger,
) IJobService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &jobService{
		sessions:         sessions,
		jobs:             jobs,
		publisherService: publisherService,
		events:           events,
		notifier:         notifier,
		metrics:          metrics,
		logger:           logger,
	}
}

// StartNoteJob accepts a full-document note generation and queues it. Bad
// settings and unknown sessions or sources are rejected before a job exists.
func (s *jobService) StartNoteJob(ctx context.Context, sessionId string, req *dto.StartNoteJobRequest) (*dto.StartJobResponse, error) {
	if _, err := s.sessions.GetSource(sessionId, req.SourceId); err != nil {
		return nil, err
	}
	if _, err := generator.DecodeSettings(store.OutputKindNotes, req.Settings); err != nil {
		return nil, err
	}

	job := s.jobs.Create(sessionId, req.SourceId)
	s.notifier.NotifyJob(job)

	payload, err := json.Marshal(dto.PublishNoteJobMessage{
		JobId:     job.ID,
		SessionId: sessionId,
		SourceId:  req.SourceId,
		Settings:  req.Settings,
	})
	if err == nil {
		err = s.publisherService.Publish(ctx, payload)
	}
	if err != nil {
		s.logger.Error(jobModule, "Failed to queue note job", map[string]interface{}{
			"job_id": job.ID,
			"error":  err.Error(),
		})
		if failed, ferr := s.jobs.Fail(job.ID, "failed to queue job: "+err.Error()); ferr == nil {
			s.notifier.NotifyJob(failed)
			s.metrics.RecordJob(string(store.JobStatusFailed))
		}
		return nil, err
	}

	s.logger.Info(jobModule, "Note job queued", map[string]interface{}{
		"job_id":     job.ID,
		"session_id": sessionId,
		"source_id":  req.SourceId,
	})
	return &dto.StartJobResponse{JobId: job.ID, Status: job.Status}, nil
}

func (s *jobService) GetJobStatus(ctx context.Context, jobId string) (*store.GenerationJob, error) {
	job, err := s.jobs.Get(jobId)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// CancelJob fails a running job and stops its routine. Outputs it already
// appended stay in the session.
func (s *jobService) CancelJob(ctx context.Context, jobId string) (*store.GenerationJob, error) {
	job, err := s.jobs.Cancel(jobId)
	if err != nil {
		return nil, err
	}
	s.notifier.NotifyJob(job)
	s.metrics.RecordJob("cancelled")
	s.events.PublishJobFailed(ctx, job.ID, job.SessionID, job.Error)
	s.logger.Info(jobModule, "Job cancelled", map[string]interface{}{"job_id": jobId})
	return &job, nil
}
