package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"study-pipeline-be/internal/dto"
	"study-pipeline-be/internal/metrics"
	"study-pipeline-be/internal/pkg/logger"
	"study-pipeline-be/internal/repository/contract"
	"study-pipeline-be/pkg/apperror"
	"study-pipeline-be/pkg/events"
	"study-pipeline-be/pkg/generator"
	"study-pipeline-be/pkg/store"

	"github.com/ThreeDotsLabs/watermill/message"
	"golang.org/x/sync/errgroup"
)

// Progress marks of a note job
const (
	progressExtracting = 10
	progressAnalyzing  = 40
	progressGenerating = 80
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

type consumerService struct {
	subscriber message.Subscriber
	topicName  string
	sessions   contract.ISessionRepository
	jobs       contract.IJobRepository
	pipeline   IPipelineService
	events     *events.PipelinePublisher
	notifier   JobNotifier
	metrics    *metrics.Collector
	logger     logger.ILogger
	jobTimeout time.Duration
	workers    int
}

func NewConsumerService(
	subscriber message.Subscriber,
	topicName string,
	sessions contract.ISessionRepository,
	jobs contract.IJobRepository,
	pipeline IPipelineService,
	events *events.PipelinePublisher,
	notifier JobNotifier,
	metrics *metrics.Collector,
	logger logger.ILogger,
	jobTimeout time.Duration,
	workers int,
) IConsumerService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if workers <= 0 {
		workers = 1
	}
	return &consumerService{
		subscriber: subscriber,
		topicName:  topicName,
		sessions:   sessions,
		jobs:       jobs,
		pipeline:   pipeline,
		events:     events,
		notifier:   notifier,
		metrics:    metrics,
		logger:     logger,
		jobTimeout: jobTimeout,
		workers:    workers,
	}
}

// Consume subscribes to the job topic and processes messages until ctx ends.
// Up to workers jobs run at once; further messages wait for a free slot.
func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		g := new(errgroup.Group)
		g.SetLimit(cs.workers)
		for msg := range messages {
			payload, ok := cs.decode(msg)
			if !ok {
				continue
			}
			g.Go(func() error {
				cs.runNoteJob(ctx, payload)
				return nil
			})
		}
		_ = g.Wait()
	}()

	return nil
}

// decode acks the message before the job runs: the subscriber holds back the
// next message until then. Job failures are recorded on the job itself.
func (cs *consumerService) decode(msg *message.Message) (dto.PublishNoteJobMessage, bool) {
	defer msg.Ack()

	var payload dto.PublishNoteJobMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.logger.Error(jobModule, "Failed to unmarshal job message", map[string]interface{}{"error": err.Error()})
		return payload, false
	}
	return payload, true
}

// runNoteJob drives one note job through its phases. Errors never escape: they
// end up as the job's failure reason.
func (cs *consumerService) runNoteJob(ctx context.Context, payload dto.PublishNoteJobMessage) {
	var (
		jobCtx context.Context
		cancel context.CancelFunc
	)
	if cs.jobTimeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, cs.jobTimeout)
	} else {
		jobCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	if err := cs.jobs.BindCancel(payload.JobId, cancel); err != nil {
		cs.logger.Warn(jobModule, "Job vanished before processing", map[string]interface{}{"job_id": payload.JobId})
		return
	}

	start := time.Now()
	noteId, err := cs.runPhases(jobCtx, payload)
	if err != nil {
		cs.fail(ctx, payload, cs.failureReason(jobCtx, err))
		return
	}

	job, err := cs.jobs.Complete(payload.JobId, noteId)
	if err != nil {
		// Cancelled while the last phase was finishing
		cs.logger.Info(jobModule, "Job finished after reaching a terminal state", map[string]interface{}{
			"job_id": payload.JobId,
			"error":  err.Error(),
		})
		return
	}
	cs.notifier.NotifyJob(job)
	cs.metrics.RecordJob(string(store.JobStatusCompleted))
	cs.events.PublishJobCompleted(ctx, job.ID, job.SessionID, noteId)
	cs.logger.Info(jobModule, "Note job completed", map[string]interface{}{
		"job_id":     job.ID,
		"note_id":    noteId,
		"elapsed_ms": time.Since(start).Milliseconds(),
	})
}

func (cs *consumerService) runPhases(ctx context.Context, payload dto.PublishNoteJobMessage) (string, error) {
	if err := cs.advance(payload.JobId, progressExtracting, store.StepExtracting); err != nil {
		return "", err
	}
	src, err := cs.sessions.GetSource(payload.SessionId, payload.SourceId)
	if err != nil {
		return "", err
	}
	if src.Status != store.SourceStatusReady {
		reason := src.ProcessingError
		if reason == "" {
			reason = "status " + string(src.Status)
		}
		return "", apperror.Validation("source %s is not ready: %s", src.ID, reason)
	}

	if err := cs.advance(payload.JobId, progressAnalyzing, store.StepAnalyzing); err != nil {
		return "", err
	}
	if src.Type.HasExtractionBackend() {
		if _, err := cs.pipeline.OptimizeSource(ctx, payload.SessionId, payload.SourceId, false); err != nil {
			return "", err
		}
	}

	if err := cs.advance(payload.JobId, progressGenerating, store.StepGenerating); err != nil {
		return "", err
	}
	settings, err := generator.DecodeSettings(store.OutputKindNotes, payload.Settings)
	if err != nil {
		return "", err
	}
	out, err := cs.pipeline.GenerateWith(ctx, payload.SessionId, payload.SourceId, settings)
	if err != nil {
		return "", err
	}
	return out.ID, nil
}

func (cs *consumerService) advance(jobId string, percentage int, step string) error {
	job, err := cs.jobs.Advance(jobId, percentage, step)
	if err != nil {
		return err
	}
	cs.notifier.NotifyJob(job)
	cs.logger.Debug(jobModule, "Job progress", map[string]interface{}{
		"job_id":     jobId,
		"percentage": percentage,
		"step":       step,
	})
	return nil
}

func (cs *consumerService) failureReason(jobCtx context.Context, err error) string {
	if errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
		return fmt.Sprintf("job timed out after %s", cs.jobTimeout)
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	return apperror.MessageOf(err)
}

func (cs *consumerService) fail(ctx context.Context, payload dto.PublishNoteJobMessage, reason string) {
	job, err := cs.jobs.Fail(payload.JobId, reason)
	if err != nil {
		// Already terminal, typically cancelled by the client
		cs.logger.Info(jobModule, "Job stopped", map[string]interface{}{
			"job_id": payload.JobId,
			"reason": reason,
		})
		return
	}
	cs.notifier.NotifyJob(job)
	cs.metrics.RecordJob(string(store.JobStatusFailed))
	cs.events.PublishJobFailed(ctx, job.ID, job.SessionID, reason)
	cs.logger.Warn(jobModule, "Note job failed", map[string]interface{}{
		"job_id": job.ID,
		"reason": reason,
	})
}
