package events

import (
	"context"
	"sync"
	"time"

	"study-pipeline-be/internal/pkg/logger"
)

// PipelinePublisher emits the pipeline's domain events. Publishing is best
// effort: a failure is logged and never fails the operation that caused it.
type PipelinePublisher struct {
	publisher Publisher
	logger    logger.ILogger
}

func NewPipelinePublisher(publisher Publisher, logger logger.ILogger) *PipelinePublisher {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &PipelinePublisher{publisher: publisher, logger: logger}
}

func (p *PipelinePublisher) emit(ctx context.Context, eventType string, data map[string]interface{}) {
	evt := BaseEvent{
		Type:       eventType,
		Data:       data,
		OccurredAt: time.Now(),
	}
	if err := p.publisher.Publish(ctx, evt); err != nil {
		p.logger.Error("EVENTS", "Failed to publish "+eventType+" event", map[string]interface{}{"error": err.Error()})
	}
}

// PublishSessionCreated emits SESSION_CREATED
func (p *PipelinePublisher) PublishSessionCreated(ctx context.Context, sessionId string) {
	p.emit(ctx, SESSION_CREATED, map[string]interface{}{"session_id": sessionId})
}

// PublishSourcesAdded emits SOURCES_ADDED
func (p *PipelinePublisher) PublishSourcesAdded(ctx context.Context, sessionId string, sourceIds []string) {
	p.emit(ctx, SOURCES_ADDED, map[string]interface{}{
		"session_id": sessionId,
		"source_ids": sourceIds,
	})
}

// PublishSourceOptimized emits SOURCE_OPTIMIZED
func (p *PipelinePublisher) PublishSourceOptimized(ctx context.Context, sessionId, sourceId string, ratio, cost float64) {
	p.emit(ctx, SOURCE_OPTIMIZED, map[string]interface{}{
		"session_id":        sessionId,
		"source_id":         sourceId,
		"compression_ratio": ratio,
		"processing_cost":   cost,
	})
}

// PublishOutputGenerated emits OUTPUT_GENERATED
func (p *PipelinePublisher) PublishOutputGenerated(ctx context.Context, sessionId, sourceId, outputId, kind string, placeholder bool) {
	p.emit(ctx, OUTPUT_GENERATED, map[string]interface{}{
		"session_id":  sessionId,
		"source_id":   sourceId,
		"output_id":   outputId,
		"kind":        kind,
		"placeholder": placeholder,
	})
}

// PublishJobCompleted emits JOB_COMPLETED
func (p *PipelinePublisher) PublishJobCompleted(ctx context.Context, jobId, sessionId, noteId string) {
	p.emit(ctx, JOB_COMPLETED, map[string]interface{}{
		"job_id":     jobId,
		"session_id": sessionId,
		"note_id":    noteId,
	})
}

// PublishJobFailed emits JOB_FAILED
func (p *PipelinePublisher) PublishJobFailed(ctx context.Context, jobId, sessionId, reason string) {
	p.emit(ctx, JOB_FAILED, map[string]interface{}{
		"job_id":     jobId,
		"session_id": sessionId,
		"reason":     reason,
	})
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Types returns the type of every recorded event in publish order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, len(r.events))
	for i, e := range r.events {
		types[i] = e.EventType()
	}
	return types
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
