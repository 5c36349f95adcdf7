package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"study-pipeline-be/internal/dto"
	"study-pipeline-be/internal/metrics"
	"study-pipeline-be/internal/pkg/logger"
	"study-pipeline-be/internal/repository/contract"
	"study-pipeline-be/internal/tracer"
	"study-pipeline-be/pkg/apperror"
	"study-pipeline-be/pkg/events"
	"study-pipeline-be/pkg/extraction"
	"study-pipeline-be/pkg/generator"
	"study-pipeline-be/pkg/optimizer"
	"study-pipeline-be/pkg/relay"
	"study-pipeline-be/pkg/store"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const pipelineModule = "PIPELINE"

type IPipelineService interface {
	CreateSession(ctx context.Context) (*dto.CreateSessionResponse, error)
	GetSession(ctx context.Context, sessionId string) (*store.Session, error)
	ListSessions(ctx context.Context) ([]dto.SessionSummaryResponse, error)
	AddSources(ctx context.Context, sessionId string, files []extraction.File, links []extraction.Link) (*dto.AddSourcesResponse, error)
	OptimizeSource(ctx context.Context, sessionId, sourceId string, forceReoptimize bool) (*dto.OptimizeSourceResponse, error)
	Generate(ctx context.Context, sessionId string, req *dto.GenerateRequest) (*store.Output, error)
	GenerateWith(ctx context.Context, sessionId, sourceId string, settings generator.Settings) (*store.Output, error)
	ChatStream(ctx context.Context, sessionId string, req *dto.ChatStreamRequest) <-chan relay.Event
	GradeAnswers(ctx context.Context, sessionId string, req *dto.GradeAnswersRequest) (*generator.GradeReport, error)
}

type pipelineService struct {
	sessions   contract.ISessionRepository
	extractor  *extraction.Service
	optimizer  *optimizer.Optimizer
	generators *generator.Registry
	relay      *relay.Relay
	events     *events.PipelinePublisher
	metrics    *metrics.Collector
	logger     logger.ILogger
	tracer     trace.Tracer
}

func NewPipelineService(
	sessions contract.ISessionRepository,
	extractor *extraction.Service,
	optimizer *optimizer.Optimizer,
	generators *generator.Registry,
	relay *relay.Relay,
	events *events.PipelinePublisher,
	metrics *metrics.Collector,
	logger logger.ILogger,
) IPipelineService {
	return &pipelineService{
		sessions:   sessions,
		extractor:  extractor,
		optimizer:  optimizer,
		generators: generators,
		relay:      relay,
		events:     events,
		metrics:    metrics,
		logger:     logger,
		tracer:     tracer.Tracer("pipeline"),
	}
}

func (s *pipelineService) CreateSession(ctx context.Context) (*dto.CreateSessionResponse, error) {
	session := s.sessions.Create()
	s.logger.Info(pipelineModule, "Session created", map[string]interface{}{"session_id": session.ID})
	s.events.PublishSessionCreated(ctx, session.ID)
	return &dto.CreateSessionResponse{SessionId: session.ID}, nil
}

func (s *pipelineService) GetSession(ctx context.Context, sessionId string) (*store.Session, error) {
	session, err := s.sessions.Get(sessionId)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *pipelineService) ListSessions(ctx context.Context) ([]dto.SessionSummaryResponse, error) {
	sessions := s.sessions.List()
	res := make([]dto.SessionSummaryResponse, 0, len(sessions))
	for _, session := range sessions {
		res = append(res, dto.SessionSummaryResponse{
			Id:          session.ID,
			SourceCount: len(session.Sources),
			OutputCount: len(session.Outputs),
			CreatedAt:   session.CreatedAt,
		})
	}
	return res, nil
}

func (s *pipelineService) AddSources(ctx context.Context, sessionId string, files []extraction.File, links []extraction.Link) (*dto.AddSourcesResponse, error) {
	ctx, span := s.tracer.Start(ctx, "pipeline.AddSources", trace.WithAttributes(
		attribute.String("session.id", sessionId),
		attribute.Int("files", len(files)),
		attribute.Int("links", len(links)),
	))
	defer span.End()

	// Unknown sessions fail before any extraction work
	if _, err := s.sessions.Get(sessionId); err != nil {
		return nil, recordSpanError(span, err)
	}
	if len(files) == 0 && len(links) == 0 {
		return nil, recordSpanError(span, apperror.Validation("no files or links to add"))
	}

	fromFiles, err := s.extractor.FromFiles(ctx, files)
	if err != nil {
		return nil, recordSpanError(span, err)
	}
	fromLinks, err := extraction.FromLinks(links)
	if err != nil {
		return nil, recordSpanError(span, err)
	}

	added, err := s.sessions.AddSources(sessionId, append(fromFiles, fromLinks...))
	if err != nil {
		return nil, recordSpanError(span, err)
	}

	ids := make([]string, len(added))
	for i, src := range added {
		ids[i] = src.ID
	}
	s.logger.Info(pipelineModule, "Sources added", map[string]interface{}{
		"session_id": sessionId,
		"added":      len(added),
		"skipped":    len(files) - len(fromFiles),
	})
	if len(added) > 0 {
		s.events.PublishSourcesAdded(ctx, sessionId, ids)
	}
	return &dto.AddSourcesResponse{Sources: added}, nil
}

func (s *pipelineService) OptimizeSource(ctx context.Context, sessionId, sourceId string, forceReoptimize bool) (*dto.OptimizeSourceResponse, error) {
	ctx, span := s.tracer.Start(ctx, "pipeline.OptimizeSource", trace.WithAttributes(
		attribute.String("session.id", sessionId),
		attribute.String("source.id", sourceId),
		attribute.Bool("force", forceReoptimize),
	))
	defer span.End()

	src, err := s.sessions.GetSource(sessionId, sourceId)
	if err != nil {
		return nil, recordSpanError(span, err)
	}
	if src.Status != store.SourceStatusReady {
		return nil, recordSpanError(span, apperror.Validation("source %s is not ready (status %s)", src.ID, src.Status))
	}
	if src.ExtractedText == "" {
		return nil, recordSpanError(span, apperror.Validation("source %s has no extracted text to optimize", src.ID))
	}

	key := s.optimizer.Fingerprint(src.ExtractedText)
	if !forceReoptimize && src.OptimizationStats != nil && src.OptimizationKey == key {
		span.SetAttributes(attribute.Bool("cached", true))
		return &dto.OptimizeSourceResponse{SourceId: src.ID, Cached: true, Stats: *src.OptimizationStats}, nil
	}

	res, err := s.optimizer.Optimize(ctx, src.ExtractedText, src.Name)
	if err != nil {
		return nil, recordSpanError(span, err)
	}
	s.metrics.RecordOptimizerChunks(res.RuleChunks, res.ModelChunks, res.FallbackChunks)

	stats := res.Stats
	updated, err := s.sessions.UpdateSource(sessionId, sourceId, func(stored *store.Source) error {
		stored.OptimizedText = res.OptimizedText
		stored.OptimizationStats = &stats
		stored.OptimizationKey = key
		return nil
	})
	if err != nil {
		return nil, recordSpanError(span, err)
	}

	s.events.PublishSourceOptimized(ctx, sessionId, sourceId, stats.CompressionRatio, stats.ProcessingCost)
	return &dto.OptimizeSourceResponse{SourceId: updated.ID, Stats: *updated.OptimizationStats}, nil
}

func (s *pipelineService) Generate(ctx context.Context, sessionId string, req *dto.GenerateRequest) (*store.Output, error) {
	settings, err := generator.DecodeSettings(store.OutputKind(req.Kind), req.Settings)
	if err != nil {
		return nil, err
	}
	return s.GenerateWith(ctx, sessionId, req.SourceId, settings)
}

// GenerateWith runs one generator against a session source and appends the
// result to the session's outputs.
func (s *pipelineService) GenerateWith(ctx context.Context, sessionId, sourceId string, settings generator.Settings) (*store.Output, error) {
	if settings == nil {
		return nil, apperror.Validation("settings are required")
	}
	kind := settings.Kind()
	ctx, span := s.tracer.Start(ctx, "pipeline.Generate", trace.WithAttributes(
		attribute.String("session.id", sessionId),
		attribute.String("source.id", sourceId),
		attribute.String("kind", string(kind)),
	))
	defer span.End()

	src, err := s.sessions.GetSource(sessionId, sourceId)
	if err != nil {
		return nil, recordSpanError(span, err)
	}

	if edit, ok := settings.(*generator.SectionEditSettings); ok {
		if err := s.resolveNotes(sessionId, edit); err != nil {
			return nil, recordSpanError(span, err)
		}
	}

	start := time.Now()
	out, err := s.generators.Generate(ctx, src, settings)
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.RecordGeneration(string(kind), string(apperror.CodeOf(err)), elapsed)
		s.logger.Warn(pipelineModule, "Generation failed", map[string]interface{}{
			"session_id": sessionId,
			"source_id":  sourceId,
			"kind":       string(kind),
			"code":       string(apperror.CodeOf(err)),
			"error":      err.Error(),
		})
		return nil, recordSpanError(span, err)
	}

	status := "success"
	if out.Placeholder {
		status = "placeholder"
	}
	s.metrics.RecordGeneration(string(kind), status, elapsed)

	if err := s.sessions.AppendOutput(sessionId, *out); err != nil {
		return nil, recordSpanError(span, err)
	}
	span.SetAttributes(attribute.String("output.id", out.ID), attribute.Bool("placeholder", out.Placeholder))

	s.logger.Info(pipelineModule, "Output generated", map[string]interface{}{
		"session_id":  sessionId,
		"source_id":   sourceId,
		"output_id":   out.ID,
		"kind":        string(kind),
		"placeholder": out.Placeholder,
		"elapsed_ms":  elapsed.Milliseconds(),
	})
	s.events.PublishOutputGenerated(ctx, sessionId, sourceId, out.ID, string(kind), out.Placeholder)
	return out, nil
}

// resolveNotes loads the notes output a section edit targets.
func (s *pipelineService) resolveNotes(sessionId string, edit *generator.SectionEditSettings) error {
	if edit.OutputID == "" {
		return apperror.Validation("outputId is required for a section edit")
	}
	notes, err := s.sessions.GetOutput(sessionId, edit.OutputID)
	if err != nil {
		return err
	}
	if notes.Type != store.OutputKindNotes || notes.Placeholder {
		return apperror.Validation("output %s is not a notes output", edit.OutputID)
	}
	edit.Notes = notes.Content
	return nil
}

func (s *pipelineService) ChatStream(ctx context.Context, sessionId string, req *dto.ChatStreamRequest) <-chan relay.Event {
	src, err := s.sessions.GetSource(sessionId, req.SourceId)
	if err != nil {
		return s.observeStream(ctx, relay.Failed(err))
	}
	messages, err := s.generators.ChatMessages(src, &generator.ChatSettings{Message: req.Message, History: req.History})
	if err != nil {
		return s.observeStream(ctx, relay.Failed(err))
	}

	s.logger.Info(pipelineModule, "Chat stream started", map[string]interface{}{
		"session_id": sessionId,
		"source_id":  src.ID,
		"history":    len(req.History),
	})
	return s.observeStream(ctx, s.relay.Stream(ctx, messages))
}

// observeStream counts relayed events. Once ctx is done it drains in so the
// relay goroutine can exit.
func (s *pipelineService) observeStream(ctx context.Context, in <-chan relay.Event) <-chan relay.Event {
	out := make(chan relay.Event)
	go func() {
		defer close(out)
		for e := range in {
			s.metrics.RecordStreamEvent(string(e.Type))
			select {
			case out <- e:
			case <-ctx.Done():
				for range in {
				}
				return
			}
		}
	}()
	return out
}

func (s *pipelineService) GradeAnswers(ctx context.Context, sessionId string, req *dto.GradeAnswersRequest) (*generator.GradeReport, error) {
	ctx, span := s.tracer.Start(ctx, "pipeline.GradeAnswers", trace.WithAttributes(
		attribute.String("session.id", sessionId),
		attribute.String("output.id", req.OutputId),
		attribute.Int("answers", len(req.Answers)),
	))
	defer span.End()

	out, err := s.sessions.GetOutput(sessionId, req.OutputId)
	if err != nil {
		return nil, recordSpanError(span, err)
	}
	if out.Type != store.OutputKindQuiz || out.Placeholder {
		return nil, recordSpanError(span, apperror.Validation("output %s is not a quiz", req.OutputId))
	}

	var quiz generator.Quiz
	if err := json.Unmarshal([]byte(out.Content), &quiz); err != nil {
		return nil, recordSpanError(span, fmt.Errorf("decode stored quiz %s: %w", out.ID, err))
	}

	start := time.Now()
	report, err := s.generators.Grader().Grade(ctx, quiz, req.Answers)
	if err != nil {
		s.metrics.RecordGeneration("grading", string(apperror.CodeOf(err)), time.Since(start))
		return nil, recordSpanError(span, err)
	}
	s.metrics.RecordGeneration("grading", "success", time.Since(start))
	span.SetAttributes(attribute.Float64("score", report.Score))
	return report, nil
}

func recordSpanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, apperror.MessageOf(err))
	return err
}
