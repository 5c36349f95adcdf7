// Package generator turns a ready Source into study artifacts by prompting a
// completion provider and validating what comes back.
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"study-pipeline-be/internal/pkg/logger"
	"study-pipeline-be/pkg/apperror"
	"study-pipeline-be/pkg/llm"
	"study-pipeline-be/pkg/store"
	"study-pipeline-be/pkg/utils"

	"github.com/google/uuid"
)

const module = "generator"

// Generator produces one kind of Output from one Source.
type Generator interface {
	Kind() store.OutputKind
	Generate(ctx context.Context, src store.Source, settings Settings) (*store.Output, error)
}

type Config struct {
	// MaxSourceChars is the provider-safe budget; longer text is truncated
	MaxSourceChars int
	Temperature    float64
	Timeouts       map[store.OutputKind]time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxSourceChars: 12000,
		Temperature:    0.4,
		Timeouts: map[store.OutputKind]time.Duration{
			store.OutputKindNotes:       180 * time.Second,
			store.OutputKindSummary:     90 * time.Second,
			store.OutputKindFlashcards:  120 * time.Second,
			store.OutputKindQuiz:        120 * time.Second,
			store.OutputKindTimeline:    90 * time.Second,
			store.OutputKindChat:        60 * time.Second,
			store.OutputKindSectionEdit: 60 * time.Second,
		},
	}
}

func (c Config) timeout(kind store.OutputKind) time.Duration {
	if d, ok := c.Timeouts[kind]; ok && d > 0 {
		return d
	}
	return 120 * time.Second
}

// base holds what every kind shares: source checks, the provider call and
// output construction.
type base struct {
	provider llm.LLMProvider
	cfg      Config
	logger   logger.ILogger
	trace    logger.ILogger
}

// sourceText enforces readiness and returns the text to prompt with. A non-nil
// placeholder means the source type cannot be generated from yet.
func (b *base) sourceText(kind store.OutputKind, src store.Source) (string, *store.Output, error) {
	if src.Status != store.SourceStatusReady {
		return "", nil, apperror.Validation("source %s is not ready (status %s)", src.ID, src.Status)
	}
	if !src.Type.HasExtractionBackend() {
		return "", Placeholder(kind, src), nil
	}
	text := strings.TrimSpace(src.Text())
	if text == "" {
		return "", nil, apperror.Validation("source %s has no extracted text", src.ID)
	}
	if len([]rune(text)) > b.cfg.MaxSourceChars {
		b.logger.Debug(module, "Source text truncated", map[string]interface{}{
			"source_id": src.ID,
			"limit":     b.cfg.MaxSourceChars,
		})
		text = utils.TruncateRunes(text, b.cfg.MaxSourceChars)
	}
	return text, nil, nil
}

// complete runs one bounded provider call for kind.
func (b *base) complete(ctx context.Context, kind store.OutputKind, messages []llm.Message, jsonMode bool) (string, error) {
	timeout := b.cfg.timeout(kind)
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := []llm.Option{llm.WithTemperature(b.cfg.Temperature)}
	if jsonMode {
		opts = append(opts, llm.WithJSON())
	}

	promptChars := 0
	for _, m := range messages {
		promptChars += len(m.Content)
	}

	start := time.Now()
	raw, err := b.provider.Chat(callCtx, messages, opts...)
	elapsed := time.Since(start)

	details := map[string]interface{}{
		"kind":         string(kind),
		"prompt_chars": promptChars,
		"elapsed_ms":   elapsed.Milliseconds(),
		"json":         jsonMode,
	}
	if err != nil {
		details["error"] = err.Error()
		b.trace.Warn(module, "Completion failed", details)
		return "", b.upstreamError(ctx, err, timeout)
	}
	details["response_chars"] = len(raw)
	b.trace.Info(module, "Completion received", details)
	return raw, nil
}

func (b *base) upstreamError(ctx context.Context, err error, timeout time.Duration) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
		return ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) || apperror.Is(err, apperror.CodeTimeout) {
		return apperror.Timeout(err, "completion provider timed out after %s", timeout)
	}
	if apperror.IsUpstream(err) {
		return err
	}
	return apperror.Upstream(err, "completion provider call failed")
}

func newOutput(kind store.OutputKind, src store.Source, title, content, preview string) *store.Output {
	return &store.Output{
		ID:        uuid.NewString(),
		Type:      kind,
		Title:     title,
		Preview:   preview,
		Status:    store.OutputStatusReady,
		SourceID:  src.ID,
		CreatedAt: time.Now().UTC(),
		Content:   content,
	}
}

func intPtr(n int) *int { return &n }

// Placeholder is the labeled output for source types without an extraction
// backend. It is a successful result, not an error.
func Placeholder(kind store.OutputKind, src store.Source) *store.Output {
	label := strings.ToUpper(string(src.Type))
	content := fmt.Sprintf("# %s sources are not supported yet\n\n"+
		"%s is a %s source. Text extraction for %s is not supported yet, so no %s could be generated from it.\n\n"+
		"Upload a PDF or plain-text version of this material to generate study content.",
		label, src.Name, label, label, kindNoun(kind))
	out := newOutput(kind, src, fmt.Sprintf("%s (%s not supported)", titleFor(kind, src.Name), label), content, "")
	out.Preview = MarkdownPreview(content)
	out.Placeholder = true
	return out
}

func kindNoun(kind store.OutputKind) string {
	switch kind {
	case store.OutputKindSectionEdit:
		return "section edit"
	case store.OutputKindChat:
		return "answer"
	}
	return string(kind)
}

func titleFor(kind store.OutputKind, sourceName string) string {
	switch kind {
	case store.OutputKindNotes:
		return "Notes: " + sourceName
	case store.OutputKindSummary:
		return "Summary: " + sourceName
	case store.OutputKindFlashcards:
		return "Flashcards: " + sourceName
	case store.OutputKindQuiz:
		return "Quiz: " + sourceName
	case store.OutputKindTimeline:
		return "Timeline: " + sourceName
	case store.OutputKindChat:
		return "Chat: " + sourceName
	case store.OutputKindSectionEdit:
		return "Section edit: " + sourceName
	}
	return sourceName
}

// Registry dispatches generation to the generator for the settings' kind.
type Registry struct {
	base       *base
	generators map[store.OutputKind]Generator
}

// NewRegistry builds every generator over one provider. trace receives
// per-call prompt/response metrics and may be the same logger as log.
func NewRegistry(provider llm.LLMProvider, cfg Config, log logger.ILogger, trace logger.ILogger) *Registry {
	def := DefaultConfig()
	if cfg.MaxSourceChars <= 0 {
		cfg.MaxSourceChars = def.MaxSourceChars
	}
	if cfg.Timeouts == nil {
		cfg.Timeouts = def.Timeouts
	}
	if trace == nil {
		trace = log
	}
	b := &base{provider: provider, cfg: cfg, logger: log, trace: trace}
	r := &Registry{base: b, generators: make(map[store.OutputKind]Generator)}
	for _, g := range []Generator{
		&notesGenerator{b},
		&summaryGenerator{b},
		&flashcardsGenerator{b},
		&quizGenerator{b},
		&timelineGenerator{b},
		&chatGenerator{b},
		&sectionEditGenerator{b},
	} {
		r.generators[g.Kind()] = g
	}
	return r
}

func (r *Registry) Get(kind store.OutputKind) (Generator, error) {
	g, ok := r.generators[kind]
	if !ok {
		return nil, apperror.Validation("unknown output kind %q", kind)
	}
	return g, nil
}

// Generate runs the generator matching the settings' kind.
func (r *Registry) Generate(ctx context.Context, src store.Source, settings Settings) (*store.Output, error) {
	if settings == nil {
		return nil, apperror.Validation("settings are required")
	}
	g, err := r.Get(settings.Kind())
	if err != nil {
		return nil, err
	}
	return g.Generate(ctx, src, settings)
}

// Timeout is the bounded wait applied to kind's provider calls.
func (r *Registry) Timeout(kind store.OutputKind) time.Duration {
	return r.base.cfg.timeout(kind)
}

func settingsAs[T Settings](settings Settings) (T, error) {
	var zero T
	if settings == nil {
		return zero, apperror.Validation("settings are required")
	}
	s, ok := settings.(T)
	if !ok {
		return zero, apperror.Validation("settings of kind %s do not match this generator", settings.Kind())
	}
	if err := Validate(s); err != nil {
		return zero, err
	}
	return s, nil
}
