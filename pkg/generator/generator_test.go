package generator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"study-pipeline-be/internal/pkg/logger"
	"study-pipeline-be/pkg/apperror"
	"study-pipeline-be/pkg/llm"
	"study-pipeline-be/pkg/llm/llmtest"
	"study-pipeline-be/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lorem(n int) string {
	const sentence = "Lorem ipsum dolor sit amet, consectetur adipiscing elit, sed do eiusmod tempor incididunt ut labore. "
	return strings.Repeat(sentence, n/len(sentence)+1)[:n]
}

func readySource(text string) store.Source {
	return store.Source{
		ID:            "src-1",
		Name:          "lecture.txt",
		Type:          store.SourceTypeText,
		Status:        store.SourceStatusReady,
		ExtractedText: text,
	}
}

func newTestRegistry(p llm.LLMProvider) *Registry {
	return NewRegistry(p, DefaultConfig(), logger.NewNopLogger(), nil)
}

func mustSettings(t *testing.T, kind store.OutputKind, raw string) Settings {
	t.Helper()
	s, err := DecodeSettings(kind, []byte(raw))
	require.NoError(t, err)
	return s
}

func TestGenerateRejectsSourceNotReady(t *testing.T) {
	kinds := []store.OutputKind{
		store.OutputKindNotes, store.OutputKindSummary, store.OutputKindFlashcards,
		store.OutputKindQuiz, store.OutputKindTimeline,
	}
	for _, status := range []store.SourceStatus{store.SourceStatusProcessing, store.SourceStatusError} {
		for _, kind := range kinds {
			t.Run(string(status)+"/"+string(kind), func(t *testing.T) {
				fake := llmtest.New()
				src := readySource(lorem(500))
				src.Status = status

				out, err := newTestRegistry(fake).Generate(context.Background(), src, mustSettings(t, kind, ""))
				assert.Nil(t, out)
				assert.True(t, apperror.Is(err, apperror.CodeValidation))
				assert.Zero(t, fake.CallCount())
			})
		}
	}
}

func TestGenerateRejectsMissingText(t *testing.T) {
	fake := llmtest.New()
	_, err := newTestRegistry(fake).Generate(context.Background(), readySource("   "), &SummarySettings{})
	assert.True(t, apperror.Is(err, apperror.CodeValidation))
	assert.Zero(t, fake.CallCount())
}

func TestGeneratePlaceholderForUnsupportedTypes(t *testing.T) {
	for _, typ := range []store.SourceType{store.SourceTypeDocx, store.SourceTypeImage, store.SourceTypeAudio, store.SourceTypeYoutube, store.SourceTypeURL} {
		t.Run(string(typ), func(t *testing.T) {
			fake := llmtest.New()
			src := store.Source{ID: "s", Name: "essay", Type: typ, Status: store.SourceStatusReady}

			out, err := newTestRegistry(fake).Generate(context.Background(), src, &QuizSettings{})
			require.NoError(t, err)
			assert.Zero(t, fake.CallCount())
			assert.Equal(t, store.OutputStatusReady, out.Status)
			assert.True(t, out.Placeholder)
			assert.Equal(t, store.OutputKindQuiz, out.Type)
			assert.Contains(t, out.Content, strings.ToUpper(string(typ)))
			assert.Contains(t, out.Content, "not supported")
			assert.LessOrEqual(t, utf8.RuneCountInString(out.Preview), 103)
		})
	}
}

func TestGenerateSummaryScenario(t *testing.T) {
	summary := "# Overview\n\n" + lorem(400)
	fake := llmtest.New(summary)

	out, err := newTestRegistry(fake).Generate(context.Background(), readySource(lorem(5000)), mustSettings(t, store.OutputKindSummary, `{"length":"short"}`))
	require.NoError(t, err)

	assert.NotEmpty(t, out.Content)
	assert.Equal(t, store.OutputKindSummary, out.Type)
	assert.Equal(t, "src-1", out.SourceID)
	assert.NotEmpty(t, out.ID)
	assert.LessOrEqual(t, utf8.RuneCountInString(out.Preview), 103)
	assert.True(t, strings.HasPrefix(out.Preview, "Overview Lorem ipsum"))
	assert.True(t, strings.HasSuffix(out.Preview, "..."))

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.False(t, calls[0].Options.JSON)
	assert.Contains(t, calls[0].History[1].Content, "one paragraph")
}

func TestGenerateTruncatesLongSource(t *testing.T) {
	text := lorem(20000)
	text = text[:15000] + "MARKER" + text[15006:]
	fake := llmtest.New("# Notes\n\nbody")

	_, err := newTestRegistry(fake).Generate(context.Background(), readySource(text), &NotesSettings{})
	require.NoError(t, err)

	prompt := fake.Calls()[0].History[1].Content
	assert.NotContains(t, prompt, "MARKER")
	assert.Contains(t, prompt, text[11900:12000])
}

func TestGeneratePrefersOptimizedText(t *testing.T) {
	fake := llmtest.New("# Notes\n\nbody")
	src := readySource("raw extracted text")
	src.OptimizedText = "compressed optimized text"

	_, err := newTestRegistry(fake).Generate(context.Background(), src, &NotesSettings{})
	require.NoError(t, err)
	prompt := fake.Calls()[0].History[1].Content
	assert.Contains(t, prompt, "compressed optimized text")
	assert.NotContains(t, prompt, "raw extracted text")
}

func TestGenerateNotes(t *testing.T) {
	notes := "```markdown\n# Cell Biology\n\n## Membranes\n\nLipid bilayer.\n\n## Transport\n\nDiffusion.\n```"
	fake := llmtest.New(notes)

	out, err := newTestRegistry(fake).Generate(context.Background(), readySource(lorem(800)), mustSettings(t, store.OutputKindNotes, `{"style":"outline","focus":"transport"}`))
	require.NoError(t, err)

	assert.Equal(t, "Cell Biology", out.Title)
	assert.True(t, strings.HasPrefix(out.Content, "# Cell Biology"))
	require.NotNil(t, out.Count)
	assert.Equal(t, 3, *out.Count)
	assert.Contains(t, fake.Calls()[0].History[1].Content, "Give extra depth to: transport.")
}

func TestGenerateEmptyNarrativeIsSchemaError(t *testing.T) {
	_, err := newTestRegistry(llmtest.New("   ")).Generate(context.Background(), readySource(lorem(300)), &SummarySettings{})
	assert.True(t, apperror.Is(err, apperror.CodeSchema))
}

func TestGenerateUpstreamFailure(t *testing.T) {
	fake := llmtest.New()
	fake.EnqueueError(errors.New("connection refused"))

	_, err := newTestRegistry(fake).Generate(context.Background(), readySource(lorem(300)), &SummarySettings{})
	assert.True(t, apperror.Is(err, apperror.CodeUpstream))
}

func TestGenerateTimeout(t *testing.T) {
	fake := &llmtest.Provider{
		ChatFunc: func(ctx context.Context, _ []llm.Message, _ llm.Options) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	cfg := DefaultConfig()
	cfg.Timeouts = map[store.OutputKind]time.Duration{store.OutputKindSummary: 20 * time.Millisecond}

	_, err := NewRegistry(fake, cfg, logger.NewNopLogger(), nil).Generate(context.Background(), readySource(lorem(300)), &SummarySettings{})
	assert.True(t, apperror.Is(err, apperror.CodeTimeout))
	assert.Contains(t, apperror.MessageOf(err), "timed out after 20ms")
}

func TestGenerateCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fake := &llmtest.Provider{
		ChatFunc: func(ctx context.Context, _ []llm.Message, _ llm.Options) (string, error) {
			cancel()
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	_, err := newTestRegistry(fake).Generate(ctx, readySource(lorem(300)), &SummarySettings{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerateFlashcards(t *testing.T) {
	response := "Here you go:\n```json\n{\"cards\": [" +
		"{\"front\": \"What is ATP?\", \"back\": \"Energy currency\", \"category\": \"Energy\"}," +
		"{\"id\": 7, \"front\": \"Site of respiration\", \"back\": \"Mitochondria\", \"category\": \"energy\"}," +
		"{\"front\": \"\", \"back\": \"orphan back\"}," +
		"{\"front\": \"Lipid bilayer\", \"back\": \"Membrane structure\", \"category\": \"Membranes\"},]," +
		"\"totalCards\": 12}\n```"
	fake := llmtest.New(response)

	out, err := newTestRegistry(fake).Generate(context.Background(), readySource(lorem(600)), mustSettings(t, store.OutputKindFlashcards, `{"cardCount":10}`))
	require.NoError(t, err)

	var deck FlashcardDeck
	require.NoError(t, json.Unmarshal([]byte(out.Content), &deck))
	require.Len(t, deck.Cards, 3)
	assert.Equal(t, 3, deck.TotalCards)
	require.NotNil(t, out.Count)
	assert.Equal(t, 3, *out.Count)
	assert.Equal(t, []string{"Energy", "Membranes"}, deck.Categories)
	assert.Equal(t, "flashcard-1", deck.Cards[0].ID)
	assert.Equal(t, "7", deck.Cards[1].ID)
	assert.Equal(t, "flashcard-3", deck.Cards[2].ID)
	assert.True(t, fake.Calls()[0].Options.JSON)
	assert.True(t, strings.HasPrefix(out.Preview, "3 cards: What is ATP?"))
}

func TestGenerateFlashcardsRespectsCount(t *testing.T) {
	fake := llmtest.New(`{"cards":[{"front":"a?","back":"a"},{"front":"b?","back":"b"},{"front":"c?","back":"c"}]}`)
	out, err := newTestRegistry(fake).Generate(context.Background(), readySource(lorem(600)), &FlashcardsSettings{CardCount: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, *out.Count)
}

func TestGenerateFlashcardsUnparsable(t *testing.T) {
	_, err := newTestRegistry(llmtest.New("I cannot make flashcards")).Generate(context.Background(), readySource(lorem(600)), &FlashcardsSettings{})
	assert.True(t, apperror.Is(err, apperror.CodeSchema))

	_, err = newTestRegistry(llmtest.New(`{"cards":[]}`)).Generate(context.Background(), readySource(lorem(600)), &FlashcardsSettings{})
	assert.True(t, apperror.Is(err, apperror.CodeSchema))
}

func TestGenerateTimelineAllowsNoEvents(t *testing.T) {
	out, err := newTestRegistry(llmtest.New(`{"events": []}`)).Generate(context.Background(), readySource(lorem(600)), &TimelineSettings{})
	require.NoError(t, err)

	var timeline Timeline
	require.NoError(t, json.Unmarshal([]byte(out.Content), &timeline))
	assert.Empty(t, timeline.Events)
	assert.Equal(t, 0, timeline.TotalEvents)
	require.NotNil(t, out.Count)
	assert.Equal(t, 0, *out.Count)
	assert.Contains(t, out.Content, `"events":[]`)
}

func TestGenerateTimelineCountsActualEvents(t *testing.T) {
	fake := llmtest.New(`{"events":[{"date":1789,"title":"Revolution"},{"date":"1799","title":""},{"date":"1804","title":"Empire","description":"Napoleon crowned"}],"totalEvents":9}`)
	out, err := newTestRegistry(fake).Generate(context.Background(), readySource(lorem(600)), &TimelineSettings{})
	require.NoError(t, err)

	var timeline Timeline
	require.NoError(t, json.Unmarshal([]byte(out.Content), &timeline))
	require.Len(t, timeline.Events, 2)
	assert.Equal(t, 2, timeline.TotalEvents)
	assert.Equal(t, 2, *out.Count)
	assert.Equal(t, "1789", timeline.Events[0].Date)
	assert.Equal(t, "timeline-2", timeline.Events[1].ID)
	assert.Contains(t, fake.Calls()[0].History[0].Content, "Never invent dates")
}

func TestRegistryGenerateRequiresSettings(t *testing.T) {
	_, err := newTestRegistry(llmtest.New()).Generate(context.Background(), readySource("text"), nil)
	assert.True(t, apperror.Is(err, apperror.CodeValidation))
}

func TestGeneratorRejectsMismatchedSettings(t *testing.T) {
	g, err := newTestRegistry(llmtest.New()).Get(store.OutputKindQuiz)
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), readySource("text"), &NotesSettings{})
	assert.True(t, apperror.Is(err, apperror.CodeValidation))
}
