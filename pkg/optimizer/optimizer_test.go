package optimizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"study-pipeline-be/internal/pkg/logger"
	"study-pipeline-be/pkg/apperror"
	"study-pipeline-be/pkg/llm"
	"study-pipeline-be/pkg/llm/llmtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prose(n int) string {
	sentence := "Photosynthesis converts light energy into chemical energy inside the chloroplasts of plant cells. "
	var b strings.Builder
	for b.Len() < n {
		b.WriteString(sentence)
	}
	return b.String()[:n]
}

func smallChunkConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxTokensPerChunk = 250 // 1000 chars per chunk
	cfg.Model = "gpt-4o-mini"
	return cfg
}

func TestOptimizeModelPath(t *testing.T) {
	var calls atomic.Int32
	fake := &llmtest.Provider{
		ChatFunc: func(_ context.Context, _ []llm.Message, opts llm.Options) (string, error) {
			n := calls.Add(1)
			assert.True(t, opts.JSON)
			return fmt.Sprintf(`{"summary":"Chunk %d: light becomes chemical energy.","topics":["Photosynthesis","chloroplasts"]}`, n), nil
		},
	}
	o := New(fake, smallChunkConfig(), DefaultPriceTable(), logger.NewNopLogger())

	// 30 whole sentences: three chunks, each long enough for the model path
	res, err := o.Optimize(context.Background(), prose(2940), "biology.txt")
	require.NoError(t, err)

	assert.Equal(t, 2940, res.Stats.OriginalLength)
	assert.Equal(t, 3, res.Stats.ChunkCount)
	assert.Equal(t, res.Stats.ChunkCount, res.ModelChunks)
	assert.Zero(t, res.FallbackChunks)
	assert.LessOrEqual(t, res.Stats.OptimizedLength, res.Stats.OriginalLength)
	assert.GreaterOrEqual(t, res.Stats.CompressionRatio, 0.0)
	assert.LessOrEqual(t, res.Stats.CompressionRatio, 1.0)
	assert.Greater(t, res.Stats.ProcessingCost, 0.0)
	assert.Equal(t, []string{"Photosynthesis", "chloroplasts"}, res.Stats.KeyTopics)
	assert.True(t, strings.HasPrefix(res.OptimizedText, "Chunk "))
}

func TestOptimizeFallsBackPerChunk(t *testing.T) {
	fake := &llmtest.Provider{
		ChatFunc: func(context.Context, []llm.Message, llm.Options) (string, error) {
			return "", errors.New("provider down")
		},
	}
	o := New(fake, smallChunkConfig(), DefaultPriceTable(), logger.NewNopLogger())

	res, err := o.Optimize(context.Background(), prose(2500), "biology.txt")
	require.NoError(t, err)

	assert.Equal(t, res.Stats.ChunkCount, res.FallbackChunks)
	assert.NotEmpty(t, res.OptimizedText)
	assert.Zero(t, res.Stats.ProcessingCost)
	assert.Less(t, res.Stats.CompressionRatio, 1.0)
}

func TestOptimizeRejectsUnshortenedSummary(t *testing.T) {
	text := prose(1200)
	fake := llmtest.New()
	fake.Default = fmt.Sprintf(`{"summary":%q}`, text+text)
	cfg := DefaultConfig()

	res, err := New(fake, cfg, DefaultPriceTable(), logger.NewNopLogger()).Optimize(context.Background(), text, "x")
	require.NoError(t, err)
	assert.Equal(t, 1, res.FallbackChunks)
	assert.LessOrEqual(t, res.Stats.OptimizedLength, res.Stats.OriginalLength)
}

func TestOptimizeLowAlphaChunkSkipsModel(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&b, "x%d=%d.%02d; y%d=%d.%02d; z%d=%d\n", i, i, i, i, i*2, i, i, i*3)
	}
	fake := llmtest.New()

	res, err := New(fake, DefaultConfig(), DefaultPriceTable(), logger.NewNopLogger()).Optimize(context.Background(), b.String(), "table.csv")
	require.NoError(t, err)
	assert.Zero(t, fake.CallCount())
	assert.Equal(t, res.Stats.ChunkCount, res.RuleChunks)
}

func TestOptimizeOfflineNeverCallsProvider(t *testing.T) {
	fake := llmtest.New()
	cfg := smallChunkConfig()
	cfg.Offline = true

	res, err := New(fake, cfg, DefaultPriceTable(), logger.NewNopLogger()).Optimize(context.Background(), prose(5000), "a")
	require.NoError(t, err)
	assert.Zero(t, fake.CallCount())
	assert.Greater(t, res.Stats.ChunkCount, 1)
	assert.NotEmpty(t, res.Stats.KeyTopics)
}

func TestOptimizeNilProviderUsesRules(t *testing.T) {
	res, err := New(nil, DefaultConfig(), DefaultPriceTable(), logger.NewNopLogger()).Optimize(context.Background(), prose(800), "a")
	require.NoError(t, err)
	assert.Equal(t, 1, res.RuleChunks)
	assert.Equal(t, 1, res.Stats.ChunkCount)
}

func TestOptimizeTrivialInput(t *testing.T) {
	res, err := New(llmtest.New(), DefaultConfig(), DefaultPriceTable(), logger.NewNopLogger()).Optimize(context.Background(), "Short note about cells.", "a")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.ChunkCount)
	assert.Equal(t, "Short note about cells.", res.OptimizedText)
	assert.Equal(t, 1.0, res.Stats.CompressionRatio)
}

func TestOptimizeEmptyIsValidationError(t *testing.T) {
	_, err := New(nil, DefaultConfig(), DefaultPriceTable(), logger.NewNopLogger()).Optimize(context.Background(), "  \n ", "a")
	assert.True(t, apperror.Is(err, apperror.CodeValidation))
}

func TestOptimizeStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fake := &llmtest.Provider{
		ChatFunc: func(context.Context, []llm.Message, llm.Options) (string, error) {
			cancel()
			return "", context.Canceled
		},
	}
	cfg := smallChunkConfig()
	cfg.Concurrency = 1

	_, err := New(fake, cfg, DefaultPriceTable(), logger.NewNopLogger()).Optimize(ctx, prose(6000), "a")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, fake.CallCount(), 6)
}

func TestFingerprint(t *testing.T) {
	a := New(nil, DefaultConfig(), DefaultPriceTable(), logger.NewNopLogger())
	offline := DefaultConfig()
	offline.Offline = true
	b := New(nil, offline, DefaultPriceTable(), logger.NewNopLogger())

	assert.Equal(t, a.Fingerprint("text"), a.Fingerprint("text"))
	assert.NotEqual(t, a.Fingerprint("text"), a.Fingerprint("text2"))
	assert.NotEqual(t, a.Fingerprint("text"), b.Fingerprint("text"))
	assert.Len(t, a.Fingerprint("text"), 64)
}
