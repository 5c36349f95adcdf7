package optimizer

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"study-pipeline-be/internal/pkg/logger"
	"study-pipeline-be/pkg/apperror"
	"study-pipeline-be/pkg/llm"
	"study-pipeline-be/pkg/store"
	"study-pipeline-be/pkg/structured"
	"study-pipeline-be/pkg/utils"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"
)

const (
	module = "optimizer"

	// Inputs shorter than this are returned (filtered) without chunk work
	trivialLength = 50
	ruleSentences = 3
	maxKeyTopics  = 10
)

type Config struct {
	MaxTokensPerChunk int
	CharsPerToken     int
	// Chunks below MinChunkChars or MinAlphaRatio take the rule path
	MinChunkChars int
	MinAlphaRatio float64
	Concurrency   int
	ChunkTimeout  time.Duration
	// Model is used for pricing; the provider decides what actually runs
	Model string
	// Offline disables the model path entirely
	Offline bool
}

func DefaultConfig() Config {
	return Config{
		MaxTokensPerChunk: 2000,
		CharsPerToken:     4,
		MinChunkChars:     400,
		MinAlphaRatio:     0.6,
		Concurrency:       3,
		ChunkTimeout:      30 * time.Second,
		Model:             defaultModelKey,
	}
}

// Result is one optimization run. The path counters feed metrics.
type Result struct {
	OptimizedText  string
	Stats          store.OptimizationStats
	RuleChunks     int
	ModelChunks    int
	FallbackChunks int
	Elapsed        time.Duration
}

type Optimizer struct {
	provider llm.LLMProvider
	cfg      Config
	prices   PriceTable
	logger   logger.ILogger
}

// New builds an optimizer. provider may be nil, which implies the rule path only.
func New(provider llm.LLMProvider, cfg Config, prices PriceTable, log logger.ILogger) *Optimizer {
	def := DefaultConfig()
	if cfg.MaxTokensPerChunk <= 0 {
		cfg.MaxTokensPerChunk = def.MaxTokensPerChunk
	}
	if cfg.CharsPerToken <= 0 {
		cfg.CharsPerToken = def.CharsPerToken
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.ChunkTimeout <= 0 {
		cfg.ChunkTimeout = def.ChunkTimeout
	}
	return &Optimizer{provider: provider, cfg: cfg, prices: prices, logger: log}
}

// Fingerprint identifies text under this optimizer's configuration. Equal
// fingerprints mean a cached result may be reused.
func (o *Optimizer) Fingerprint(text string) string {
	h := blake3.New()
	fmt.Fprintf(h, "%d|%d|%d|%.3f|%s|%t\x00", o.cfg.MaxTokensPerChunk, o.cfg.CharsPerToken,
		o.cfg.MinChunkChars, o.cfg.MinAlphaRatio, o.cfg.Model, o.cfg.Offline)
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

type chunkResult struct {
	text     string
	topics   []string
	cost     float64
	path     string
	fallback bool
}

// Optimize compresses rawText. A failed model call degrades that chunk to the
// rule path; only cancellation of ctx aborts the whole run.
func (o *Optimizer) Optimize(ctx context.Context, rawText, sourceName string) (*Result, error) {
	start := time.Now()
	if strings.TrimSpace(rawText) == "" {
		return nil, apperror.Validation("source %q has no text to optimize", sourceName)
	}
	originalLength := utf8.RuneCountInString(rawText)

	cleaned := FilterLowValueLines(rawText)
	if cleaned == "" {
		cleaned = strings.Join(strings.Fields(rawText), " ")
	}

	var chunks []string
	if originalLength < trivialLength {
		chunks = []string{cleaned}
	} else {
		chunks = utils.SplitText(cleaned, o.cfg.MaxTokensPerChunk*o.cfg.CharsPerToken, 0)
	}

	results := make([]chunkResult, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if originalLength < trivialLength {
				results[i] = chunkResult{text: chunk, topics: KeyTerms(chunk, 5), path: "rule"}
				return nil
			}
			results[i] = o.reduce(gctx, chunk, sourceName)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{}
	parts := make([]string, 0, len(results))
	var topics []string
	seen := make(map[string]bool)
	for _, r := range results {
		if r.text != "" {
			parts = append(parts, r.text)
		}
		res.Stats.ProcessingCost += r.cost
		switch {
		case r.fallback:
			res.FallbackChunks++
		case r.path == "model":
			res.ModelChunks++
		default:
			res.RuleChunks++
		}
		for _, t := range r.topics {
			key := strings.ToLower(strings.TrimSpace(t))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			topics = append(topics, strings.TrimSpace(t))
		}
	}
	if len(topics) > maxKeyTopics {
		topics = topics[:maxKeyTopics]
	}
	if topics == nil {
		topics = []string{}
	}

	optimized := strings.Join(parts, "\n\n")
	if utf8.RuneCountInString(optimized) > originalLength {
		optimized = utils.TruncateRunes(optimized, originalLength)
	}
	optimizedLength := utf8.RuneCountInString(optimized)

	res.OptimizedText = optimized
	res.Stats.OriginalLength = originalLength
	res.Stats.OptimizedLength = optimizedLength
	res.Stats.CompressionRatio = clamp01(float64(optimizedLength) / float64(originalLength))
	res.Stats.ChunkCount = len(chunks)
	res.Stats.KeyTopics = topics
	res.Elapsed = time.Since(start)

	o.logger.Info(module, "Source optimized", map[string]interface{}{
		"source":          sourceName,
		"original_length": originalLength,
		"optimized_len":   optimizedLength,
		"chunks":          len(chunks),
		"model_chunks":    res.ModelChunks,
		"fallback_chunks": res.FallbackChunks,
		"elapsed_ms":      res.Elapsed.Milliseconds(),
	})
	return res, nil
}

func (o *Optimizer) reduce(ctx context.Context, chunk, sourceName string) chunkResult {
	chunkLen := utf8.RuneCountInString(chunk)
	if o.cfg.Offline || o.provider == nil || chunkLen < o.cfg.MinChunkChars || AlphaRatio(chunk) < o.cfg.MinAlphaRatio {
		return o.ruleReduce(chunk)
	}

	res, err := o.modelReduce(ctx, chunk, sourceName)
	if err != nil {
		if ctx.Err() == nil {
			o.logger.Warn(module, "Model reduction failed, using rule path", map[string]interface{}{
				"source": sourceName,
				"error":  err.Error(),
			})
		}
		fallback := o.ruleReduce(chunk)
		fallback.fallback = true
		return fallback
	}
	return res
}

// ruleReduce keeps the leading sentences of a chunk, capped at half its length.
func (o *Optimizer) ruleReduce(chunk string) chunkResult {
	sentences := Sentences(chunk)
	if len(sentences) > ruleSentences {
		sentences = sentences[:ruleSentences]
	}
	text := strings.Join(sentences, " ")
	limit := utf8.RuneCountInString(chunk) / 2
	if limit < 1 {
		limit = 1
	}
	text = utils.TruncateRunes(text, limit)
	return chunkResult{text: text, topics: KeyTerms(chunk, 5), path: "rule"}
}

type modelReduction struct {
	Summary string   `json:"summary"`
	Topics  []string `json:"topics"`
}

const compressInstruction = `You compress study material so it can be sent to another model cheaply.
Rewrite the passage as dense notes that keep every definition, name, number, date and causal link.
Drop repetition, filler, examples that add nothing and formatting noise.
Respond with a JSON object: {"summary": "<compressed text>", "topics": ["<topic>", ...]} with at most 5 short topic labels.`

func (o *Optimizer) modelReduce(ctx context.Context, chunk, sourceName string) (chunkResult, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.ChunkTimeout)
	defer cancel()

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: compressInstruction},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Source: %s\n\nPassage:\n%s", sourceName, chunk)},
	}
	raw, err := o.provider.Chat(ctx, messages, llm.WithJSON(), llm.WithTemperature(0.2))
	if err != nil {
		return chunkResult{}, err
	}
	parsed, _, err := structured.ParseOrRepair[modelReduction](raw)
	if err != nil {
		return chunkResult{}, err
	}
	summary := strings.TrimSpace(parsed.Summary)
	if summary == "" {
		return chunkResult{}, apperror.Schema(nil, "empty summary for chunk")
	}
	if utf8.RuneCountInString(summary) >= utf8.RuneCountInString(chunk) {
		return chunkResult{}, apperror.Schema(nil, "model summary is not shorter than its chunk")
	}

	inputTokens := utils.EstimateTokens(compressInstruction+messages[1].Content, o.cfg.CharsPerToken)
	outputTokens := utils.EstimateTokens(raw, o.cfg.CharsPerToken)
	return chunkResult{
		text:   summary,
		topics: parsed.Topics,
		cost:   o.prices.Cost(o.cfg.Model, inputTokens, outputTokens),
		path:   "model",
	}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
