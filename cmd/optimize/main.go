// Command optimize runs the text optimizer over a local file and prints the
// resulting statistics, for tuning chunk thresholds and the price table.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"study-pipeline-be/internal/config"
	"study-pipeline-be/internal/pkg/logger"
	"study-pipeline-be/pkg/llm"
	"study-pipeline-be/pkg/llm/factory"
	"study-pipeline-be/pkg/llm/resilient"
	"study-pipeline-be/pkg/optimizer"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"
)

func run(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("file")
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	cfg := config.Load()
	optCfg := optimizer.Config{
		MaxTokensPerChunk: cfg.Pipeline.MaxTokensPerChunk,
		CharsPerToken:     cfg.Pipeline.CharsPerToken,
		MinChunkChars:     cfg.Pipeline.MinChunkChars,
		MinAlphaRatio:     cfg.Pipeline.MinAlphaRatio,
		Concurrency:       cfg.Pipeline.OptimizerConcurrency,
		ChunkTimeout:      cfg.Pipeline.OptimizerChunkTimeout,
		Model:             cfg.Ai.LLMModel,
		Offline:           cmd.Bool("offline"),
	}
	if model := cmd.String("model"); model != "" {
		optCfg.Model = model
	}

	prices := optimizer.DefaultPriceTable()
	if tablePath := cmd.String("prices"); tablePath != "" {
		if prices, err = optimizer.LoadPriceTable(tablePath); err != nil {
			return err
		}
	}

	var provider llm.LLMProvider
	if !optCfg.Offline {
		provider, err = factory.NewLLMProvider(cfg.Ai.LLMProvider, optCfg.Model, cfg.Ai.BaseURL, cfg.Ai.APIKey, resilient.DefaultConfig())
		if err != nil {
			return err
		}
	}

	color.Cyan("Optimizing %s (%d chars, model %s, offline=%t)", filepath.Base(path), len([]rune(string(raw))), optCfg.Model, optCfg.Offline)
	res, err := optimizer.New(provider, optCfg, prices, logger.NewNopLogger()).Optimize(ctx, string(raw), filepath.Base(path))
	if err != nil {
		color.Red("Failed: %v", err)
		return err
	}

	s := res.Stats
	color.Green("Done in %s", res.Elapsed.Round(1e6))
	fmt.Printf("  original length:   %d\n", s.OriginalLength)
	fmt.Printf("  optimized length:  %d\n", s.OptimizedLength)
	fmt.Printf("  compression ratio: %.3f\n", s.CompressionRatio)
	fmt.Printf("  estimated cost:    $%.5f\n", s.ProcessingCost)
	fmt.Printf("  chunks:            %d (rule %d, model %d, fallback %d)\n", s.ChunkCount, res.RuleChunks, res.ModelChunks, res.FallbackChunks)
	if len(s.KeyTopics) > 0 {
		fmt.Printf("  key topics:        %s\n", strings.Join(s.KeyTopics, ", "))
	}
	if res.FallbackChunks > 0 {
		color.Yellow("%d chunk(s) fell back to the rule path", res.FallbackChunks)
	}

	if cmd.Bool("print") {
		color.Cyan("\n--- optimized text ---")
		fmt.Println(res.OptimizedText)
	}
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:   "optimize",
		Usage:  "Run the text optimizer over a file and report compression and cost",
		Action: run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Path to a UTF-8 text file",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "model",
				Usage: "Model used for pricing and the model path (defaults to LLM_MODEL)",
			},
			&cli.StringFlag{
				Name:    "prices",
				Usage:   "Path to a YAML price table",
				Sources: cli.EnvVars("PRICE_TABLE_PATH"),
			},
			&cli.BoolFlag{
				Name:  "offline",
				Usage: "Use only the rule-based path, no provider calls",
			},
			&cli.BoolFlag{
				Name:  "print",
				Usage: "Print the optimized text",
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		color.Red("optimize: %v", err)
		os.Exit(1)
	}
}
