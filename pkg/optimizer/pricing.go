package optimizer

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ModelPrice is USD per million tokens.
type ModelPrice struct {
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

// PriceTable maps model names to prices. Costs derived from it are estimates
// from approximate token counts, not metered billing.
type PriceTable struct {
	Models map[string]ModelPrice `yaml:"models"`
}

const defaultModelKey = "default"

func DefaultPriceTable() PriceTable {
	return PriceTable{Models: map[string]ModelPrice{
		defaultModelKey: {InputPerMillion: 0.15, OutputPerMillion: 0.60},
		"gpt-4o-mini":   {InputPerMillion: 0.15, OutputPerMillion: 0.60},
		"gpt-4o":        {InputPerMillion: 2.50, OutputPerMillion: 10.00},
		"llama3":        {InputPerMillion: 0.05, OutputPerMillion: 0.08},
		"qwen2.5":       {InputPerMillion: 0.05, OutputPerMillion: 0.08},
		"gemma":         {InputPerMillion: 0.03, OutputPerMillion: 0.06},
	}}
}

// LoadPriceTable reads a YAML price table and merges it over the defaults.
// An empty path returns the defaults.
func LoadPriceTable(path string) (PriceTable, error) {
	table := DefaultPriceTable()
	if path == "" {
		return table, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return table, fmt.Errorf("read price table: %w", err)
	}
	var loaded PriceTable
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return table, fmt.Errorf("parse price table: %w", err)
	}
	for name, price := range loaded.Models {
		if price.InputPerMillion < 0 || price.OutputPerMillion < 0 {
			return table, fmt.Errorf("price table: negative price for model %q", name)
		}
		table.Models[name] = price
	}
	return table, nil
}

// Lookup matches the model exactly, then by longest prefix ("llama3:8b" -> "llama3"), then the default entry.
func (t PriceTable) Lookup(model string) ModelPrice {
	if p, ok := t.Models[model]; ok {
		return p
	}
	best, bestLen := ModelPrice{}, -1
	for name, p := range t.Models {
		if name != defaultModelKey && strings.HasPrefix(model, name) && len(name) > bestLen {
			best, bestLen = p, len(name)
		}
	}
	if bestLen >= 0 {
		return best
	}
	return t.Models[defaultModelKey]
}

// Cost estimates the USD cost of one call.
func (t PriceTable) Cost(model string, inputTokens, outputTokens int) float64 {
	p := t.Lookup(model)
	return (float64(inputTokens)*p.InputPerMillion + float64(outputTokens)*p.OutputPerMillion) / 1_000_000
}
