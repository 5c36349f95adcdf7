package optimizer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterLowValueLines(t *testing.T) {
	input := "Chapter 3\n" +
		"Cell membranes regulate transport.\n" +
		"Page 12 of 40\n" +
		"42\n" +
		"ok\n" +
		"\n\n\n" +
		"1.2.3 - 4\n" +
		"Diffusion moves molecules down a gradient.\n" +
		"p. 13\n" +
		"SECTION IV\n"

	got := FilterLowValueLines(input)
	assert.Equal(t, "Cell membranes regulate transport.\n\nDiffusion moves molecules down a gradient.", got)
}

func TestAlphaRatio(t *testing.T) {
	assert.Equal(t, 1.0, AlphaRatio("abc def"))
	assert.Equal(t, 0.0, AlphaRatio("123 456"))
	assert.Equal(t, 0.0, AlphaRatio("   "))
	assert.InDelta(t, 0.5, AlphaRatio("ab12"), 0.001)
}

func TestSentences(t *testing.T) {
	got := Sentences("First one. Second?  Third!\nFourth without end")
	assert.Equal(t, []string{"First one.", "Second?", "Third!", "Fourth without end"}, got)
	assert.Nil(t, Sentences("   "))
}

func TestKeyTerms(t *testing.T) {
	text := "Mitochondria produce energy. Mitochondria contain DNA. Energy flows; energy matters. Ribosome once."
	assert.Equal(t, []string{"energy", "mitochondria"}, KeyTerms(text, 5))
	assert.Equal(t, []string{"energy"}, KeyTerms(text, 1))
}

func TestPriceLookup(t *testing.T) {
	table := DefaultPriceTable()

	assert.Equal(t, table.Models["llama3"], table.Lookup("llama3:8b"))
	assert.Equal(t, table.Models["gpt-4o-mini"], table.Lookup("gpt-4o-mini-2024"))
	assert.Equal(t, table.Models["default"], table.Lookup("unknown-model"))
	assert.InDelta(t, 0.75, table.Cost("gpt-4o-mini", 1_000_000, 1_000_000), 1e-9)
}

func TestLoadPriceTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.yaml")
	require.NoError(t, os.WriteFile(path, []byte("models:\n  my-model:\n    input_per_million: 1.5\n    output_per_million: 3\n"), 0o644))

	table, err := LoadPriceTable(path)
	require.NoError(t, err)
	assert.Equal(t, ModelPrice{InputPerMillion: 1.5, OutputPerMillion: 3}, table.Models["my-model"])
	assert.Contains(t, table.Models, "default")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("models:\n  m:\n    input_per_million: -1\n"), 0o644))
	_, err = LoadPriceTable(bad)
	assert.ErrorContains(t, err, "negative price")

	defaults, err := LoadPriceTable("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPriceTable(), defaults)
}
