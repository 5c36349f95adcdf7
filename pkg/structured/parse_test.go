package structured

import (
	"testing"

	"study-pipeline-be/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Items []string `json:"items"`
}

func TestParseOrRepair(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		wantItems    []string
		wantRepaired bool
		wantErr      bool
	}{
		{
			name:      "clean json",
			raw:       `{"items":["a","b"]}`,
			wantItems: []string{"a", "b"},
		},
		{
			name:         "fenced with prose",
			raw:          "Sure! Here you go:\n```json\n{\"items\":[\"a\"]}\n```\nHope it helps.",
			wantItems:    []string{"a"},
			wantRepaired: true,
		},
		{
			name:         "trailing comma and comment",
			raw:          "{\n  // generated\n  \"items\": [\"x\", \"y\",],\n}",
			wantItems:    []string{"x", "y"},
			wantRepaired: true,
		},
		{
			name:         "no object at all",
			raw:          "I cannot help with that.",
			wantRepaired: true,
			wantErr:      true,
		},
		{
			name:         "truncated object",
			raw:          `{"items":["a",`,
			wantRepaired: true,
			wantErr:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, repaired, err := ParseOrRepair[payload](tt.raw)
			assert.Equal(t, tt.wantRepaired, repaired)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperror.Is(err, apperror.CodeSchema))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantItems, got.Items)
		})
	}
}

func TestOutermost(t *testing.T) {
	obj, ok := Outermost(`noise {"a":{"b":1}} trailing`)
	require.True(t, ok)
	assert.Equal(t, `{"a":{"b":1}}`, obj)

	_, ok = Outermost("} backwards {")
	assert.False(t, ok)
}

func TestCompactKeepsHTML(t *testing.T) {
	out, err := Compact(map[string]string{"q": "a < b"})
	require.NoError(t, err)
	assert.Equal(t, `{"q":"a < b"}`, out)
}
