package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"study-pipeline-be/pkg/llm"
	"study-pipeline-be/pkg/store"
	"study-pipeline-be/pkg/structured"
)

// looseString accepts a JSON string or number; models are inconsistent about ids.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = looseString(n.String())
	return nil
}

// completeJSON runs a JSON-mode completion and decodes it into T, with one
// repair attempt.
func completeJSON[T any](ctx context.Context, b *base, kind store.OutputKind, system, prompt string) (T, error) {
	var zero T
	raw, err := b.complete(ctx, kind, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: prompt},
	}, true)
	if err != nil {
		return zero, err
	}
	v, repaired, err := structured.ParseOrRepair[T](raw)
	if err != nil {
		b.logger.Warn(module, "Unparsable model response", map[string]interface{}{
			"kind":  string(kind),
			"error": err.Error(),
		})
		return zero, err
	}
	if repaired {
		b.logger.Debug(module, "Model response repaired", map[string]interface{}{"kind": string(kind)})
	}
	return v, nil
}

func nonEmpty(parts ...string) bool {
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return false
		}
	}
	return true
}
