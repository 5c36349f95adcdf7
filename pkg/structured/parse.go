// Package structured decodes model output into typed values. Decoding is two
// explicit fallible steps: a strict parse, then one repair attempt that cuts
// the outermost JSON object out of surrounding prose or code fences and
// strips comments and trailing commas.
package structured

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"study-pipeline-be/pkg/apperror"

	"github.com/tidwall/jsonc"
)

var errNoObject = errors.New("no JSON object found")

// Parse strictly decodes raw into T.
func Parse[T any](raw string) (T, error) {
	var v T
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &v); err != nil {
		return v, apperror.Schema(err, "model response is not valid JSON")
	}
	return v, nil
}

// Repair extracts the outermost {...} from raw and decodes it leniently.
func Repair[T any](raw string) (T, error) {
	var v T
	obj, ok := Outermost(raw)
	if !ok {
		return v, apperror.Schema(errNoObject, "model response contains no JSON object")
	}
	cleaned := jsonc.ToJSON([]byte(obj))
	if err := json.Unmarshal(cleaned, &v); err != nil {
		return v, apperror.Schema(err, "model response JSON could not be repaired")
	}
	return v, nil
}

// ParseOrRepair runs Parse, then Repair on failure. repaired reports whether
// the second step was needed.
func ParseOrRepair[T any](raw string) (v T, repaired bool, err error) {
	v, err = Parse[T](raw)
	if err == nil {
		return v, false, nil
	}
	v, err = Repair[T](raw)
	if err != nil {
		return v, true, err
	}
	return v, true, nil
}

// Outermost returns the substring from the first '{' to the last '}'.
func Outermost(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}

// Compact re-encodes v without indentation.
func Compact(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
