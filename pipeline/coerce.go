package pipeline

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/poiesic/intake/core"
)

// Document helpers. Rule documents arrive as decoded JSON, so numbers are
// float64 and lists are []any; these helpers flatten that out.

func docString(doc core.Document, key string) string {
	if v, ok := doc[key].(string); ok {
		return v
	}
	return ""
}

func docBool(doc core.Document, key string, fallback bool) bool {
	if v, ok := doc[key].(bool); ok {
		return v
	}
	return fallback
}

func docFloat(doc core.Document, key string) (float64, bool) {
	return asFloat(doc[key])
}

func docStringSlice(doc core.Document, key string) []string {
	raw, ok := doc[key].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// asFloat converts any numeric value (or numeric string) to float64.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// asInt converts any numeric value (or numeric string) to int64.
func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case float32:
		return int64(n), true
	case string:
		trimmed := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return int64(f), true
		}
		return 0, false
	default:
		return 0, false
	}
}

// asBool converts booleans and common truthy strings/numbers. Anything
// unrecognized is false.
func asBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes", "1", "on":
			return true
		}
		return false
	case float64:
		return b != 0
	case int:
		return b != 0
	default:
		return false
	}
}

// asString renders a scalar value as a string.
func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return fmt.Sprintf("%v", s)
	}
}

// emptyRecord reports whether every field of the record is empty.
func emptyRecord(record core.Document) bool {
	for _, value := range record {
		if !isEmptyValue(value) {
			return false
		}
	}
	return true
}

// isEmptyValue reports whether a field value counts as missing for
// completeness and required-field purposes.
func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}
