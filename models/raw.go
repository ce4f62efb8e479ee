package models

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// RawRecord holds one odds object exactly as the feed sent it. Numbers are
// kept as json.Number so exported values match the payload text.
type RawRecord map[string]any

// Clone returns a deep copy of the record. Nested objects and arrays are
// copied too.
func (r RawRecord) Clone() RawRecord {
	if r == nil {
		return nil
	}
	out := make(RawRecord, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = cloneValue(inner)
		}
		return out
	case RawRecord:
		return val.Clone()
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = cloneValue(inner)
		}
		return out
	default:
		return v
	}
}

// String returns the value under key rendered as text. Numbers keep their
// original representation; nested values are re-encoded as JSON.
func (r RawRecord) String(key string) (string, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return "", false
	}
	return stringify(v), true
}

// Number returns the numeric value under key.
func (r RawRecord) Number(key string) (float64, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Int returns the value under key rounded to the nearest integer.
func (r RawRecord) Int(key string) (int, bool) {
	if v, ok := r[key].(json.Number); ok {
		if i, err := v.Int64(); err == nil {
			return int(i), true
		}
	}
	f, ok := r.Number(key)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(math.Round(f)), true
}

// Bool returns the boolean value under key. "true"/"false" strings are accepted.
func (r RawRecord) Bool(key string) bool {
	switch b := r[key].(type) {
	case bool:
		return b
	case string:
		parsed, _ := strconv.ParseBool(b)
		return parsed
	default:
		return false
	}
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// Stringify renders any raw value the way the delimited export writes it.
func Stringify(v any) string {
	if v == nil {
		return ""
	}
	return stringify(v)
}
