package governance

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// FieldTypeError reports a populated field that is not text.
type FieldTypeError struct {
	Field string
	Value any
}

func (e *FieldTypeError) Error() string {
	return fmt.Sprintf("field %q: expected string, got %T", e.Field, e.Value)
}

// Fields is the flat view of a record after envelope unwrapping.
type Fields struct {
	// Working holds the fields that are passed through to the output.
	Working    map[string]any
	RawName    string
	RawText    string
	SearchText string
}

// Extract unwraps the optional "body" envelope and pulls out the company name
// and the free-text blob used for risk scanning. Missing fields fall back to
// defaults; only populated non-text values are reported as errors.
func Extract(rec Record) (Fields, error) {
	working := unwrap(rec)

	name, err := firstNonEmpty(UnknownEntity, field(working, "company_name"), field(working, "company"))
	if err != nil {
		return Fields{}, err
	}
	text, err := firstNonEmpty("", field(working, "news_summary"), field(working, "description"))
	if err != nil {
		return Fields{}, err
	}

	return Fields{
		Working:    working,
		RawName:    name,
		RawText:    text,
		SearchText: lowerText(text),
	}, nil
}

// unwrap returns the "body" object when one is populated. A populated body
// that is not an object has no fields to offer, so the working object is empty.
func unwrap(rec Record) map[string]any {
	body, ok := rec["body"]
	if !ok || isEmpty(body) {
		return rec
	}
	switch b := body.(type) {
	case map[string]any:
		return b
	case Record:
		return b
	default:
		return map[string]any{}
	}
}

// lowerText lowercases text for term scanning. U+0130 keeps its combining
// dot, so "İ" does not fold to a plain "i".
func lowerText(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "\u0130", "i\u0307"))
}

type candidate struct {
	name  string
	value any
}

func field(obj map[string]any, name string) candidate {
	return candidate{name: name, value: obj[name]}
}

// firstNonEmpty returns the first populated candidate in order, or fallback
// when none is populated.
func firstNonEmpty(fallback string, candidates ...candidate) (string, error) {
	for _, c := range candidates {
		if isEmpty(c.value) {
			continue
		}
		s, ok := c.value.(string)
		if !ok {
			return "", &FieldTypeError{Field: c.name, Value: c.value}
		}
		return s, nil
	}
	return fallback, nil
}

// isEmpty treats absent, blank, false and zero values as not populated.
func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case json.Number:
		f, err := t.Float64()
		return err == nil && (f == 0 || math.IsNaN(f))
	case float64:
		return t == 0 || math.IsNaN(t)
	case float32:
		return t == 0 || math.IsNaN(float64(t))
	case int:
		return t == 0
	case int64:
		return t == 0
	case int32:
		return t == 0
	case uint:
		return t == 0
	case uint64:
		return t == 0
	}
	return false
}
