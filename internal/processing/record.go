package processing

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/DeafMist/governance-gate/internal/governance"
)

// ErrEmptyPayload is returned for blank messages.
var ErrEmptyPayload = errors.New("empty payload")

// DecodeRecord parses a raw upstream payload into a record. JSON objects are
// preferred; anything that is not valid JSON is tried as a YAML mapping.
// Numbers in JSON payloads are kept as json.Number so they pass through untouched.
func DecodeRecord(raw []byte) (governance.Record, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, ErrEmptyPayload
	}

	if json.Valid(trimmed) {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()

		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("decode json record: %w", err)
		}
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("decode json record: expected object, got %T", v)
		}
		return governance.Record(obj), nil
	}

	var v any
	if err := yaml.Unmarshal(trimmed, &v); err != nil {
		return nil, fmt.Errorf("decode yaml record: %w", err)
	}
	v, err := jsonCompatible(v)
	if err != nil {
		return nil, fmt.Errorf("decode yaml record: %w", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decode yaml record: expected mapping, got %T", v)
	}
	return governance.Record(obj), nil
}

// ErrNonFinite is returned for YAML floats (.inf, .nan) that JSON cannot carry.
var ErrNonFinite = errors.New("non-finite number")

// jsonCompatible rewrites decoded YAML so it encodes as JSON: mapping keys
// become strings and non-finite floats are rejected.
func jsonCompatible(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			conv, err := jsonCompatible(item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			t[k] = conv
		}
		return t, nil
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			key := fmt.Sprint(k)
			conv, err := jsonCompatible(item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			out[key] = conv
		}
		return out, nil
	case []any:
		for i, item := range t {
			conv, err := jsonCompatible(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			t[i] = conv
		}
		return t, nil
	case float64:
		if math.IsInf(t, 0) || math.IsNaN(t) {
			return nil, fmt.Errorf("%w: %v", ErrNonFinite, t)
		}
	}
	return v, nil
}

// BuildRecordID hashes the canonical (NFC, trimmed) payload into a stable ID,
// so redelivered messages map to the same document.
func BuildRecordID(raw []byte) string {
	canonical := norm.NFC.String(strings.TrimSpace(string(raw)))
	if canonical == "" {
		return ""
	}
	s := sha1.Sum([]byte(canonical))
	return hex.EncodeToString(s[:])
}

// ParseTimestamp accepts RFC3339 variants and the legacy "2006-01-02 15:04:05"
// layout. It returns the zero time when nothing matches.
func ParseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}

	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
	}

	for _, f := range formats {
		if ts, err := time.Parse(f, raw); err == nil {
			return ts
		}
	}

	return time.Time{}
}
