package governance

import (
	"encoding/json"
	"fmt"
	"time"
)

// LogicVersion identifies the ruleset revision stamped on every governed record.
const LogicVersion = "v1.2.0"

// TimestampLayout renders processed_at as ISO-8601 UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

const (
	// UnknownEntity is used when a record carries no company name.
	UnknownEntity = "Unknown Entity"
	// CleanReason explains a record that matched no restricted term.
	CleanReason = "Passed deterministic governance checks"
	// SystemErrorReason explains a fail-safe record.
	SystemErrorReason = "SYSTEM ERROR: Script execution failed. Manual review required."

	quarantineReasonFormat = "RISK DETECTED: Found restricted term [%s] in news summary."
)

// Record is an opaque upstream record. Fields may sit at the top level or under "body".
type Record map[string]any

// Status is the binary governance outcome.
type Status string

const (
	StatusClean      Status = "CLEAN"
	StatusQuarantine Status = "QUARANTINE"
)

// Meta is the "_meta" block attached to every successfully governed record.
type Meta struct {
	NormalizedName string `json:"normalized_name"`
	Status         Status `json:"governance_status"`
	Reason         string `json:"governance_reason"`
	LogicVersion   string `json:"logic_version"`
	ProcessedAt    string `json:"processed_at"`
}

// Outcome is the single result of one Process call: either a governed record
// or a fail-safe record (Failed == true).
type Outcome struct {
	Fields  map[string]any
	Meta    Meta
	Term    string
	Failed  bool
	Message string
}

// Status reports the governance status. Fail-safe outcomes are always quarantined.
func (o Outcome) Status() Status {
	if o.Failed {
		return StatusQuarantine
	}
	return o.Meta.Status
}

// Reason returns the human-readable governance reason.
func (o Outcome) Reason() string {
	if o.Failed {
		return SystemErrorReason
	}
	return o.Meta.Reason
}

// ProcessedAt parses the meta timestamp. Fail-safe outcomes carry none.
func (o Outcome) ProcessedAt() (time.Time, bool) {
	if o.Failed || o.Meta.ProcessedAt == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, o.Meta.ProcessedAt)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// Record returns the flat wire shape. Governed records are the pass-through
// fields plus "_meta"; fail-safe records contain only the error block.
func (o Outcome) Record() map[string]any {
	if o.Failed {
		return map[string]any{
			"error":             true,
			"message":           o.Message,
			"governance_status": StatusQuarantine,
			"governance_reason": SystemErrorReason,
		}
	}

	out := make(map[string]any, len(o.Fields)+1)
	for k, v := range o.Fields {
		out[k] = v
	}
	out["_meta"] = o.Meta
	return out
}

// MarshalJSON encodes the outcome in its flat wire shape. A governed record
// whose pass-through fields cannot be encoded is written as a fail-safe record.
func (o Outcome) MarshalJSON() ([]byte, error) {
	_, data, err := Encode(o)
	return data, err
}

// Encode renders the outcome and returns the outcome that was actually
// encoded. When the pass-through fields cannot be encoded, the result is the
// fail-safe outcome, so callers must route on the returned value.
func Encode(o Outcome) (Outcome, []byte, error) {
	data, err := json.Marshal(o.Record())
	if err == nil || o.Failed {
		return o, data, err
	}
	fs := FailSafe(fmt.Errorf("encode record: %w", err))
	data, err = json.Marshal(fs.Record())
	return fs, data, err
}

// Clock supplies processing timestamps.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)
