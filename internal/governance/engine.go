package governance

import (
	"errors"
	"fmt"
)

// Engine runs extraction, name normalization and risk classification for one
// record at a time. It holds no per-record state and is safe for concurrent use.
type Engine struct {
	clock Clock
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock used for processed_at.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// NewEngine creates an Engine backed by the system clock unless overridden.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{clock: SystemClock}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process governs a single record. It never panics and never returns an
// empty outcome: any failure yields a quarantined fail-safe outcome.
func (e *Engine) Process(rec Record) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = FailSafe(fmt.Errorf("panic: %v", r))
		}
	}()

	res, err := e.evaluate(rec)
	if err != nil {
		return FailSafe(err)
	}
	return res
}

func (e *Engine) evaluate(rec Record) (Outcome, error) {
	fields, err := Extract(rec)
	if err != nil {
		return Outcome{}, fmt.Errorf("extract fields: %w", err)
	}

	name := NormalizeName(fields.RawName)
	class := Classify(fields.SearchText)

	return Outcome{
		Fields: fields.Working,
		Meta: Meta{
			NormalizedName: name,
			Status:         class.Status,
			Reason:         class.Reason,
			LogicVersion:   LogicVersion,
			ProcessedAt:    e.clock.Now().UTC().Format(TimestampLayout),
		},
		Term: class.Term,
	}, nil
}

// FailSafe builds the quarantined record emitted when a record cannot be governed.
// Original fields are intentionally not carried over.
func FailSafe(err error) Outcome {
	if err == nil {
		err = errors.New("unknown failure")
	}
	return Outcome{Failed: true, Message: err.Error()}
}
