package models

import (
	"time"

	"github.com/DeafMist/governance-gate/internal/governance"
)

// GovernedRecord is the canonical document stored in Elasticsearch for every
// record that passed through the governance stage.
type GovernedRecord struct {
	ID             string            `json:"id"`
	SourceTopic    string            `json:"source_topic,omitempty"`
	NormalizedName string            `json:"normalized_name,omitempty"`
	Status         governance.Status `json:"governance_status"`
	Reason         string            `json:"governance_reason"`
	RestrictedTerm string            `json:"restricted_term,omitempty"`
	LogicVersion   string            `json:"logic_version"`
	ProcessedAt    time.Time         `json:"processed_at"`
	Error          bool              `json:"error"`
	Message        string            `json:"message,omitempty"`
	Record         map[string]any    `json:"record"`
}

// NewGovernedRecord flattens an outcome into its stored form. Fail-safe
// outcomes have no meta timestamp, so ingestedAt is used instead.
func NewGovernedRecord(id, topic string, out governance.Outcome, ingestedAt time.Time) GovernedRecord {
	doc := GovernedRecord{
		ID:             id,
		SourceTopic:    topic,
		NormalizedName: out.Meta.NormalizedName,
		Status:         out.Status(),
		Reason:         out.Reason(),
		RestrictedTerm: out.Term,
		LogicVersion:   governance.LogicVersion,
		ProcessedAt:    ingestedAt.UTC(),
		Error:          out.Failed,
		Message:        out.Message,
		Record:         out.Record(),
	}
	if ts, ok := out.ProcessedAt(); ok {
		doc.ProcessedAt = ts
	}
	return doc
}
