package models_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/governance-gate/internal/governance"
	"github.com/DeafMist/governance-gate/internal/models"
)

func TestNewGovernedRecord(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	engine := governance.NewEngine(governance.WithClock(governance.ClockFunc(func() time.Time { return now })))
	out := engine.Process(governance.Record{"company_name": "Acme Inc", "news_summary": "Fraud alleged"})

	doc := models.NewGovernedRecord("id-1", "gtm_records_raw", out, now.Add(time.Hour))
	require.Equal(t, "id-1", doc.ID)
	require.Equal(t, "gtm_records_raw", doc.SourceTopic)
	require.Equal(t, "Acme", doc.NormalizedName)
	require.Equal(t, governance.StatusQuarantine, doc.Status)
	require.Equal(t, "fraud", doc.RestrictedTerm)
	require.True(t, doc.ProcessedAt.Equal(now))
	require.False(t, doc.Error)
	require.Equal(t, "Acme Inc", doc.Record["company_name"])
}

func TestNewGovernedRecordFailSafe(t *testing.T) {
	ingested := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	doc := models.NewGovernedRecord("id-2", "raw", governance.FailSafe(errors.New("bad payload")), ingested)

	require.True(t, doc.Error)
	require.Equal(t, "bad payload", doc.Message)
	require.Equal(t, governance.StatusQuarantine, doc.Status)
	require.Equal(t, governance.SystemErrorReason, doc.Reason)
	require.Empty(t, doc.NormalizedName)
	require.True(t, doc.ProcessedAt.Equal(ingested))
	require.Equal(t, true, doc.Record["error"])
}
