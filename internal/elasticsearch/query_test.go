package elasticsearch

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/governance-gate/internal/models"
)

func TestBuildSearchBodyMatchAll(t *testing.T) {
	body := buildSearchBody(SearchParams{})

	require.Equal(t, 20, body["size"])
	require.Equal(t, 0, body["from"])
	query := body["query"].(map[string]any)["bool"].(map[string]any)
	require.Equal(t, []map[string]any{{"match_all": map[string]any{}}}, query["must"])
	require.Equal(t, []map[string]any{{"processed_at": map[string]any{"order": "desc"}}}, body["sort"])
}

func TestBuildSearchBodyFilters(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	body := buildSearchBody(SearchParams{
		Query:        "acme",
		Status:       "quarantine",
		Term:         "FRAUD",
		LogicVersion: "v1.2.0",
		ErrorsOnly:   true,
		Start:        &start,
		Size:         500,
		From:         -3,
		Sort:         "normalized_name:asc",
	})

	require.Equal(t, 200, body["size"])
	require.Equal(t, 0, body["from"])

	query := body["query"].(map[string]any)["bool"].(map[string]any)
	require.Equal(t, []map[string]any{{"match": map[string]any{"normalized_name": "acme"}}}, query["must"])
	require.Equal(t, []map[string]any{
		{"term": map[string]any{"governance_status": "QUARANTINE"}},
		{"term": map[string]any{"restricted_term": "fraud"}},
		{"term": map[string]any{"logic_version": "v1.2.0"}},
		{"term": map[string]any{"error": true}},
		{"range": map[string]any{"processed_at": map[string]any{"gte": "2026-01-01T00:00:00Z"}}},
	}, query["filter"])
	require.Equal(t, []map[string]any{{"normalized_name.keyword": map[string]any{"order": "asc"}}}, body["sort"])
}

func TestParseSort(t *testing.T) {
	tests := []struct {
		raw   string
		field string
		order string
	}{
		{raw: "", field: "processed_at", order: "desc"},
		{raw: "processed_at:asc", field: "processed_at", order: "asc"},
		{raw: "governance_status", field: "governance_status", order: "desc"},
		{raw: "record.secret:asc", field: "processed_at", order: "asc"},
		{raw: "normalized_name:sideways", field: "normalized_name.keyword", order: "desc"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			field, order := parseSort(tt.raw)
			require.Equal(t, tt.field, field)
			require.Equal(t, tt.order, order)
		})
	}
}

func TestIndexMappingCoversRecordFields(t *testing.T) {
	var mapping struct {
		Mappings struct {
			Properties map[string]struct {
				Type    string `json:"type"`
				Enabled *bool  `json:"enabled"`
			} `json:"properties"`
		} `json:"mappings"`
	}
	require.NoError(t, json.Unmarshal([]byte(indexMapping), &mapping))
	props := mapping.Mappings.Properties

	doc, err := json.Marshal(models.GovernedRecord{
		SourceTopic:    "t",
		NormalizedName: "n",
		RestrictedTerm: "fraud",
		Message:        "m",
	})
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(doc, &fields))
	for name := range fields {
		require.Contains(t, props, name)
	}

	for _, name := range []string{"governance_status", "restricted_term", "logic_version"} {
		require.Equal(t, "keyword", props[name].Type, name)
	}
	for _, field := range sortableFields {
		name, _, _ := strings.Cut(field, ".")
		require.Contains(t, props, name)
	}
	require.NotNil(t, props["record"].Enabled)
	require.False(t, *props["record"].Enabled)
}
