package governance_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/governance-gate/internal/governance"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		status governance.Status
		term   string
	}{
		{name: "empty", text: "", status: governance.StatusClean},
		{name: "benign", text: "acme opens a new office in berlin", status: governance.StatusClean},
		{name: "single term", text: "regulators open investigation", status: governance.StatusQuarantine, term: "investigation"},
		{name: "list order wins over text order", text: "layoff announced after company went bankrupt", status: governance.StatusQuarantine, term: "bankrupt"},
		{name: "substring inside word", text: "the firm was sanctioned", status: governance.StatusQuarantine, term: "sanction"},
		{name: "plural", text: "two lawsuits filed", status: governance.StatusQuarantine, term: "lawsuit"},
		{name: "last term", text: "insolvency proceedings", status: governance.StatusQuarantine, term: "insolvency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := governance.Classify(tt.text)
			require.Equal(t, tt.status, got.Status)
			require.Equal(t, tt.term, got.Term)
			if tt.status == governance.StatusClean {
				require.Equal(t, governance.CleanReason, got.Reason)
			} else {
				require.Equal(t, "RISK DETECTED: Found restricted term ["+tt.term+"] in news summary.", got.Reason)
			}
		})
	}
}

func TestRulesReturnsCopy(t *testing.T) {
	rules := governance.Rules()
	require.Equal(t, governance.LogicVersion, rules.LogicVersion)
	require.Equal(t, "bankrupt", rules.RestrictedTerms[0])
	require.Len(t, rules.RestrictedTerms, 8)
	require.Len(t, rules.LegalSuffixes, 9)

	rules.RestrictedTerms[0] = "mutated"
	require.Equal(t, "bankrupt", governance.Rules().RestrictedTerms[0])
}
