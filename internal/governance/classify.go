package governance

import (
	"fmt"
	"strings"
)

// Order matters: the first listed term found in the text is the one reported.
var restrictedTerms = []string{
	"bankrupt",
	"fraud",
	"lawsuit",
	"investigation",
	"layoff",
	"scandal",
	"sanction",
	"insolvency",
}

// Classification is the outcome of scanning text for restricted terms.
type Classification struct {
	Status Status
	Reason string
	// Term is the matched restricted term; empty for clean text.
	Term string
}

// Classify scans already lower-cased text for restricted terms in list order.
// Matching is plain substring containment, so "sanctioned" hits "sanction".
func Classify(searchText string) Classification {
	for _, term := range restrictedTerms {
		if strings.Contains(searchText, term) {
			return Classification{
				Status: StatusQuarantine,
				Reason: fmt.Sprintf(quarantineReasonFormat, term),
				Term:   term,
			}
		}
	}
	return Classification{Status: StatusClean, Reason: CleanReason}
}

// Ruleset describes the fixed rules applied by this revision.
type Ruleset struct {
	LogicVersion    string   `json:"logic_version"`
	LegalSuffixes   []string `json:"legal_suffixes"`
	RestrictedTerms []string `json:"restricted_terms"`
}

// Rules returns a copy of the active ruleset.
func Rules() Ruleset {
	return Ruleset{
		LogicVersion:    LogicVersion,
		LegalSuffixes:   append([]string(nil), legalSuffixes...),
		RestrictedTerms: append([]string(nil), restrictedTerms...),
	}
}
