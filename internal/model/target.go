package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// CompanyTarget identifies the company a pipeline run researches.
// It is immutable input: the orchestrator never mutates it.
type CompanyTarget struct {
	Name     string   `json:"name"`
	Domain   string   `json:"domain,omitempty"`
	Industry string   `json:"industry,omitempty"`
	Aliases  []string `json:"aliases,omitempty"`
}

// Validate checks that the target carries enough identity to research.
func (t CompanyTarget) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return eris.New("model: company target requires a name")
	}
	return nil
}

// SearchTerms returns the name plus aliases, deduplicated, for matching
// fetched content against the company.
func (t CompanyTarget) SearchTerms() []string {
	seen := map[string]bool{}
	terms := make([]string, 0, len(t.Aliases)+1)
	for _, term := range append([]string{t.Name}, t.Aliases...) {
		term = strings.TrimSpace(term)
		key := strings.ToLower(term)
		if term == "" || seen[key] {
			continue
		}
		seen[key] = true
		terms = append(terms, term)
	}
	return terms
}
