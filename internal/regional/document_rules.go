package regional

import "strings"

// DocumentRules is the per-(country, type) validation policy the document
// consumer (C8) applies. Mirrors consumers.DocumentRules; duplicated here
// rather than imported to keep internal/regional free of a dependency on
// internal/consumers (consumers already depends on regional, not the
// reverse).
type DocumentRules struct {
	MinConfidenceScore float64
	RequiredSteps      []string
	MinValidityYears   int
	MaxValidityYears   int
}

// defaultDocumentRules is the original's "default" fallback entry,
// ported from document_validation_consumer.py's _load_rules.
var defaultDocumentRules = DocumentRules{
	MinConfidenceScore: 0.7,
	RequiredSteps:      []string{"format_check", "checksum_validation"},
}

// documentRuleTable ports document_validation_consumer.py's per-country,
// per-type entries verbatim (confidence thresholds, required steps,
// validity-period bounds where specified).
var documentRuleTable = map[string]map[string]DocumentRules{
	"AO": {
		"bi": {MinConfidenceScore: 0.75, RequiredSteps: []string{"format_check", "checksum_validation", "circ_verification"}, MinValidityYears: 5, MaxValidityYears: 10},
	},
	"BR": {
		"cpf":  {MinConfidenceScore: 0.8, RequiredSteps: []string{"format_check", "checksum_validation", "receita_verification"}},
		"cnpj": {MinConfidenceScore: 0.8, RequiredSteps: []string{"format_check", "checksum_validation", "receita_verification"}},
	},
	"MZ": {
		"nuit": {MinConfidenceScore: 0.75, RequiredSteps: []string{"format_check", "checksum_validation"}},
		"bi":   {MinConfidenceScore: 0.75, RequiredSteps: []string{"format_check", "checksum_validation"}, MinValidityYears: 5, MaxValidityYears: 10},
	},
	"PT": {
		"cc":  {MinConfidenceScore: 0.85, RequiredSteps: []string{"format_check", "checksum_validation", "doc_verification"}, MinValidityYears: 5, MaxValidityYears: 10},
		"nif": {MinConfidenceScore: 0.85, RequiredSteps: []string{"format_check", "checksum_validation"}},
	},
}

// StaticDocumentRules implements consumers.DocumentRuleProvider (by
// structural typing — RulesFor(countryCode, documentType) DocumentRules)
// against the compiled-in table above, falling back to
// defaultDocumentRules when a (country, type) pair is not listed.
type StaticDocumentRules struct{}

// NewStaticDocumentRules returns the production DocumentRuleProvider.
func NewStaticDocumentRules() StaticDocumentRules { return StaticDocumentRules{} }

// RulesFor resolves the validation policy for a document's issuing
// country and type, case-insensitively.
func (StaticDocumentRules) RulesFor(countryCode, documentType string) DocumentRules {
	byCountry, ok := documentRuleTable[strings.ToUpper(countryCode)]
	if !ok {
		return defaultDocumentRules
	}
	rules, ok := byCountry[strings.ToLower(documentType)]
	if !ok {
		return defaultDocumentRules
	}
	return rules
}
