// Package regional implements the country-specific heuristics of the
// regional analyzer (C6) for Angola, Brazil, Mozambique and Portugal.
// A single Analyzer type is parameterized by a RegionTable; no code path
// branches on country code beyond selecting which table to load, per the
// spec's "one loader, many tables" requirement. Grounded on
// original_source's angola/brazil/mozambique_behavioral_patterns.py.
package regional

import (
	"regexp"
)

// TransactionLimits mirrors the teacher's mobile-money / bank-transfer
// limit tables (daily, single-transaction, monthly, max-count).
type TransactionLimits struct {
	DailyLimit             float64
	SingleTransactionLimit float64
	MonthlyLimit           float64
	MaxDailyTransactions   int
	CashInCashOutWindowSec int // rapid cash-in/cash-out fraud window
}

// RegionTable is the data a region contributes to the shared Analyzer.
// Populated at boot from embedded YAML (see LoadEmbedded) so the Go code
// carries no per-country branching.
type RegionTable struct {
	CountryCode       string
	HighRiskZones     []string
	UrbanZones        []string
	TrustedCarriers   []string
	PhonePatterns     map[string]string // operator -> regexp pattern
	TransactionLimits TransactionLimits
	BusinessHourStart int
	BusinessHourEnd   int
	MaxSpeedKmh        float64 // plausible travel speed between two points
	HighValueThreshold float64 // unknown-recipient high-value flag threshold
}

// compiledTable caches parsed regexes so Analyzer methods don't pay
// regexp.Compile cost per call.
type compiledTable struct {
	table         RegionTable
	phoneRegexes  map[string]*regexp.Regexp
	highRiskZones map[string]bool
	urbanZones    map[string]bool
	trustedCarriers map[string]bool
}

func compile(t RegionTable) compiledTable {
	phoneRegexes := make(map[string]*regexp.Regexp, len(t.PhonePatterns))
	for operator, pattern := range t.PhonePatterns {
		phoneRegexes[operator] = regexp.MustCompile(pattern)
	}

	toSet := func(items []string) map[string]bool {
		m := make(map[string]bool, len(items))
		for _, i := range items {
			m[i] = true
		}
		return m
	}

	return compiledTable{
		table:           t,
		phoneRegexes:    phoneRegexes,
		highRiskZones:   toSet(t.HighRiskZones),
		urbanZones:      toSet(t.UrbanZones),
		trustedCarriers: toSet(t.TrustedCarriers),
	}
}
