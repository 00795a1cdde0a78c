package regional

import (
	"strings"
	"time"

	"github.com/innovabiz/iam-fraud-core/internal/domain"
)

// LocationAnalysis is the result of AnalyzeLocation.
type LocationAnalysis struct {
	Risk        float64
	IsHighRisk  bool
	IsUrban     bool
	Flags       []string
}

// PhoneValidation is the result of ValidatePhone.
type PhoneValidation struct {
	Valid    bool
	Operator string
	Format   string
}

// TransactionAnalysis is the result of AnalyzeMobileMoneyOrPIX.
type TransactionAnalysis struct {
	Risk           float64
	Flags          []string
	Recommendation domain.TransactionVerdict
}

// DeviceContextAnalysis is the result of AnalyzeDeviceContext.
type DeviceContextAnalysis struct {
	Risk  float64
	Flags []string
}

// PolicyOverlay is what GetRegionalRules contributes to a tenant policy
// at load time (merged, not replacing the tenant's own configuration).
type PolicyOverlay struct {
	MaxFailedAttempts     int
	LockoutPeriod         time.Duration
	MaxConcurrentSessions int
	MaxSessionDuration    time.Duration
	LocationSpeedLimitKmh float64
}

// UserTransactionHistory summarizes what the Analyzer needs from a user's
// recent transaction activity; populated by the transaction consumer
// (C8) from its sliding-window counters.
type UserTransactionHistory struct {
	DailyVolume      float64
	MonthlyVolume    float64
	DailyCount       int
	KnownRecipients  map[string]bool
	RecentCashInAt   *time.Time
	RecentCashInAgent string
}

// UserDeviceHistory summarizes prior device usage for device-context
// analysis.
type UserDeviceHistory struct {
	UsualOS string
}

// Analyzer implements the C6 contract against one compiled RegionTable.
type Analyzer struct {
	ct compiledTable
}

// NewAnalyzer builds an Analyzer over a region table.
func NewAnalyzer(table RegionTable) *Analyzer {
	return &Analyzer{ct: compile(table)}
}

// AnalyzeLocation scores a location's risk using the region's high-risk
// and urban zone sets and a naive rapid-change heuristic against an
// optional previous location, mirroring the teacher's
// analyze_location_risk.
func (a *Analyzer) AnalyzeLocation(loc domain.LocationData, previous *domain.LocationData) LocationAnalysis {
	result := LocationAnalysis{Risk: 0.5}

	city := strings.ToLower(loc.City)
	region := strings.ToLower(loc.Region)

	if loc.CountryCode != "" && loc.CountryCode != a.ct.table.CountryCode {
		result.Risk = 0.7
		result.Flags = append(result.Flags, "access_from_outside_region")
	}

	matched := false
	for zone := range a.ct.highRiskZones {
		if strings.Contains(city, zone) || strings.Contains(region, zone) {
			result.Risk = minf(result.Risk+0.2, 1.0)
			result.Flags = append(result.Flags, "high_risk_zone")
			result.IsHighRisk = true
			matched = true
			break
		}
	}

	if !matched {
		for zone := range a.ct.urbanZones {
			if strings.Contains(city, zone) || strings.Contains(region, zone) {
				result.Risk = maxf(result.Risk-0.1, 0.1)
				result.IsUrban = true
				break
			}
		}
	}

	if previous != nil && isRapidLocationChange(*previous, loc) {
		result.Risk = minf(result.Risk+0.3, 1.0)
		result.Flags = append(result.Flags, "rapid_location_change")
	}

	return result
}

func isRapidLocationChange(prev, current domain.LocationData) bool {
	if prev.City != "" && current.City != "" && prev.City != current.City && prev.Region != current.Region {
		return true
	}
	if prev.CountryCode != current.CountryCode {
		return true
	}
	return false
}

// ValidatePhone checks a phone number against the region's per-operator
// patterns.
func (a *Analyzer) ValidatePhone(phone string) PhoneValidation {
	for operator, re := range a.ct.phoneRegexes {
		if re.MatchString(phone) {
			return PhoneValidation{Valid: true, Operator: operator, Format: re.String()}
		}
	}
	return PhoneValidation{}
}

// AnalyzeMobileMoneyOrPIX applies the region's transaction limits and
// known fraud patterns (cross-operator, rapid cash-in/cash-out, unknown
// high-value recipients), mirroring analyze_mobile_money_behavior.
func (a *Analyzer) AnalyzeMobileMoneyOrPIX(tx domain.TransactionEvent, history UserTransactionHistory, now time.Time) TransactionAnalysis {
	limits := a.ct.table.TransactionLimits
	result := TransactionAnalysis{Risk: 0.3, Recommendation: domain.VerdictAllow}

	if history.DailyVolume+tx.Amount > limits.DailyLimit {
		result.Risk = minf(result.Risk+0.3, 1.0)
		result.Flags = append(result.Flags, "exceeded_daily_limit")
		result.Recommendation = domain.VerdictReview
	}

	if tx.Amount > limits.SingleTransactionLimit {
		result.Risk = minf(result.Risk+0.25, 1.0)
		result.Flags = append(result.Flags, "large_single_transaction")
	}

	if history.DailyCount >= limits.MaxDailyTransactions {
		result.Risk = minf(result.Risk+0.2, 1.0)
		result.Flags = append(result.Flags, "high_transaction_frequency")
	}

	if tx.Channel == "cash_out" && history.RecentCashInAt != nil {
		elapsed := now.Sub(*history.RecentCashInAt)
		if elapsed.Seconds() < float64(limits.CashInCashOutWindowSec) {
			result.Risk = minf(result.Risk+0.4, 1.0)
			result.Flags = append(result.Flags, "rapid_cash_in_cash_out")
			result.Recommendation = domain.VerdictReview
		}
		if tx.Agent != "" && tx.Agent == history.RecentCashInAgent {
			result.Risk = minf(result.Risk+0.35, 1.0)
			result.Flags = append(result.Flags, "same_agent_cash_in_out")
			result.Recommendation = domain.VerdictReview
		}
	}

	if tx.Channel == "transfer" && tx.CounterpartyID != "" &&
		!history.KnownRecipients[tx.CounterpartyID] &&
		tx.Amount > a.ct.table.HighValueThreshold {
		result.Risk = minf(result.Risk+0.3, 1.0)
		result.Flags = append(result.Flags, "high_value_to_unknown_recipient")
	}

	switch {
	case result.Risk >= 0.85:
		result.Recommendation = domain.VerdictBlock
	case result.Risk >= 0.6:
		result.Recommendation = domain.VerdictReview
	}

	return result
}

// AnalyzeDeviceContext penalizes devices on untrusted carriers or an
// unexpected OS switch, mirroring analyze_device_context.
func (a *Analyzer) AnalyzeDeviceContext(device domain.DeviceFingerprint, history UserDeviceHistory) DeviceContextAnalysis {
	result := DeviceContextAnalysis{Risk: 0.3}

	os := strings.ToLower(device.OS)
	if strings.Contains(os, "ios") && strings.EqualFold(history.UsualOS, "android") {
		result.Risk = minf(result.Risk+0.2, 1.0)
		result.Flags = append(result.Flags, "os_platform_change")
	}

	network := strings.ToLower(device.UserAgent) // carrier-bearing field at this layer
	trustedFound := false
	for carrier := range a.ct.trustedCarriers {
		if strings.Contains(network, carrier) {
			trustedFound = true
			break
		}
	}
	if !trustedFound && network != "" {
		result.Risk = minf(result.Risk+0.15, 1.0)
		result.Flags = append(result.Flags, "unknown_network")
	}

	return result
}

// GetRegionalRules returns the policy overlay merged into tenant policy
// at load time.
func (a *Analyzer) GetRegionalRules() PolicyOverlay {
	return PolicyOverlay{
		MaxFailedAttempts:     4,
		LockoutPeriod:         20 * time.Minute,
		MaxConcurrentSessions: 2,
		MaxSessionDuration:    8 * time.Hour,
		LocationSpeedLimitKmh: a.ct.table.MaxSpeedKmh,
	}
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
