package tenantconfig

import (
	"github.com/innovabiz/iam-fraud-core/internal/rules"
)

// highRiskCountryCodes seeds IsIn's static set with the S2 scenario's
// example jurisdiction; a live deployment would source this from a
// tenant's own high-risk-country list (domain.AdaptivePolicy.HighRiskCountries)
// rather than a compiled-in constant, but the rule engine's condition tree
// is fixed at compile time (Design Notes §9), so per-tenant overrides of
// which countries count as high-risk belong to the aggregator's
// ip_reputation signal processor, not this rule.
var highRiskCountryCodes = []string{"IR", "KP", "SY", "CU", "SD"}

// BuiltinRules returns the global rule set available to every tenant
// unless a rule's TenantID narrows it. Per Design Notes §9 a rule
// condition is a compiled predicate tree, not a config-file string, so
// these live in Go rather than the tenant registry YAML — which of them
// apply to a tenant/market pair, and what each contributes, is set by each
// rule's own TenantID/Market/RiskContribution below and applied by
// rules.Engine.Run; the registry hands back the whole set. Fields referenced
// below are exactly what BehavioralConsumer.evalContextFor populates:
// the base request fields plus whatever the event producer attached
// under NormalizedEvent.Metadata (the typed union's forward-compatible
// free-form map, per Design Notes §9's "Dynamic dicts" entry).
func BuiltinRules() []rules.Rule {
	return []rules.Rule{
		{
			ID:               "rl-vpn-high-risk-country",
			Name:             "VPN from a high-risk jurisdiction",
			Description:      "request tunnels through a VPN and originates from a jurisdiction on the built-in high-risk list",
			Condition:        rules.And(rules.Compare("is_vpn", rules.OpEq, 1), rules.IsIn("country_code", highRiskCountryCodes)),
			RiskContribution: 0.6,
			Enabled:          true,
		},
		{
			ID:               "rl-tor-exit-node",
			Name:             "Tor exit-node origin",
			Description:      "request originates from a known Tor exit node",
			Condition:        rules.Compare("is_tor", rules.OpEq, 1),
			RiskContribution: 0.5,
			Enabled:          true,
		},
		{
			ID:               "rl-weekend-new-device",
			Name:             "weekend device registration burst",
			Description:      "a device-kind event occurring on a weekend, combined with a reported failed-attempt streak",
			Condition:        rules.And(rules.IsWeekend(), rules.IsIn("event_kind", []string{"device"}), rules.Compare("consecutive_failures", rules.OpGte, 2)),
			RiskContribution: 0.3,
			Enabled:          true,
		},
		{
			ID:               "rl-pix-rapid-fanout",
			Name:             "PIX rapid fan-out",
			Description:      "more PIX transfers to distinct recipients in the last hour than policy allows (S3)",
			Condition:        rules.Compare("pix_transfers_last_hour", rules.OpGt, 15),
			RiskContribution: 0.7,
			Market:           "BR",
			Enabled:          true,
		},
		{
			ID:               "rl-mpesa-cash-in-out",
			Name:             "M-Pesa rapid cash-in/cash-out",
			Description:      "cash-out through the same agent shortly after a cash-in (S4)",
			Condition:        rules.And(rules.Compare("same_agent_cash_in_out", rules.OpEq, 1), rules.Compare("cash_in_out_minutes", rules.OpLt, 10)),
			RiskContribution: 0.4,
			Market:           "MZ",
			Enabled:          true,
		},
		{
			ID:               "rl-off-hours-activity",
			Name:             "activity outside business hours",
			Description:      "non-authentication activity reported outside business hours",
			Condition:        rules.And(rules.Not(rules.IsBusinessHours()), rules.IsIn("event_kind", []string{"user_activity"})),
			RiskContribution: 0.2,
			Enabled:          true,
		},
	}
}
