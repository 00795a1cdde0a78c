// Package policy implements the policy resolver (C5): mapping a risk
// level and tenant policy to either the set of authentication factors an
// authentication attempt must satisfy, or a transaction verdict, plus the
// natural-language reason string built from top signals. Grounded on the
// teacher's original_source engine.py _determine_required_factors and
// _create_assessment_reason.
package policy

import (
	"fmt"
	"strings"

	"github.com/innovabiz/iam-fraud-core/internal/domain"
)

// Resolver turns a RiskLevel into concrete requirements.
type Resolver struct{}

func New() *Resolver {
	return &Resolver{}
}

// RequiredFactors returns the authentication factors the given policy
// demands at this risk level (P1: never fewer than a lower level).
func (r *Resolver) RequiredFactors(level domain.RiskLevel, policy domain.AdaptivePolicy) []domain.AuthFactor {
	return policy.FactorsForLevel(level)
}

// TransactionVerdict maps a risk level to an allow/review/block decision
// for transaction evaluation, using the policy's default security level
// as the pivot: levels at or below it allow, one step above reviews, more
// than one step above blocks.
func (r *Resolver) TransactionVerdict(level domain.RiskLevel, policy domain.AdaptivePolicy) domain.TransactionVerdict {
	distance := int(level) - int(policy.DefaultSecurityLvl)
	switch {
	case distance <= 0:
		return domain.VerdictAllow
	case distance == 1:
		return domain.VerdictReview
	default:
		return domain.VerdictBlock
	}
}

// signalReasonTemplates mirrors the teacher's fixed phrase table in
// _create_assessment_reason, mapping a signal type to a human-readable
// cause the way the original names "geo_velocity" -> "mudança rápida de
// localização geográfica".
var signalReasonTemplates = map[string]string{
	"ip_reputation":      "suspicious IP address reputation",
	"geo_velocity":       "implausible geographic velocity between logins",
	"device_trust":       "unrecognized device",
	"behavioral":         "unusual behavioral pattern",
	"time_pattern":       "unusual access time",
	"new_location":       "unrecognized location",
	"failed_attempts":    "multiple failed authentication attempts",
	"credential_anomaly": "credential anomaly",
	"ar_spatial_gesture": "AR spatial gesture mismatch",
	"ar_gaze_pattern":    "AR gaze pattern mismatch",
	"ar_environment":     "unrecognized AR environment",
	"ar_biometric":       "AR biometric mismatch",
	"rule_engine":        "one or more business rules triggered",
}

// BuildReason constructs the stable reason string from the top (at most
// 3) signals above a relevance threshold, in the teacher's
// one/two/three-clause phrasing.
func BuildReason(level domain.RiskLevel, topSignals []domain.RiskSignal) string {
	var reasons []string
	for _, s := range topSignals {
		if s.Value <= 0.5 {
			continue
		}
		if phrase, ok := signalReasonTemplates[s.Type]; ok {
			reasons = append(reasons, phrase)
		} else {
			reasons = append(reasons, fmt.Sprintf("risk signal: %s", s.Type))
		}
	}

	if len(reasons) == 0 {
		return fmt.Sprintf("risk level %s determined by general analysis.", level.String())
	}

	switch len(reasons) {
	case 1:
		return fmt.Sprintf("risk level %s due to %s.", level.String(), reasons[0])
	case 2:
		return fmt.Sprintf("risk level %s due to %s and %s.", level.String(), reasons[0], reasons[1])
	default:
		return fmt.Sprintf("risk level %s due to %s.", level.String(), strings.Join(reasons[:2], ", ")+" and "+reasons[2])
	}
}
