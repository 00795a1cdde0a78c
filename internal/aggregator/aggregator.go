// Package aggregator implements the risk aggregator (C4): weighted-sum-
// then-normalize scoring over the signals collected from C2/C3, a
// configurable sensitivity remap, and level mapping against the policy's
// thresholds. Grounded on the teacher's original_source engine.py
// _calculate_risk_score / _adjust_for_sensitivity / _determine_risk_level,
// translated from the Python simulation into a typed Go aggregator that
// also accepts the rule engine's score and an optional ML score as extra
// synthetic signals (§4.4).
package aggregator

import (
	"context"
	"sort"
	"time"

	"github.com/innovabiz/iam-fraud-core/internal/domain"
)

// Aggregator turns a slice of signals (plus optional rule-engine and ML
// scores) into a final RiskAssessment risk level and score.
type Aggregator struct{}

func New() *Aggregator {
	return &Aggregator{}
}

// Input bundles everything the aggregator needs for one assessment.
type Input struct {
	Signals     []domain.RiskSignal
	RuleScore   *float64 // 0-1 from the rule engine (§4.3), re-injected as a synthetic "rule_engine" signal
	MLScore     *float64 // 0-1 blended score from an external model, weight 0.4 against 0.6 heuristic per §4.4
	Policy      domain.AdaptivePolicy
}

// Aggregate computes the final score/level for one request.
func (a *Aggregator) Aggregate(ctx context.Context, in Input) (score float64, level domain.RiskLevel, topSignals []domain.RiskSignal) {
	signals := in.Signals
	if in.RuleScore != nil {
		signals = append(signals, domain.RiskSignal{
			Type:       "rule_engine",
			Value:      *in.RuleScore, // already 0-1 per rules.Result.RiskScore (§4.3)
			Confidence: 1.0,
			Timestamp:  time.Now(),
		})
	}

	heuristicScore := weightedScore(signals, in.Policy.SignalWeights)

	final := heuristicScore
	if in.MLScore != nil {
		final = 0.6*heuristicScore + 0.4*(*in.MLScore)
	}

	// With no signals and no ML score the 0.5 no-evidence default is kept
	// as is (MEDIUM) rather than remapped by sensitivity.
	noEvidence := len(signals) == 0 && in.MLScore == nil
	if in.Policy.Sensitivity != 0.5 && !noEvidence {
		final = adjustForSensitivity(final, in.Policy.Sensitivity)
	}

	final = clamp01(final)
	level = levelForScore(final, in.Policy.RiskThresholds)
	topSignals = topKByValue(signals, 3)

	return final, level, topSignals
}

func weightedScore(signals []domain.RiskSignal, weights map[string]float64) float64 {
	if len(signals) == 0 {
		return 0.5 // medium risk in the absence of evidence, per the teacher's default
	}

	var weightedSum, totalWeight float64
	for _, s := range signals {
		weight, ok := weights[s.Type]
		if !ok {
			weight = 0.1 // teacher's default weight for an unrecognized signal type
		}
		adjustedWeight := weight * s.Confidence
		weightedSum += s.Value * adjustedWeight
		totalWeight += adjustedWeight
	}

	if totalWeight == 0 {
		return 0.5
	}
	return weightedSum / totalWeight
}

// adjustForSensitivity remaps a score according to policy sensitivity
// (§4.4, P3/P9). sensitivity > 0.5 is conservative (amplifies risk
// toward the top), sensitivity < 0.5 is permissive (dampens risk toward
// the bottom); 0.5 is the identity transform.
func adjustForSensitivity(score, sensitivity float64) float64 {
	switch {
	case sensitivity > 0.5:
		factor := 2 * (sensitivity - 0.5)
		return score + (1-score)*factor*score
	case sensitivity < 0.5:
		factor := 2 * (0.5 - sensitivity)
		return score - score*factor*(1-score)
	default:
		return score
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// levelForScore maps a normalized score to a RiskLevel using the policy's
// thresholds. Ties go to the higher level (P2): >= threshold, not >.
func levelForScore(score float64, thresholds domain.RiskThresholds) domain.RiskLevel {
	switch {
	case score >= thresholds.Critical:
		return domain.RiskLevelCritical
	case score >= thresholds.High:
		return domain.RiskLevelHigh
	case score >= thresholds.Medium:
		return domain.RiskLevelMedium
	default:
		return domain.RiskLevelLow
	}
}

// topKByValue returns the k highest-value signals, descending, stable on
// ties (insertion order preserved for equal values) so reason strings are
// deterministic (P6-adjacent requirement for reproducible reasons).
func topKByValue(signals []domain.RiskSignal, k int) []domain.RiskSignal {
	sorted := make([]domain.RiskSignal, len(signals))
	copy(sorted, signals)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Value > sorted[j].Value
	})
	if len(sorted) > k {
		sorted = sorted[:k]
	}
	return sorted
}
