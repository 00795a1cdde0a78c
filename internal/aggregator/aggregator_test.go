package aggregator_test

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innovabiz/iam-fraud-core/internal/aggregator"
	"github.com/innovabiz/iam-fraud-core/internal/domain"
)

func samplePolicy() domain.AdaptivePolicy {
	return domain.DefaultAdaptivePolicy("tenant-a")
}

func TestAggregator_Aggregate_SemSinaisRetornaRiscoMedio(t *testing.T) {
	agg := aggregator.New()
	score, level, _ := agg.Aggregate(context.Background(), aggregator.Input{
		Policy: samplePolicy(),
	})
	assert.InDelta(t, 0.5, score, 0.01)
	assert.Equal(t, domain.RiskLevelMedium, level)
}

func TestAggregator_Aggregate_NivelAcompanhaLimiares(t *testing.T) {
	agg := aggregator.New()
	policy := samplePolicy()
	policy.Sensitivity = 0.5 // identity transform, isolate threshold behavior

	score, level, _ := agg.Aggregate(context.Background(), aggregator.Input{
		Signals: []domain.RiskSignal{
			{Type: "ip_reputation", Value: 0.95, Confidence: 1.0, Timestamp: time.Now()},
		},
		Policy: policy,
	})

	require.GreaterOrEqual(t, score, policy.RiskThresholds.Critical)
	assert.Equal(t, domain.RiskLevelCritical, level)
}

func TestAggregator_Aggregate_TopKRetornaNoMaximoTres(t *testing.T) {
	agg := aggregator.New()
	_, _, top := agg.Aggregate(context.Background(), aggregator.Input{
		Signals: []domain.RiskSignal{
			{Type: "a", Value: 0.9, Confidence: 1, Timestamp: time.Now()},
			{Type: "b", Value: 0.8, Confidence: 1, Timestamp: time.Now()},
			{Type: "c", Value: 0.7, Confidence: 1, Timestamp: time.Now()},
			{Type: "d", Value: 0.6, Confidence: 1, Timestamp: time.Now()},
		},
		Policy: samplePolicy(),
	})
	require.Len(t, top, 3)
	assert.Equal(t, "a", top[0].Type)
	assert.Equal(t, "b", top[1].Type)
	assert.Equal(t, "c", top[2].Type)
}

// TestProperty_ScoreSempreEmIntervaloUnitario checks P2: the aggregated
// score is always clamped to [0,1] regardless of input signal values.
func TestProperty_ScoreSempreEmIntervaloUnitario(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	policy := samplePolicy()

	properties.Property("score stays within [0,1]", prop.ForAll(
		func(value, confidence, sensitivity float64) bool {
			p := policy
			p.Sensitivity = sensitivity

			agg := aggregator.New()
			score, _, _ := agg.Aggregate(context.Background(), aggregator.Input{
				Signals: []domain.RiskSignal{
					{Type: "ip_reputation", Value: value, Confidence: confidence, Timestamp: time.Now()},
				},
				Policy: p,
			})
			return score >= 0 && score <= 1
		},
		gen.Float64Range(-2, 2),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}

// TestProperty_SensibilidadeIdentidadeEmMeio checks P9: sensitivity 0.5
// is always the identity transform on the pre-sensitivity score.
func TestProperty_SensibilidadeIdentidadeEmMeio(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("sensitivity 0.5 never changes the score", prop.ForAll(
		func(value float64) bool {
			policy := samplePolicy()
			policy.Sensitivity = 0.5

			agg := aggregator.New()
			score, _, _ := agg.Aggregate(context.Background(), aggregator.Input{
				Signals: []domain.RiskSignal{
					{Type: "unweighted_signal_type", Value: value, Confidence: 1.0, Timestamp: time.Now()},
				},
				Policy: policy,
			})
			expected := value
			if expected < 0 {
				expected = 0
			}
			if expected > 1 {
				expected = 1
			}
			return approxEqual(score, expected, 1e-9)
		},
		gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}

func approxEqual(a, b, tolerance float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}
