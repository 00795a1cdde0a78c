package signals

import (
	"context"
	"sort"

	"github.com/innovabiz/iam-fraud-core/internal/domain"
)

// EnvironmentProcessor scores AR environment recognition: the observed
// environment's feature map is flattened to a vector (sorted by key for
// determinism) and matched against the user's enrolled environment
// template.
type EnvironmentProcessor struct {
	matcher TemplateMatcher
}

func NewEnvironmentProcessor(matcher TemplateMatcher) *EnvironmentProcessor {
	return &EnvironmentProcessor{matcher: matcher}
}

func (p *EnvironmentProcessor) Name() string { return "ar_environment" }

func (p *EnvironmentProcessor) Process(ctx context.Context, req Request) ([]domain.RiskSignal, error) {
	if req.AuthContext.ARData == nil || req.AuthContext.ARData.Environment == nil {
		return nil, nil
	}
	features := req.AuthContext.ARData.Environment.Features
	if len(features) == 0 || p.matcher == nil {
		return nil, nil
	}

	vector := flattenSortedByKey(features)
	similarity, ok := p.matcher.Match(req.UserID, "environment", vector)
	if !ok {
		return nil, nil
	}

	confidence := clamp01(similarity)
	riskValue := 1.0 - confidence

	return []domain.RiskSignal{{
		Type:       "ar_environment",
		Value:      riskValue,
		Confidence: confidence,
		Timestamp:  req.Now,
	}}, nil
}

func flattenSortedByKey(m map[string]float64) []float64 {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]float64, len(keys))
	for i, k := range keys {
		out[i] = m[k]
	}
	return out
}
