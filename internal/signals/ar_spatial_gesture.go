package signals

import (
	"context"

	"github.com/innovabiz/iam-fraud-core/internal/domain"
)

// SpatialGestureProcessor scores AR spatial-gesture authentication: a
// high match against the enrolled gesture template means low risk.
type SpatialGestureProcessor struct {
	matcher TemplateMatcher
}

func NewSpatialGestureProcessor(matcher TemplateMatcher) *SpatialGestureProcessor {
	return &SpatialGestureProcessor{matcher: matcher}
}

func (p *SpatialGestureProcessor) Name() string { return "ar_spatial_gesture" }

func (p *SpatialGestureProcessor) Process(ctx context.Context, req Request) ([]domain.RiskSignal, error) {
	if req.AuthContext.ARData == nil || req.AuthContext.ARData.SpatialGesture == nil {
		return nil, nil
	}
	vector := req.AuthContext.ARData.SpatialGesture.Vector
	if len(vector) == 0 || p.matcher == nil {
		return nil, nil
	}

	similarity, ok := p.matcher.Match(req.UserID, "spatial_gesture", vector)
	if !ok {
		return nil, nil
	}

	confidence := clamp01(similarity)
	riskValue := 1.0 - confidence

	return []domain.RiskSignal{{
		Type:       "ar_spatial_gesture",
		Value:      riskValue,
		Confidence: confidence,
		Timestamp:  req.Now,
	}}, nil
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
