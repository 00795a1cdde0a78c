package signals

import (
	"context"

	"github.com/innovabiz/iam-fraud-core/internal/domain"
)

// GazePatternProcessor scores AR gaze-pattern authentication the same way
// SpatialGestureProcessor scores gestures: match against enrolled
// template, invert to a risk value.
type GazePatternProcessor struct {
	matcher TemplateMatcher
}

func NewGazePatternProcessor(matcher TemplateMatcher) *GazePatternProcessor {
	return &GazePatternProcessor{matcher: matcher}
}

func (p *GazePatternProcessor) Name() string { return "ar_gaze_pattern" }

func (p *GazePatternProcessor) Process(ctx context.Context, req Request) ([]domain.RiskSignal, error) {
	if req.AuthContext.ARData == nil || req.AuthContext.ARData.GazePattern == nil {
		return nil, nil
	}
	vector := req.AuthContext.ARData.GazePattern.Vector
	if len(vector) == 0 || p.matcher == nil {
		return nil, nil
	}

	similarity, ok := p.matcher.Match(req.UserID, "gaze_pattern", vector)
	if !ok {
		return nil, nil
	}

	confidence := clamp01(similarity)
	riskValue := 1.0 - confidence

	return []domain.RiskSignal{{
		Type:       "ar_gaze_pattern",
		Value:      riskValue,
		Confidence: confidence,
		Timestamp:  req.Now,
	}}, nil
}
