package signals

import (
	"context"

	"github.com/innovabiz/iam-fraud-core/internal/domain"
)

// TimePatternProcessor flags access during a fixed late-night window,
// independent of the user's own history (that differentiation belongs to
// BehavioralProcessor). Matches the teacher's 02:00-05:00 window.
type TimePatternProcessor struct {
	startHour, endHour int
}

func NewTimePatternProcessor() *TimePatternProcessor {
	return &TimePatternProcessor{startHour: 2, endHour: 5}
}

func (p *TimePatternProcessor) Name() string { return "time_pattern" }

func (p *TimePatternProcessor) Process(ctx context.Context, req Request) ([]domain.RiskSignal, error) {
	hour := req.Now.Hour()
	if hour < p.startHour || hour > p.endHour {
		return nil, nil
	}

	return []domain.RiskSignal{{
		Type:       "time_pattern",
		Value:      0.6,
		Confidence: 0.7,
		Timestamp:  req.Now,
	}}, nil
}
