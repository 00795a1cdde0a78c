package signals

import (
	"context"

	"github.com/innovabiz/iam-fraud-core/internal/domain"
)

// ARBiometricProcessor scores AR biometric authentication (liveness plus
// template match). A failed liveness check is treated as an outright
// match failure regardless of the vector comparison, since a spoofed
// capture can still cosine-match a stolen template.
type ARBiometricProcessor struct {
	matcher TemplateMatcher
}

func NewARBiometricProcessor(matcher TemplateMatcher) *ARBiometricProcessor {
	return &ARBiometricProcessor{matcher: matcher}
}

func (p *ARBiometricProcessor) Name() string { return "ar_biometric" }

func (p *ARBiometricProcessor) Process(ctx context.Context, req Request) ([]domain.RiskSignal, error) {
	if req.AuthContext.ARData == nil || req.AuthContext.ARData.Biometric == nil {
		return nil, nil
	}
	bio := req.AuthContext.ARData.Biometric
	if len(bio.Vector) == 0 || p.matcher == nil {
		return nil, nil
	}

	if !bio.LivenessPassed {
		return []domain.RiskSignal{{
			Type:       "ar_biometric",
			Value:      0.95,
			Confidence: 0.9,
			Timestamp:  req.Now,
		}}, nil
	}

	similarity, ok := p.matcher.Match(req.UserID, "biometric", bio.Vector)
	if !ok {
		return nil, nil
	}

	confidence := clamp01(similarity)
	riskValue := 1.0 - confidence

	return []domain.RiskSignal{{
		Type:       "ar_biometric",
		Value:      riskValue,
		Confidence: confidence,
		Timestamp:  req.Now,
	}}, nil
}
