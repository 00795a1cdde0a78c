package signals

import (
	"context"

	"github.com/innovabiz/iam-fraud-core/internal/domain"
)

// HighRiskCountries is the default list consulted by IPReputationProcessor
// when a tenant policy doesn't override it. Kept small and explicit
// rather than loaded from a feed, matching the teacher's demonstration
// table rather than inventing an external dependency this core doesn't
// otherwise need.
var HighRiskCountries = []string{"KP", "IR", "SY"}

// IPReputationProcessor flags proxy/VPN/Tor egress and connections from a
// configured high-risk country list. Reads AuthContext.LocationData only.
type IPReputationProcessor struct {
	highRiskCountries map[string]bool
}

// NewIPReputationProcessor builds the processor. A nil list falls back to
// HighRiskCountries.
func NewIPReputationProcessor(highRiskCountries []string) *IPReputationProcessor {
	if highRiskCountries == nil {
		highRiskCountries = HighRiskCountries
	}
	set := make(map[string]bool, len(highRiskCountries))
	for _, c := range highRiskCountries {
		set[c] = true
	}
	return &IPReputationProcessor{highRiskCountries: set}
}

func (p *IPReputationProcessor) Name() string { return "ip_reputation" }

func (p *IPReputationProcessor) Process(ctx context.Context, req Request) ([]domain.RiskSignal, error) {
	loc := req.AuthContext.LocationData
	var out []domain.RiskSignal

	if loc.IsProxy || loc.IsVPN || loc.IsTor {
		out = append(out, domain.RiskSignal{
			Type:       "ip_reputation",
			Value:      0.8,
			Confidence: 0.9,
			Timestamp:  req.Now,
		})
	}

	if p.highRiskCountries[loc.CountryCode] {
		out = append(out, domain.RiskSignal{
			Type:       "ip_reputation",
			Value:      0.9,
			Confidence: 0.95,
			Timestamp:  req.Now,
		})
	}

	return out, nil
}
