package signals

import (
	"context"

	"github.com/innovabiz/iam-fraud-core/internal/domain"
)

// BreachChecker reports whether a credential hash appears on a
// known-breach list. credentialHash is expected to already be a salted
// hash (e.g. sha256 of the password plus a server-side pepper); this
// interface never sees a raw password.
type BreachChecker interface {
	IsBreached(credentialHash string) bool
}

// StaticBreachList is a BreachChecker backed by a fixed hash set, the same
// "small and explicit rather than an external feed" shape as
// HighRiskCountries: this core has no credential-breach feed of its own,
// so the set is meant to be populated from whatever feed a deployment
// wires in (e.g. a periodic sync job), not hand-maintained here.
type StaticBreachList map[string]bool

func NewStaticBreachList(hashes []string) StaticBreachList {
	set := make(StaticBreachList, len(hashes))
	for _, h := range hashes {
		set[h] = true
	}
	return set
}

func (s StaticBreachList) IsBreached(credentialHash string) bool {
	return s[credentialHash]
}

// CredentialAnomalyProcessor flags two independent conditions per spec
// §4.2: the current credential matching a known-breach list, and a burst
// of consecutive authentication failures immediately preceding this
// attempt (from the profile's AuthStats). The teacher's corresponding
// processor was a stub (no signal bodies); this supplies both halves the
// original engine's weight table already reserved a "credential_anomaly"
// slot for.
type CredentialAnomalyProcessor struct {
	burstThreshold int
	breachChecker  BreachChecker
}

// NewCredentialAnomalyProcessor builds the processor. A nil checker means
// no breach list is configured, so only the failure-burst half runs.
func NewCredentialAnomalyProcessor(breachChecker BreachChecker) *CredentialAnomalyProcessor {
	return &CredentialAnomalyProcessor{burstThreshold: 3, breachChecker: breachChecker}
}

func (p *CredentialAnomalyProcessor) Name() string { return "credential_anomaly" }

func (p *CredentialAnomalyProcessor) Process(ctx context.Context, req Request) ([]domain.RiskSignal, error) {
	var out []domain.RiskSignal

	if hash, ok := req.AuthContext.Metadata["credential_hash"].(string); ok && hash != "" && p.breachChecker != nil {
		if p.breachChecker.IsBreached(hash) {
			out = append(out, domain.RiskSignal{
				Type:       "credential_anomaly",
				Value:      0.85,
				Confidence: 0.95,
				Timestamp:  req.Now,
			})
		}
	}

	failures := req.Profile.AuthStats.ConsecutiveFailures
	if failures >= p.burstThreshold {
		// Confidence rises with the burst length, capped at 0.95.
		confidence := 0.6 + 0.1*float64(failures-p.burstThreshold)
		if confidence > 0.95 {
			confidence = 0.95
		}
		out = append(out, domain.RiskSignal{
			Type:       "credential_anomaly",
			Value:      0.75,
			Confidence: confidence,
			Timestamp:  req.Now,
		})
	}

	return out, nil
}
