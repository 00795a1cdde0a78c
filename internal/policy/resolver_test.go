package policy_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/innovabiz/iam-fraud-core/internal/domain"
	"github.com/innovabiz/iam-fraud-core/internal/policy"
)

func TestResolver_RequiredFactors_CrescemComNivelDeRisco(t *testing.T) {
	r := policy.New()
	p := domain.DefaultAdaptivePolicy("tenant-a")

	low := r.RequiredFactors(domain.RiskLevelLow, p)
	medium := r.RequiredFactors(domain.RiskLevelMedium, p)
	high := r.RequiredFactors(domain.RiskLevelHigh, p)
	critical := r.RequiredFactors(domain.RiskLevelCritical, p)

	assert.LessOrEqual(t, len(low), len(medium))
	assert.LessOrEqual(t, len(medium), len(high))
	assert.LessOrEqual(t, len(high), len(critical))
}

func TestResolver_TransactionVerdict_AbaixoDoPadraoPermite(t *testing.T) {
	r := policy.New()
	p := domain.DefaultAdaptivePolicy("tenant-a")
	p.DefaultSecurityLvl = domain.RiskLevelHigh

	assert.Equal(t, domain.VerdictAllow, r.TransactionVerdict(domain.RiskLevelLow, p))
	assert.Equal(t, domain.VerdictAllow, r.TransactionVerdict(domain.RiskLevelHigh, p))
	assert.Equal(t, domain.VerdictReview, r.TransactionVerdict(domain.RiskLevelCritical, p))
}

func TestBuildReason_SemSinaisRelevantesUsaMotivoGeral(t *testing.T) {
	reason := policy.BuildReason(domain.RiskLevelLow, nil)
	assert.Contains(t, reason, "general analysis")
}

func TestBuildReason_ComUmSinalRelevante(t *testing.T) {
	reason := policy.BuildReason(domain.RiskLevelHigh, []domain.RiskSignal{
		{Type: "geo_velocity", Value: 0.95, Timestamp: time.Now()},
	})
	assert.Contains(t, reason, "geographic velocity")
}

func TestBuildReason_ComTresSinaisRelevantes(t *testing.T) {
	reason := policy.BuildReason(domain.RiskLevelCritical, []domain.RiskSignal{
		{Type: "geo_velocity", Value: 0.95, Timestamp: time.Now()},
		{Type: "device_trust", Value: 0.8, Timestamp: time.Now()},
		{Type: "behavioral", Value: 0.7, Timestamp: time.Now()},
	})
	assert.Contains(t, reason, "geographic velocity")
	assert.Contains(t, reason, "unrecognized device")
	assert.Contains(t, reason, "behavioral pattern")
}
