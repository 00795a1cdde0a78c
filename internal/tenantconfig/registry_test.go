package tenantconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innovabiz/iam-fraud-core/internal/domain"
	"github.com/innovabiz/iam-fraud-core/internal/telemetry/logging"
)

const validRegistryYAML = `
tenants:
  - tenant_id: tenant-br-1
    markets: ["BR"]
    regions: ["BR"]
    default_security_level: MEDIUM
    required_factors: ["password"]
    policy:
      risk_thresholds:
        medium: 0.3
        high: 0.6
        critical: 0.8
      factors_low: ["password"]
      factors_medium: ["password", "otp"]
      factors_high: ["password", "otp", "biometric"]
      factors_critical: ["password", "otp", "biometric", "manual_review"]
      toggles:
        geo_check: true
        velocity: true
      sensitivity: 0.7
      alert_threshold: 0.8
      alert_cooldown_secs: 600
`

const invalidRegistryYAML = `
tenants:
  - tenant_id: ""
    regions: []
    default_security_level: NOT_A_LEVEL
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tenants.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestRegistry_LoadValidTenant(t *testing.T) {
	path := writeTempConfig(t, validRegistryYAML)
	r := New(path, logging.NewNop())

	require.NoError(t, r.Load())

	cfg, ok := r.TenantConfig("tenant-br-1")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"BR"}, cfg.Regions)
	assert.Equal(t, domain.RiskLevelMedium, cfg.DefaultSecurityLvl)
	assert.Equal(t, 0.3, cfg.Policy.RiskThresholds.Medium)
	assert.Equal(t, 0.8, cfg.Policy.AlertThreshold)
	assert.True(t, cfg.Policy.Toggles.GeoCheck)
}

func TestRegistry_PolicyForUnknownTenantFallsBackToDefault(t *testing.T) {
	path := writeTempConfig(t, validRegistryYAML)
	r := New(path, logging.NewNop())
	require.NoError(t, r.Load())

	pol := r.PolicyFor("does-not-exist")

	assert.Equal(t, domain.DefaultAdaptivePolicy("does-not-exist"), pol)
}

func TestRegistry_LoadInvalidTenantFails(t *testing.T) {
	path := writeTempConfig(t, invalidRegistryYAML)
	r := New(path, logging.NewNop())

	err := r.Load()

	require.Error(t, err)
}

func TestRegistry_RulesForReturnsBuiltinSet(t *testing.T) {
	path := writeTempConfig(t, validRegistryYAML)
	r := New(path, logging.NewNop())
	require.NoError(t, r.Load())

	rules := r.RulesFor("tenant-br-1", "BR")

	assert.NotEmpty(t, rules)
}

func TestBuiltinRules_AllHaveIDsAndConditions(t *testing.T) {
	for _, rule := range BuiltinRules() {
		assert.NotEmpty(t, rule.ID)
		assert.NotNil(t, rule.Condition)
		assert.True(t, rule.Enabled)
	}
}
