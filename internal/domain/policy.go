package domain

import "fmt"

// RiskThresholds are the tenant-configured score cut points used by the
// aggregator's level mapping (§4.4). Ties go to the higher level.
type RiskThresholds struct {
	Medium   float64
	High     float64
	Critical float64
}

// DefaultRiskThresholds matches the spec's stated defaults.
func DefaultRiskThresholds() RiskThresholds {
	return RiskThresholds{Medium: 0.3, High: 0.6, Critical: 0.8}
}

// FeatureToggles gate which signal processors / regional analyses run for
// a tenant.
type FeatureToggles struct {
	GeoCheck          bool
	DeviceFingerprint bool
	Behavioral        bool
	Velocity          bool
	ImpossibleTravel  bool
	ARAuthentication  bool
}

// AdaptivePolicy is the per-tenant configuration consumed by C3-C6.
// Factor lists must satisfy monotonicity (|factors[i+1]| >= |factors[i]|);
// AdaptivePolicy.Validate enforces this and is called by the tenant loader
// before a policy is ever handed to a live request (§3 invariant, P1).
type AdaptivePolicy struct {
	TenantID           string
	RiskThresholds     RiskThresholds
	FactorsLow         []AuthFactor
	FactorsMedium      []AuthFactor
	FactorsHigh        []AuthFactor
	FactorsCritical    []AuthFactor
	Toggles            FeatureToggles
	Sensitivity        float64
	GeoVelocityKmh     float64
	BaselineDays       int
	TrustedDeviceDays  int
	HighRiskCountries  []string
	SignalWeights      map[string]float64
	AlertThreshold     float64
	AlertCooldownSecs  int
	DefaultSecurityLvl RiskLevel
}

// DefaultAdaptivePolicy returns a policy carrying every spec default.
func DefaultAdaptivePolicy(tenantID string) AdaptivePolicy {
	return AdaptivePolicy{
		TenantID:       tenantID,
		RiskThresholds: DefaultRiskThresholds(),
		FactorsLow:     []AuthFactor{FactorPassword},
		FactorsMedium:  []AuthFactor{FactorPassword, FactorTOTP},
		FactorsHigh:    []AuthFactor{FactorPassword, FactorTOTP, FactorSMS},
		FactorsCritical: []AuthFactor{FactorPassword, FactorTOTP, FactorSMS, FactorBiometric},
		Toggles: FeatureToggles{
			GeoCheck:          true,
			DeviceFingerprint: true,
			Behavioral:        true,
			Velocity:          true,
			ImpossibleTravel:  true,
			ARAuthentication:  false,
		},
		Sensitivity:        0.7,
		GeoVelocityKmh:     500,
		BaselineDays:       30,
		TrustedDeviceDays:  90,
		SignalWeights:      DefaultSignalWeights(),
		AlertThreshold:     0.8,
		AlertCooldownSecs:  600,
		DefaultSecurityLvl: RiskLevelMedium,
	}
}

// DefaultSignalWeights mirrors §4.4's default weight table.
func DefaultSignalWeights() map[string]float64 {
	return map[string]float64{
		"ip_reputation":      0.20,
		"geo_velocity":       0.15,
		"device_trust":       0.15,
		"behavioral":         0.20,
		"time_pattern":       0.10,
		"new_location":       0.15,
		"failed_attempts":    0.20,
		"credential_anomaly": 0.20,
		"ar_spatial_gesture": 0.15,
		"ar_gaze_pattern":    0.15,
		"ar_environment":     0.15,
		"ar_biometric":       0.15,
		"rule_engine":        0.50,
		"ml":                 0.40,
	}
}

// Validate enforces the factor-list monotonicity invariant (P1). A tenant
// loader must call this and reject the policy (a configuration error, §7
// category 2) rather than admit a policy that could require fewer factors
// at a higher risk level.
func (p AdaptivePolicy) Validate() error {
	if len(p.FactorsMedium) < len(p.FactorsLow) {
		return fmt.Errorf("policy %s: factors_medium (%d) must be >= factors_low (%d)", p.TenantID, len(p.FactorsMedium), len(p.FactorsLow))
	}
	if len(p.FactorsHigh) < len(p.FactorsMedium) {
		return fmt.Errorf("policy %s: factors_high (%d) must be >= factors_medium (%d)", p.TenantID, len(p.FactorsHigh), len(p.FactorsMedium))
	}
	if len(p.FactorsCritical) < len(p.FactorsHigh) {
		return fmt.Errorf("policy %s: factors_critical (%d) must be >= factors_high (%d)", p.TenantID, len(p.FactorsCritical), len(p.FactorsHigh))
	}
	if p.Sensitivity < 0 || p.Sensitivity > 1 {
		return fmt.Errorf("policy %s: sensitivity %.3f out of [0,1]", p.TenantID, p.Sensitivity)
	}
	return nil
}

// FactorsForLevel returns the configured factor list for a risk level.
func (p AdaptivePolicy) FactorsForLevel(level RiskLevel) []AuthFactor {
	switch level {
	case RiskLevelLow:
		return p.FactorsLow
	case RiskLevelMedium:
		return p.FactorsMedium
	case RiskLevelHigh:
		return p.FactorsHigh
	case RiskLevelCritical:
		return p.FactorsCritical
	default:
		return p.FactorsLow
	}
}

// TenantConfig is the external, interface-only tenant registry record
// (§3). The core only reads the fields it needs to drive the pipeline;
// markets/compliance schemas/required-factor defaults are carried through
// untouched for upstream callers.
type TenantConfig struct {
	TenantID            string
	Markets             []string
	Regions             []string
	DefaultSecurityLvl  RiskLevel
	RequiredFactors     []AuthFactor
	ComplianceSchemas   []string
	Policy              AdaptivePolicy
}
