// Package tenantconfig loads the §6 "configuration surface" — a
// structured tenant registry (YAML/JSON) holding TenantConfig with nested
// region overlays — via github.com/spf13/viper, the way the teacher's
// identity-service loads its own service configuration, and hot-reloads
// it with viper.WatchConfig + fsnotify the way §5 requires ("tenant
// policies are read-mostly and may be swapped via pointer/epoch update
// without blocking readers"). Rule sets are NOT part of this file: per
// Design Notes §9 a rule condition is a typed predicate tree, not
// something a YAML/JSON document can carry without reintroducing
// string-eval, so RulesFor is backed by a Go-compiled rule set
// (internal/tenantconfig/rules.go) filtered by tenant/market the same
// way the registry filters policy.
package tenantconfig

import (
	"fmt"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/innovabiz/iam-fraud-core/internal/domain"
	"github.com/innovabiz/iam-fraud-core/internal/regional"
	"github.com/innovabiz/iam-fraud-core/internal/rules"
	"github.com/innovabiz/iam-fraud-core/internal/telemetry/logging"
)

// tenantFile is the on-disk shape of one tenant registry entry. Field
// names are snake_case to match the teacher's own YAML configuration
// conventions (services/identity-service config files).
type tenantFile struct {
	TenantID           string   `mapstructure:"tenant_id" validate:"required"`
	Markets            []string `mapstructure:"markets"`
	Regions            []string `mapstructure:"regions" validate:"required,min=1"`
	DefaultSecurityLvl string   `mapstructure:"default_security_level" validate:"required,oneof=LOW MEDIUM HIGH CRITICAL"`
	RequiredFactors    []string `mapstructure:"required_factors"`
	ComplianceSchemas  []string `mapstructure:"compliance_schemas"`
	Policy             policyFile `mapstructure:"policy"`
}

type policyFile struct {
	RiskThresholds struct {
		Medium   float64 `mapstructure:"medium" validate:"gte=0,lte=1"`
		High     float64 `mapstructure:"high" validate:"gte=0,lte=1"`
		Critical float64 `mapstructure:"critical" validate:"gte=0,lte=1"`
	} `mapstructure:"risk_thresholds"`
	FactorsLow        []string           `mapstructure:"factors_low"`
	FactorsMedium     []string           `mapstructure:"factors_medium"`
	FactorsHigh       []string           `mapstructure:"factors_high"`
	FactorsCritical   []string           `mapstructure:"factors_critical"`
	Toggles           struct {
		GeoCheck          bool `mapstructure:"geo_check"`
		DeviceFingerprint bool `mapstructure:"device_fingerprint"`
		Behavioral        bool `mapstructure:"behavioral"`
		Velocity          bool `mapstructure:"velocity"`
		ImpossibleTravel  bool `mapstructure:"impossible_travel"`
		ARAuthentication  bool `mapstructure:"ar_authentication"`
	} `mapstructure:"toggles"`
	Sensitivity       float64            `mapstructure:"sensitivity" validate:"gte=0,lte=1"`
	GeoVelocityKmh    float64            `mapstructure:"geo_velocity_kmh"`
	BaselineDays      int                `mapstructure:"baseline_days"`
	TrustedDeviceDays int                `mapstructure:"trusted_device_days"`
	HighRiskCountries []string           `mapstructure:"high_risk_countries"`
	SignalWeights     map[string]float64 `mapstructure:"signal_weights"`
	AlertThreshold    float64            `mapstructure:"alert_threshold" validate:"gte=0,lte=1"`
	AlertCooldownSecs int                `mapstructure:"alert_cooldown_secs"`
}

type registryFile struct {
	Tenants []tenantFile `mapstructure:"tenants"`
}

// Registry holds the parsed tenant set behind an atomic pointer so
// PolicyFor/RulesFor readers never block on a concurrent hot-reload
// (§5 "read-mostly... without blocking readers").
type Registry struct {
	v        *viper.Viper
	validate *validator.Validate
	logger   *logging.Logger
	ruleSet  []rules.Rule

	tenants atomic.Pointer[map[string]domain.TenantConfig]
}

// New constructs a Registry bound to a config path. Call Load to parse
// the file the first time; call Watch to enable hot-reload.
func New(configPath string, logger *logging.Logger) *Registry {
	v := viper.New()
	v.SetConfigFile(configPath)
	r := &Registry{
		v:        v,
		validate: validator.New(),
		logger:   logger,
		ruleSet:  BuiltinRules(),
	}
	empty := make(map[string]domain.TenantConfig)
	r.tenants.Store(&empty)
	return r
}

// Load reads and parses the registry file, validating every tenant's
// struct tags and its AdaptivePolicy's factor-monotonicity invariant
// (§3, P1) before admitting it. A single invalid tenant fails the whole
// load (§7 category 2: configuration errors are fatal at startup) rather
// than silently dropping the bad entry.
func (r *Registry) Load() error {
	if err := r.v.ReadInConfig(); err != nil {
		return fmt.Errorf("%w: read tenant registry %s: %v", domain.ErrConfiguration, r.v.ConfigFileUsed(), err)
	}

	var file registryFile
	if err := r.v.Unmarshal(&file); err != nil {
		return fmt.Errorf("%w: decode tenant registry: %v", domain.ErrConfiguration, err)
	}

	parsed := make(map[string]domain.TenantConfig, len(file.Tenants))
	for _, tf := range file.Tenants {
		if err := r.validate.Struct(tf); err != nil {
			return fmt.Errorf("%w: tenant %s: %v", domain.ErrConfiguration, tf.TenantID, err)
		}
		cfg, err := toTenantConfig(tf)
		if err != nil {
			return fmt.Errorf("%w: tenant %s: %v", domain.ErrConfiguration, tf.TenantID, err)
		}
		for _, region := range cfg.Regions {
			table, rerr := regional.LoadEmbedded(region)
			if rerr != nil {
				continue // unknown region table; not fatal, tenant just keeps its own config
			}
			cfg.Policy = mergeRegionalOverlay(cfg.Policy, regional.NewAnalyzer(table).GetRegionalRules())
		}
		if err := cfg.Policy.Validate(); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
		}
		parsed[tf.TenantID] = cfg
	}

	r.tenants.Store(&parsed)
	return nil
}

// Watch enables hot-reload: viper's fsnotify-backed watcher calls back
// on every write to the config file, and a failed reload is logged and
// the previous (last-good) snapshot stays live rather than being
// replaced by a half-parsed one — the tenant set is epoch-swapped only
// on a fully validated reload.
func (r *Registry) Watch() {
	r.v.OnConfigChange(func(e fsnotify.Event) {
		if err := r.Load(); err != nil {
			if r.logger != nil {
				r.logger.Error("tenant registry hot-reload failed, keeping previous snapshot")
			}
			return
		}
		if r.logger != nil {
			r.logger.Info("tenant registry hot-reloaded")
		}
	})
	r.v.WatchConfig()
}

// PolicyFor implements internal/consumers.PolicyProvider. An unknown
// tenant degrades to domain.DefaultAdaptivePolicy rather than a panic or
// error, matching §4.1's "degrades... it is never fatal" posture applied
// to policy lookup.
func (r *Registry) PolicyFor(tenantID string) domain.AdaptivePolicy {
	tenants := *r.tenants.Load()
	if cfg, ok := tenants[tenantID]; ok {
		return cfg.Policy
	}
	if r.logger != nil {
		r.logger.Warn("unknown tenant, using default policy")
	}
	return domain.DefaultAdaptivePolicy(tenantID)
}

// TenantConfig returns the full external-interface record for a tenant,
// ok=false when unknown.
func (r *Registry) TenantConfig(tenantID string) (domain.TenantConfig, bool) {
	tenants := *r.tenants.Load()
	cfg, ok := tenants[tenantID]
	return cfg, ok
}

// RulesFor implements internal/consumers.RuleProvider, returning the
// Go-compiled rule set (see rules.go) filtered at Engine.Run time by
// tenantID/market; RulesFor itself simply hands back the full set since
// the Engine already applies the tenant/market match.
func (r *Registry) RulesFor(tenantID, market string) []rules.Rule {
	return r.ruleSet
}

// mergeRegionalOverlay folds a regional.PolicyOverlay into a policy at
// load time (§4.6 "GetRegionalRules() -> PolicyOverlay merged into the
// tenant policy at load time"). A tenant operating in several regions
// takes the tightest (lowest) speed limit across them, since the overlay
// exists to tighten defaults, never loosen a tenant's own configuration.
func mergeRegionalOverlay(pol domain.AdaptivePolicy, overlay regional.PolicyOverlay) domain.AdaptivePolicy {
	if overlay.LocationSpeedLimitKmh > 0 && (pol.GeoVelocityKmh == 0 || overlay.LocationSpeedLimitKmh < pol.GeoVelocityKmh) {
		pol.GeoVelocityKmh = overlay.LocationSpeedLimitKmh
	}
	return pol
}

func toTenantConfig(tf tenantFile) (domain.TenantConfig, error) {
	defaultLvl, err := parseLevel(tf.DefaultSecurityLvl)
	if err != nil {
		return domain.TenantConfig{}, err
	}

	pol := domain.AdaptivePolicy{
		TenantID: tf.TenantID,
		RiskThresholds: domain.RiskThresholds{
			Medium:   orDefault(tf.Policy.RiskThresholds.Medium, 0.3),
			High:     orDefault(tf.Policy.RiskThresholds.High, 0.6),
			Critical: orDefault(tf.Policy.RiskThresholds.Critical, 0.8),
		},
		FactorsLow:      toFactors(tf.Policy.FactorsLow),
		FactorsMedium:   toFactors(tf.Policy.FactorsMedium),
		FactorsHigh:     toFactors(tf.Policy.FactorsHigh),
		FactorsCritical: toFactors(tf.Policy.FactorsCritical),
		Toggles: domain.FeatureToggles{
			GeoCheck:          tf.Policy.Toggles.GeoCheck,
			DeviceFingerprint: tf.Policy.Toggles.DeviceFingerprint,
			Behavioral:        tf.Policy.Toggles.Behavioral,
			Velocity:          tf.Policy.Toggles.Velocity,
			ImpossibleTravel:  tf.Policy.Toggles.ImpossibleTravel,
			ARAuthentication:  tf.Policy.Toggles.ARAuthentication,
		},
		Sensitivity:        orDefault(tf.Policy.Sensitivity, 0.7),
		GeoVelocityKmh:     orDefault(tf.Policy.GeoVelocityKmh, 500),
		BaselineDays:       intOrDefault(tf.Policy.BaselineDays, 30),
		TrustedDeviceDays:  intOrDefault(tf.Policy.TrustedDeviceDays, 90),
		HighRiskCountries:  tf.Policy.HighRiskCountries,
		SignalWeights:      mergeWeights(tf.Policy.SignalWeights),
		AlertThreshold:     orDefault(tf.Policy.AlertThreshold, 0.8),
		AlertCooldownSecs:  intOrDefault(tf.Policy.AlertCooldownSecs, 600),
		DefaultSecurityLvl: defaultLvl,
	}

	return domain.TenantConfig{
		TenantID:           tf.TenantID,
		Markets:            tf.Markets,
		Regions:            tf.Regions,
		DefaultSecurityLvl: defaultLvl,
		RequiredFactors:    toFactors(tf.RequiredFactors),
		ComplianceSchemas:  tf.ComplianceSchemas,
		Policy:             pol,
	}, nil
}

func parseLevel(s string) (domain.RiskLevel, error) {
	switch s {
	case "LOW":
		return domain.RiskLevelLow, nil
	case "MEDIUM":
		return domain.RiskLevelMedium, nil
	case "HIGH":
		return domain.RiskLevelHigh, nil
	case "CRITICAL":
		return domain.RiskLevelCritical, nil
	default:
		return 0, fmt.Errorf("unknown risk level %q", s)
	}
}

func toFactors(ss []string) []domain.AuthFactor {
	out := make([]domain.AuthFactor, len(ss))
	for i, s := range ss {
		out[i] = domain.AuthFactor(s)
	}
	return out
}

func mergeWeights(overrides map[string]float64) map[string]float64 {
	weights := domain.DefaultSignalWeights()
	for k, v := range overrides {
		weights[k] = v
	}
	return weights
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func intOrDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
