package regional

import (
	"embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed testdata/*.yaml
var embeddedTables embed.FS

// yamlTransactionLimits mirrors the YAML snake_case keys onto
// TransactionLimits.
type yamlTransactionLimits struct {
	DailyLimit             float64 `yaml:"daily_limit"`
	SingleTransactionLimit float64 `yaml:"single_transaction_limit"`
	MonthlyLimit           float64 `yaml:"monthly_limit"`
	MaxDailyTransactions   int     `yaml:"max_daily_transactions"`
	CashInCashOutWindowSec int     `yaml:"cash_in_cash_out_window_sec"`
}

type yamlRegionTable struct {
	CountryCode       string                `yaml:"country_code"`
	HighRiskZones     []string              `yaml:"high_risk_zones"`
	UrbanZones        []string              `yaml:"urban_zones"`
	TrustedCarriers   []string              `yaml:"trusted_carriers"`
	PhonePatterns     map[string]string     `yaml:"phone_patterns"`
	TransactionLimits yamlTransactionLimits `yaml:"transaction_limits"`
	BusinessHourStart int                   `yaml:"business_hour_start"`
	BusinessHourEnd   int                   `yaml:"business_hour_end"`
	MaxSpeedKmh        float64              `yaml:"max_speed_kmh"`
	HighValueThreshold float64              `yaml:"high_value_threshold"`
}

// LoadEmbedded reads the region table for the given ISO 3166-1 alpha-2
// code (ao, br, mz, pt — case-insensitive) from the embedded YAML data.
func LoadEmbedded(countryCode string) (RegionTable, error) {
	name := strings.ToLower(countryCode)
	data, err := embeddedTables.ReadFile(fmt.Sprintf("testdata/%s.yaml", name))
	if err != nil {
		return RegionTable{}, fmt.Errorf("load region table %s: %w", countryCode, err)
	}

	var y yamlRegionTable
	if err := yaml.Unmarshal(data, &y); err != nil {
		return RegionTable{}, fmt.Errorf("parse region table %s: %w", countryCode, err)
	}

	return RegionTable{
		CountryCode:     y.CountryCode,
		HighRiskZones:   y.HighRiskZones,
		UrbanZones:      y.UrbanZones,
		TrustedCarriers: y.TrustedCarriers,
		PhonePatterns:   y.PhonePatterns,
		TransactionLimits: TransactionLimits{
			DailyLimit:             y.TransactionLimits.DailyLimit,
			SingleTransactionLimit: y.TransactionLimits.SingleTransactionLimit,
			MonthlyLimit:           y.TransactionLimits.MonthlyLimit,
			MaxDailyTransactions:   y.TransactionLimits.MaxDailyTransactions,
			CashInCashOutWindowSec: y.TransactionLimits.CashInCashOutWindowSec,
		},
		BusinessHourStart:  y.BusinessHourStart,
		BusinessHourEnd:    y.BusinessHourEnd,
		MaxSpeedKmh:        y.MaxSpeedKmh,
		HighValueThreshold: y.HighValueThreshold,
	}, nil
}

// SupportedRegions lists the country codes this core ships tables for.
var SupportedRegions = []string{"AO", "BR", "MZ", "PT"}

// LoadAll returns an Analyzer per supported region, keyed by country code.
func LoadAll() (map[string]*Analyzer, error) {
	analyzers := make(map[string]*Analyzer, len(SupportedRegions))
	for _, code := range SupportedRegions {
		table, err := LoadEmbedded(code)
		if err != nil {
			return nil, err
		}
		analyzers[code] = NewAnalyzer(table)
	}
	return analyzers, nil
}
