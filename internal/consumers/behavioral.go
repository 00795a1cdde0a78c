// Package consumers implements the three C8 specialized consumers
// (behavioural, transaction, document-validation), each wiring the C7
// framework with a normalization/processing function per §4.8. Grounded
// on original_source's event_consumers package: behavioral_analysis_consumer.py
// dispatches per event_type to baseline-update and anomaly-detection
// helpers, several of which (_update_auth_baseline and friends) are no-op
// stubs in the original — this package implements them for real, since a
// consumer that never updates its baseline can never learn a user's
// pattern.
package consumers

import (
	"context"
	"fmt"
	"time"

	"github.com/innovabiz/iam-fraud-core/internal/aggregator"
	"github.com/innovabiz/iam-fraud-core/internal/contextstore"
	"github.com/innovabiz/iam-fraud-core/internal/domain"
	"github.com/innovabiz/iam-fraud-core/internal/policy"
	"github.com/innovabiz/iam-fraud-core/internal/regional"
	"github.com/innovabiz/iam-fraud-core/internal/rules"
	"github.com/innovabiz/iam-fraud-core/internal/signals"
	"github.com/innovabiz/iam-fraud-core/internal/telemetry/logging"
	"github.com/innovabiz/iam-fraud-core/internal/telemetry/metrics"
	"github.com/innovabiz/iam-fraud-core/internal/telemetry/tracing"
)

// PolicyProvider resolves the active AdaptivePolicy for a tenant. Backed
// by internal/tenantconfig in production; tests supply a fixed-map stub.
type PolicyProvider interface {
	PolicyFor(tenantID string) domain.AdaptivePolicy
}

// RuleProvider resolves the rule set applicable to a tenant/market pair.
// Separated from PolicyProvider because rule sets are versioned and
// reloaded independently of tenant policy in the teacher's design.
type RuleProvider interface {
	RulesFor(tenantID, market string) []rules.Rule
}

// AlertSink is what a consumer calls to hand off a qualifying assessment
// to C9. internal/alert.Notifier implements this.
type AlertSink interface {
	Notify(ctx context.Context, alert domain.FraudAlert) error
}

var behavioralKinds = map[domain.EventKind]bool{
	domain.EventAuthentication: true,
	domain.EventSession:        true,
	domain.EventDevice:         true,
	domain.EventUserActivity:   true,
}

// BehavioralConsumer implements §4.8's behavioural consumer: enrich via
// C1, run behavioural/temporal/location/regional signals plus the rule
// engine, update the profile, and alert when anomaly_score crosses
// policy.AlertThreshold.
type BehavioralConsumer struct {
	Store      *contextstore.Store
	Registry   *signals.Registry
	Engine     *rules.Engine
	Aggregator *aggregator.Aggregator
	Resolver   *policy.Resolver
	Regional   map[string]*regional.Analyzer // keyed by region code
	Policies   PolicyProvider
	Rules      RuleProvider
	Alerts     AlertSink
	Logger     *logging.Logger
	Tracer     *tracing.Tracer
}

// Handle implements eventconsumer.Handler.
func (b *BehavioralConsumer) Handle(ctx context.Context, ev domain.NormalizedEvent) error {
	if !behavioralKinds[ev.Kind] {
		return nil // not ours; the framework's region filter already narrowed the topic
	}

	pol := b.Policies.PolicyFor(ev.TenantID)
	profile := b.Store.GetProfile(ctx, ev.UserID)
	recent := b.Store.RecentEvents(ctx, ev.UserID)

	req := signals.Request{
		UserID:            ev.UserID,
		TenantID:          ev.TenantID,
		AuthContext:       ev.Context,
		Profile:           profile,
		RecentEvents:      recent,
		Now:               ev.Timestamp,
		TrustedDeviceDays: pol.TrustedDeviceDays,
	}

	riskSignals := b.runProcessors(ctx, req, pol)
	riskSignals = append(riskSignals, b.runRegionalChecks(ctx, ev, profile)...)

	var ruleScore *float64
	if ruleSet := b.Rules.RulesFor(ev.TenantID, ev.RegionCode); len(ruleSet) > 0 {
		ec := evalContextFor(ev)
		result := b.Engine.Run(ctx, ruleSet, ev.TenantID, ev.RegionCode, ec)
		ruleScore = &result.RiskScore
	}

	score, level, topSignals := b.Aggregator.Aggregate(ctx, aggregator.Input{
		Signals:   riskSignals,
		RuleScore: ruleScore,
		Policy:    pol,
	})

	b.updateProfile(ev)
	b.Store.AppendRecentEvent(ctx, ev.UserID, ev)

	metrics.AssessmentsTotal.WithLabelValues(ev.TenantID, ev.RegionCode, level.String()).Inc()

	if score >= pol.AlertThreshold {
		return b.raiseAlert(ctx, ev, score, level, topSignals)
	}
	return nil
}

func (b *BehavioralConsumer) runProcessors(ctx context.Context, req signals.Request, pol domain.AdaptivePolicy) []domain.RiskSignal {
	var out []domain.RiskSignal
	for _, name := range b.Registry.Names() {
		proc, ok := b.Registry.Get(name)
		if !ok {
			continue
		}
		start := time.Now()
		sigs, err := proc.Process(ctx, req)
		metrics.SignalProcessorDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.SignalProcessorFailuresTotal.WithLabelValues(name).Inc()
			b.Logger.WarnCtx(ctx, "signal processor failed, dropped")
			continue
		}
		out = append(out, sigs...)
	}
	return out
}

func (b *BehavioralConsumer) runRegionalChecks(ctx context.Context, ev domain.NormalizedEvent, profile domain.BehavioralProfile) []domain.RiskSignal {
	analyzer, ok := b.Regional[ev.RegionCode]
	if !ok {
		return nil
	}

	var previous *domain.LocationData
	if len(profile.UsualLocations) > 0 {
		top := profile.UsualLocations[0]
		previous = &domain.LocationData{CountryCode: top.CountryCode, City: top.City}
	}

	loc := analyzer.AnalyzeLocation(ev.Context.LocationData, previous)
	device := analyzer.AnalyzeDeviceContext(deviceFromContext(ev.Context), userDeviceHistory(profile))

	return []domain.RiskSignal{
		{Type: "regional_location", Value: loc.Risk, Confidence: 1.0, Timestamp: ev.Timestamp},
		{Type: "regional_device", Value: device.Risk, Confidence: 1.0, Timestamp: ev.Timestamp},
	}
}

// updateProfile is the real implementation of what the teacher's
// _update_auth_baseline/_update_session_baseline/_update_device_baseline/
// _update_activity_baseline leave as no-op stubs: bump the hour/day
// frequency counters and the consecutive-failure streak so the next
// event has a baseline to compare against.
func (b *BehavioralConsumer) updateProfile(ev domain.NormalizedEvent) {
	b.Store.UpdateProfile(context.Background(), ev.UserID, func(p *domain.BehavioralProfile) {
		hour := ev.Timestamp.Hour()
		day := int(ev.Timestamp.Weekday())
		p.UsualHourCounts[hour]++
		p.UsualDayCounts[day]++

		if ev.Kind != domain.EventAuthentication {
			return
		}
		success, _ := ev.Context.Metadata["success"].(bool)
		if success {
			p.AuthStats.ConsecutiveFailures = 0
			p.AuthStats.LastSuccessAt = ev.Timestamp
			p.AuthStats.TotalSuccesses++
		} else {
			p.AuthStats.ConsecutiveFailures++
			p.AuthStats.LastFailureAt = ev.Timestamp
			p.AuthStats.TotalFailures++
		}
	})
}

func (b *BehavioralConsumer) raiseAlert(ctx context.Context, ev domain.NormalizedEvent, score float64, level domain.RiskLevel, topSignals []domain.RiskSignal) error {
	anomalies := make([]string, 0, len(topSignals))
	for _, s := range topSignals {
		anomalies = append(anomalies, s.Type)
	}

	alert := domain.FraudAlert{
		AlertID:     fmt.Sprintf("%s-%d", ev.EventID, ev.Timestamp.UnixNano()),
		UserID:      ev.UserID,
		TenantID:    ev.TenantID,
		RegionCode:  ev.RegionCode,
		Type:        "behavioral_anomaly",
		Severity:    severityForLevel(level),
		Status:      domain.AlertStatusNew,
		RiskScore:   score,
		Anomalies:   anomalies,
		EventRef:    ev.EventID,
		Title:       "Behavioral anomaly detected",
		Description: policy.BuildReason(level, topSignals),
		CreatedAt:   ev.Timestamp,
	}

	if err := b.Alerts.Notify(ctx, alert); err != nil {
		return fmt.Errorf("notify behavioral alert: %w", err)
	}
	return nil
}

func severityForLevel(level domain.RiskLevel) domain.AlertSeverity {
	switch level {
	case domain.RiskLevelCritical:
		return domain.SeverityCritical
	case domain.RiskLevelHigh:
		return domain.SeverityHigh
	case domain.RiskLevelMedium:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

func deviceFromContext(ctx domain.AuthContext) domain.DeviceFingerprint {
	deviceID, _ := ctx.DeviceData["device_id"].(string)
	os, _ := ctx.DeviceData["os"].(string)
	userAgent, _ := ctx.DeviceData["user_agent"].(string)
	return domain.DeviceFingerprint{DeviceID: deviceID, OS: os, UserAgent: userAgent}
}

// userDeviceHistory has nothing to populate UsualOS from: the profile's
// device frequency list tracks device IDs, not OS family, so the OS
// switch check in AnalyzeDeviceContext is inert until device events carry
// OS history on the profile itself.
func userDeviceHistory(profile domain.BehavioralProfile) regional.UserDeviceHistory {
	return regional.UserDeviceHistory{}
}

// evalContextFor projects a NormalizedEvent into the rule engine's
// EvalContext, the Go equivalent of the teacher's ambiente_execucao dict.
func evalContextFor(ev domain.NormalizedEvent) rules.EvalContext {
	values := map[string]interface{}{
		"user_id":      ev.UserID,
		"tenant_id":    ev.TenantID,
		"region_code":  ev.RegionCode,
		"event_kind":   string(ev.Kind),
		"country_code": ev.Context.LocationData.CountryCode,
		"is_vpn":       ev.Context.LocationData.IsVPN,
		"is_proxy":     ev.Context.LocationData.IsProxy,
		"is_tor":       ev.Context.LocationData.IsTor,
	}
	for k, v := range ev.Metadata {
		values[k] = v
	}
	return rules.EvalContext{Values: values, Now: ev.Timestamp}
}
