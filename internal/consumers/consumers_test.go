package consumers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innovabiz/iam-fraud-core/internal/aggregator"
	"github.com/innovabiz/iam-fraud-core/internal/contextstore"
	"github.com/innovabiz/iam-fraud-core/internal/domain"
	"github.com/innovabiz/iam-fraud-core/internal/policy"
	"github.com/innovabiz/iam-fraud-core/internal/regional"
	"github.com/innovabiz/iam-fraud-core/internal/rules"
	"github.com/innovabiz/iam-fraud-core/internal/signals"
	"github.com/innovabiz/iam-fraud-core/internal/telemetry/logging"
	"github.com/innovabiz/iam-fraud-core/internal/telemetry/tracing"
)

type fixedPolicyProvider struct {
	policy domain.AdaptivePolicy
}

func (f fixedPolicyProvider) PolicyFor(tenantID string) domain.AdaptivePolicy { return f.policy }

type fixedRuleProvider struct {
	rules []rules.Rule
}

func (f fixedRuleProvider) RulesFor(tenantID, market string) []rules.Rule { return f.rules }

type recordingAlertSink struct {
	alerts []domain.FraudAlert
}

func (r *recordingAlertSink) Notify(ctx context.Context, alert domain.FraudAlert) error {
	r.alerts = append(r.alerts, alert)
	return nil
}

func lowThresholdPolicy() domain.AdaptivePolicy {
	p := domain.DefaultAdaptivePolicy("tenant-1")
	p.AlertThreshold = 0.1 // force alerts to fire in tests regardless of exact score
	return p
}

func newTestBehavioralConsumer(t *testing.T, sink *recordingAlertSink) *BehavioralConsumer {
	t.Helper()
	store := contextstore.New(time.Hour, logging.NewNop())
	t.Cleanup(store.Close)

	return &BehavioralConsumer{
		Store:      store,
		Registry:   signals.DefaultRegistry(signals.NewCosineTemplateMatcher()),
		Engine:     rules.NewEngine(logging.NewNop()),
		Aggregator: aggregator.New(),
		Resolver:   policy.New(),
		Regional:   map[string]*regional.Analyzer{},
		Policies:   fixedPolicyProvider{policy: lowThresholdPolicy()},
		Rules:      fixedRuleProvider{},
		Alerts:     sink,
		Logger:     logging.NewNop(),
		Tracer:     tracing.NewTracer("test", logging.NewNop()),
	}
}

func TestBehavioralConsumer_IgnoraEventosNaoComportamentais(t *testing.T) {
	sink := &recordingAlertSink{}
	c := newTestBehavioralConsumer(t, sink)

	err := c.Handle(context.Background(), domain.NormalizedEvent{
		Kind:      domain.EventTransaction,
		UserID:    "user-1",
		Timestamp: time.Now(),
	})
	require.NoError(t, err)
	assert.Empty(t, sink.alerts)
}

func TestBehavioralConsumer_DisparaAlertaParaIPDeAltoRisco(t *testing.T) {
	sink := &recordingAlertSink{}
	c := newTestBehavioralConsumer(t, sink)

	ev := domain.NormalizedEvent{
		EventID:    "ev-1",
		Kind:       domain.EventAuthentication,
		UserID:     "user-1",
		TenantID:   "tenant-1",
		RegionCode: "AO",
		Timestamp:  time.Now(),
		Context: domain.AuthContext{
			UserID:       "user-1",
			LocationData: domain.LocationData{IP: "1.2.3.4", CountryCode: "KP"},
			Metadata:     map[string]interface{}{"success": true},
		},
	}

	err := c.Handle(context.Background(), ev)
	require.NoError(t, err)
	require.NotEmpty(t, sink.alerts)
	assert.Equal(t, "behavioral_anomaly", sink.alerts[0].Type)
}

func TestBehavioralConsumer_AtualizaContadoresDePerfil(t *testing.T) {
	sink := &recordingAlertSink{}
	c := newTestBehavioralConsumer(t, sink)

	ev := domain.NormalizedEvent{
		EventID:    "ev-2",
		Kind:       domain.EventAuthentication,
		UserID:     "user-2",
		TenantID:   "tenant-1",
		RegionCode: "AO",
		Timestamp:  time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC),
		Context: domain.AuthContext{
			UserID:   "user-2",
			Metadata: map[string]interface{}{"success": false},
		},
	}

	require.NoError(t, c.Handle(context.Background(), ev))

	profile := c.Store.GetProfile(context.Background(), "user-2")
	assert.Equal(t, 1, profile.UsualHourCounts[10])
	assert.Equal(t, 1, profile.AuthStats.ConsecutiveFailures)
}

func newTestTransactionConsumer(sink *recordingAlertSink, analyzers map[string]*regional.Analyzer) *TransactionConsumer {
	return NewTransactionConsumer(analyzers, fixedPolicyProvider{policy: lowThresholdPolicy()}, sink, logging.NewNop())
}

func testRegionalAnalyzers(t *testing.T) map[string]*regional.Analyzer {
	t.Helper()
	table, err := regional.LoadEmbedded("AO")
	require.NoError(t, err)
	return map[string]*regional.Analyzer{"AO": regional.NewAnalyzer(table)}
}

func TestTransactionConsumer_IgnoraEventosNaoTransacionais(t *testing.T) {
	sink := &recordingAlertSink{}
	c := newTestTransactionConsumer(sink, testRegionalAnalyzers(t))

	err := c.Handle(context.Background(), domain.NormalizedEvent{Kind: domain.EventAuthentication})
	require.NoError(t, err)
	assert.Empty(t, sink.alerts)
}

func TestTransactionConsumer_SinalizaTransacaoDeAltoValor(t *testing.T) {
	sink := &recordingAlertSink{}
	c := newTestTransactionConsumer(sink, testRegionalAnalyzers(t))

	ev := domain.NormalizedEvent{
		EventID:    "tx-ev-1",
		Kind:       domain.EventTransaction,
		UserID:     "user-3",
		TenantID:   "tenant-1",
		RegionCode: "AO",
		Timestamp:  time.Now(),
		Transaction: &domain.TransactionEvent{
			TransactionID:  "tx-1",
			Channel:        "transfer",
			Amount:         200000,
			CounterpartyID: "unknown-recipient",
		},
	}

	require.NoError(t, c.Handle(context.Background(), ev))
	require.NotEmpty(t, sink.alerts)
	assert.Equal(t, "transaction_risk", sink.alerts[0].Type)
}

func TestTransactionConsumer_VelocidadeDeCorredorElevada(t *testing.T) {
	sink := &recordingAlertSink{}
	c := newTestTransactionConsumer(sink, testRegionalAnalyzers(t))

	base := time.Now()
	for i := 0; i < maxCorridorTransactionsPerWindow+2; i++ {
		ev := domain.NormalizedEvent{
			EventID:    "tx-corridor",
			Kind:       domain.EventTransaction,
			UserID:     "user-4",
			TenantID:   "tenant-1",
			RegionCode: "AO",
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
			Transaction: &domain.TransactionEvent{
				TransactionID: "tx-c",
				Channel:       "transfer",
				Amount:        10,
				SourceAccount: "acc-a",
				DestAccount:   "acc-b",
			},
		}
		require.NoError(t, c.Handle(context.Background(), ev))
	}

	require.NotEmpty(t, sink.alerts)
	found := false
	for _, a := range sink.alerts {
		for _, f := range a.Anomalies {
			if f == "high_corridor_velocity" {
				found = true
			}
		}
	}
	assert.True(t, found)
}

type fixedDocumentRules struct {
	rules DocumentRules
}

func (f fixedDocumentRules) RulesFor(countryCode, documentType string) DocumentRules { return f.rules }

func TestDocumentConsumer_SinalizaDocumentoExpirado(t *testing.T) {
	sink := &recordingAlertSink{}
	c := NewDocumentConsumer(fixedDocumentRules{rules: DocumentRules{MinConfidenceScore: 0.5}}, fixedPolicyProvider{policy: lowThresholdPolicy()}, sink, logging.NewNop())

	ev := domain.NormalizedEvent{
		EventID:    "doc-ev-1",
		Kind:       domain.EventDocument,
		UserID:     "user-5",
		TenantID:   "tenant-1",
		RegionCode: "AO",
		Timestamp:  time.Now(),
		Document: &domain.DocumentEvent{
			DocumentID:     "doc-1",
			DocumentType:   "passport",
			IssuingCountry: "AO",
			DocumentNumber: "AB123456",
			ValidFrom:      time.Now().Add(-10 * 365 * 24 * time.Hour),
			ValidUntil:     time.Now().Add(-24 * time.Hour),
		},
		Metadata: map[string]interface{}{"confidence_score": 0.9},
	}

	require.NoError(t, c.Handle(context.Background(), ev))
	require.NotEmpty(t, sink.alerts)
	assert.Contains(t, sink.alerts[0].Anomalies, "expired_document")
}

func TestDocumentConsumer_DetectaReutilizacaoEntreUsuarios(t *testing.T) {
	sink := &recordingAlertSink{}
	c := NewDocumentConsumer(fixedDocumentRules{rules: DocumentRules{}}, fixedPolicyProvider{policy: lowThresholdPolicy()}, sink, logging.NewNop())

	first := domain.NormalizedEvent{
		Kind:       domain.EventDocument,
		UserID:     "user-a",
		TenantID:   "tenant-1",
		RegionCode: "AO",
		Timestamp:  time.Now(),
		Document:   &domain.DocumentEvent{DocumentID: "doc-x", DocumentNumber: "SAME123"},
		Metadata:   map[string]interface{}{"confidence_score": 0.95},
	}
	second := first
	second.UserID = "user-b"
	second.Document = &domain.DocumentEvent{DocumentID: "doc-y", DocumentNumber: "SAME123"}
	second.Timestamp = first.Timestamp.Add(time.Minute)

	require.NoError(t, c.Handle(context.Background(), first))
	require.NoError(t, c.Handle(context.Background(), second))

	require.NotEmpty(t, sink.alerts)
	last := sink.alerts[len(sink.alerts)-1]
	found := false
	for _, f := range last.Anomalies {
		if f == "document_reused_by_other_user:user-a" {
			found = true
		}
	}
	assert.True(t, found)
}
