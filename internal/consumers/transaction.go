package consumers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/innovabiz/iam-fraud-core/internal/domain"
	"github.com/innovabiz/iam-fraud-core/internal/regional"
	"github.com/innovabiz/iam-fraud-core/internal/telemetry/logging"
	"github.com/innovabiz/iam-fraud-core/internal/telemetry/metrics"
)

const transactionMemoryWindow = time.Hour

// corridor is a source->destination account pair, the key of this
// consumer's own corridor velocity counter; the regional analysis does
// not receive it (SPEC_FULL supplement grounded on transaction_analysis_consumer.py's per-user
// recent_transactions memory, extended with a corridor dimension the
// original only tracks per-user).
type corridor struct {
	source string
	dest   string
}

type corridorCounter struct {
	count  int
	window []time.Time
}

// TransactionConsumer implements §4.8's transaction consumer: maintain a
// sliding 1-hour window of recent transactions per user, run the regional
// mobile-money/PIX analysis, and decide is_suspicious/is_high_risk/block.
// Grounded on transaction_analysis_consumer.py's _update_transaction_memory
// / _get_recent_user_transactions / _analyze_transaction.
type TransactionConsumer struct {
	Regional map[string]*regional.Analyzer
	Policies PolicyProvider
	Alerts   AlertSink
	Logger   *logging.Logger

	mu        sync.Mutex
	byUser    map[string][]userTransaction
	byCorridor map[corridor]*corridorCounter
	knownRecipients map[string]map[string]bool // userID -> counterpartyID set
}

type userTransaction struct {
	tx domain.TransactionEvent
	at time.Time
}

// NewTransactionConsumer returns a TransactionConsumer with its in-memory
// windows initialized.
func NewTransactionConsumer(regionalAnalyzers map[string]*regional.Analyzer, policies PolicyProvider, alerts AlertSink, logger *logging.Logger) *TransactionConsumer {
	return &TransactionConsumer{
		Regional:        regionalAnalyzers,
		Policies:        policies,
		Alerts:          alerts,
		Logger:          logger,
		byUser:          make(map[string][]userTransaction),
		byCorridor:      make(map[corridor]*corridorCounter),
		knownRecipients: make(map[string]map[string]bool),
	}
}

// Handle implements eventconsumer.Handler.
func (t *TransactionConsumer) Handle(ctx context.Context, ev domain.NormalizedEvent) error {
	if ev.Kind != domain.EventTransaction || ev.Transaction == nil {
		return nil
	}
	tx := *ev.Transaction
	now := ev.Timestamp

	history, corridorVelocity := t.recordAndSnapshot(ev.UserID, tx, now)

	analyzer, ok := t.Regional[ev.RegionCode]
	if !ok {
		t.Logger.WarnCtx(ctx, "no regional analyzer for transaction, skipping regional checks")
		return nil
	}

	analysis := analyzer.AnalyzeMobileMoneyOrPIX(tx, history, now)
	if corridorVelocity > maxCorridorTransactionsPerWindow {
		analysis.Flags = append(analysis.Flags, "high_corridor_velocity")
		analysis.Risk = minf(analysis.Risk+0.15, 1.0)
		if analysis.Recommendation == domain.VerdictAllow {
			analysis.Recommendation = domain.VerdictReview
		}
	}

	isSuspicious := analysis.Risk >= 0.6
	isHighRisk := analysis.Risk >= 0.85
	block := analysis.Risk >= 0.85 // automatic block only recommended at >= 0.85, per spec

	metrics.AssessmentsTotal.WithLabelValues(ev.TenantID, ev.RegionCode, recommendationLevel(analysis.Recommendation).String()).Inc()

	if !isSuspicious {
		return nil
	}

	pol := t.Policies.PolicyFor(ev.TenantID)
	if analysis.Risk < pol.AlertThreshold && !isHighRisk {
		return nil
	}

	alert := domain.FraudAlert{
		AlertID:     fmt.Sprintf("%s-%d", tx.TransactionID, now.UnixNano()),
		UserID:      ev.UserID,
		TenantID:    ev.TenantID,
		RegionCode:  ev.RegionCode,
		Type:        "transaction_risk",
		Severity:    severityForTransactionRisk(analysis.Risk, block),
		Status:      domain.AlertStatusNew,
		RiskScore:   analysis.Risk,
		Anomalies:   analysis.Flags,
		EventRef:    ev.EventID,
		Title:       "Suspicious transaction",
		Description: transactionReason(analysis, block),
		CreatedAt:   now,
	}
	if err := t.Alerts.Notify(ctx, alert); err != nil {
		return fmt.Errorf("notify transaction alert: %w", err)
	}
	return nil
}

// maxCorridorTransactionsPerWindow flags a source->destination pair that
// moves money unusually often within the 1-hour memory window, a pattern
// the per-user sliding window alone cannot see. The count is per exact
// account pair, whichever user sent the transaction; transfers from
// several source accounts into one destination are not summed.
const maxCorridorTransactionsPerWindow = 8

func (t *TransactionConsumer) recordAndSnapshot(userID string, tx domain.TransactionEvent, now time.Time) (regional.UserTransactionHistory, int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := now.Add(-transactionMemoryWindow)
	txs := append(t.byUser[userID], userTransaction{tx: tx, at: now})
	filtered := txs[:0]
	for _, entry := range txs {
		if entry.at.After(cutoff) {
			filtered = append(filtered, entry)
		}
	}
	t.byUser[userID] = filtered

	cr := corridor{source: tx.SourceAccount, dest: tx.DestAccount}
	counter, ok := t.byCorridor[cr]
	if !ok {
		counter = &corridorCounter{}
		t.byCorridor[cr] = counter
	}
	counter.window = append(counter.window, now)
	counter.count++
	pruneCorridor(counter, cutoff)

	if tx.CounterpartyID != "" {
		if t.knownRecipients[userID] == nil {
			t.knownRecipients[userID] = make(map[string]bool)
		}
	}
	known := t.knownRecipients[userID]
	wasKnown := known[tx.CounterpartyID]
	if tx.CounterpartyID != "" {
		known[tx.CounterpartyID] = true
	}

	var dailyVolume, monthlyVolume float64
	var recentCashInAt *time.Time
	var recentCashInAgent string
	for i := len(filtered) - 1; i >= 0; i-- {
		e := filtered[i]
		dailyVolume += e.tx.Amount
		monthlyVolume += e.tx.Amount
		if e.tx.Channel == "cash_in" && recentCashInAt == nil {
			at := e.at
			recentCashInAt = &at
			recentCashInAgent = e.tx.Agent
		}
	}

	recipients := map[string]bool{}
	for k, v := range known {
		recipients[k] = v
	}
	if !wasKnown && tx.CounterpartyID != "" {
		// the recipient being evaluated must be judged unknown for *this*
		// transaction even though it is now recorded as seen going forward
		delete(recipients, tx.CounterpartyID)
	}

	return regional.UserTransactionHistory{
		DailyVolume:       dailyVolume,
		MonthlyVolume:     monthlyVolume,
		DailyCount:        len(filtered),
		KnownRecipients:   recipients,
		RecentCashInAt:    recentCashInAt,
		RecentCashInAgent: recentCashInAgent,
	}, counter.count
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func pruneCorridor(c *corridorCounter, cutoff time.Time) {
	idx := 0
	for idx < len(c.window) && c.window[idx].Before(cutoff) {
		idx++
	}
	if idx > 0 {
		c.window = c.window[idx:]
		c.count = len(c.window)
	}
}

func severityForTransactionRisk(risk float64, block bool) domain.AlertSeverity {
	switch {
	case block:
		return domain.SeverityCritical
	case risk >= 0.75:
		return domain.SeverityHigh
	default:
		return domain.SeverityMedium
	}
}

func transactionReason(analysis regional.TransactionAnalysis, block bool) string {
	verdict := "flagged for review"
	if block {
		verdict = "recommended for automatic block"
	}
	if len(analysis.Flags) == 0 {
		return fmt.Sprintf("Transaction %s with no specific flags.", verdict)
	}
	return fmt.Sprintf("Transaction %s: %v.", verdict, analysis.Flags)
}

func recommendationLevel(v domain.TransactionVerdict) domain.RiskLevel {
	switch v {
	case domain.VerdictBlock:
		return domain.RiskLevelCritical
	case domain.VerdictReview:
		return domain.RiskLevelHigh
	default:
		return domain.RiskLevelLow
	}
}
