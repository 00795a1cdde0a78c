// Package alert implements C9: cooldown-suppressed, idempotent alert
// dispatch with escalation-matrix recipient resolution and a retrying
// gateway transport, plus the FraudAlert status lifecycle. Grounded on
// the teacher's alert_escalation.go (AlertEscalationService,
// EscalationRule, RegionSpecificConfig) and agent_communication.go's
// HTTP-dispatch shape, adapted from the teacher's arbitrary-action
// escalation model to this spec's narrower dispatch(alert) contract.
package alert

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/innovabiz/iam-fraud-core/internal/domain"
	"github.com/innovabiz/iam-fraud-core/internal/gateway"
	"github.com/innovabiz/iam-fraud-core/internal/telemetry/logging"
	"github.com/innovabiz/iam-fraud-core/internal/telemetry/metrics"
)

// DefaultCooldown matches the policy default (domain.AdaptivePolicy.AlertCooldownSecs).
const DefaultCooldown = 600 * time.Second

const defaultMaxRetries = 3

// RetryQueue is the §6 "durable retry queue (interface-only here)": what
// a dispatch that exhausted its gateway retries is handed to. No
// concrete implementation ships with this module; NoopRetryQueue is the
// only adapter, used when a deployment has not wired a real one yet.
type RetryQueue interface {
	Enqueue(ctx context.Context, alert domain.FraudAlert, failures []string) error
}

// NoopRetryQueue discards what it's given. Safe default, not a
// production retry strategy.
type NoopRetryQueue struct{}

// Enqueue implements RetryQueue.
func (NoopRetryQueue) Enqueue(ctx context.Context, alert domain.FraudAlert, failures []string) error {
	return nil
}

// Notifier implements §4.9's dispatch(alert) contract: cooldown
// suppression, recipient resolution, retrying transport, and alert_id
// idempotency.
type Notifier struct {
	Gateway    gateway.Sender
	Matrix     *EscalationMatrix
	Store      *Store // optional; tracks dispatched alerts for lifecycle queries
	RetryQueue RetryQueue
	Cooldown   time.Duration
	MaxRetries int
	Logger     *logging.Logger
	Cooldowns  CooldownStore // defaults to an in-memory store if nil

	mu sync.Mutex
}

// NewNotifier builds a Notifier with the spec defaults (600s cooldown,
// 3 gateway retries, a no-op retry queue, in-memory cooldown tracking).
func NewNotifier(sender gateway.Sender, matrix *EscalationMatrix, logger *logging.Logger) *Notifier {
	return &Notifier{
		Gateway:    sender,
		Matrix:     matrix,
		RetryQueue: NoopRetryQueue{},
		Cooldown:   DefaultCooldown,
		MaxRetries: defaultMaxRetries,
		Logger:     logger,
		Cooldowns:  NewMemoryCooldownStore(),
	}
}

func (n *Notifier) cooldownStore() CooldownStore {
	if n.Cooldowns == nil {
		n.mu.Lock()
		if n.Cooldowns == nil {
			n.Cooldowns = NewMemoryCooldownStore()
		}
		n.mu.Unlock()
	}
	return n.Cooldowns
}

// Dispatch implements §4.9. It is idempotent on alert.AlertID: a
// redelivered alert (Kafka at-least-once egress, §6) returns the
// previously computed result without re-sending or re-checking cooldown.
func (n *Notifier) Dispatch(ctx context.Context, alert domain.FraudAlert) (domain.DispatchResult, error) {
	if cached, ok := n.cooldownStore().CachedResult(ctx, alert.AlertID); ok {
		return cached, nil
	}

	if suppressed, result := n.checkCooldown(ctx, alert); suppressed {
		metrics.AlertsSuppressedTotal.WithLabelValues(alert.TenantID).Inc()
		n.Logger.InfoCtx(ctx, "alert suppressed by cooldown",
			zap.String("alert_id", alert.AlertID), zap.String("user_id", alert.UserID))
		n.cooldownStore().RecordResult(ctx, alert.AlertID, result)
		return result, nil
	}

	recipients := n.resolveRecipients(alert)
	result := domain.DispatchResult{Success: true}

	for _, recipient := range recipients {
		for _, channel := range recipient.Channels {
			id, err := n.sendWithRetry(ctx, alert, recipient, channel)
			if err != nil {
				result.Success = false
				result.Failures = append(result.Failures, fmt.Sprintf("%s/%s: %v", recipient.RecipientID, channel, err))
				metrics.AlertsSentTotal.WithLabelValues(channel, "failure").Inc()
				continue
			}
			result.DeliveredIDs = append(result.DeliveredIDs, id)
			metrics.AlertsSentTotal.WithLabelValues(channel, "success").Inc()
		}
	}

	if !result.Success {
		if err := n.RetryQueue.Enqueue(ctx, alert, result.Failures); err != nil {
			n.Logger.ErrorCtx(ctx, "failed to enqueue alert to durable retry queue", zap.Error(err))
		}
	}

	if n.Store != nil {
		n.Store.Track(alert)
	}

	n.cooldownStore().RecordResult(ctx, alert.AlertID, result)
	return result, nil
}

// Notify adapts Dispatch to the consumers.AlertSink shape (a single
// error return) so a *Notifier can be wired directly as a C8 consumer's
// alert sink: cooldown suppression is not an error, a real dispatch
// failure is.
func (n *Notifier) Notify(ctx context.Context, alert domain.FraudAlert) error {
	result, err := n.Dispatch(ctx, alert)
	if err != nil {
		return err
	}
	if !result.Success && result.Reason != "COOLDOWN" {
		return fmt.Errorf("alert dispatch failed: %v", result.Failures)
	}
	return nil
}

// checkCooldown reports whether alert.UserID dispatched within the last
// Cooldown window, using alert.CreatedAt as the dispatch clock so tests
// don't depend on wall time.
func (n *Notifier) checkCooldown(ctx context.Context, alert domain.FraudAlert) (bool, domain.DispatchResult) {
	cooldown := n.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}

	store := n.cooldownStore()
	if last, ok := store.LastDispatch(ctx, alert.UserID); ok && alert.CreatedAt.Sub(last) < cooldown {
		return true, domain.DispatchResult{Success: false, Reason: "COOLDOWN"}
	}
	store.RecordDispatch(ctx, alert.UserID, alert.CreatedAt)
	return false, domain.DispatchResult{}
}

// resolveRecipients implements §4.9's recipient-resolution rule: the
// user is a recipient unless account_compromise is among the anomalies,
// and HIGH+ severity additionally escalates to the security team.
func (n *Notifier) resolveRecipients(alert domain.FraudAlert) []domain.AlertRecipient {
	var recipients []domain.AlertRecipient

	if !containsAnomaly(alert.Anomalies, "account_compromise") {
		recipients = append(recipients, domain.AlertRecipient{RecipientID: alert.UserID, Channels: []string{"push", "email"}})
	}

	if alert.Severity >= domain.SeverityHigh && n.Matrix != nil {
		recipients = append(recipients, n.Matrix.Resolve(alert.RegionCode, alert.Severity, alert.Type)...)
	}

	return recipients
}

func (n *Notifier) sendWithRetry(ctx context.Context, alert domain.FraudAlert, recipient domain.AlertRecipient, channel string) (string, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = 0 // bounded by retry count below, not wall-clock budget
	bounded := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(n.maxRetries())), ctx)

	req := gateway.SendRequest{
		Channel:   channel,
		Recipient: recipient.RecipientID,
		Notification: gateway.Notification{
			Template:   alert.Type,
			Priority:   priorityFor(alert.Severity),
			RegionCode: alert.RegionCode,
			Data: map[string]interface{}{
				"risk_score":  alert.RiskScore,
				"anomalies":   alert.Anomalies,
				"title":       alert.Title,
				"description": alert.Description,
			},
		},
		Tracking: gateway.Tracking{SourceSystem: "fraud-core", RequestID: alert.AlertID},
	}

	var notificationID string
	attempt := func() error {
		resp, err := n.Gateway.Send(ctx, req)
		if err != nil {
			if errors.Is(err, domain.ErrTransientExternal) {
				return err // retryable
			}
			return backoff.Permanent(err)
		}
		if !resp.Success {
			return backoff.Permanent(fmt.Errorf("gateway rejected notification: %s", resp.Reason))
		}
		notificationID = resp.NotificationID
		return nil
	}

	if err := backoff.Retry(attempt, bounded); err != nil {
		return "", err
	}
	return notificationID, nil
}

func (n *Notifier) maxRetries() int {
	if n.MaxRetries <= 0 {
		return defaultMaxRetries
	}
	return n.MaxRetries
}


func containsAnomaly(anomalies []string, target string) bool {
	for _, a := range anomalies {
		if a == target {
			return true
		}
	}
	return false
}

func priorityFor(severity domain.AlertSeverity) int {
	return int(severity)
}
