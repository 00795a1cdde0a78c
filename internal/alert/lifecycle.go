package alert

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/innovabiz/iam-fraud-core/internal/domain"
	"github.com/innovabiz/iam-fraud-core/internal/telemetry/logging"
)

// Store tracks dispatched alerts through their status lifecycle
// (new -> assigned -> in_progress -> escalated -> resolved/closed),
// ported from the teacher's AlertEscalationService active-alert map
// (there a sync.Map; here a mutex-guarded map since this module's alert
// volume does not need sync.Map's read-heavy-disjoint-key optimization).
type Store struct {
	mu     sync.RWMutex
	alerts map[string]*domain.FraudAlert
	logger *logging.Logger
}

// NewStore returns an empty lifecycle store.
func NewStore(logger *logging.Logger) *Store {
	return &Store{alerts: make(map[string]*domain.FraudAlert), logger: logger}
}

// Track registers or overwrites the tracked copy of alert.
func (s *Store) Track(alert domain.FraudAlert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts[alert.AlertID] = &alert
}

// UpdateStatus transitions a tracked alert, ported from
// AlertEscalationService.UpdateAlertStatus. Closed/false-alarm alerts
// are dropped from the active set, matching the teacher's behavior.
func (s *Store) UpdateStatus(ctx context.Context, alertID string, status domain.AlertStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[alertID]
	if !ok {
		return fmt.Errorf("alert %s not tracked", alertID)
	}

	old := a.Status
	a.Status = status
	if status == domain.AlertStatusResolved || status == domain.AlertStatusClosed {
		now := time.Now()
		a.ResolvedAt = &now
	}

	s.logger.InfoCtx(ctx, "alert status updated",
		zap.String("alert_id", alertID), zap.String("from", string(old)), zap.String("to", string(status)))

	if status == domain.AlertStatusClosed || status == domain.AlertStatusFalseAlarm {
		delete(s.alerts, alertID)
	}
	return nil
}

// Escalate assigns alertID to assignTo and marks it escalated, ported
// from AlertEscalationService.EscalateAlert (the teacher also bumps a
// numeric priority field this module's FraudAlert does not carry, since
// severity already doubles as the priority axis here).
func (s *Store) Escalate(ctx context.Context, alertID, assignTo string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[alertID]
	if !ok {
		return fmt.Errorf("alert %s not tracked", alertID)
	}

	a.Status = domain.AlertStatusEscalated
	a.AssignedTo = assignTo
	now := time.Now()
	a.EscalatedAt = &now

	s.logger.InfoCtx(ctx, "alert escalated", zap.String("alert_id", alertID), zap.String("assigned_to", assignTo))
	return nil
}

// Active returns tracked alerts at or above minSeverity, highest
// severity first and oldest-first within a severity tier, ported from
// AlertEscalationService.GetActiveAlerts's sort.Slice ordering.
func (s *Store) Active(minSeverity domain.AlertSeverity) []domain.FraudAlert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.FraudAlert
	for _, a := range s.alerts {
		if a.Severity >= minSeverity {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Severity != out[j].Severity {
			return out[i].Severity > out[j].Severity
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// AutoResolve closes tracked alerts older than ttl that never reached
// escalated/in_progress, mirroring the teacher's
// AutoResolveTimeouts-driven sweep. Returns the number resolved.
func (s *Store) AutoResolve(now time.Time, ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var resolved int
	for id, a := range s.alerts {
		if a.Status == domain.AlertStatusEscalated || a.Status == domain.AlertStatusInProgress {
			continue
		}
		if now.Sub(a.CreatedAt) >= ttl {
			delete(s.alerts, id)
			resolved++
		}
	}
	return resolved
}
