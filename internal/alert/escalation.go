package alert

import (
	"sync"

	"github.com/innovabiz/iam-fraud-core/internal/domain"
)

// EscalationKey indexes the security-team escalation matrix by
// (region, severity, notification_type) per §4.9's "recipient
// resolution" rule. Type may be empty to mean "any alert type in this
// region at this severity", the wildcard DefaultEscalationMatrix relies
// on; grounded on the teacher's RegionSpecificConfig.DefaultEscalationTeam
// but keyed finer than the teacher's per-region-only table.
type EscalationKey struct {
	RegionCode string
	Severity   domain.AlertSeverity
	Type       string
}

// EscalationMatrix resolves which security-team recipients (and over
// which channels) get an alert once its severity reaches HIGH.
type EscalationMatrix struct {
	mu      sync.RWMutex
	entries map[EscalationKey][]domain.AlertRecipient
}

// NewEscalationMatrix returns an empty matrix; callers populate it via
// Set or start from DefaultEscalationMatrix.
func NewEscalationMatrix() *EscalationMatrix {
	return &EscalationMatrix{entries: make(map[EscalationKey][]domain.AlertRecipient)}
}

// Set registers the recipients for one key, overwriting any prior entry.
func (m *EscalationMatrix) Set(key EscalationKey, recipients []domain.AlertRecipient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = recipients
}

// Resolve looks up recipients for (region, severity, type), falling back
// to the region+severity wildcard (empty type) entry when no exact match
// exists, and returning nil when neither is configured.
func (m *EscalationMatrix) Resolve(regionCode string, severity domain.AlertSeverity, alertType string) []domain.AlertRecipient {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if recipients, ok := m.entries[EscalationKey{RegionCode: regionCode, Severity: severity, Type: alertType}]; ok {
		return recipients
	}
	if recipients, ok := m.entries[EscalationKey{RegionCode: regionCode, Severity: severity}]; ok {
		return recipients
	}
	return nil
}

// DefaultEscalationMatrix builds a region -> security-team wildcard
// matrix: HIGH gets email only, CRITICAL and EMERGENCY add SMS and push,
// per §4.9 ("channels email(+SMS+push for CRITICAL/EMERGENCY)").
func DefaultEscalationMatrix(securityTeamByRegion map[string]string) *EscalationMatrix {
	m := NewEscalationMatrix()
	for region, team := range securityTeamByRegion {
		m.Set(EscalationKey{RegionCode: region, Severity: domain.SeverityHigh}, []domain.AlertRecipient{
			{RecipientID: team, Channels: []string{"email"}},
		})
		for _, sev := range []domain.AlertSeverity{domain.SeverityCritical, domain.SeverityEmergency} {
			m.Set(EscalationKey{RegionCode: region, Severity: sev}, []domain.AlertRecipient{
				{RecipientID: team, Channels: []string{"email", "sms", "push"}},
			})
		}
	}
	return m
}
