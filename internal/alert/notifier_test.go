package alert

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innovabiz/iam-fraud-core/internal/domain"
	"github.com/innovabiz/iam-fraud-core/internal/gateway"
	"github.com/innovabiz/iam-fraud-core/internal/telemetry/logging"
)

type stubSender struct {
	mu        sync.Mutex
	calls     int
	failUntil int // number of calls that return a transient error before succeeding
	permanent bool
	requests  []gateway.SendRequest
}

func (s *stubSender) Send(ctx context.Context, req gateway.SendRequest) (gateway.SendResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.requests = append(s.requests, req)

	if s.permanent {
		return gateway.SendResponse{Success: false, Reason: "rejected"}, nil
	}
	if s.calls <= s.failUntil {
		return gateway.SendResponse{}, domain.ErrTransientExternal
	}
	return gateway.SendResponse{Success: true, NotificationID: "notif-" + req.Recipient}, nil
}

func baseAlert() domain.FraudAlert {
	return domain.FraudAlert{
		AlertID:    "alert-1",
		UserID:     "user-1",
		TenantID:   "tenant-1",
		RegionCode: "AO",
		Type:       "behavioral_anomaly",
		Severity:   domain.SeverityMedium,
		Status:     domain.AlertStatusNew,
		RiskScore:  0.75,
		CreatedAt:  time.Unix(0, 0),
	}
}

func TestNotifier_DespachaComSucessoParaUsuario(t *testing.T) {
	sender := &stubSender{}
	n := NewNotifier(sender, NewEscalationMatrix(), logging.NewNop())

	result, err := n.Dispatch(context.Background(), baseAlert())

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Len(t, result.DeliveredIDs, 2) // push + email
	assert.Equal(t, 2, sender.calls)
}

func TestNotifier_CooldownSuprimeSegundoDisparo(t *testing.T) {
	sender := &stubSender{}
	n := NewNotifier(sender, NewEscalationMatrix(), logging.NewNop())
	n.Cooldown = 600 * time.Second

	first := baseAlert()
	first.AlertID = "alert-a"
	first.CreatedAt = time.Unix(0, 0)

	second := baseAlert()
	second.AlertID = "alert-b"
	second.CreatedAt = time.Unix(300, 0)

	r1, err := n.Dispatch(context.Background(), first)
	require.NoError(t, err)
	assert.True(t, r1.Success)

	r2, err := n.Dispatch(context.Background(), second)
	require.NoError(t, err)
	assert.False(t, r2.Success)
	assert.Equal(t, "COOLDOWN", r2.Reason)
}

func TestNotifier_IdempotenteParaOMesmoAlertID(t *testing.T) {
	sender := &stubSender{}
	n := NewNotifier(sender, NewEscalationMatrix(), logging.NewNop())

	alert := baseAlert()
	r1, err := n.Dispatch(context.Background(), alert)
	require.NoError(t, err)

	callsAfterFirst := sender.calls

	r2, err := n.Dispatch(context.Background(), alert)
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
	assert.Equal(t, callsAfterFirst, sender.calls) // no re-send
}

func TestNotifier_OmiteUsuarioQuandoContaComprometida(t *testing.T) {
	sender := &stubSender{}
	n := NewNotifier(sender, NewEscalationMatrix(), logging.NewNop())

	a := baseAlert()
	a.Anomalies = []string{"account_compromise"}

	result, err := n.Dispatch(context.Background(), a)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, result.DeliveredIDs) // no recipients at all: no matrix entry, user excluded
	assert.Equal(t, 0, sender.calls)
}

func TestNotifier_EscalaParaEquipeDeSegurancaEmSeveridadeAlta(t *testing.T) {
	sender := &stubSender{}
	matrix := DefaultEscalationMatrix(map[string]string{"AO": "security-ao"})
	n := NewNotifier(sender, matrix, logging.NewNop())

	a := baseAlert()
	a.Severity = domain.SeverityCritical

	result, err := n.Dispatch(context.Background(), a)
	require.NoError(t, err)
	assert.True(t, result.Success)

	var sawSecurityTeam bool
	for _, req := range sender.requests {
		if req.Recipient == "security-ao" {
			sawSecurityTeam = true
		}
	}
	assert.True(t, sawSecurityTeam)
}

func TestNotifier_RetentaAposFalhaTransitoriaEEntaoSucesso(t *testing.T) {
	sender := &stubSender{failUntil: 1}
	n := NewNotifier(sender, NewEscalationMatrix(), logging.NewNop())
	n.MaxRetries = 3

	result, err := n.Dispatch(context.Background(), baseAlert())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Greater(t, sender.calls, 2) // the first send failed and was retried, so calls exceed the sends
}

func TestNotifier_FalhaPermanenteRegistraFailure(t *testing.T) {
	sender := &stubSender{permanent: true}
	n := NewNotifier(sender, NewEscalationMatrix(), logging.NewNop())

	result, err := n.Dispatch(context.Background(), baseAlert())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Failures)
}

func TestEscalationMatrix_ResolveComCorrespondenciaExataEFallback(t *testing.T) {
	m := NewEscalationMatrix()
	m.Set(EscalationKey{RegionCode: "BR", Severity: domain.SeverityHigh}, []domain.AlertRecipient{{RecipientID: "team-br"}})
	m.Set(EscalationKey{RegionCode: "BR", Severity: domain.SeverityHigh, Type: "account_compromise"}, []domain.AlertRecipient{{RecipientID: "team-br-ato"}})

	exact := m.Resolve("BR", domain.SeverityHigh, "account_compromise")
	assert.Equal(t, []domain.AlertRecipient{{RecipientID: "team-br-ato"}}, exact)

	fallback := m.Resolve("BR", domain.SeverityHigh, "transaction_risk")
	assert.Equal(t, []domain.AlertRecipient{{RecipientID: "team-br"}}, fallback)

	missing := m.Resolve("PT", domain.SeverityHigh, "transaction_risk")
	assert.Nil(t, missing)
}

func TestStore_LifecycleDeAlerta(t *testing.T) {
	s := NewStore(logging.NewNop())
	a := baseAlert()
	s.Track(a)

	require.NoError(t, s.Escalate(context.Background(), a.AlertID, "team-ao"))
	active := s.Active(domain.SeverityLow)
	require.Len(t, active, 1)
	assert.Equal(t, domain.AlertStatusEscalated, active[0].Status)
	assert.Equal(t, "team-ao", active[0].AssignedTo)

	require.NoError(t, s.UpdateStatus(context.Background(), a.AlertID, domain.AlertStatusClosed))
	assert.Empty(t, s.Active(domain.SeverityLow))
}

func TestStore_AutoResolveFechaAlertasAntigosNaoEscalados(t *testing.T) {
	s := NewStore(logging.NewNop())
	old := baseAlert()
	old.AlertID = "alert-old"
	old.CreatedAt = time.Unix(0, 0)
	s.Track(old)

	resolved := s.AutoResolve(time.Unix(0, 0).Add(2*time.Hour), time.Hour)
	assert.Equal(t, 1, resolved)
	assert.Empty(t, s.Active(domain.SeverityLow))
}
