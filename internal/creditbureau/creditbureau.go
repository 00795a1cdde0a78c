// Package creditbureau implements the §6 "external connectors
// (interface-only)" credit-bureau contract:
// checkCreditScore(user_id) -> {success, credit_score, has_restrictions,
// is_watchlisted, ...}. The core never talks to a real bureau; it only
// declares the interface a signal processor or consumer could call and
// ships one illustrative adapter plus a provider factory, grounded on the
// teacher's src/bureau-credito/adapters.CreditProvider /
// CreditProviderFactory — narrowed from that package's full batch/health
// /multi-provider surface to the single call this spec's core actually
// consumes.
package creditbureau

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/innovabiz/iam-fraud-core/internal/domain"
)

// ScoreRequest is the minimal input the core needs to ask a bureau for a
// score, mirroring the teacher's CreditReportRequest narrowed to fields
// the risk pipeline actually has on hand at evaluation time.
type ScoreRequest struct {
	UserID         string
	TenantID       string
	DocumentNumber string
	RequestReason  string // "AUTH", "TRANSACTION", per the teacher's vocabulary
}

// ScoreResponse is the §6-documented shape:
// {success, credit_score, has_restrictions, is_watchlisted, ...}.
type ScoreResponse struct {
	Success         bool
	CreditScore     int // 0-999, teacher's CreditReportResponse.CreditScore range
	HasRestrictions bool
	IsWatchlisted   bool
	TrustLevel      string
	ProviderID      string
	FromCache       bool
}

// Provider is the external credit-bureau contract. internal/signals or
// internal/consumers callers depend only on this interface; no concrete
// bureau integration ships in this module.
type Provider interface {
	CheckCreditScore(ctx context.Context, req ScoreRequest) (ScoreResponse, error)
	ProviderID() string
}

// Factory mirrors the teacher's adapters.CreditProviderFactory: a
// registry of named provider constructors, so a deployment can register
// its real bureau adapter without this package knowing about it.
type Factory struct {
	mu        sync.RWMutex
	providers map[string]func() Provider
}

// NewFactory returns a Factory pre-registered with the "mock" provider,
// the only concrete adapter this module ships (§1: credit-bureau
// adapters are "external collaborators, interface-only").
func NewFactory() *Factory {
	f := &Factory{providers: make(map[string]func() Provider)}
	f.Register("mock", func() Provider { return NewMockProvider() })
	return f
}

// Register adds a named provider constructor, failing if the name is
// already taken — matching the teacher's RegisterProvider duplicate
// check.
func (f *Factory) Register(name string, ctor func() Provider) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.providers[name]; exists {
		return fmt.Errorf("credit provider %q already registered", name)
	}
	f.providers[name] = ctor
	return nil
}

// Create instantiates a named provider.
func (f *Factory) Create(name string) (Provider, error) {
	f.mu.RLock()
	ctor, ok := f.providers[name]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("credit provider %q not registered", name)
	}
	return ctor(), nil
}

// MockProvider is a deterministic stand-in used by tests and local
// development; it never makes a network call. A real deployment swaps
// in its bureau's HTTP/gRPC adapter behind the same Provider interface.
type MockProvider struct {
	watchlist map[string]bool
}

// NewMockProvider returns a MockProvider with an empty watchlist.
func NewMockProvider() *MockProvider {
	return &MockProvider{watchlist: make(map[string]bool)}
}

// Watchlist marks userID as watchlisted for subsequent calls, for tests
// that need to exercise the is_watchlisted branch.
func (m *MockProvider) Watchlist(userID string) {
	m.watchlist[userID] = true
}

// CheckCreditScore returns a deterministic passing score unless the
// user was marked via Watchlist. Errors are wrapped in
// domain.ErrTransientExternal so callers can dispatch retry behaviour
// the same way they do for gateway/broker timeouts (§7 category 1).
func (m *MockProvider) CheckCreditScore(ctx context.Context, req ScoreRequest) (ScoreResponse, error) {
	select {
	case <-ctx.Done():
		return ScoreResponse{}, fmt.Errorf("%w: credit bureau check canceled: %v", domain.ErrTransientExternal, ctx.Err())
	default:
	}
	if req.UserID == "" {
		return ScoreResponse{}, fmt.Errorf("%w: credit bureau check missing user_id", domain.ErrBusinessLogic)
	}

	watchlisted := m.watchlist[req.UserID]
	score := 750
	if watchlisted {
		score = 300
	}
	return ScoreResponse{
		Success:         true,
		CreditScore:     score,
		HasRestrictions: watchlisted,
		IsWatchlisted:   watchlisted,
		TrustLevel:      trustLevelFor(score),
		ProviderID:      "mock",
	}, nil
}

// ProviderID implements Provider.
func (m *MockProvider) ProviderID() string { return "mock" }

func trustLevelFor(score int) string {
	switch {
	case score >= 800:
		return "VERY_HIGH"
	case score >= 650:
		return "HIGH"
	case score >= 500:
		return "MEDIUM"
	case score >= 350:
		return "LOW"
	default:
		return "VERY_LOW"
	}
}

// CallDeadline is the §5 default per-call deadline for external
// connector calls ("external connector calls... under a per-call
// deadline (default 10 s)").
const CallDeadline = 10 * time.Second
