package creditbureau

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innovabiz/iam-fraud-core/internal/domain"
)

func TestMockProvider_ReturnsPassingScoreByDefault(t *testing.T) {
	p := NewMockProvider()

	resp, err := p.CheckCreditScore(context.Background(), ScoreRequest{UserID: "user-1", TenantID: "tenant-1"})

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, 750, resp.CreditScore)
	assert.False(t, resp.HasRestrictions)
	assert.False(t, resp.IsWatchlisted)
	assert.Equal(t, "HIGH", resp.TrustLevel)
	assert.Equal(t, "mock", resp.ProviderID)
}

func TestMockProvider_WatchlistedUserGetsLowScore(t *testing.T) {
	p := NewMockProvider()
	p.Watchlist("user-2")

	resp, err := p.CheckCreditScore(context.Background(), ScoreRequest{UserID: "user-2"})

	require.NoError(t, err)
	assert.Equal(t, 300, resp.CreditScore)
	assert.True(t, resp.HasRestrictions)
	assert.True(t, resp.IsWatchlisted)
	assert.Equal(t, "VERY_LOW", resp.TrustLevel)
}

func TestMockProvider_MissingUserIDIsBusinessLogicError(t *testing.T) {
	p := NewMockProvider()

	_, err := p.CheckCreditScore(context.Background(), ScoreRequest{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBusinessLogic))
}

func TestMockProvider_CanceledContextIsTransientExternal(t *testing.T) {
	p := NewMockProvider()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.CheckCreditScore(ctx, ScoreRequest{UserID: "user-1"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTransientExternal))
}

func TestFactory_CreateUnknownProviderFails(t *testing.T) {
	f := NewFactory()

	_, err := f.Create("does-not-exist")

	require.Error(t, err)
}

func TestFactory_RegisterDuplicateNameFails(t *testing.T) {
	f := NewFactory()

	err := f.Register("mock", func() Provider { return NewMockProvider() })

	require.Error(t, err)
}

func TestFactory_CreateMockProvider(t *testing.T) {
	f := NewFactory()

	p, err := f.Create("mock")

	require.NoError(t, err)
	assert.Equal(t, "mock", p.ProviderID())
}

func TestTrustLevelFor(t *testing.T) {
	cases := []struct {
		score int
		want  string
	}{
		{900, "VERY_HIGH"},
		{700, "HIGH"},
		{550, "MEDIUM"},
		{400, "LOW"},
		{100, "VERY_LOW"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, trustLevelFor(c.score))
	}
}
