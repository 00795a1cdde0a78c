package alert

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innovabiz/iam-fraud-core/internal/domain"
	"github.com/innovabiz/iam-fraud-core/internal/telemetry/logging"
)

func TestMemoryCooldownStore_RastreiaUltimoDisparoEResultado(t *testing.T) {
	s := NewMemoryCooldownStore()
	ctx := context.Background()

	_, ok := s.LastDispatch(ctx, "user-1")
	assert.False(t, ok)

	now := time.Unix(1000, 0)
	s.RecordDispatch(ctx, "user-1", now)
	got, ok := s.LastDispatch(ctx, "user-1")
	require.True(t, ok)
	assert.True(t, got.Equal(now))

	s.RecordResult(ctx, "alert-1", domain.DispatchResult{Success: true, DeliveredIDs: []string{"n1"}})
	result, ok := s.CachedResult(ctx, "alert-1")
	require.True(t, ok)
	assert.True(t, result.Success)
}

func newTestRedisStore(t *testing.T, cooldown time.Duration) (*RedisCooldownStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisCooldownStore(client, cooldown), mr
}

func TestRedisCooldownStore_CooldownExpiraComOTTL(t *testing.T) {
	store, mr := newTestRedisStore(t, time.Minute)
	ctx := context.Background()

	_, ok := store.LastDispatch(ctx, "user-1")
	assert.False(t, ok)

	now := time.Now()
	store.RecordDispatch(ctx, "user-1", now)

	got, ok := store.LastDispatch(ctx, "user-1")
	require.True(t, ok)
	assert.WithinDuration(t, now, got, time.Second)

	mr.FastForward(2 * time.Minute)
	_, ok = store.LastDispatch(ctx, "user-1")
	assert.False(t, ok, "cooldown key should expire with the TTL")
}

func TestRedisCooldownStore_CacheiaResultadoDeDispatch(t *testing.T) {
	store, _ := newTestRedisStore(t, time.Minute)
	ctx := context.Background()

	result := domain.DispatchResult{Success: true, DeliveredIDs: []string{"notif-1", "notif-2"}}
	store.RecordResult(ctx, "alert-1", result)

	got, ok := store.CachedResult(ctx, "alert-1")
	require.True(t, ok)
	assert.Equal(t, result, got)

	_, ok = store.CachedResult(ctx, "unknown-alert")
	assert.False(t, ok)
}

func TestNotifier_AceitaCooldownStoreInjetado(t *testing.T) {
	store, _ := newTestRedisStore(t, 600*time.Second)
	sender := &stubSender{}
	n := NewNotifier(sender, NewEscalationMatrix(), logging.NewNop())
	n.Cooldowns = store

	first := baseAlert()
	first.AlertID = "alert-x"
	first.CreatedAt = time.Unix(0, 0)

	second := baseAlert()
	second.AlertID = "alert-y"
	second.CreatedAt = time.Unix(10, 0)

	r1, err := n.Dispatch(context.Background(), first)
	require.NoError(t, err)
	assert.True(t, r1.Success)

	r2, err := n.Dispatch(context.Background(), second)
	require.NoError(t, err)
	assert.False(t, r2.Success)
	assert.Equal(t, "COOLDOWN", r2.Reason)
}
