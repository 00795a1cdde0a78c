package alert

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/innovabiz/iam-fraud-core/internal/domain"
)

// CooldownStore backs Notifier's two pieces of dispatch state: the
// per-user last-dispatch timestamp used for cooldown suppression, and the
// per-alert cached result used for alert_id idempotency on redelivery
// (§6, Kafka at-least-once egress). NewNotifier defaults to
// NewMemoryCooldownStore; RedisCooldownStore lets that state survive a
// process restart and be shared across Notifier replicas, which a plain
// in-memory map cannot do.
type CooldownStore interface {
	LastDispatch(ctx context.Context, userID string) (time.Time, bool)
	RecordDispatch(ctx context.Context, userID string, at time.Time)
	CachedResult(ctx context.Context, alertID string) (domain.DispatchResult, bool)
	RecordResult(ctx context.Context, alertID string, result domain.DispatchResult)
}

// memoryCooldownStore is the process-local default, equivalent to the
// two maps Notifier used to hold directly.
type memoryCooldownStore struct {
	mu           sync.Mutex
	lastDispatch map[string]time.Time
	results      map[string]domain.DispatchResult
}

func NewMemoryCooldownStore() CooldownStore {
	return &memoryCooldownStore{
		lastDispatch: make(map[string]time.Time),
		results:      make(map[string]domain.DispatchResult),
	}
}

func (m *memoryCooldownStore) LastDispatch(ctx context.Context, userID string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.lastDispatch[userID]
	return t, ok
}

func (m *memoryCooldownStore) RecordDispatch(ctx context.Context, userID string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastDispatch[userID] = at
}

func (m *memoryCooldownStore) CachedResult(ctx context.Context, alertID string) (domain.DispatchResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[alertID]
	return r, ok
}

func (m *memoryCooldownStore) RecordResult(ctx context.Context, alertID string, result domain.DispatchResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[alertID] = result
}

// resultCacheTTL bounds how long a dispatch result is kept for
// idempotent redelivery handling before redis reclaims the key.
const resultCacheTTL = 24 * time.Hour

// RedisCooldownStore backs CooldownStore with redis, so cooldown windows
// and dispatch idempotency survive a Notifier restart and are shared
// across every replica consuming the same alert topic. The cooldown key
// itself carries the cooldown duration as its TTL, so a suppressed
// window clears on its own without a sweeper.
type RedisCooldownStore struct {
	client    *redis.Client
	keyPrefix string
	cooldown  time.Duration
}

// NewRedisCooldownStore builds a RedisCooldownStore. cooldown should
// match the Notifier's own Cooldown so the last-dispatch key's TTL lines
// up with the window it's enforcing.
func NewRedisCooldownStore(client *redis.Client, cooldown time.Duration) *RedisCooldownStore {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &RedisCooldownStore{client: client, keyPrefix: "fraud_core:alert:", cooldown: cooldown}
}

func (r *RedisCooldownStore) lastDispatchKey(userID string) string { return r.keyPrefix + "lastdispatch:" + userID }
func (r *RedisCooldownStore) resultKey(alertID string) string      { return r.keyPrefix + "result:" + alertID }

func (r *RedisCooldownStore) LastDispatch(ctx context.Context, userID string) (time.Time, bool) {
	val, err := r.client.Get(ctx, r.lastDispatchKey(userID)).Result()
	if err != nil {
		return time.Time{}, false
	}
	at, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, false
	}
	return at, true
}

func (r *RedisCooldownStore) RecordDispatch(ctx context.Context, userID string, at time.Time) {
	r.client.Set(ctx, r.lastDispatchKey(userID), at.Format(time.RFC3339Nano), r.cooldown)
}

func (r *RedisCooldownStore) CachedResult(ctx context.Context, alertID string) (domain.DispatchResult, bool) {
	val, err := r.client.Get(ctx, r.resultKey(alertID)).Bytes()
	if err != nil {
		return domain.DispatchResult{}, false
	}
	var result domain.DispatchResult
	if err := json.Unmarshal(val, &result); err != nil {
		return domain.DispatchResult{}, false
	}
	return result, true
}

func (r *RedisCooldownStore) RecordResult(ctx context.Context, alertID string, result domain.DispatchResult) {
	encoded, err := json.Marshal(result)
	if err != nil {
		return
	}
	r.client.Set(ctx, r.resultKey(alertID), encoded, resultCacheTTL)
}
