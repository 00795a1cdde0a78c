package contextstore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innovabiz/iam-fraud-core/internal/contextstore"
	"github.com/innovabiz/iam-fraud-core/internal/domain"
	"github.com/innovabiz/iam-fraud-core/internal/telemetry/logging"
)

func newEvent(userID, country, city string, at time.Time) domain.NormalizedEvent {
	return domain.NormalizedEvent{
		EventID:  "evt-" + userID,
		Kind:     domain.EventAuthentication,
		UserID:   userID,
		TenantID: "tenant-a",
		Timestamp: at,
		Context: domain.AuthContext{
			UserID:     userID,
			TenantID:   "tenant-a",
			Timestamp:  at,
			DeviceData: map[string]interface{}{"device_id": "device-1"},
			LocationData: domain.LocationData{
				CountryCode: country,
				City:        city,
			},
		},
	}
}

func TestStore_GetProfile_CriaPerfilPadraoParaUsuarioDesconhecido(t *testing.T) {
	s := contextstore.New(time.Hour, logging.NewNop())
	defer s.Close()

	profile := s.GetProfile(context.Background(), "user-1")
	assert.Equal(t, "user-1", profile.UserID)
	assert.Empty(t, profile.RecentEvents)
}

func TestStore_AppendRecentEvent_BoundedTopKLocations(t *testing.T) {
	s := contextstore.New(time.Hour, logging.NewNop())
	defer s.Close()

	ctx := context.Background()
	now := time.Now()

	// 11 distinct countries pushed in; top-K list must cap at 10 (P4).
	for i := 0; i < 11; i++ {
		country := string(rune('A' + i))
		s.AppendRecentEvent(ctx, "user-2", newEvent("user-2", country, "city", now))
	}

	profile := s.GetProfile(ctx, "user-2")
	require.LessOrEqual(t, len(profile.UsualLocations), 10)
}

func TestStore_RecentEvents_PurgaForaDaJanelaDeMemoria(t *testing.T) {
	s := contextstore.New(50*time.Millisecond, logging.NewNop())
	defer s.Close()

	ctx := context.Background()
	s.AppendRecentEvent(ctx, "user-3", newEvent("user-3", "AO", "Luanda", time.Now()))

	events := s.RecentEvents(ctx, "user-3")
	require.Len(t, events, 1)

	time.Sleep(80 * time.Millisecond)

	events = s.RecentEvents(ctx, "user-3")
	assert.Empty(t, events, "events older than the memory window must be purged (P5)")
}

func TestStore_ConcurrentAccess_DoisUsuariosNaoSeBloqueiamMutuamente(t *testing.T) {
	s := contextstore.New(time.Hour, logging.NewNop())
	defer s.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	for _, userID := range []string{"user-a", "user-b", "user-c"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s.AppendRecentEvent(ctx, id, newEvent(id, "BR", "SP", time.Now()))
			}
		}(userID)
	}
	wg.Wait()

	for _, userID := range []string{"user-a", "user-b", "user-c"} {
		profile := s.GetProfile(ctx, userID)
		assert.Equal(t, userID, profile.UserID)
	}
}

func TestStore_UpdateProfile_AplicaMutacaoSobLockDoUsuario(t *testing.T) {
	s := contextstore.New(time.Hour, logging.NewNop())
	defer s.Close()

	ctx := context.Background()
	s.UpdateProfile(ctx, "user-4", func(p *domain.BehavioralProfile) {
		p.AuthStats.TotalSuccesses++
	})
	s.UpdateProfile(ctx, "user-4", func(p *domain.BehavioralProfile) {
		p.AuthStats.TotalSuccesses++
	})

	profile := s.GetProfile(ctx, "user-4")
	assert.Equal(t, int64(2), profile.AuthStats.TotalSuccesses)
}
