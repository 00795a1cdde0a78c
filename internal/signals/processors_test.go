package signals_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innovabiz/iam-fraud-core/internal/domain"
	"github.com/innovabiz/iam-fraud-core/internal/signals"
)

func TestIPReputationProcessor_SinalizaVPNEPaisDeAltoRisco(t *testing.T) {
	p := signals.NewIPReputationProcessor(nil)
	now := time.Now()

	out, err := p.Process(context.Background(), signals.Request{
		Now: now,
		AuthContext: domain.AuthContext{
			LocationData: domain.LocationData{IsVPN: true, CountryCode: "KP"},
		},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "ip_reputation", out[0].Type)
}

func TestIPReputationProcessor_SemSinalParaIPLimpo(t *testing.T) {
	p := signals.NewIPReputationProcessor(nil)
	out, err := p.Process(context.Background(), signals.Request{
		Now: time.Now(),
		AuthContext: domain.AuthContext{
			LocationData: domain.LocationData{CountryCode: "PT"},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestGeoVelocityProcessor_DetectaViagemImpossivel(t *testing.T) {
	p := signals.NewGeoVelocityProcessor()
	now := time.Now()

	prior := domain.NormalizedEvent{
		Timestamp: now.Add(-10 * time.Minute),
		Context: domain.AuthContext{
			LocationData: domain.LocationData{Lat: -8.8383, Lon: 13.2344}, // Luanda
		},
	}

	out, err := p.Process(context.Background(), signals.Request{
		Now:          now,
		RecentEvents: []domain.NormalizedEvent{prior},
		AuthContext: domain.AuthContext{
			LocationData: domain.LocationData{Lat: 38.7223, Lon: -9.1393}, // Lisboa, ~10min later
		},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "geo_velocity", out[0].Type)
	assert.Equal(t, 0.95, out[0].Value)
	assert.Equal(t, 0.85, out[0].Confidence)
}

func TestGeoVelocityProcessor_SemSinalParaDeslocamentoPlausivel(t *testing.T) {
	p := signals.NewGeoVelocityProcessor()
	now := time.Now()

	prior := domain.NormalizedEvent{
		Timestamp: now.Add(-2 * time.Hour),
		Context: domain.AuthContext{
			LocationData: domain.LocationData{Lat: -8.8383, Lon: 13.2344},
		},
	}

	out, err := p.Process(context.Background(), signals.Request{
		Now:          now,
		RecentEvents: []domain.NormalizedEvent{prior},
		AuthContext: domain.AuthContext{
			LocationData: domain.LocationData{Lat: -8.84, Lon: 13.24}, // a few hundred meters away
		},
	})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestBehavioralProcessor_SemSinalComPoucoHistorico(t *testing.T) {
	p := signals.NewBehavioralProcessor()
	out, err := p.Process(context.Background(), signals.Request{
		Now:     time.Date(2026, 1, 5, 3, 0, 0, 0, time.UTC),
		Profile: domain.BehavioralProfile{},
	})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func buildHourBaselineProfile() domain.BehavioralProfile {
	var hours [24]int
	for i := 0; i < 100; i++ {
		hours[9] += 1 // every observation at 09:00, zero variance baseline
	}
	var days [7]int
	for i := 0; i < 100; i++ {
		days[1]++ // every observation on Monday
	}
	return domain.BehavioralProfile{UsualHourCounts: hours, UsualDayCounts: days}
}

func TestBehavioralProcessor_SinalizaDesvioDeDuasFeaturesNumerica(t *testing.T) {
	p := signals.NewBehavioralProcessor()
	profile := buildHourBaselineProfile()

	// Friday at 22:00 against a baseline of "always Monday at 09:00":
	// both hour-of-day and day-of-week deviate.
	now := time.Date(2026, 1, 9, 22, 0, 0, 0, time.UTC)
	out, err := p.Process(context.Background(), signals.Request{Now: now, Profile: profile})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "behavioral", out[0].Type)
	assert.InDelta(t, 0.75, out[0].Value, 0.001)
}

func TestBehavioralProcessor_SemSinalQuandoApenasUmaFeatureDesvia(t *testing.T) {
	p := signals.NewBehavioralProcessor()
	profile := buildHourBaselineProfile()

	// Same hour, different day: only one numeric feature deviates, and no
	// unseen categorical value, so this should not be enough to flag.
	now := time.Date(2026, 1, 9, 9, 0, 0, 0, time.UTC)
	out, err := p.Process(context.Background(), signals.Request{Now: now, Profile: profile})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestBehavioralProcessor_SinalizaCategoriaDesconhecida(t *testing.T) {
	p := signals.NewBehavioralProcessor()
	profile := buildHourBaselineProfile()
	profile.RecentEvents = []domain.RecentEvent{
		{Category: map[string]string{"country_code": "PT"}},
		{Category: map[string]string{"country_code": "PT"}},
	}

	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC) // on-baseline hour/day
	out, err := p.Process(context.Background(), signals.Request{
		Now:     now,
		Profile: profile,
		AuthContext: domain.AuthContext{
			LocationData: domain.LocationData{CountryCode: "KP"},
		},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "behavioral", out[0].Type)
}

func TestDeviceAnalysisProcessor_SinalizaDispositivoNaoConfiavel(t *testing.T) {
	p := signals.NewDeviceAnalysisProcessor()
	now := time.Now()
	out, err := p.Process(context.Background(), signals.Request{
		Now: now,
		AuthContext: domain.AuthContext{
			DeviceData: map[string]interface{}{"device_id": "new-device"},
		},
		Profile: domain.BehavioralProfile{
			UsualDevices:   []domain.DeviceFrequency{{DeviceID: "old-device", Count: 50}},
			TrustedDevices: map[string]time.Time{"old-device": now},
		},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "device_trust", out[0].Type)
}

func TestDeviceAnalysisProcessor_SemSinalParaDispositivoConfiavel(t *testing.T) {
	p := signals.NewDeviceAnalysisProcessor()
	now := time.Now()
	out, err := p.Process(context.Background(), signals.Request{
		Now: now,
		AuthContext: domain.AuthContext{
			DeviceData: map[string]interface{}{"device_id": "old-device"},
		},
		Profile: domain.BehavioralProfile{
			UsualDevices:   []domain.DeviceFrequency{{DeviceID: "old-device", Count: 50}},
			TrustedDevices: map[string]time.Time{"old-device": now},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDeviceAnalysisProcessor_SinalizaDispositivoVistoUmaVezSo(t *testing.T) {
	p := signals.NewDeviceAnalysisProcessor()
	out, err := p.Process(context.Background(), signals.Request{
		Now: time.Now(),
		AuthContext: domain.AuthContext{
			DeviceData: map[string]interface{}{"device_id": "first-seen"},
		},
		Profile: domain.BehavioralProfile{
			UsualDevices: []domain.DeviceFrequency{{DeviceID: "first-seen", Count: 1}},
		},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "device_trust", out[0].Type)
}

func TestDeviceAnalysisProcessor_ConfiancaExpiraAposTrustedDeviceDays(t *testing.T) {
	p := signals.NewDeviceAnalysisProcessor().WithTrustedDeviceDays(90)
	now := time.Now()
	out, err := p.Process(context.Background(), signals.Request{
		Now: now,
		AuthContext: domain.AuthContext{
			DeviceData: map[string]interface{}{"device_id": "stale-device"},
		},
		Profile: domain.BehavioralProfile{
			UsualDevices:   []domain.DeviceFrequency{{DeviceID: "stale-device", Count: 50}},
			TrustedDevices: map[string]time.Time{"stale-device": now.Add(-100 * 24 * time.Hour)},
		},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "device_trust", out[0].Type)
}

func TestCredentialAnomalyProcessor_SinalizaRajadaDeFalhas(t *testing.T) {
	p := signals.NewCredentialAnomalyProcessor(nil)
	out, err := p.Process(context.Background(), signals.Request{
		Now:     time.Now(),
		Profile: domain.BehavioralProfile{AuthStats: domain.AuthStats{ConsecutiveFailures: 5}},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "credential_anomaly", out[0].Type)
}

func TestCredentialAnomalyProcessor_SinalizaCredencialVazada(t *testing.T) {
	checker := signals.NewStaticBreachList([]string{"leaked-hash"})
	p := signals.NewCredentialAnomalyProcessor(checker)
	out, err := p.Process(context.Background(), signals.Request{
		Now: time.Now(),
		AuthContext: domain.AuthContext{
			Metadata: map[string]interface{}{"credential_hash": "leaked-hash"},
		},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "credential_anomaly", out[0].Type)
	assert.InDelta(t, 0.95, out[0].Confidence, 0.001)
}

func TestCredentialAnomalyProcessor_SinalizaAmbosQuandoVazadaEComRajada(t *testing.T) {
	checker := signals.NewStaticBreachList([]string{"leaked-hash"})
	p := signals.NewCredentialAnomalyProcessor(checker)
	out, err := p.Process(context.Background(), signals.Request{
		Now: time.Now(),
		AuthContext: domain.AuthContext{
			Metadata: map[string]interface{}{"credential_hash": "leaked-hash"},
		},
		Profile: domain.BehavioralProfile{AuthStats: domain.AuthStats{ConsecutiveFailures: 5}},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
}

func TestCredentialAnomalyProcessor_SemSinalParaCredencialLimpa(t *testing.T) {
	checker := signals.NewStaticBreachList([]string{"leaked-hash"})
	p := signals.NewCredentialAnomalyProcessor(checker)
	out, err := p.Process(context.Background(), signals.Request{
		Now: time.Now(),
		AuthContext: domain.AuthContext{
			Metadata: map[string]interface{}{"credential_hash": "clean-hash"},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestARSpatialGestureProcessor_AltaSimilaridadeBaixoRisco(t *testing.T) {
	matcher := signals.NewCosineTemplateMatcher()
	matcher.Enroll("user-1", "spatial_gesture", []float64{1, 0, 0})

	p := signals.NewSpatialGestureProcessor(matcher)
	out, err := p.Process(context.Background(), signals.Request{
		UserID: "user-1",
		Now:    time.Now(),
		AuthContext: domain.AuthContext{
			ARData: &domain.ARBundle{SpatialGesture: &domain.ARGestureData{Vector: []float64{1, 0, 0}}},
		},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.InDelta(t, 0, out[0].Value, 0.01)
	assert.InDelta(t, 1, out[0].Confidence, 0.01)
}

func TestARBiometricProcessor_FalhaDeLivenessForcaRiscoAlto(t *testing.T) {
	matcher := signals.NewCosineTemplateMatcher()
	matcher.Enroll("user-2", "biometric", []float64{1, 1, 1})

	p := signals.NewARBiometricProcessor(matcher)
	out, err := p.Process(context.Background(), signals.Request{
		UserID: "user-2",
		Now:    time.Now(),
		AuthContext: domain.AuthContext{
			ARData: &domain.ARBundle{Biometric: &domain.ARBiometricData{
				LivenessPassed: false,
				Vector:         []float64{1, 1, 1},
			}},
		},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.GreaterOrEqual(t, out[0].Value, 0.9)
}
