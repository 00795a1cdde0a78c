package eventconsumer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innovabiz/iam-fraud-core/internal/domain"
	"github.com/innovabiz/iam-fraud-core/internal/telemetry/logging"
	"github.com/innovabiz/iam-fraud-core/internal/telemetry/tracing"
)

func testConsumer(cfg Config, handler Handler) *Consumer {
	return New(cfg, handler, logging.NewNop(), tracing.NewTracer("test", logging.NewNop()))
}

func TestNew_DefinePoolDeProcessamentoPadrao(t *testing.T) {
	c := testConsumer(Config{Name: "x"}, func(ctx context.Context, ev domain.NormalizedEvent) error { return nil })
	assert.Equal(t, 50, c.cfg.ProcessingWindow)
}

func TestEstadoInicialECreated(t *testing.T) {
	c := testConsumer(Config{Name: "x"}, nil)
	assert.Equal(t, StateCreated, c.State())
}

func TestRun_FalhaSeNaoInicializado(t *testing.T) {
	c := testConsumer(Config{Name: "x"}, nil)
	err := c.Run(context.Background())
	require.Error(t, err)
}

func TestStop_NaoRodandoRetornaNil(t *testing.T) {
	c := testConsumer(Config{Name: "x"}, nil)
	err := c.Stop(context.Background())
	assert.NoError(t, err)
}

func TestAcceptsRegion_SemFiltroAceitaTudo(t *testing.T) {
	c := testConsumer(Config{Name: "x"}, nil)
	assert.True(t, c.acceptsRegion("AO"))
	assert.True(t, c.acceptsRegion(""))
}

func TestAcceptsRegion_ComFiltroRestringe(t *testing.T) {
	c := testConsumer(Config{Name: "x", RegionFilter: []string{"AO", "MZ"}}, nil)
	assert.True(t, c.acceptsRegion("AO"))
	assert.False(t, c.acceptsRegion("BR"))
}

func TestStats_MediaDeProcessamentoComJanelaLimitada(t *testing.T) {
	c := testConsumer(Config{Name: "x", ProcessingWindow: 2}, nil)

	c.statsMu.Lock()
	c.recentDurations = append(c.recentDurations, 10*time.Millisecond, 20*time.Millisecond, 30*time.Millisecond)
	if len(c.recentDurations) > c.cfg.ProcessingWindow {
		c.recentDurations = c.recentDurations[len(c.recentDurations)-c.cfg.ProcessingWindow:]
	}
	c.processed = 3
	c.succeeded = 3
	c.statsMu.Unlock()

	stats := c.Stats()
	assert.Equal(t, int64(3), stats.Processed)
	assert.Equal(t, 25*time.Millisecond, stats.AvgProcessingTime)
}

func TestState_Stringificacao(t *testing.T) {
	assert.Equal(t, "created", StateCreated.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopped", StateStopped.String())
}
