package geolocation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/innovabiz/iam-fraud-core/internal/domain"
)

func TestAccuracyConfidence(t *testing.T) {
	cases := []struct {
		radiusKm uint16
		want     float64
	}{
		{0, 1.0},
		{100, 0.9},
		{500, 0.5},
		{2000, 0.1}, // floors rather than going negative
	}
	for _, c := range cases {
		assert.InDelta(t, c.want, accuracyConfidence(c.radiusKm), 0.001)
	}
}

func TestNewGeoIP2Lookup_MissingDatabaseIsConfigurationError(t *testing.T) {
	_, err := NewGeoIP2Lookup("/nonexistent/path/to/GeoLite2-City.mmdb")

	assert.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}
