package signals

import (
	"context"
	"math"

	"github.com/innovabiz/iam-fraud-core/internal/domain"
)

const earthRadiusKm = 6371.0

// haversineKm returns the great-circle distance between two points in km.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// GeoVelocityProcessor detects impossible travel: two locations too far
// apart to have been reached legitimately in the elapsed time, given a
// configured maximum plausible speed.
type GeoVelocityProcessor struct {
	maxSpeedKmh float64
}

// NewGeoVelocityProcessor uses the spec default of 500 km/h unless
// overridden via WithMaxSpeed.
func NewGeoVelocityProcessor() *GeoVelocityProcessor {
	return &GeoVelocityProcessor{maxSpeedKmh: 500}
}

// WithMaxSpeed overrides the plausible-speed threshold, e.g. from
// AdaptivePolicy.GeoVelocityKmh.
func (p *GeoVelocityProcessor) WithMaxSpeed(kmh float64) *GeoVelocityProcessor {
	p.maxSpeedKmh = kmh
	return p
}

func (p *GeoVelocityProcessor) Name() string { return "geo_velocity" }

func (p *GeoVelocityProcessor) Process(ctx context.Context, req Request) ([]domain.RiskSignal, error) {
	current := req.AuthContext.LocationData
	if current.Lat == 0 && current.Lon == 0 {
		return nil, nil
	}

	var prior *domain.NormalizedEvent
	for i := len(req.RecentEvents) - 1; i >= 0; i-- {
		ev := req.RecentEvents[i]
		loc := ev.Context.LocationData
		if loc.Lat != 0 || loc.Lon != 0 {
			e := ev
			prior = &e
			break
		}
	}
	if prior == nil {
		return nil, nil
	}

	elapsed := req.Now.Sub(prior.Timestamp).Hours()
	if elapsed <= 0 {
		elapsed = 1.0 / 3600 // guard against zero/negative clock skew
	}

	distanceKm := haversineKm(prior.Context.LocationData.Lat, prior.Context.LocationData.Lon, current.Lat, current.Lon)
	speedKmh := distanceKm / elapsed

	if speedKmh <= p.maxSpeedKmh {
		return nil, nil
	}

	return []domain.RiskSignal{{
		Type:       "geo_velocity",
		Value:      0.95,
		Confidence: 0.85,
		Timestamp:  req.Now,
	}}, nil
}
