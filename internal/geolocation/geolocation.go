// Package geolocation implements the §6 "external connectors
// (interface-only)" geolocation contract: lookup(ip) -> LocationData.
// The core only declares Lookup; GeoIP2Lookup is one concrete, swappable
// implementation backed by github.com/oschwald/geoip2-golang, grounded
// on other_examples/manifests/gokaycavdar-go-geoguard's use of the same
// library for IP-to-location resolution. IP-reputation flags (VPN/proxy
// /Tor/hosting) are a separate external collaborator per §1 and are not
// derived here — Lookup returns geographic fields only; a caller merges
// in reputation flags from its own IP-reputation provider.
package geolocation

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/oschwald/geoip2-golang"

	"github.com/innovabiz/iam-fraud-core/internal/domain"
)

// Lookup is the external geolocation contract.
type Lookup interface {
	Lookup(ctx context.Context, ip string) (domain.LocationData, error)
	Close() error
}

// GeoIP2Lookup resolves IPs against a local MaxMind-format City database
// via geoip2-golang, the sample adapter behind Lookup.
type GeoIP2Lookup struct {
	reader *geoip2.Reader
}

// NewGeoIP2Lookup opens the GeoIP2/GeoLite2 City database at dbPath.
func NewGeoIP2Lookup(dbPath string) (*GeoIP2Lookup, error) {
	reader, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open geoip database %s: %v", domain.ErrConfiguration, dbPath, err)
	}
	return &GeoIP2Lookup{reader: reader}, nil
}

// Lookup resolves ip to a LocationData. A malformed IP is a business
// logic error (§7 category 4, the offending signal is dropped); a
// missing database record is not treated as an error — it returns a
// zero-confidence LocationData so the caller degrades gracefully rather
// than failing the whole assessment.
func (g *GeoIP2Lookup) Lookup(ctx context.Context, ip string) (domain.LocationData, error) {
	select {
	case <-ctx.Done():
		return domain.LocationData{}, fmt.Errorf("%w: geolocation lookup canceled: %v", domain.ErrTransientExternal, ctx.Err())
	default:
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return domain.LocationData{}, fmt.Errorf("%w: invalid IP address %q", domain.ErrBusinessLogic, ip)
	}

	record, err := g.reader.City(parsed)
	if err != nil {
		return domain.LocationData{}, fmt.Errorf("%w: geoip city lookup: %v", domain.ErrTransientExternal, err)
	}
	if record.Country.IsoCode == "" && record.Location.AccuracyRadius == 0 {
		// no record for this address in the database
		return domain.LocationData{IP: ip}, nil
	}

	loc := domain.LocationData{
		IP:          ip,
		CountryCode: record.Country.IsoCode,
		Lat:         record.Location.Latitude,
		Lon:         record.Location.Longitude,
		Confidence:  accuracyConfidence(record.Location.AccuracyRadius),
	}
	if len(record.Subdivisions) > 0 {
		loc.Region = record.Subdivisions[0].Names["en"]
	}
	loc.City = record.City.Names["en"]
	return loc, nil
}

// Close releases the underlying database's memory mapping.
func (g *GeoIP2Lookup) Close() error {
	return g.reader.Close()
}

// accuracyConfidence converts MaxMind's accuracy radius (km, smaller is
// better) into the [0,1] confidence scale the rest of the pipeline
// expects; a radius of 0 is treated as maximal confidence and anything
// beyond 900km floors at 0.1 rather than 0, since geoip data is never
// fully untrustworthy even when coarse.
func accuracyConfidence(radiusKm uint16) float64 {
	if radiusKm == 0 {
		return 1.0
	}
	conf := 1.0 - float64(radiusKm)/1000.0
	if conf < 0.1 {
		return 0.1
	}
	return conf
}

// CallDeadline is the §5 default per-call deadline for external
// connector calls.
const CallDeadline = 10 * time.Second
