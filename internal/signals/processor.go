// Package signals implements the pluggable, stateless signal processors
// (C2). Each processor inspects one facet of an AuthContext plus whatever
// profile/history context it needs and emits zero or more RiskSignal
// values; a processor never mutates the profile it reads. Processors are
// registered by name in a Registry so the aggregator (C4) can toggle them
// per tenant policy without a compile-time dependency on every processor.
package signals

import (
	"context"
	"time"

	"github.com/innovabiz/iam-fraud-core/internal/domain"
)

// Processor is the C2 contract. Implementations must be safe for
// concurrent use by multiple goroutines evaluating different users.
type Processor interface {
	Name() string
	Process(ctx context.Context, req Request) ([]domain.RiskSignal, error)
}

// Request bundles everything a processor might need. Not every field is
// populated for every processor; a processor only reads the fields its
// doc comment says it needs.
type Request struct {
	UserID       string
	TenantID     string
	AuthContext  domain.AuthContext
	Profile      domain.BehavioralProfile
	RecentEvents []domain.NormalizedEvent
	Now          time.Time

	// TrustedDeviceDays is the tenant's AdaptivePolicy.TrustedDeviceDays
	// (spec default 90), consulted by DeviceAnalysisProcessor. Zero means
	// "use the processor's own default".
	TrustedDeviceDays int
}

// Registry holds the active set of named processors for a tenant.
type Registry struct {
	processors map[string]Processor
}

// NewRegistry returns an empty registry; call Register for each processor
// the deployment wants available.
func NewRegistry() *Registry {
	return &Registry{processors: make(map[string]Processor)}
}

// Register adds or replaces a processor under its own Name().
func (r *Registry) Register(p Processor) {
	r.processors[p.Name()] = p
}

// Get returns the processor registered under name, if any.
func (r *Registry) Get(name string) (Processor, bool) {
	p, ok := r.processors[name]
	return p, ok
}

// Names returns every registered processor name, in no particular order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.processors))
	for name := range r.processors {
		names = append(names, name)
	}
	return names
}

// DefaultRegistry returns a Registry with every standard and AR processor
// registered, wired with the given TemplateMatcher for the AR processors.
func DefaultRegistry(matcher TemplateMatcher) *Registry {
	r := NewRegistry()
	r.Register(NewIPReputationProcessor(nil))
	r.Register(NewGeoVelocityProcessor())
	r.Register(NewDeviceAnalysisProcessor())
	r.Register(NewBehavioralProcessor())
	r.Register(NewTimePatternProcessor())
	r.Register(NewCredentialAnomalyProcessor(nil))
	r.Register(NewSpatialGestureProcessor(matcher))
	r.Register(NewGazePatternProcessor(matcher))
	r.Register(NewEnvironmentProcessor(matcher))
	r.Register(NewARBiometricProcessor(matcher))
	return r
}
