package signals

import (
	"context"

	"github.com/innovabiz/iam-fraud-core/internal/domain"
)

// DeviceAnalysisProcessor emits a device_trust signal whenever the
// current device is not on the user's trusted-device list (spec §3/§4.2):
// a device only earns trust once it has been seen more than once, and
// trust expires after trustedDeviceDays without a repeat sighting
// (BehavioralProfile.IsDeviceTrusted, maintained by contextstore).
type DeviceAnalysisProcessor struct {
	trustedDeviceDays int
}

// NewDeviceAnalysisProcessor uses the spec default of 90 days unless
// overridden via WithTrustedDeviceDays.
func NewDeviceAnalysisProcessor() *DeviceAnalysisProcessor {
	return &DeviceAnalysisProcessor{trustedDeviceDays: 90}
}

// WithTrustedDeviceDays overrides the trust expiry, e.g. from
// AdaptivePolicy.TrustedDeviceDays.
func (p *DeviceAnalysisProcessor) WithTrustedDeviceDays(days int) *DeviceAnalysisProcessor {
	p.trustedDeviceDays = days
	return p
}

func (p *DeviceAnalysisProcessor) Name() string { return "device_analysis" }

func (p *DeviceAnalysisProcessor) Process(ctx context.Context, req Request) ([]domain.RiskSignal, error) {
	deviceID, _ := req.AuthContext.DeviceData["device_id"].(string)
	if deviceID == "" {
		return nil, nil
	}

	expiryDays := req.TrustedDeviceDays
	if expiryDays <= 0 {
		expiryDays = p.trustedDeviceDays
	}
	if req.Profile.IsDeviceTrusted(deviceID, expiryDays, req.Now) {
		return nil, nil
	}

	// Confidence is lower for an account with no device history at all:
	// a first-ever sighting is a weaker "new device" signal than a new
	// entrant against an established, stable device list.
	var knownCount int
	for _, d := range req.Profile.UsualDevices {
		knownCount += d.Count
	}
	confidence := 0.9
	if knownCount == 0 {
		confidence = 0.5
	}

	return []domain.RiskSignal{{
		Type:       "device_trust",
		Value:      0.7,
		Confidence: confidence,
		Timestamp:  req.Now,
	}}, nil
}
