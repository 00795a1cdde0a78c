package domain

import "time"

// BehavioralProfile is the per-user behavioural baseline maintained by the
// Context Store (C1). Unlike the rest of this package it is mutable: C1 is
// the only component allowed to mutate it, always under the per-user lock
// described in contextstore.Store.
type BehavioralProfile struct {
	UserID           string
	UsualHourCounts  [24]int
	UsualDayCounts   [7]int
	UsualLocations   []LocationFrequency // bounded top-K=10, frequency desc
	UsualDevices     []DeviceFrequency   // bounded top-K=10, frequency desc
	AuthStats        AuthStats
	TransactionBase  TransactionBaseline
	RiskIndicators   map[string]float64
	RecentEvents     []RecentEvent // bounded to 20, insertion order

	// TrustedDevices maps a device ID to the timestamp of its most recent
	// sighting, refreshed every time that device is used again. A device
	// is trusted while that timestamp is within AdaptivePolicy's
	// TrustedDeviceDays; it is never set on a device's first sighting, so
	// a brand-new device is untrusted until seen again.
	TrustedDevices map[string]time.Time

	UpdatedAt time.Time
}

// RecentEvent is one entry of a profile's bounded, insertion-ordered event
// history, distinct from contextstore's time-windowed recent-event window:
// this one is frequency/behaviour-bounded (20 entries), the window is
// time-bounded (default 1h).
type RecentEvent struct {
	EventID   string
	Kind      EventKind
	Timestamp time.Time
	Features  map[string]float64
	Category  map[string]string
}

// IsDeviceTrusted reports whether deviceID is on this profile's
// trusted-device list (spec §3) and was last confirmed within
// expiryDays of now. expiryDays<=0 falls back to the spec default of 90.
func (p BehavioralProfile) IsDeviceTrusted(deviceID string, expiryDays int, now time.Time) bool {
	if expiryDays <= 0 {
		expiryDays = 90
	}
	lastSeen, ok := p.TrustedDevices[deviceID]
	if !ok {
		return false
	}
	return now.Sub(lastSeen) < time.Duration(expiryDays)*24*time.Hour
}

// NewBehavioralProfile returns the lazily-created default profile for a
// user who has never been seen before.
func NewBehavioralProfile(userID string) *BehavioralProfile {
	return &BehavioralProfile{
		UserID:         userID,
		RiskIndicators: make(map[string]float64),
		TrustedDevices: make(map[string]time.Time),
		UpdatedAt:      time.Now(),
	}
}
