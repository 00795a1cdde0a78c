// Package contextstore implements the per-user profile and recent-events
// cache (C1). It follows the teacher's two-mutex pattern from
// AdaptiveRiskEngine (a map-level RWMutex guarding the top-level map, plus
// a finer lock per entry) but goes one level further: here the per-user
// lock is a distinct mutex per profile, never the map lock itself, so two
// different users' profiles can be read and mutated concurrently while a
// third goroutine grows the map.
package contextstore

import (
	"context"
	"sync"
	"time"

	"github.com/innovabiz/iam-fraud-core/internal/domain"
	"github.com/innovabiz/iam-fraud-core/internal/telemetry/logging"
	"github.com/innovabiz/iam-fraud-core/internal/telemetry/metrics"
)

const (
	maxUsualLocations = 10
	maxUsualDevices   = 10
	maxRecentEvents   = 20
)

// entry bundles a profile with its own lock and a time-windowed recent
// events ring, kept separate from BehavioralProfile.RecentEvents (which is
// frequency-bounded, not time-bounded).
type entry struct {
	mu      sync.Mutex
	profile *domain.BehavioralProfile
	window  []windowedEvent
}

type windowedEvent struct {
	event domain.NormalizedEvent
	at    time.Time
}

// Store is the C1 context store. Rule: never hold two per-user locks
// (entry.mu) at once, and never hold the map lock while holding an
// entry lock for longer than the map operation itself requires.
type Store struct {
	mapMu         sync.RWMutex
	entries       map[string]*entry
	memoryWindow  time.Duration
	sweepInterval time.Duration
	logger        *logging.Logger

	// Repo is an optional durable backing store (PostgresProfileRepository
	// in production). When set, a profile not yet in memory is loaded from
	// it on first touch, and the sweeper persists a profile before
	// evicting it from memory, so a user's baseline survives both a
	// process restart and the memory-window eviction.
	Repo ProfileRepository

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New returns a Store with the given memory window (spec default 3600s)
// and starts its background sweeper goroutine, stopped by calling Close.
func New(memoryWindow time.Duration, logger *logging.Logger) *Store {
	s := &Store{
		entries:       make(map[string]*entry),
		memoryWindow:  memoryWindow,
		sweepInterval: time.Minute,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

// Close stops the sweeper goroutine. Safe to call more than once.
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// getOrCreate returns the in-memory entry for userID, loading it from
// Repo on first touch (if configured) before falling back to a fresh
// default profile.
func (s *Store) getOrCreate(ctx context.Context, userID string) *entry {
	s.mapMu.RLock()
	e, ok := s.entries[userID]
	s.mapMu.RUnlock()
	if ok {
		return e
	}

	s.mapMu.Lock()
	defer s.mapMu.Unlock()
	if e, ok = s.entries[userID]; ok {
		return e
	}

	profile := s.loadFromRepo(ctx, userID)
	if profile == nil {
		profile = domain.NewBehavioralProfile(userID)
	}
	e = &entry{profile: profile}
	s.entries[userID] = e
	return e
}

func (s *Store) loadFromRepo(ctx context.Context, userID string) *domain.BehavioralProfile {
	if s.Repo == nil {
		return nil
	}
	profile, err := s.Repo.Load(ctx, userID)
	if err != nil {
		metrics.ContextStoreProfileLoadFailuresTotal.Inc()
		if s.logger != nil {
			s.logger.WarnCtx(ctx, "failed to load behavioral profile from repository")
		}
		return nil
	}
	return profile
}

// GetProfile returns a snapshot copy of a user's behavioural profile,
// lazily creating a default one if the user has never been seen.
func (s *Store) GetProfile(ctx context.Context, userID string) domain.BehavioralProfile {
	e := s.getOrCreate(ctx, userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.profile
}

// UpdateProfile applies fn to the user's profile under its per-user lock
// and stamps UpdatedAt. fn must not block on anything outside the store.
func (s *Store) UpdateProfile(ctx context.Context, userID string, fn func(*domain.BehavioralProfile)) {
	e := s.getOrCreate(ctx, userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.profile)
	e.profile.UpdatedAt = time.Now()
}

// AppendRecentEvent records ev against the user's time-windowed history
// (used by velocity/impossible-travel style processors) and the bounded
// frequency history on the profile itself (P4: bounded top-K lists).
func (s *Store) AppendRecentEvent(ctx context.Context, userID string, ev domain.NormalizedEvent) {
	e := s.getOrCreate(ctx, userID)
	now := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.window = append(e.window, windowedEvent{event: ev, at: now})
	e.window = purgeWindow(e.window, now, s.memoryWindow)

	deviceID, _ := ev.Context.DeviceData["device_id"].(string)
	re := domain.RecentEvent{
		EventID:   ev.EventID,
		Kind:      ev.Kind,
		Timestamp: ev.Timestamp,
		Features: map[string]float64{
			"hour_of_day": float64(ev.Timestamp.Hour()),
			"day_of_week": float64(ev.Timestamp.Weekday()),
		},
		Category: map[string]string{
			"country_code": ev.Context.LocationData.CountryCode,
			"device_id":    deviceID,
		},
	}
	e.profile.RecentEvents = append(e.profile.RecentEvents, re)
	if len(e.profile.RecentEvents) > maxRecentEvents {
		e.profile.RecentEvents = e.profile.RecentEvents[len(e.profile.RecentEvents)-maxRecentEvents:]
	}

	recordLocation(e.profile, ev)
	recordDevice(e.profile, ev)
	e.profile.UpdatedAt = now
}

// RecentEvents returns the events within the memory window (P5), newest
// last, for callers such as geo_velocity that need recent history instead
// of the aggregate profile.
func (s *Store) RecentEvents(ctx context.Context, userID string) []domain.NormalizedEvent {
	e := s.getOrCreate(ctx, userID)
	now := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.window = purgeWindow(e.window, now, s.memoryWindow)

	out := make([]domain.NormalizedEvent, len(e.window))
	for i, we := range e.window {
		out[i] = we.event
	}
	return out
}

func purgeWindow(w []windowedEvent, now time.Time, memoryWindow time.Duration) []windowedEvent {
	cutoff := now.Add(-memoryWindow)
	idx := 0
	for idx < len(w) && w[idx].at.Before(cutoff) {
		idx++
	}
	if idx == 0 {
		return w
	}
	return append([]windowedEvent(nil), w[idx:]...)
}

// recordLocation bumps the top-K location frequency list (P4), keeping it
// sorted descending by count and capped at maxUsualLocations entries.
func recordLocation(p *domain.BehavioralProfile, ev domain.NormalizedEvent) {
	loc := ev.Context.LocationData
	if loc.CountryCode == "" {
		return
	}
	for i := range p.UsualLocations {
		if p.UsualLocations[i].CountryCode == loc.CountryCode && p.UsualLocations[i].City == loc.City {
			p.UsualLocations[i].Count++
			p.UsualLocations[i].LastSeen = ev.Timestamp
			sortLocationsDesc(p.UsualLocations)
			return
		}
	}
	p.UsualLocations = append(p.UsualLocations, domain.LocationFrequency{
		CountryCode: loc.CountryCode,
		City:        loc.City,
		Count:       1,
		LastSeen:    ev.Timestamp,
	})
	sortLocationsDesc(p.UsualLocations)
	if len(p.UsualLocations) > maxUsualLocations {
		p.UsualLocations = p.UsualLocations[:maxUsualLocations]
	}
}

func sortLocationsDesc(locs []domain.LocationFrequency) {
	for i := 1; i < len(locs); i++ {
		j := i
		for j > 0 && locs[j-1].Count < locs[j].Count {
			locs[j-1], locs[j] = locs[j], locs[j-1]
			j--
		}
	}
}

// recordDevice bumps the top-K device frequency list (P4) and refreshes
// the trusted-device list (spec §3): a device only starts accumulating
// trust once it has been seen more than once, so a first-ever sighting
// never trusts itself. Each later sighting slides the trust window
// forward, which is what lets IsDeviceTrusted apply a fixed expiry.
func recordDevice(p *domain.BehavioralProfile, ev domain.NormalizedEvent) {
	deviceID, _ := ev.Context.DeviceData["device_id"].(string)
	if deviceID == "" {
		return
	}
	if p.TrustedDevices == nil {
		p.TrustedDevices = make(map[string]time.Time)
	}
	for i := range p.UsualDevices {
		if p.UsualDevices[i].DeviceID == deviceID {
			p.UsualDevices[i].Count++
			p.UsualDevices[i].LastSeen = ev.Timestamp
			sortDevicesDesc(p.UsualDevices)
			p.TrustedDevices[deviceID] = ev.Timestamp
			return
		}
	}
	p.UsualDevices = append(p.UsualDevices, domain.DeviceFrequency{
		DeviceID: deviceID,
		Count:    1,
		LastSeen: ev.Timestamp,
	})
	sortDevicesDesc(p.UsualDevices)
	if len(p.UsualDevices) > maxUsualDevices {
		evicted := p.UsualDevices[maxUsualDevices:]
		p.UsualDevices = p.UsualDevices[:maxUsualDevices]
		for _, d := range evicted {
			delete(p.TrustedDevices, d.DeviceID)
		}
	}
}

func sortDevicesDesc(devs []domain.DeviceFrequency) {
	for i := 1; i < len(devs); i++ {
		j := i
		for j > 0 && devs[j-1].Count < devs[j].Count {
			devs[j-1], devs[j] = devs[j], devs[j-1]
			j--
		}
	}
}

// sweepLoop evicts profiles whose last update fell outside the memory
// window, once a minute, matching the spec's sweeper cadence.
func (s *Store) sweepLoop() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	cutoff := time.Now().Add(-s.memoryWindow)

	var stale []string
	s.mapMu.RLock()
	for userID, e := range s.entries {
		e.mu.Lock()
		if e.profile.UpdatedAt.Before(cutoff) {
			stale = append(stale, userID)
		}
		e.mu.Unlock()
	}
	s.mapMu.RUnlock()

	if len(stale) == 0 {
		s.reportSize()
		return
	}

	s.mapMu.Lock()
	for _, userID := range stale {
		if e, ok := s.entries[userID]; ok {
			e.mu.Lock()
			stillStale := e.profile.UpdatedAt.Before(cutoff)
			var toPersist *domain.BehavioralProfile
			if stillStale && s.Repo != nil {
				snapshot := *e.profile
				toPersist = &snapshot
			}
			e.mu.Unlock()
			if stillStale {
				if toPersist != nil {
					if err := s.Repo.Save(context.Background(), toPersist); err != nil && s.logger != nil {
						s.logger.Warn("failed to persist behavioral profile before eviction")
					}
				}
				delete(s.entries, userID)
				metrics.ContextStoreEvictionsTotal.Inc()
			}
		}
	}
	s.mapMu.Unlock()

	s.reportSize()
	if s.logger != nil {
		s.logger.Info("context store sweep evicted stale profiles")
	}
}

func (s *Store) reportSize() {
	s.mapMu.RLock()
	n := len(s.entries)
	s.mapMu.RUnlock()
	metrics.ContextStoreSize.Set(float64(n))
}
