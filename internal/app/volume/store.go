// Package volume keeps the playback volume of each tenant.
package volume

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/osa030/ourtube/internal/app/eventbus"
)

const (
	Min     = 0
	Max     = 100
	Default = 30
)

// Errors
var (
	ErrInvalidVolume = errors.New("volume out of range")
)

// Store holds per-tenant volumes and posts VolumeChanged on change.
type Store struct {
	mu       sync.RWMutex
	volumes  map[string]float64
	fallback float64
	bus      *eventbus.Bus
}

// NewStore creates a store. Tenants without a value use fallback.
func NewStore(bus *eventbus.Bus, fallback float64) *Store {
	if fallback < Min || fallback > Max {
		fallback = Default
	}
	return &Store{
		volumes:  make(map[string]float64),
		fallback: fallback,
		bus:      bus,
	}
}

// Get returns a tenant's volume.
func (s *Store) Get(tenant string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.volumes[tenant]; ok {
		return v
	}
	return s.fallback
}

// Set changes a tenant's volume. It reports whether the value changed.
func (s *Store) Set(tenant string, v float64) (bool, error) {
	if v < Min || v > Max {
		return false, errors.Wrapf(ErrInvalidVolume, "%.1f not in [%d, %d]", v, Min, Max)
	}

	s.mu.Lock()
	old, ok := s.volumes[tenant]
	if !ok {
		old = s.fallback
	}
	if old == v {
		s.mu.Unlock()
		return false, nil
	}
	s.volumes[tenant] = v
	s.mu.Unlock()

	s.bus.Post(tenant, eventbus.Event{
		Kind:   eventbus.KindVolumeChanged,
		Volume: v,
	})
	return true, nil
}

// Clear forgets a tenant's volume.
func (s *Store) Clear(tenant string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.volumes, tenant)
}
