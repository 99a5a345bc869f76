package service

import (
	"context"
	"sync"
)

// CapacitySetter is implemented by capacity probes that are fed from the
// driver service's availability announcements.
type CapacitySetter interface {
	SetAvailableDrivers(count int)
}

// AvailabilityTracker is the production capacity probe. It holds the last
// announced AVAILABLE head count; the driver service's drivers table stays
// the source of truth and every announcement overwrites the cached value,
// so a stale count self-corrects on the next announcement.
type AvailabilityTracker struct {
	mu    sync.RWMutex
	count int
}

// NewAvailabilityTracker returns a tracker that reports zero capacity until
// the first announcement arrives.
func NewAvailabilityTracker() *AvailabilityTracker {
	return &AvailabilityTracker{}
}

// SetAvailableDrivers stores the announced head count.
func (tracker *AvailabilityTracker) SetAvailableDrivers(count int) {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	if count < 0 {
		count = 0
	}
	tracker.count = count
}

// AvailableDrivers returns the last announced head count.
func (tracker *AvailabilityTracker) AvailableDrivers(_ context.Context) int {
	tracker.mu.RLock()
	defer tracker.mu.RUnlock()
	return tracker.count
}
