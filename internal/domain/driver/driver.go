package driver

import (
	"errors"
	"math"
	"strings"
	"time"
)

// Driver is the domain entity corresponding to the `drivers` table.
// Its status and current ride are the contended shared resource: a claim
// must win the version check to set BUSY, so at most one ride ever holds
// a given driver.
type Driver struct {
	// Identity & audit
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time

	Email string
	Name  string

	// Location
	Latitude  float64
	Longitude float64
	City      string

	// Core state
	Status        Status
	CurrentRideID *string // set iff Status == BUSY

	// Optimistic concurrency
	Version int64
}

var (
	ErrEmailRequired  = errors.New("driver email is required")
	ErrNotAvailable   = errors.New("driver is not available")
	ErrRideIDRequired = errors.New("ride id is required")
)

// NewDriver constructs an AVAILABLE driver at the given position.
func NewDriver(email, name string, latitude, longitude float64, city string) (*Driver, error) {
	if email = strings.TrimSpace(email); email == "" {
		return nil, ErrEmailRequired
	}

	now := time.Now().UTC()
	return &Driver{
		CreatedAt: now,
		UpdatedAt: now,
		Email:     email,
		Name:      strings.TrimSpace(name),
		Latitude:  latitude,
		Longitude: longitude,
		City:      strings.TrimSpace(city),
		Status:    StatusAvailable,
	}, nil
}

// Claim sets the driver BUSY on the given ride. The caller must persist
// this with a version check; a stale write means another claim won.
func (drv *Driver) Claim(rideID string) error {
	if rideID = strings.TrimSpace(rideID); rideID == "" {
		return ErrRideIDRequired
	}
	if drv.Status != StatusAvailable {
		return ErrNotAvailable
	}
	drv.Status = StatusBusy
	drv.CurrentRideID = &rideID
	drv.UpdatedAt = time.Now().UTC()
	return nil
}

// Release resets the driver to AVAILABLE and clears the ride reference.
// Releasing an already-available driver is a no-op.
func (drv *Driver) Release() {
	drv.Status = StatusAvailable
	drv.CurrentRideID = nil
	drv.UpdatedAt = time.Now().UTC()
}

// DistanceToKM returns the haversine distance to the given point in km.
// Earth radius 6371 km.
func (drv *Driver) DistanceToKM(latitude, longitude float64) float64 {
	const earthRadiusKM = 6371.0

	lat1 := drv.Latitude * math.Pi / 180
	lat2 := latitude * math.Pi / 180
	dLat := (latitude - drv.Latitude) * math.Pi / 180
	dLng := (longitude - drv.Longitude) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKM * c
}
