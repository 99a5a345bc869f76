package ride

import (
	"errors"
	"math"
	"strings"
)

// Location is a pickup/destination point embedded in a ride request.
type Location struct {
	Latitude  float64
	Longitude float64
	Address   string
	City      string
}

var (
	ErrInvalidLatitude  = errors.New("latitude must be between -90 and 90")
	ErrInvalidLongitude = errors.New("longitude must be between -180 and 180")
)

// NewLocation validates coordinate ranges and trims text fields.
func NewLocation(latitude, longitude float64, address, city string) (Location, error) {
	if latitude < -90 || latitude > 90 {
		return Location{}, ErrInvalidLatitude
	}
	if longitude < -180 || longitude > 180 {
		return Location{}, ErrInvalidLongitude
	}
	return Location{
		Latitude:  latitude,
		Longitude: longitude,
		Address:   strings.TrimSpace(address),
		City:      strings.TrimSpace(city),
	}, nil
}

// DistanceKM returns the great-circle distance to other in kilometers.
func (loc Location) DistanceKM(other Location) float64 {
	return HaversineKM(loc.Latitude, loc.Longitude, other.Latitude, other.Longitude)
}

// HaversineKM computes the great-circle distance between two points in kilometers.
func HaversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKM = 6371.0

	a1 := lat1 * math.Pi / 180
	a2 := lat2 * math.Pi / 180
	da := (lat2 - lat1) * math.Pi / 180
	db := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(da/2)*math.Sin(da/2) +
		math.Cos(a1)*math.Cos(a2)*math.Sin(db/2)*math.Sin(db/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKM * c
}

// EstimatePriceCents returns base fare + per-km rate for the trip, in cents.
func EstimatePriceCents(pickup, destination Location) int64 {
	const (
		baseFareCents = 500
		perKMCents    = 200
	)

	distance := pickup.DistanceKM(destination)
	if distance < 0 {
		distance = 0
	}
	return baseFareCents + int64(math.Round(distance*perKMCents))
}
