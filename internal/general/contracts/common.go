package contracts

import "time"

// Envelope adds cross-cutting headers all saga messages carry.
type Envelope struct {
	SagaID   string    `json:"saga_id"`            // correlation id threaded through one ride attempt
	Producer string    `json:"producer,omitempty"` // producer service name, e.g. "customer-service"
	SentAt   time.Time `json:"sent_at,omitempty"`  // send time (UTC)
}

// GeoPoint is a wire-level location.
type GeoPoint struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
	City    string  `json:"city,omitempty"`
}
