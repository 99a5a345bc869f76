package contracts

// DriverRequest asks the driver service to claim the nearest available
// driver for a paid ride. Published by customer-service under
// EventDriverRequest.
type DriverRequest struct {
	RideID              string   `json:"ride_id"`
	CustomerEmail       string   `json:"customer_email"`
	Pickup              GeoPoint `json:"pickup_location"`
	Destination         GeoPoint `json:"destination_location"`
	EstimatedPriceCents int64    `json:"estimated_price_cents"`
	Envelope
}

// DriverResponse reports the claim outcome back to customer-service.
// Published by driver-service under EventDriverResponse.
type DriverResponse struct {
	RideID          string `json:"ride_id"`
	DriverEmail     string `json:"driver_email,omitempty"`
	Accepted        bool   `json:"accepted"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	Envelope
}

// DriverCompletion tells the driver service to release a driver after the
// ride finished or was cancelled. Published by customer-service under
// EventDriverCompletion.
type DriverCompletion struct {
	DriverEmail   string `json:"driver_email"`
	RideID        string `json:"ride_id"`
	CustomerEmail string `json:"customer_email"`
	Status        string `json:"status"` // COMPLETED | CANCELLED
	Envelope
}

// DriverAvailability announces the driver pool's current free capacity so
// the admission queue can drain. Published by driver-service under
// EventDriverAvailability.
type DriverAvailability struct {
	AvailableCount int `json:"available_count"`
	Envelope
}
