package order

import "time"

// GeocodeStatus tracks how an order's delivery coordinates were obtained.
type GeocodeStatus string

const (
	// GeocodePending means no usable coordinates have been resolved yet.
	GeocodePending GeocodeStatus = "pending"
	// GeocodeOK means an automated lookup succeeded.
	GeocodeOK GeocodeStatus = "ok"
	// GeocodeFailed means automated lookups exhausted the retry ceiling.
	GeocodeFailed GeocodeStatus = "failed"
	// GeocodeManual means an operator supplied the coordinates. Manual
	// coordinates are authoritative and are never overwritten by the worker.
	GeocodeManual GeocodeStatus = "manual"
)

// Order carries the geocoding-relevant subset of an order. The wider order
// record (items, payment, courier assignment) is owned by the order-management
// subsystem; this core only mutates the geocoding fields.
type Order struct {
	ID              string
	DeliveryAddress string
	DeliveryLat     *float64
	DeliveryLng     *float64
	GeocodeStatus   GeocodeStatus
	GeocodeError    string
	GeocodedAt      time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
