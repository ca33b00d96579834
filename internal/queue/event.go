// Package queue defines message payloads exchanged over the message broker
// and the consumer that turns them into an audit log.
package queue

// Event types carried in BookingEvent.Type.  Each one is also the routing
// key the event is published under.
const (
	BookingCreated   = "booking.created"
	BookingUpdated   = "booking.updated"
	BookingCancelled = "booking.cancelled"
)

// BookingEvent is published after a reservation change commits.  It
// carries enough information for downstream consumers to log, notify or
// trigger analytics without querying the primary database.
//
// Amount is the balance movement of the operation: positive for a charge,
// negative for a refund.
type BookingEvent struct {
	EventID        string   `json:"event_id"`
	Type           string   `json:"type"`
	UserID         uint64   `json:"user_id"`
	ReservationIDs []uint64 `json:"reservation_ids"`
	KartIDs        []uint64 `json:"kart_ids"`
	StartsAt       string   `json:"starts_at,omitempty"`
	EndsAt         string   `json:"ends_at,omitempty"`
	Amount         float64  `json:"amount"`
	Balance        float64  `json:"balance"`
	OccurredAt     string   `json:"occurred_at"`
}
