package websocket

import (
	"encoding/json"
	"time"
)

// Inbound event names
const (
	EventNewBooking          = "new_booking"
	EventAcceptBooking       = "accept_booking"
	EventProviderArrived     = "provider_arrived"
	EventServiceCompleted    = "service_completed"
	EventUpdateBookingStatus = "update_booking_status"
	EventUpdateAvailability  = "update_availability"
	EventSubmitRating        = "submit_rating"
)

// Outbound event names
const (
	EventBookingCreated         = "booking_created"
	EventBookingUnavailable     = "booking_unavailable"
	EventBookingAccepted        = "booking_accepted"
	EventBookingAcceptedSuccess = "booking_accepted_success"
	EventArrivalConfirmed       = "arrival_confirmed"
	EventNewRating              = "new_rating"
	EventRatingSubmitted        = "rating_submitted"
	EventAvailabilityUpdated    = "availability_updated"
	EventBookingStatusUpdated   = "booking_status_updated"
	EventStatusUpdateSuccess    = "status_update_success"
	EventBookingCancelled       = "booking_cancelled"
	EventResyncRequired         = "resync_required"
)

// Outbound error event names. Every rejected inbound event yields one of
// these naming the booking or rating in question; silence is never an
// acceptable outcome.
const (
	EventBookingError = "booking_error"
	EventRatingError  = "rating_error"
	EventUpdateError  = "update_error"
)

// Message is the wire envelope for both directions. Inbound messages
// carry their payload as raw JSON so each handler can bind its own shape.
type Message struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
}

// marshalMessage builds the outbound wire form of an event
func marshalMessage(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{
		Type:      event,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	})
}
