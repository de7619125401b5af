package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"home-service-server/models"
	"home-service-server/repository"
)

// registerDefaultHandlers wires every inbound event to its handler
func (h *Hub) registerDefaultHandlers() {
	h.handlers[EventNewBooking] = h.handleNewBooking
	h.handlers[EventAcceptBooking] = h.handleAcceptBooking
	h.handlers[EventProviderArrived] = h.handleProviderArrived
	h.handlers[EventServiceCompleted] = h.handleServiceCompleted
	h.handlers[EventUpdateBookingStatus] = h.handleUpdateBookingStatus
	h.handlers[EventUpdateAvailability] = h.handleUpdateAvailability
	h.handlers[EventSubmitRating] = h.handleSubmitRating
}

type newBookingPayload struct {
	Service       models.ServiceCategory `json:"service"`
	ScheduledTime time.Time              `json:"scheduled_time"`
	Latitude      float64                `json:"latitude"`
	Longitude     float64                `json:"longitude"`
	Address       string                 `json:"address"`
	ClientName    string                 `json:"client_name"`
	ClientPhone   string                 `json:"client_phone"`
	ClientEmail   string                 `json:"client_email"`
	Notes         string                 `json:"notes"`
	Amount        *float64               `json:"amount"`
}

type bookingRefPayload struct {
	BookingID uint `json:"booking_id"`
}

type serviceCompletedPayload struct {
	BookingID uint      `json:"booking_id"`
	Timestamp time.Time `json:"timestamp"`
}

type updateStatusPayload struct {
	BookingID uint                 `json:"booking_id"`
	Status    models.BookingStatus `json:"status"`
}

type availabilityPayload struct {
	IsAvailable bool `json:"is_available"`
}

type submitRatingPayload struct {
	BookingID  uint   `json:"booking_id"`
	ProviderID uint   `json:"provider_id"`
	Rating     int    `json:"rating"`
	Review     string `json:"review"`
}

// BookingView is the outbound shape of a booking on the live channel.
// Every publisher of a booking payload, HTTP or websocket, uses it so
// subscribers see one shape per event name.
func BookingView(b *models.Booking) map[string]interface{} {
	view := map[string]interface{}{
		"id":             b.ID,
		"service":        b.Service,
		"status":         b.Status,
		"scheduled_time": b.ScheduledTime,
		"location":       b.Location,
		"customer":       b.ClientInfo,
		"notes":          b.Notes,
	}
	if b.ProviderID != nil {
		view["provider_id"] = *b.ProviderID
	}
	if b.Amount != nil {
		view["amount"] = *b.Amount
	}
	return view
}

func bookingFields(bookingID uint) map[string]interface{} {
	return map[string]interface{}{"booking_id": bookingID}
}

// handleNewBooking creates a pending booking and fans it out to the
// providers of the requested category
func (h *Hub) handleNewBooking(c *Client, raw json.RawMessage) {
	if c.Role != models.RoleClient {
		c.SendError(EventBookingError, "Only clients can create bookings", nil)
		return
	}

	var payload newBookingPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.SendError(EventBookingError, "Malformed booking request", nil)
		return
	}

	if !payload.Service.IsValid() {
		c.SendError(EventBookingError, "Unknown service category: "+string(payload.Service), nil)
		return
	}
	location := models.Location{
		Latitude:  payload.Latitude,
		Longitude: payload.Longitude,
		Address:   payload.Address,
	}
	if !location.IsValid() {
		c.SendError(EventBookingError, "Invalid booking location", nil)
		return
	}
	if payload.ScheduledTime.IsZero() {
		c.SendError(EventBookingError, "Scheduled time is required", nil)
		return
	}
	if payload.Amount != nil && *payload.Amount < 0 {
		c.SendError(EventBookingError, "Amount must not be negative", nil)
		return
	}

	booking := &models.Booking{
		ClientID:      c.UserID,
		Service:       payload.Service,
		ScheduledTime: payload.ScheduledTime,
		Location:      location,
		ClientInfo: models.ClientInfo{
			Name:  payload.ClientName,
			Phone: payload.ClientPhone,
			Email: payload.ClientEmail,
		},
		Notes:  payload.Notes,
		Amount: payload.Amount,
	}

	if err := h.bookings.Create(context.Background(), booking); err != nil {
		log.Printf("❌ Error creating booking for user %d: %v", c.UserID, err)
		c.SendError(EventBookingError, "Failed to process booking request", nil)
		return
	}

	h.PublishService(booking.Service, EventNewBooking, map[string]interface{}{
		"booking": BookingView(booking),
	})

	c.SendEvent(EventBookingCreated, map[string]interface{}{
		"success":    true,
		"booking_id": booking.ID,
	})

	log.Printf("📋 Booking %d created by client %d for %s", booking.ID, c.UserID, booking.Service)
}

// handleAcceptBooking is the race-sensitive accept path: of any number of
// concurrent attempts on one pending booking, the store lets exactly one
// through
func (h *Hub) handleAcceptBooking(c *Client, raw json.RawMessage) {
	if c.Role != models.RoleProvider {
		c.SendError(EventBookingError, "Only providers can accept bookings", nil)
		return
	}

	var payload bookingRefPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.SendError(EventBookingError, "Malformed accept request", nil)
		return
	}

	h.acceptBooking(c, payload.BookingID, EventBookingError)
}

func (h *Hub) acceptBooking(c *Client, bookingID uint, errEvent string) {
	booking, err := h.bookings.Accept(context.Background(), bookingID, c.UserID)
	if err != nil {
		h.sendBookingFailure(c, errEvent, bookingID, err)
		return
	}

	// Winner's acknowledgment carries the full booking
	c.SendEvent(EventBookingAcceptedSuccess, map[string]interface{}{
		"booking_id": booking.ID,
		"booking":    BookingView(booking),
	})

	// The client gets the provider's current public profile. The accept
	// is already committed, so a failed profile load falls back to the
	// connection's snapshot rather than skipping the notification.
	profile := models.PublicProfile{
		ID:       c.UserID,
		Name:     c.Name,
		Phone:    c.Phone,
		Services: c.Services,
	}
	if provider, err := h.users.ByID(context.Background(), c.UserID); err != nil {
		log.Printf("❌ Error loading provider %d after accept: %v", c.UserID, err)
	} else {
		profile = provider.Public()
	}
	h.SendToUser(booking.ClientID, EventBookingAccepted, map[string]interface{}{
		"booking_id": booking.ID,
		"provider":   profile,
		"message":    "Provider " + profile.Name + " accepted your booking",
	})

	// Everyone else watching this category learns the booking is gone
	h.PublishServiceExcept(booking.Service, c.ID, EventBookingUnavailable, bookingFields(booking.ID))

	log.Printf("✅ Booking %d accepted by provider %d", booking.ID, c.UserID)
}

// handleProviderArrived advances an accepted booking owned by the caller
func (h *Hub) handleProviderArrived(c *Client, raw json.RawMessage) {
	if c.Role != models.RoleProvider {
		c.SendError(EventBookingError, "Only providers can report arrival", nil)
		return
	}

	var payload bookingRefPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.SendError(EventBookingError, "Malformed arrival report", nil)
		return
	}

	h.arriveBooking(c, payload.BookingID, EventBookingError)
}

func (h *Hub) arriveBooking(c *Client, bookingID uint, errEvent string) {
	booking, err := h.bookings.Advance(context.Background(), bookingID, c.UserID,
		models.BookingStatusAccepted, models.BookingStatusArrived)
	if err != nil {
		h.sendBookingFailure(c, errEvent, bookingID, err)
		return
	}

	h.SendToUser(booking.ClientID, EventProviderArrived, map[string]interface{}{
		"booking_id": booking.ID,
		"provider": map[string]interface{}{
			"name":  c.Name,
			"phone": c.Phone,
		},
	})

	c.SendEvent(EventArrivalConfirmed, bookingFields(booking.ID))

	log.Printf("📍 Provider %d arrived for booking %d", c.UserID, booking.ID)
}

// handleServiceCompleted closes out an arrived booking and invites the
// client to rate it
func (h *Hub) handleServiceCompleted(c *Client, raw json.RawMessage) {
	if c.Role != models.RoleProvider {
		c.SendError(EventBookingError, "Only providers can complete bookings", nil)
		return
	}

	var payload serviceCompletedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.SendError(EventBookingError, "Malformed completion report", nil)
		return
	}

	h.completeBooking(c, payload.BookingID, payload.Timestamp, EventBookingError)
}

func (h *Hub) completeBooking(c *Client, bookingID uint, completedAt time.Time, errEvent string) {
	booking, err := h.bookings.Advance(context.Background(), bookingID, c.UserID,
		models.BookingStatusArrived, models.BookingStatusCompleted)
	if err != nil {
		h.sendBookingFailure(c, errEvent, bookingID, err)
		return
	}

	if completedAt.IsZero() {
		completedAt = time.Now().UTC()
	}

	h.SendToUser(booking.ClientID, EventServiceCompleted, map[string]interface{}{
		"booking_id":  booking.ID,
		"provider_id": c.UserID,
		"timestamp":   completedAt,
		"message":     "Service has been completed. Please rate your experience.",
	})

	c.SendEvent(EventStatusUpdateSuccess, map[string]interface{}{
		"booking_id": booking.ID,
		"status":     booking.Status,
	})

	log.Printf("🏁 Booking %d completed by provider %d", booking.ID, c.UserID)
}

// handleUpdateBookingStatus is the generic status set. It routes to the
// same guarded transitions as the dedicated events; there is no unguarded
// write path.
func (h *Hub) handleUpdateBookingStatus(c *Client, raw json.RawMessage) {
	var payload updateStatusPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.SendError(EventUpdateError, "Malformed status update", nil)
		return
	}

	if !payload.Status.IsValid() {
		c.SendError(EventUpdateError, "Unknown booking status: "+string(payload.Status), bookingFields(payload.BookingID))
		return
	}

	switch payload.Status {
	case models.BookingStatusAccepted:
		if c.Role != models.RoleProvider {
			c.SendError(EventUpdateError, "Only providers can accept bookings", bookingFields(payload.BookingID))
			return
		}
		h.acceptBooking(c, payload.BookingID, EventUpdateError)

	case models.BookingStatusArrived:
		if c.Role != models.RoleProvider {
			c.SendError(EventUpdateError, "Only providers can report arrival", bookingFields(payload.BookingID))
			return
		}
		h.arriveBooking(c, payload.BookingID, EventUpdateError)

	case models.BookingStatusCompleted:
		if c.Role != models.RoleProvider {
			c.SendError(EventUpdateError, "Only providers can complete bookings", bookingFields(payload.BookingID))
			return
		}
		h.completeBooking(c, payload.BookingID, time.Time{}, EventUpdateError)

	case models.BookingStatusCancelled:
		if c.Role != models.RoleClient {
			c.SendError(EventUpdateError, "Only clients can cancel bookings", bookingFields(payload.BookingID))
			return
		}
		h.cancelBooking(c, payload.BookingID)

	case models.BookingStatusRejected:
		if c.Role != models.RoleProvider {
			c.SendError(EventUpdateError, "Only providers can reject bookings", bookingFields(payload.BookingID))
			return
		}
		h.rejectBooking(c, payload.BookingID)

	default:
		c.SendError(EventUpdateError, "Bookings cannot be moved back to "+string(payload.Status), bookingFields(payload.BookingID))
	}
}

func (h *Hub) cancelBooking(c *Client, bookingID uint) {
	booking, err := h.bookings.Cancel(context.Background(), bookingID, c.UserID)
	if err != nil {
		h.sendBookingFailure(c, EventUpdateError, bookingID, err)
		return
	}

	// The providers who saw the open booking learn it is gone
	h.PublishService(booking.Service, EventBookingCancelled, bookingFields(booking.ID))

	c.SendEvent(EventStatusUpdateSuccess, map[string]interface{}{
		"booking_id": booking.ID,
		"status":     booking.Status,
	})

	log.Printf("🚫 Booking %d cancelled by client %d", booking.ID, c.UserID)
}

func (h *Hub) rejectBooking(c *Client, bookingID uint) {
	booking, err := h.bookings.Reject(context.Background(), bookingID)
	if err != nil {
		h.sendBookingFailure(c, EventUpdateError, bookingID, err)
		return
	}

	h.SendToUser(booking.ClientID, EventBookingStatusUpdated, map[string]interface{}{
		"booking_id": booking.ID,
		"status":     booking.Status,
	})

	c.SendEvent(EventStatusUpdateSuccess, map[string]interface{}{
		"booking_id": booking.ID,
		"status":     booking.Status,
	})

	log.Printf("❌ Booking %d rejected by provider %d", booking.ID, c.UserID)
}

// handleUpdateAvailability flips a provider's availability flag and
// broadcasts the change to all roles
func (h *Hub) handleUpdateAvailability(c *Client, raw json.RawMessage) {
	if c.Role != models.RoleProvider {
		c.SendError(EventUpdateError, "Only providers can update availability", nil)
		return
	}

	var payload availabilityPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.SendError(EventUpdateError, "Malformed availability update", nil)
		return
	}

	if err := h.users.SetAvailability(context.Background(), c.UserID, payload.IsAvailable); err != nil {
		log.Printf("❌ Error updating availability for provider %d: %v", c.UserID, err)
		c.SendError(EventUpdateError, "Failed to update availability", nil)
		return
	}

	c.SendEvent(EventAvailabilityUpdated, map[string]interface{}{
		"is_available": payload.IsAvailable,
	})

	update := map[string]interface{}{
		"provider_id":  c.UserID,
		"is_available": payload.IsAvailable,
	}
	h.PublishRole(models.RoleClient, EventAvailabilityUpdated, update)
	h.PublishRole(models.RoleProvider, EventAvailabilityUpdated, update)

	log.Printf("👷 Provider %d availability updated to %v", c.UserID, payload.IsAvailable)
}

// handleSubmitRating appends a rating for a completed booking and tells
// the provider their new aggregate
func (h *Hub) handleSubmitRating(c *Client, raw json.RawMessage) {
	if c.Role != models.RoleClient {
		c.SendError(EventRatingError, "Only clients can submit ratings", nil)
		return
	}

	var payload submitRatingPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.SendError(EventRatingError, "Malformed rating submission", nil)
		return
	}

	if !models.ValidRatingValue(payload.Rating) {
		c.SendError(EventRatingError, "Rating must be between 1 and 5", bookingFields(payload.BookingID))
		return
	}
	if len(payload.Review) > models.ReviewMaxLength {
		c.SendError(EventRatingError, "Review is too long", bookingFields(payload.BookingID))
		return
	}

	result, err := h.ratings.Submit(context.Background(), payload.BookingID, c.UserID, payload.Rating, payload.Review)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			c.SendError(EventRatingError, "Booking not found", bookingFields(payload.BookingID))
		case errors.Is(err, repository.ErrNotEligible):
			c.SendError(EventRatingError, "Invalid or incomplete booking", bookingFields(payload.BookingID))
		case errors.Is(err, repository.ErrAlreadyRated):
			c.SendError(EventRatingError, "You have already rated this service", bookingFields(payload.BookingID))
		default:
			log.Printf("❌ Error submitting rating for booking %d: %v", payload.BookingID, err)
			c.SendError(EventRatingError, "Failed to submit rating", bookingFields(payload.BookingID))
		}
		return
	}

	h.PublishProvider(result.ProviderID, EventNewRating, map[string]interface{}{
		"booking_id":     payload.BookingID,
		"rating":         payload.Rating,
		"review":         payload.Review,
		"client_name":    c.Name,
		"average_rating": result.AverageRating,
		"total_ratings":  result.TotalRatings,
	})

	c.SendEvent(EventRatingSubmitted, map[string]interface{}{
		"success":        true,
		"booking_id":     payload.BookingID,
		"provider_id":    result.ProviderID,
		"average_rating": result.AverageRating,
	})

	log.Printf("⭐ Rating %d submitted for booking %d (provider %d now %.1f)",
		payload.Rating, payload.BookingID, result.ProviderID, result.AverageRating)
}

// sendBookingFailure maps store errors onto the caller's error event
func (h *Hub) sendBookingFailure(c *Client, errEvent string, bookingID uint, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.SendError(errEvent, "Booking not found", bookingFields(bookingID))
	case errors.Is(err, repository.ErrInvalidTransition):
		c.SendError(errEvent, "Booking no longer available", bookingFields(bookingID))
	default:
		log.Printf("❌ Store error on booking %d: %v", bookingID, err)
		c.SendError(errEvent, "Failed to update booking", bookingFields(bookingID))
	}
}
