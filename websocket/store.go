package websocket

import (
	"context"

	"home-service-server/models"
	"home-service-server/repository"
)

// BookingStore is the authoritative store for booking transitions. All
// mutations are conditional on the expected prior status, so the store
// decides races, not the hub.
type BookingStore interface {
	Create(ctx context.Context, b *models.Booking) error
	ByID(ctx context.Context, id uint) (*models.Booking, error)
	Accept(ctx context.Context, bookingID, providerID uint) (*models.Booking, error)
	Advance(ctx context.Context, bookingID, providerID uint, from, to models.BookingStatus) (*models.Booking, error)
	Cancel(ctx context.Context, bookingID, clientID uint) (*models.Booking, error)
	Reject(ctx context.Context, bookingID uint) (*models.Booking, error)
}

// RatingStore appends ratings and maintains the provider aggregates
type RatingStore interface {
	Submit(ctx context.Context, bookingID, clientID uint, value int, review string) (*repository.SubmitResult, error)
}

// UserStore resolves users and persists the availability flag
type UserStore interface {
	ByID(ctx context.Context, id uint) (*models.User, error)
	SetAvailability(ctx context.Context, userID uint, available bool) error
}
