package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"home-service-server/models"
)

// BookingRepo owns all booking mutations. Every transition is a single
// conditional UPDATE scoped by booking id and expected prior status, so
// concurrent callers racing on the same booking cannot both win.
type BookingRepo struct {
	db *gorm.DB
}

// NewBookingRepo creates a booking repository
func NewBookingRepo(db *gorm.DB) *BookingRepo {
	return &BookingRepo{db: db}
}

// Create stores a new booking in pending state with no provider assigned
func (r *BookingRepo) Create(ctx context.Context, b *models.Booking) error {
	b.Status = models.BookingStatusPending
	b.ProviderID = nil
	return r.db.WithContext(ctx).Create(b).Error
}

// ByID loads a single booking
func (r *BookingRepo) ByID(ctx context.Context, id uint) (*models.Booking, error) {
	var b models.Booking
	if err := r.db.WithContext(ctx).First(&b, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

// Accept assigns the provider and moves the booking to accepted, but only
// if it is still pending. Exactly one of any number of concurrent accept
// attempts succeeds; the rest get ErrInvalidTransition.
func (r *BookingRepo) Accept(ctx context.Context, bookingID, providerID uint) (*models.Booking, error) {
	res := r.db.WithContext(ctx).Model(&models.Booking{}).
		Where("id = ? AND status = ? AND provider_id IS NULL", bookingID, models.BookingStatusPending).
		Updates(map[string]interface{}{
			"status":      models.BookingStatusAccepted,
			"provider_id": providerID,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, r.transitionFailure(ctx, bookingID)
	}
	return r.ByID(ctx, bookingID)
}

// Advance moves a booking owned by the given provider from one status to
// the next (accepted→arrived, arrived→completed). The provider match is
// part of the conditional update, not a separate read.
func (r *BookingRepo) Advance(ctx context.Context, bookingID, providerID uint, from, to models.BookingStatus) (*models.Booking, error) {
	if !from.CanTransitionTo(to) {
		return nil, ErrInvalidTransition
	}
	res := r.db.WithContext(ctx).Model(&models.Booking{}).
		Where("id = ? AND status = ? AND provider_id = ?", bookingID, from, providerID).
		Update("status", to)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, r.transitionFailure(ctx, bookingID)
	}
	return r.ByID(ctx, bookingID)
}

// Cancel moves a pending booking to cancelled on behalf of its client.
// Once a provider has accepted, cancellation is no longer permitted.
func (r *BookingRepo) Cancel(ctx context.Context, bookingID, clientID uint) (*models.Booking, error) {
	res := r.db.WithContext(ctx).Model(&models.Booking{}).
		Where("id = ? AND status = ? AND client_id = ?", bookingID, models.BookingStatusPending, clientID).
		Update("status", models.BookingStatusCancelled)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, r.transitionFailure(ctx, bookingID)
	}
	return r.ByID(ctx, bookingID)
}

// Reject moves a pending booking to rejected. The rejecting provider is
// not assigned to the booking; rejected bookings never carry a provider.
func (r *BookingRepo) Reject(ctx context.Context, bookingID uint) (*models.Booking, error) {
	res := r.db.WithContext(ctx).Model(&models.Booking{}).
		Where("id = ? AND status = ?", bookingID, models.BookingStatusPending).
		Update("status", models.BookingStatusRejected)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, r.transitionFailure(ctx, bookingID)
	}
	return r.ByID(ctx, bookingID)
}

// ByClient lists a client's bookings, newest first
func (r *BookingRepo) ByClient(ctx context.Context, clientID uint) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("created_at DESC").
		Find(&bookings).Error
	return bookings, err
}

// ByProvider lists a provider's bookings, newest first
func (r *BookingRepo) ByProvider(ctx context.Context, providerID uint) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.WithContext(ctx).
		Where("provider_id = ?", providerID).
		Order("created_at DESC").
		Find(&bookings).Error
	return bookings, err
}

// PendingByServices lists open bookings in any of the given categories,
// used by providers to reconcile after a reconnect
func (r *BookingRepo) PendingByServices(ctx context.Context, services models.ServiceList) ([]models.Booking, error) {
	if len(services) == 0 {
		return nil, nil
	}
	var bookings []models.Booking
	err := r.db.WithContext(ctx).
		Where("service IN ? AND status = ?", services, models.BookingStatusPending).
		Order("created_at DESC").
		Find(&bookings).Error
	return bookings, err
}

// transitionFailure distinguishes an unknown booking from a guard
// violation after a conditional update touched no rows
func (r *BookingRepo) transitionFailure(ctx context.Context, bookingID uint) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Booking{}).
		Where("id = ?", bookingID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrInvalidTransition
}
