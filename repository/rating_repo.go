package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"home-service-server/models"
)

// RatingRepo owns rating submission and the provider aggregate invariant:
// after any committed submission, average_rating is the rounded mean of
// the provider's rating rows and total_ratings is their count.
type RatingRepo struct {
	db *gorm.DB
}

// NewRatingRepo creates a rating repository
func NewRatingRepo(db *gorm.DB) *RatingRepo {
	return &RatingRepo{db: db}
}

// SubmitResult reports the committed rating and the provider's recomputed
// aggregates
type SubmitResult struct {
	Rating        models.Rating
	ProviderID    uint
	AverageRating float64
	TotalRatings  int
}

// Submit appends a rating for a completed booking and recomputes the
// provider's aggregates in the same transaction. The provider row is
// locked first so concurrent submissions for the same provider serialize
// and the aggregates never drift from the rating rows.
func (r *RatingRepo) Submit(ctx context.Context, bookingID, clientID uint, value int, review string) (*SubmitResult, error) {
	var result SubmitResult

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var booking models.Booking
		if err := tx.First(&booking, bookingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if booking.Status != models.BookingStatusCompleted || booking.ClientID != clientID {
			return ErrNotEligible
		}
		if booking.ProviderID == nil {
			return ErrNotEligible
		}
		providerID := *booking.ProviderID

		// Serialize aggregate recomputation per provider
		var provider models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&provider, providerID).Error; err != nil {
			return err
		}

		rating := models.Rating{
			BookingID:  bookingID,
			ProviderID: providerID,
			ClientID:   clientID,
			Value:      value,
			Review:     review,
		}
		if err := tx.Create(&rating).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyRated
			}
			return err
		}

		var agg struct {
			Average float64
			Total   int
		}
		if err := tx.Model(&models.Rating{}).
			Where("provider_id = ?", providerID).
			Select("COALESCE(ROUND(AVG(value)::numeric, 1), 0) AS average, COUNT(*) AS total").
			Scan(&agg).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.User{}).
			Where("id = ?", providerID).
			Updates(map[string]interface{}{
				"average_rating":     agg.Average,
				"total_ratings":      agg.Total,
				"completed_bookings": gorm.Expr("completed_bookings + 1"),
			}).Error; err != nil {
			return err
		}

		result = SubmitResult{
			Rating:        rating,
			ProviderID:    providerID,
			AverageRating: agg.Average,
			TotalRatings:  agg.Total,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ByProvider lists a provider's ratings, newest first
func (r *RatingRepo) ByProvider(ctx context.Context, providerID uint) ([]models.Rating, error) {
	var ratings []models.Rating
	err := r.db.WithContext(ctx).
		Where("provider_id = ?", providerID).
		Order("created_at DESC").
		Find(&ratings).Error
	return ratings, err
}
