package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"home-service-server/models"
)

// UserRepo wraps user reads and the availability flag write. Credential
// storage itself is a thin boundary; nothing here carries transition logic.
type UserRepo struct {
	db *gorm.DB
}

// NewUserRepo creates a user repository
func NewUserRepo(db *gorm.DB) *UserRepo {
	return &UserRepo{db: db}
}

// Create stores a new user
func (r *UserRepo) Create(ctx context.Context, u *models.User) error {
	if err := r.db.WithContext(ctx).Create(u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

// ByID loads a single user
func (r *UserRepo) ByID(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// ByEmail loads a user by email
func (r *UserRepo) ByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// SetAvailability updates a provider's availability flag
func (r *UserRepo) SetAvailability(ctx context.Context, userID uint, available bool) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND role = ?", userID, models.RoleProvider).
		Update("is_available", available)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Providers lists providers, optionally filtered by service category and
// availability. The category filter compares whole list entries, never
// substrings of the stored column, so categories that contain one another
// (like "Cleaning" inside "House Cleaning") cannot cross-match.
func (r *UserRepo) Providers(ctx context.Context, service models.ServiceCategory, availableOnly bool) ([]models.User, error) {
	query := r.db.WithContext(ctx).Where("role = ?", models.RoleProvider)
	if availableOnly {
		query = query.Where("is_available = ?", true)
	}

	var providers []models.User
	if err := query.Order("average_rating DESC").Find(&providers).Error; err != nil {
		return nil, err
	}
	if service == "" {
		return providers, nil
	}

	matched := providers[:0]
	for _, p := range providers {
		if p.Services.Contains(service) {
			matched = append(matched, p)
		}
	}
	return matched, nil
}
