package models

import (
	"time"
)

type UserRole string

const (
	RoleClient   UserRole = "client"
	RoleProvider UserRole = "provider"
)

type User struct {
	ID           uint     `json:"id" gorm:"primaryKey"`
	Name         string   `json:"name" gorm:"size:255;not null"`
	Email        string   `json:"email" gorm:"size:255;uniqueIndex;not null"`
	Phone        string   `json:"phone" gorm:"size:20;not null"`
	PasswordHash string   `json:"-" gorm:"size:255;not null"` // Hidden from JSON
	Role         UserRole `json:"role" gorm:"type:varchar(20);not null;check:role IN ('client','provider')"`

	// Provider-only fields
	Services    ServiceList `json:"services,omitempty" gorm:"type:text"`
	IsAvailable bool        `json:"is_available" gorm:"default:false"`

	// Rating aggregates, maintained only by the rating submission path.
	// average_rating is always round(mean(ratings.value), 1) and
	// total_ratings always equals the number of rating rows.
	AverageRating     float64 `json:"average_rating" gorm:"type:decimal(2,1);default:0"`
	TotalRatings      int     `json:"total_ratings" gorm:"default:0"`
	CompletedBookings int     `json:"completed_bookings" gorm:"default:0"`

	IsActive  bool      `json:"is_active" gorm:"default:true"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	// Relationships
	Ratings []Rating `json:"ratings,omitempty" gorm:"foreignKey:ProviderID"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}

// IsValidRole checks if the user role is valid
func (u *User) IsValidRole() bool {
	switch u.Role {
	case RoleClient, RoleProvider:
		return true
	default:
		return false
	}
}

// IsProvider checks if the user is a provider
func (u *User) IsProvider() bool {
	return u.Role == RoleProvider
}

// IsClient checks if the user is a client
func (u *User) IsClient() bool {
	return u.Role == RoleClient
}

// PublicProfile is the provider detail shared with clients in notifications
type PublicProfile struct {
	ID            uint        `json:"id"`
	Name          string      `json:"name"`
	Phone         string      `json:"phone"`
	Services      ServiceList `json:"services,omitempty"`
	AverageRating float64     `json:"average_rating"`
	TotalRatings  int         `json:"total_ratings"`
}

// Public returns the user's public profile
func (u *User) Public() PublicProfile {
	return PublicProfile{
		ID:            u.ID,
		Name:          u.Name,
		Phone:         u.Phone,
		Services:      u.Services,
		AverageRating: u.AverageRating,
		TotalRatings:  u.TotalRatings,
	}
}
