package models

import (
	"time"
)

const (
	// RatingMin and RatingMax bound the accepted star values
	RatingMin = 1
	RatingMax = 5

	// ReviewMaxLength bounds the optional review text
	ReviewMaxLength = 500
)

// Rating is a client's one-time rating of a completed booking. The unique
// index on booking_id enforces at most one rating per booking at the store
// level, so concurrent duplicate submissions cannot both commit.
type Rating struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	BookingID  uint   `json:"booking_id" gorm:"not null;uniqueIndex"`
	ProviderID uint   `json:"provider_id" gorm:"not null;index"`
	ClientID   uint   `json:"client_id" gorm:"not null;index"`
	Value      int    `json:"value" gorm:"not null;check:value >= 1 AND value <= 5"`
	Review     string `json:"review" gorm:"size:500"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`

	// Relationships
	Booking  Booking `json:"booking,omitempty" gorm:"foreignKey:BookingID"`
	Provider User    `json:"provider,omitempty" gorm:"foreignKey:ProviderID"`
	Client   User    `json:"client,omitempty" gorm:"foreignKey:ClientID"`
}

// TableName specifies the table name for the Rating model
func (Rating) TableName() string {
	return "ratings"
}

// ValidRatingValue checks the star value is within the accepted range
func ValidRatingValue(value int) bool {
	return value >= RatingMin && value <= RatingMax
}
