package models

import (
	"time"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusAccepted  BookingStatus = "accepted"
	BookingStatusArrived   BookingStatus = "arrived"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusRejected  BookingStatus = "rejected"
)

// bookingTransitions is the full transition table for the booking
// lifecycle. A client cancel is only allowed while the booking is still
// pending; once a provider has accepted, the booking only moves forward
// (arrived, then completed).
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:  {BookingStatusAccepted, BookingStatusCancelled, BookingStatusRejected},
	BookingStatusAccepted: {BookingStatusArrived},
	BookingStatusArrived:  {BookingStatusCompleted},
}

// IsValid checks if the status is one of the known booking statuses
func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingStatusPending, BookingStatusAccepted, BookingStatusArrived,
		BookingStatusCompleted, BookingStatusCancelled, BookingStatusRejected:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is defined from s
func (s BookingStatus) IsTerminal() bool {
	return s.IsValid() && len(bookingTransitions[s]) == 0
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if next == allowed {
			return true
		}
	}
	return false
}

// RequiresProvider reports whether a booking in this status must have a
// provider assigned
func (s BookingStatus) RequiresProvider() bool {
	switch s {
	case BookingStatusAccepted, BookingStatusArrived, BookingStatusCompleted:
		return true
	default:
		return false
	}
}

// Location is the service address for a booking
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address" gorm:"size:500;not null"`
}

// IsValid checks the coordinates are within range and an address is present
func (l Location) IsValid() bool {
	return l.Latitude >= -90 && l.Latitude <= 90 &&
		l.Longitude >= -180 && l.Longitude <= 180 &&
		l.Address != ""
}

// ClientInfo is a contact snapshot taken at booking time, kept independent
// of the live user record
type ClientInfo struct {
	Name  string `json:"name" gorm:"size:255"`
	Phone string `json:"phone" gorm:"size:20"`
	Email string `json:"email" gorm:"size:255"`
}

type Booking struct {
	ID         uint            `json:"id" gorm:"primaryKey"`
	ClientID   uint            `json:"client_id" gorm:"not null;index"`
	ProviderID *uint           `json:"provider_id" gorm:"index"` // Null until accepted
	Service    ServiceCategory `json:"service" gorm:"type:varchar(30);not null;index"`
	Status     BookingStatus   `json:"status" gorm:"type:varchar(20);not null;default:'pending';index;check:status IN ('pending','accepted','arrived','completed','cancelled','rejected')"`

	ScheduledTime time.Time  `json:"scheduled_time" gorm:"not null"`
	Location      Location   `json:"location" gorm:"embedded;embeddedPrefix:location_"`
	ClientInfo    ClientInfo `json:"client_info" gorm:"embedded;embeddedPrefix:client_"`
	Notes         string     `json:"notes" gorm:"size:1000"`
	Amount        *float64   `json:"amount,omitempty" gorm:"type:decimal(10,2)"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	// Relationships
	Client   User  `json:"client,omitempty" gorm:"foreignKey:ClientID"`
	Provider *User `json:"provider,omitempty" gorm:"foreignKey:ProviderID"`
}

// TableName specifies the table name for the Booking model
func (Booking) TableName() string {
	return "bookings"
}
