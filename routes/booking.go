package routes

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"home-service-server/database"
	"home-service-server/models"
	"home-service-server/repository"
	ws "home-service-server/websocket"
)

type createBookingRequest struct {
	Service       models.ServiceCategory `json:"service" binding:"required"`
	ScheduledTime time.Time              `json:"scheduled_time" binding:"required"`
	Latitude      float64                `json:"latitude"`
	Longitude     float64                `json:"longitude"`
	Address       string                 `json:"address" binding:"required"`
	ClientName    string                 `json:"client_name" binding:"required"`
	ClientPhone   string                 `json:"client_phone" binding:"required"`
	ClientEmail   string                 `json:"client_email"`
	Notes         string                 `json:"notes"`
	Amount        *float64               `json:"amount"`
}

// RegisterBookingRoutes registers the pull-based booking API. Clients use
// it to create and reconcile bookings; providers use it to reconcile the
// open bookings in their categories after a reconnect.
func RegisterBookingRoutes(router *gin.RouterGroup, hub *ws.Hub) {
	bookings := repository.NewBookingRepo(database.DB)

	// Create a booking over HTTP; fans out to the category topic exactly
	// like the websocket path
	router.POST("", func(c *gin.Context) {
		user := currentUser(c)
		if user == nil || !user.IsClient() {
			c.JSON(http.StatusForbidden, gin.H{"error": "Only clients can create bookings"})
			return
		}

		var req createBookingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking data", "details": err.Error()})
			return
		}

		if !req.Service.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown service category: " + string(req.Service)})
			return
		}
		location := models.Location{Latitude: req.Latitude, Longitude: req.Longitude, Address: req.Address}
		if !location.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking location"})
			return
		}
		if req.Amount != nil && *req.Amount < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Amount must not be negative"})
			return
		}

		booking := models.Booking{
			ClientID:      user.ID,
			Service:       req.Service,
			ScheduledTime: req.ScheduledTime,
			Location:      location,
			ClientInfo: models.ClientInfo{
				Name:  req.ClientName,
				Phone: req.ClientPhone,
				Email: req.ClientEmail,
			},
			Notes:  req.Notes,
			Amount: req.Amount,
		}

		if err := bookings.Create(c.Request.Context(), &booking); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create booking"})
			return
		}

		hub.PublishService(booking.Service, ws.EventNewBooking, gin.H{"booking": ws.BookingView(&booking)})

		c.JSON(http.StatusCreated, gin.H{
			"message": "Booking created successfully",
			"booking": booking,
		})
	})

	// List the caller's bookings, by role
	router.GET("", func(c *gin.Context) {
		user := currentUser(c)
		if user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		var (
			list []models.Booking
			err  error
		)
		if user.IsProvider() {
			list, err = bookings.ByProvider(c.Request.Context(), user.ID)
		} else {
			list, err = bookings.ByClient(c.Request.Context(), user.ID)
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch bookings"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"bookings": list})
	})

	// Open bookings in the provider's categories, for reconciliation
	router.GET("/pending", func(c *gin.Context) {
		user := currentUser(c)
		if user == nil || !user.IsProvider() {
			c.JSON(http.StatusForbidden, gin.H{"error": "Only providers can list open bookings"})
			return
		}

		list, err := bookings.PendingByServices(c.Request.Context(), user.Services)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch open bookings"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"bookings": list})
	})

	// Fetch one booking, visible to its client or assigned provider
	router.GET("/:id", func(c *gin.Context) {
		user := currentUser(c)
		if user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		bookingID, err := parseID(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking ID"})
			return
		}

		booking, err := bookings.ByID(c.Request.Context(), bookingID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Booking not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch booking"})
			return
		}

		isClient := booking.ClientID == user.ID
		isProvider := booking.ProviderID != nil && *booking.ProviderID == user.ID
		if !isClient && !isProvider {
			c.JSON(http.StatusForbidden, gin.H{"error": "You are not a party to this booking"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"booking": booking})
	})

	// Cancel a pending booking; the category topic is told it is gone
	router.POST("/:id/cancel", func(c *gin.Context) {
		user := currentUser(c)
		if user == nil || !user.IsClient() {
			c.JSON(http.StatusForbidden, gin.H{"error": "Only clients can cancel bookings"})
			return
		}

		bookingID, err := parseID(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking ID"})
			return
		}

		booking, err := bookings.Cancel(c.Request.Context(), bookingID, user.ID)
		if err != nil {
			switch {
			case errors.Is(err, repository.ErrNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "Booking not found"})
			case errors.Is(err, repository.ErrInvalidTransition):
				c.JSON(http.StatusConflict, gin.H{"error": "Booking can no longer be cancelled"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel booking"})
			}
			return
		}

		hub.PublishService(booking.Service, ws.EventBookingCancelled, gin.H{"booking_id": booking.ID})

		c.JSON(http.StatusOK, gin.H{
			"message": "Booking cancelled",
			"booking": booking,
		})
	})
}

// currentUser returns the authenticated user set by the auth middleware
func currentUser(c *gin.Context) *models.User {
	value, exists := c.Get("user")
	if !exists {
		return nil
	}
	user, ok := value.(models.User)
	if !ok {
		return nil
	}
	return &user
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	return uint(id), err
}
