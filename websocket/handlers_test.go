package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"home-service-server/models"
	"home-service-server/repository"
)

// ---------------------------------------------------------------------------
// In-memory stores with the same conditional-transition semantics as the
// repositories, so handler behavior (including the accept race) can be
// exercised without a database.
// ---------------------------------------------------------------------------

type memBookingStore struct {
	mu       sync.Mutex
	nextID   uint
	bookings map[uint]*models.Booking
}

func newMemBookingStore() *memBookingStore {
	return &memBookingStore{bookings: make(map[uint]*models.Booking)}
}

func (s *memBookingStore) Create(_ context.Context, b *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	b.ID = s.nextID
	b.Status = models.BookingStatusPending
	b.ProviderID = nil
	stored := *b
	s.bookings[b.ID] = &stored
	return nil
}

func (s *memBookingStore) ByID(_ context.Context, id uint) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked(id)
}

func (s *memBookingStore) Accept(_ context.Context, bookingID, providerID uint) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[bookingID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if b.Status != models.BookingStatusPending || b.ProviderID != nil {
		return nil, repository.ErrInvalidTransition
	}
	b.Status = models.BookingStatusAccepted
	b.ProviderID = &providerID
	return s.copyLocked(bookingID)
}

func (s *memBookingStore) Advance(_ context.Context, bookingID, providerID uint, from, to models.BookingStatus) (*models.Booking, error) {
	if !from.CanTransitionTo(to) {
		return nil, repository.ErrInvalidTransition
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[bookingID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if b.Status != from || b.ProviderID == nil || *b.ProviderID != providerID {
		return nil, repository.ErrInvalidTransition
	}
	b.Status = to
	return s.copyLocked(bookingID)
}

func (s *memBookingStore) Cancel(_ context.Context, bookingID, clientID uint) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[bookingID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if b.Status != models.BookingStatusPending || b.ClientID != clientID {
		return nil, repository.ErrInvalidTransition
	}
	b.Status = models.BookingStatusCancelled
	return s.copyLocked(bookingID)
}

func (s *memBookingStore) Reject(_ context.Context, bookingID uint) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[bookingID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if b.Status != models.BookingStatusPending {
		return nil, repository.ErrInvalidTransition
	}
	b.Status = models.BookingStatusRejected
	return s.copyLocked(bookingID)
}

func (s *memBookingStore) copyLocked(id uint) (*models.Booking, error) {
	b, ok := s.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *b
	if b.ProviderID != nil {
		pid := *b.ProviderID
		cp.ProviderID = &pid
	}
	return &cp, nil
}

type memUserStore struct {
	mu          sync.Mutex
	users       map[uint]*models.User
	failLookups bool
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[uint]*models.User)}
}

func (s *memUserStore) add(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = &u
}

func (s *memUserStore) ByID(_ context.Context, id uint) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failLookups {
		return nil, errors.New("user lookup unavailable")
	}
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memUserStore) SetAvailability(_ context.Context, userID uint, available bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok || !u.IsProvider() {
		return repository.ErrNotFound
	}
	u.IsAvailable = available
	return nil
}

type memRatingStore struct {
	mu       sync.Mutex
	bookings *memBookingStore
	rated    map[uint]bool   // by booking id
	values   map[uint][]int  // by provider id
}

func newMemRatingStore(bookings *memBookingStore) *memRatingStore {
	return &memRatingStore{
		bookings: bookings,
		rated:    make(map[uint]bool),
		values:   make(map[uint][]int),
	}
}

func (s *memRatingStore) Submit(ctx context.Context, bookingID, clientID uint, value int, review string) (*repository.SubmitResult, error) {
	booking, err := s.bookings.ByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingStatusCompleted || booking.ClientID != clientID || booking.ProviderID == nil {
		return nil, repository.ErrNotEligible
	}
	providerID := *booking.ProviderID

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rated[bookingID] {
		return nil, repository.ErrAlreadyRated
	}
	s.rated[bookingID] = true
	s.values[providerID] = append(s.values[providerID], value)

	sum := 0
	for _, v := range s.values[providerID] {
		sum += v
	}
	total := len(s.values[providerID])
	average := math.Round(float64(sum)/float64(total)*10) / 10

	return &repository.SubmitResult{
		Rating:        models.Rating{BookingID: bookingID, ProviderID: providerID, ClientID: clientID, Value: value, Review: review},
		ProviderID:    providerID,
		AverageRating: average,
		TotalRatings:  total,
	}, nil
}

// ---------------------------------------------------------------------------
// Test harness
// ---------------------------------------------------------------------------

type hubFixture struct {
	hub      *Hub
	bookings *memBookingStore
	users    *memUserStore
}

func newHubFixture() *hubFixture {
	bookings := newMemBookingStore()
	users := newMemUserStore()
	return &hubFixture{
		hub:      NewHub(bookings, newMemRatingStore(bookings), users),
		bookings: bookings,
		users:    users,
	}
}

// connect registers a connection-less client directly, bypassing the
// Register channel so tests need no running hub loop
func (f *hubFixture) connect(user models.User) *Client {
	f.users.add(user)
	client := &Client{
		Hub:      f.hub,
		ID:       fmt.Sprintf("conn-%d-%s", user.ID, user.Role),
		UserID:   user.ID,
		Role:     user.Role,
		Services: user.Services,
		Name:     user.Name,
		Phone:    user.Phone,
		Send:     make(chan []byte, 64),
	}
	f.hub.register(client)
	return client
}

func (f *hubFixture) send(c *Client, event string, payload interface{}) {
	data, _ := json.Marshal(payload)
	raw, _ := json.Marshal(Message{Type: event, Data: data})
	f.hub.dispatch(c, raw)
}

// pendingBooking seeds a pending booking for the given client
func (f *hubFixture) pendingBooking(t *testing.T, clientID uint, service models.ServiceCategory) *models.Booking {
	t.Helper()
	b := &models.Booking{
		ClientID:      clientID,
		Service:       service,
		ScheduledTime: time.Now().Add(2 * time.Hour),
		Location:      models.Location{Latitude: 12.9, Longitude: 77.6, Address: "12 MG Road"},
	}
	require.NoError(t, f.bookings.Create(context.Background(), b))
	return b
}

func nextQueued(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case raw, ok := <-c.Send:
		require.True(t, ok, "send channel closed for %s", c.ID)
		var m Message
		require.NoError(t, json.Unmarshal(raw, &m))
		return m
	case <-time.After(time.Second):
		t.Fatalf("no message queued for %s", c.ID)
		return Message{}
	}
}

func drainTypes(c *Client) []string {
	var types []string
	for {
		select {
		case raw := <-c.Send:
			var m Message
			if json.Unmarshal(raw, &m) == nil {
				types = append(types, m.Type)
			}
		default:
			return types
		}
	}
}

func clientUser(id uint, name string) models.User {
	return models.User{ID: id, Name: name, Phone: "100", Role: models.RoleClient}
}

func providerUser(id uint, name string, services ...models.ServiceCategory) models.User {
	return models.User{ID: id, Name: name, Phone: "200", Role: models.RoleProvider, Services: services}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestNewBookingFansOutToMatchingProviders(t *testing.T) {
	f := newHubFixture()
	client := f.connect(clientUser(1, "Alice"))
	plumber := f.connect(providerUser(2, "Bob", models.ServicePlumber))
	barber := f.connect(providerUser(3, "Carol", models.ServiceBarber))

	f.send(client, EventNewBooking, map[string]interface{}{
		"service":        "Plumber",
		"scheduled_time": time.Now().Add(time.Hour).Format(time.RFC3339),
		"latitude":       12.9,
		"longitude":      77.6,
		"address":        "12 MG Road",
		"client_name":    "Alice",
		"client_phone":   "100",
	})

	ack := nextQueued(t, client)
	assert.Equal(t, EventBookingCreated, ack.Type)

	notice := nextQueued(t, plumber)
	require.Equal(t, EventNewBooking, notice.Type)
	var body struct {
		Booking struct {
			ID      uint                   `json:"id"`
			Service models.ServiceCategory `json:"service"`
			Status  models.BookingStatus   `json:"status"`
		} `json:"booking"`
	}
	require.NoError(t, json.Unmarshal(notice.Data, &body))
	assert.Equal(t, models.ServicePlumber, body.Booking.Service)
	assert.Equal(t, models.BookingStatusPending, body.Booking.Status)

	assert.Empty(t, drainTypes(barber), "barber must not see plumber bookings")
}

func TestNewBookingValidation(t *testing.T) {
	f := newHubFixture()
	client := f.connect(clientUser(1, "Alice"))
	provider := f.connect(providerUser(2, "Bob", models.ServicePlumber))

	t.Run("ProvidersCannotCreateBookings", func(t *testing.T) {
		f.send(provider, EventNewBooking, map[string]interface{}{"service": "Plumber"})
		assert.Equal(t, EventBookingError, nextQueued(t, provider).Type)
	})

	t.Run("UnknownServiceCategory", func(t *testing.T) {
		f.send(client, EventNewBooking, map[string]interface{}{
			"service":        "Gardener",
			"scheduled_time": time.Now().Add(time.Hour).Format(time.RFC3339),
			"latitude":       12.9,
			"longitude":      77.6,
			"address":        "12 MG Road",
		})
		assert.Equal(t, EventBookingError, nextQueued(t, client).Type)
	})

	t.Run("OutOfRangeCoordinates", func(t *testing.T) {
		f.send(client, EventNewBooking, map[string]interface{}{
			"service":        "Plumber",
			"scheduled_time": time.Now().Add(time.Hour).Format(time.RFC3339),
			"latitude":       123.0,
			"longitude":      77.6,
			"address":        "12 MG Road",
		})
		assert.Equal(t, EventBookingError, nextQueued(t, client).Type)
	})

	t.Run("MissingScheduledTime", func(t *testing.T) {
		f.send(client, EventNewBooking, map[string]interface{}{
			"service":   "Plumber",
			"latitude":  12.9,
			"longitude": 77.6,
			"address":   "12 MG Road",
		})
		assert.Equal(t, EventBookingError, nextQueued(t, client).Type)
	})

	assert.Empty(t, drainTypes(provider), "rejected bookings must not reach providers")
}

func TestConcurrentAcceptHasExactlyOneWinner(t *testing.T) {
	f := newHubFixture()
	client := f.connect(clientUser(1, "Alice"))

	const contenders = 8
	providers := make([]*Client, contenders)
	for i := range providers {
		providers[i] = f.connect(providerUser(uint(10+i), fmt.Sprintf("P%d", i), models.ServicePlumber))
	}

	booking := f.pendingBooking(t, client.UserID, models.ServicePlumber)

	var wg sync.WaitGroup
	for _, p := range providers {
		wg.Add(1)
		go func(p *Client) {
			defer wg.Done()
			f.send(p, EventAcceptBooking, map[string]interface{}{"booking_id": booking.ID})
		}(p)
	}
	wg.Wait()

	winners, losers := 0, 0
	for _, p := range providers {
		for _, eventType := range drainTypes(p) {
			switch eventType {
			case EventBookingAcceptedSuccess:
				winners++
			case EventBookingError:
				losers++
			}
		}
	}
	assert.Equal(t, 1, winners, "exactly one provider wins the accept race")
	assert.Equal(t, contenders-1, losers, "every loser gets a booking error")

	// The client hears about exactly one acceptance
	clientEvents := drainTypes(client)
	accepted := 0
	for _, eventType := range clientEvents {
		if eventType == EventBookingAccepted {
			accepted++
		}
	}
	assert.Equal(t, 1, accepted)

	stored, err := f.bookings.ByID(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusAccepted, stored.Status)
	require.NotNil(t, stored.ProviderID)
}

func TestAcceptNotifiesLosingProvidersBookingUnavailable(t *testing.T) {
	f := newHubFixture()
	client := f.connect(clientUser(1, "Alice"))
	winner := f.connect(providerUser(2, "Bob", models.ServicePlumber))
	watcher := f.connect(providerUser(3, "Carol", models.ServicePlumber))

	booking := f.pendingBooking(t, client.UserID, models.ServicePlumber)
	f.send(winner, EventAcceptBooking, map[string]interface{}{"booking_id": booking.ID})

	assert.Equal(t, EventBookingAcceptedSuccess, nextQueued(t, winner).Type)
	assert.NotContains(t, drainTypes(winner), EventBookingUnavailable, "winner must not be told its own booking is gone")

	notice := nextQueued(t, watcher)
	assert.Equal(t, EventBookingUnavailable, notice.Type)

	// The client's notification carries the provider's public profile
	accepted := nextQueued(t, client)
	require.Equal(t, EventBookingAccepted, accepted.Type)
	var body struct {
		Provider models.PublicProfile `json:"provider"`
	}
	require.NoError(t, json.Unmarshal(accepted.Data, &body))
	assert.Equal(t, uint(2), body.Provider.ID)
	assert.Equal(t, "Bob", body.Provider.Name)
}

func TestAcceptNotifiesClientWhenProfileLookupFails(t *testing.T) {
	f := newHubFixture()
	client := f.connect(clientUser(1, "Alice"))
	provider := f.connect(providerUser(2, "Bob", models.ServicePlumber))

	booking := f.pendingBooking(t, client.UserID, models.ServicePlumber)

	f.users.mu.Lock()
	f.users.failLookups = true
	f.users.mu.Unlock()

	f.send(provider, EventAcceptBooking, map[string]interface{}{"booking_id": booking.ID})
	assert.Equal(t, EventBookingAcceptedSuccess, nextQueued(t, provider).Type)

	// The committed accept still reaches the client, built from the
	// connection's own snapshot of the provider
	accepted := nextQueued(t, client)
	require.Equal(t, EventBookingAccepted, accepted.Type)
	var body struct {
		Provider models.PublicProfile `json:"provider"`
		Message  string               `json:"message"`
	}
	require.NoError(t, json.Unmarshal(accepted.Data, &body))
	assert.Equal(t, uint(2), body.Provider.ID)
	assert.Equal(t, "Bob", body.Provider.Name)
	assert.Equal(t, "200", body.Provider.Phone)
	assert.Contains(t, body.Message, "Bob")
}

func TestBookingViewShape(t *testing.T) {
	providerID := uint(7)
	amount := 120.0
	booking := &models.Booking{
		ID:            3,
		ClientID:      1,
		ProviderID:    &providerID,
		Service:       models.ServicePlumber,
		Status:        models.BookingStatusAccepted,
		ScheduledTime: time.Now().Add(time.Hour),
		Location:      models.Location{Latitude: 12.9, Longitude: 77.6, Address: "12 MG Road"},
		ClientInfo:    models.ClientInfo{Name: "Alice", Phone: "100"},
		Amount:        &amount,
	}

	raw, err := json.Marshal(BookingView(booking))
	require.NoError(t, err)

	var view map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &view))

	// The contact snapshot travels as "customer" and the client id stays
	// off the wire; both publish paths share this shape
	assert.Contains(t, view, "customer")
	assert.Contains(t, view, "provider_id")
	assert.Contains(t, view, "amount")
	assert.NotContains(t, view, "client_id")
	assert.NotContains(t, view, "client_info")
	assert.NotContains(t, view, "client")
}

func TestAcceptUnknownBooking(t *testing.T) {
	f := newHubFixture()
	provider := f.connect(providerUser(2, "Bob", models.ServicePlumber))

	f.send(provider, EventAcceptBooking, map[string]interface{}{"booking_id": 999})

	failure := nextQueued(t, provider)
	assert.Equal(t, EventBookingError, failure.Type)
}

func TestClientsCannotAcceptBookings(t *testing.T) {
	f := newHubFixture()
	client := f.connect(clientUser(1, "Alice"))
	booking := f.pendingBooking(t, client.UserID, models.ServicePlumber)

	f.send(client, EventAcceptBooking, map[string]interface{}{"booking_id": booking.ID})
	assert.Equal(t, EventBookingError, nextQueued(t, client).Type)

	stored, err := f.bookings.ByID(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, stored.Status)
}

func TestArriveAndCompleteFlow(t *testing.T) {
	f := newHubFixture()
	client := f.connect(clientUser(1, "Alice"))
	provider := f.connect(providerUser(2, "Bob", models.ServicePlumber))

	booking := f.pendingBooking(t, client.UserID, models.ServicePlumber)
	f.send(provider, EventAcceptBooking, map[string]interface{}{"booking_id": booking.ID})
	drainTypes(provider)
	drainTypes(client)

	// Completing before arriving is out of order
	f.send(provider, EventServiceCompleted, map[string]interface{}{"booking_id": booking.ID})
	assert.Equal(t, EventBookingError, nextQueued(t, provider).Type)

	f.send(provider, EventProviderArrived, map[string]interface{}{"booking_id": booking.ID})
	assert.Equal(t, EventArrivalConfirmed, nextQueued(t, provider).Type)

	arrived := nextQueued(t, client)
	require.Equal(t, EventProviderArrived, arrived.Type)
	var arrival struct {
		Provider struct {
			Name  string `json:"name"`
			Phone string `json:"phone"`
		} `json:"provider"`
	}
	require.NoError(t, json.Unmarshal(arrived.Data, &arrival))
	assert.Equal(t, "Bob", arrival.Provider.Name)
	assert.Equal(t, "200", arrival.Provider.Phone)

	// Arrival is not repeatable
	f.send(provider, EventProviderArrived, map[string]interface{}{"booking_id": booking.ID})
	assert.Equal(t, EventBookingError, nextQueued(t, provider).Type)

	f.send(provider, EventServiceCompleted, map[string]interface{}{"booking_id": booking.ID})
	assert.Equal(t, EventStatusUpdateSuccess, nextQueued(t, provider).Type)
	assert.Equal(t, EventServiceCompleted, nextQueued(t, client).Type)

	stored, err := f.bookings.ByID(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCompleted, stored.Status)
}

func TestArriveByNonAssignedProviderFails(t *testing.T) {
	f := newHubFixture()
	client := f.connect(clientUser(1, "Alice"))
	owner := f.connect(providerUser(2, "Bob", models.ServicePlumber))
	intruder := f.connect(providerUser(3, "Carol", models.ServicePlumber))

	booking := f.pendingBooking(t, client.UserID, models.ServicePlumber)
	f.send(owner, EventAcceptBooking, map[string]interface{}{"booking_id": booking.ID})
	drainTypes(owner)
	drainTypes(intruder)

	f.send(intruder, EventProviderArrived, map[string]interface{}{"booking_id": booking.ID})
	assert.Equal(t, EventBookingError, nextQueued(t, intruder).Type)

	stored, err := f.bookings.ByID(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusAccepted, stored.Status)
}

func TestCancelPendingThenAcceptFails(t *testing.T) {
	f := newHubFixture()
	client := f.connect(clientUser(1, "Alice"))
	provider := f.connect(providerUser(2, "Bob", models.ServicePlumber))

	booking := f.pendingBooking(t, client.UserID, models.ServicePlumber)

	f.send(client, EventUpdateBookingStatus, map[string]interface{}{
		"booking_id": booking.ID,
		"status":     "cancelled",
	})
	assert.Equal(t, EventStatusUpdateSuccess, nextQueued(t, client).Type)
	assert.Equal(t, EventBookingCancelled, nextQueued(t, provider).Type)

	f.send(provider, EventAcceptBooking, map[string]interface{}{"booking_id": booking.ID})
	assert.Equal(t, EventBookingError, nextQueued(t, provider).Type)
}

func TestCancelAcceptedBookingFails(t *testing.T) {
	f := newHubFixture()
	client := f.connect(clientUser(1, "Alice"))
	provider := f.connect(providerUser(2, "Bob", models.ServicePlumber))

	booking := f.pendingBooking(t, client.UserID, models.ServicePlumber)
	f.send(provider, EventAcceptBooking, map[string]interface{}{"booking_id": booking.ID})
	drainTypes(provider)
	drainTypes(client)

	f.send(client, EventUpdateBookingStatus, map[string]interface{}{
		"booking_id": booking.ID,
		"status":     "cancelled",
	})
	assert.Equal(t, EventUpdateError, nextQueued(t, client).Type)

	stored, err := f.bookings.ByID(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusAccepted, stored.Status)
}

func TestCancelByDifferentClientFails(t *testing.T) {
	f := newHubFixture()
	owner := f.connect(clientUser(1, "Alice"))
	other := f.connect(clientUser(2, "Eve"))

	booking := f.pendingBooking(t, owner.UserID, models.ServicePlumber)

	f.send(other, EventUpdateBookingStatus, map[string]interface{}{
		"booking_id": booking.ID,
		"status":     "cancelled",
	})
	assert.Equal(t, EventUpdateError, nextQueued(t, other).Type)

	stored, err := f.bookings.ByID(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, stored.Status)
}

func TestRejectPendingBooking(t *testing.T) {
	f := newHubFixture()
	client := f.connect(clientUser(1, "Alice"))
	provider := f.connect(providerUser(2, "Bob", models.ServicePlumber))

	booking := f.pendingBooking(t, client.UserID, models.ServicePlumber)

	f.send(provider, EventUpdateBookingStatus, map[string]interface{}{
		"booking_id": booking.ID,
		"status":     "rejected",
	})
	assert.Equal(t, EventStatusUpdateSuccess, nextQueued(t, provider).Type)
	assert.Equal(t, EventBookingStatusUpdated, nextQueued(t, client).Type)

	stored, err := f.bookings.ByID(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusRejected, stored.Status)
	assert.Nil(t, stored.ProviderID, "rejected bookings never carry a provider")
}

func TestUpdateStatusRejectsBackwardTransitions(t *testing.T) {
	f := newHubFixture()
	client := f.connect(clientUser(1, "Alice"))
	booking := f.pendingBooking(t, client.UserID, models.ServicePlumber)

	f.send(client, EventUpdateBookingStatus, map[string]interface{}{
		"booking_id": booking.ID,
		"status":     "pending",
	})
	assert.Equal(t, EventUpdateError, nextQueued(t, client).Type)

	f.send(client, EventUpdateBookingStatus, map[string]interface{}{
		"booking_id": booking.ID,
		"status":     "in_progress",
	})
	assert.Equal(t, EventUpdateError, nextQueued(t, client).Type)
}

func TestSubmitRating(t *testing.T) {
	f := newHubFixture()
	client := f.connect(clientUser(1, "Alice"))
	provider := f.connect(providerUser(2, "Bob", models.ServicePlumber))

	completeBooking := func() *models.Booking {
		b := f.pendingBooking(t, client.UserID, models.ServicePlumber)
		f.send(provider, EventAcceptBooking, map[string]interface{}{"booking_id": b.ID})
		f.send(provider, EventProviderArrived, map[string]interface{}{"booking_id": b.ID})
		f.send(provider, EventServiceCompleted, map[string]interface{}{"booking_id": b.ID})
		drainTypes(provider)
		drainTypes(client)
		return b
	}

	first := completeBooking()

	t.Run("ProvidersCannotRate", func(t *testing.T) {
		f.send(provider, EventSubmitRating, map[string]interface{}{"booking_id": first.ID, "rating": 5})
		assert.Equal(t, EventRatingError, nextQueued(t, provider).Type)
	})

	t.Run("ValueOutOfRange", func(t *testing.T) {
		f.send(client, EventSubmitRating, map[string]interface{}{"booking_id": first.ID, "rating": 0})
		assert.Equal(t, EventRatingError, nextQueued(t, client).Type)
		f.send(client, EventSubmitRating, map[string]interface{}{"booking_id": first.ID, "rating": 6})
		assert.Equal(t, EventRatingError, nextQueued(t, client).Type)
	})

	t.Run("FirstRatingSucceeds", func(t *testing.T) {
		f.send(client, EventSubmitRating, map[string]interface{}{
			"booking_id": first.ID,
			"rating":     4,
			"review":     "Quick and tidy",
		})

		ack := nextQueued(t, client)
		require.Equal(t, EventRatingSubmitted, ack.Type)
		var ackBody struct {
			AverageRating float64 `json:"average_rating"`
			ProviderID    uint    `json:"provider_id"`
		}
		require.NoError(t, json.Unmarshal(ack.Data, &ackBody))
		assert.Equal(t, 4.0, ackBody.AverageRating)
		assert.Equal(t, uint(2), ackBody.ProviderID)

		notice := nextQueued(t, provider)
		require.Equal(t, EventNewRating, notice.Type)
		var noticeBody struct {
			Rating        int     `json:"rating"`
			AverageRating float64 `json:"average_rating"`
			TotalRatings  int     `json:"total_ratings"`
		}
		require.NoError(t, json.Unmarshal(notice.Data, &noticeBody))
		assert.Equal(t, 4, noticeBody.Rating)
		assert.Equal(t, 4.0, noticeBody.AverageRating)
		assert.Equal(t, 1, noticeBody.TotalRatings)
	})

	t.Run("SecondRatingOnSameBookingFails", func(t *testing.T) {
		f.send(client, EventSubmitRating, map[string]interface{}{"booking_id": first.ID, "rating": 5})
		assert.Equal(t, EventRatingError, nextQueued(t, client).Type)
		assert.Empty(t, drainTypes(provider), "a rejected rating must not reach the provider")
	})

	t.Run("AverageCoversAllRatings", func(t *testing.T) {
		second := completeBooking()
		f.send(client, EventSubmitRating, map[string]interface{}{"booking_id": second.ID, "rating": 5})

		ack := nextQueued(t, client)
		require.Equal(t, EventRatingSubmitted, ack.Type)
		var ackBody struct {
			AverageRating float64 `json:"average_rating"`
		}
		require.NoError(t, json.Unmarshal(ack.Data, &ackBody))
		assert.Equal(t, 4.5, ackBody.AverageRating)
		drainTypes(provider)
	})

	t.Run("IncompleteBookingNotEligible", func(t *testing.T) {
		open := f.pendingBooking(t, client.UserID, models.ServicePlumber)
		drainTypes(provider)
		f.send(client, EventSubmitRating, map[string]interface{}{"booking_id": open.ID, "rating": 5})
		assert.Equal(t, EventRatingError, nextQueued(t, client).Type)
	})

	t.Run("UnknownBooking", func(t *testing.T) {
		f.send(client, EventSubmitRating, map[string]interface{}{"booking_id": 9999, "rating": 5})
		assert.Equal(t, EventRatingError, nextQueued(t, client).Type)
	})
}

func TestUpdateAvailability(t *testing.T) {
	f := newHubFixture()
	client := f.connect(clientUser(1, "Alice"))
	provider := f.connect(providerUser(2, "Bob", models.ServicePlumber))

	f.send(provider, EventUpdateAvailability, map[string]interface{}{"is_available": true})

	// Ack first, then the role broadcast reaches the provider too
	assert.Equal(t, EventAvailabilityUpdated, nextQueued(t, provider).Type)
	assert.Equal(t, EventAvailabilityUpdated, nextQueued(t, provider).Type)

	broadcast := nextQueued(t, client)
	require.Equal(t, EventAvailabilityUpdated, broadcast.Type)
	var body struct {
		ProviderID  uint `json:"provider_id"`
		IsAvailable bool `json:"is_available"`
	}
	require.NoError(t, json.Unmarshal(broadcast.Data, &body))
	assert.Equal(t, uint(2), body.ProviderID)
	assert.True(t, body.IsAvailable)

	stored, err := f.users.ByID(context.Background(), provider.UserID)
	require.NoError(t, err)
	assert.True(t, stored.IsAvailable)

	t.Run("ClientsCannotUpdateAvailability", func(t *testing.T) {
		f.send(client, EventUpdateAvailability, map[string]interface{}{"is_available": true})
		assert.Equal(t, EventUpdateError, nextQueued(t, client).Type)
	})
}

func TestDispatchRepliesToBadInput(t *testing.T) {
	f := newHubFixture()
	client := f.connect(clientUser(1, "Alice"))

	t.Run("MalformedJSON", func(t *testing.T) {
		f.hub.dispatch(client, []byte("{not json"))
		assert.Equal(t, EventUpdateError, nextQueued(t, client).Type)
	})

	t.Run("UnknownEventType", func(t *testing.T) {
		raw, _ := json.Marshal(Message{Type: "teleport_provider"})
		f.hub.dispatch(client, raw)
		assert.Equal(t, EventUpdateError, nextQueued(t, client).Type)
	})
}

func TestUnregisterStopsDelivery(t *testing.T) {
	f := newHubFixture()
	provider := f.connect(providerUser(2, "Bob", models.ServicePlumber))

	require.True(t, f.hub.IsUserOnline(provider.UserID))

	f.hub.unregister(provider)

	assert.False(t, f.hub.IsUserOnline(provider.UserID))
	f.hub.PublishService(models.ServicePlumber, EventNewBooking, nil)
	f.hub.PublishProvider(provider.UserID, EventNewRating, nil)

	_, open := <-provider.Send
	assert.False(t, open, "send channel must be closed after unregister")

	// A second unregister for the same connection is a no-op
	f.hub.unregister(provider)
}
