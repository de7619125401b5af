package websocket

import (
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"home-service-server/config"
	"home-service-server/models"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now, can be restricted later
	},
}

// Client is one live WebSocket connection and the identity behind it
type Client struct {
	Hub      *Hub
	ID       string // connection id, never reused
	UserID   uint
	Role     models.UserRole
	Services models.ServiceList // provider categories, snapshot at connect
	Name     string
	Phone    string

	Conn *websocket.Conn
	Send chan []byte

	// sendMu serializes enqueues against closeSend: publishers on other
	// goroutines may still hold this client after the hub drops it, and
	// sending on a closed channel would panic
	sendMu sync.Mutex
	closed bool

	// set when an event was dropped because Send was full; the write
	// pump tells the peer to resync once the buffer drains
	missed atomic.Bool
}

// ServeWS upgrades an authenticated request and hands the connection to
// the hub. The auth middleware has already resolved the user; an
// unauthenticated request never reaches this point.
func ServeWS(hub *Hub, c *gin.Context) {
	userValue, exists := c.Get("user")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	user := userValue.(models.User)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("❌ WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		Hub:      hub,
		ID:       uuid.NewString(),
		UserID:   user.ID,
		Role:     user.Role,
		Services: user.Services,
		Name:     user.Name,
		Phone:    user.Phone,
		Conn:     conn,
		Send:     make(chan []byte, config.AppConfig.Websocket.SendBufferSize),
	}

	client.Hub.Register <- client

	go client.writePump()
	go client.readPump()
}

// enqueue offers an already-marshaled message to the client's bounded
// send buffer. It never blocks; on overflow the message is dropped and
// the client is flagged for a resync notice. After closeSend it is a
// no-op.
func (c *Client) enqueue(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		c.missed.Store(true)
		return false
	}
}

// closeSend marks the client unreachable and closes the send channel.
// Safe to call more than once and safe against concurrent enqueues.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

// SendEvent marshals and queues an event for this client
func (c *Client) SendEvent(event string, data interface{}) {
	payload, err := marshalMessage(event, data)
	if err != nil {
		log.Printf("❌ Error marshaling %s event: %v", event, err)
		return
	}
	if !c.enqueue(payload) {
		log.Printf("⚠️ Dropped %s event for connection %s (buffer full)", event, c.ID)
	}
}

// SendError queues a typed error event naming the failed entity
func (c *Client) SendError(event string, message string, fields map[string]interface{}) {
	data := map[string]interface{}{"message": message}
	for k, v := range fields {
		data[k] = v
	}
	c.SendEvent(event, data)
}

// readPump pumps messages from the WebSocket connection to the hub's
// event handlers
func (c *Client) readPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, messageBytes, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("❌ WebSocket read error: %v", err)
			}
			break
		}

		c.Hub.dispatch(c, messageBytes)
	}
}

// writePump pumps queued messages to the WebSocket connection and keeps
// the connection alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// Once the buffer has drained after an overflow, tell the
			// peer it may have missed events and should resync
			if len(c.Send) == 0 && c.missed.Swap(false) {
				payload, err := marshalMessage(EventResyncRequired, map[string]interface{}{
					"message": "Events were dropped on this connection. Refresh your booking state.",
				})
				if err == nil {
					c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := c.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
						return
					}
				}
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
