package realtime

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/issuedesk/backend/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is enforced at the gateway; tickets gate the upgrade
	},
}

// TicketValidator resolves a realtime ticket to the caller identity.
type TicketValidator interface {
	Validate(ticket string) (models.Identity, error)
}

// Client represents a single websocket connection in an org room. The server
// only pushes events; inbound frames are consumed solely to keep the
// connection alive and detect closure.
type Client struct {
	ID             string
	OrganizationID uuid.UUID
	UserID         uuid.UUID
	Role           models.Role
	hub            *Hub
	conn           *websocket.Conn
	send           chan []byte
	logger         *zap.Logger
}

// ServeWs handles the websocket upgrade. The caller identity arrives as a
// short-lived ticket in the query string because browsers cannot set custom
// headers on the upgrade request.
func ServeWs(hub *Hub, tickets TicketValidator, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ticket := c.Query("ticket")
		if ticket == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ticket required"})
			return
		}
		identity, err := tickets.Validate(ticket)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid ticket"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:             uuid.New().String(),
			OrganizationID: identity.OrganizationID,
			UserID:         identity.UserID,
			Role:           identity.Role,
			hub:            hub,
			conn:           conn,
			send:           make(chan []byte, sendBuffer),
			logger:         logger,
		}
		hub.Register(client)
		go client.writePump()
		client.readPump()
	}
}

// readPump drains inbound frames until the connection drops. Client-sent
// payloads are discarded; only pongs matter, resetting the read deadline.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
