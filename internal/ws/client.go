package ws

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ValentinBorsan/SapereHub/internal/auth"
	"github.com/ValentinBorsan/SapereHub/internal/ratelimit"
	"github.com/ValentinBorsan/SapereHub/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024
)

// One WebSocket connection with a verified participant identity.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	limiter *ratelimit.Limiter

	identity session.Identity
	// Joined group id. Written only by the hub's dispatch goroutine.
	group string
	// Connection id, for logs only; one participant may hold several
	// connections.
	connID string
}

// session.Peer

func (c *Client) Identity() session.Identity {
	return c.identity
}

func (c *Client) GroupID() string {
	return c.group
}

// Non-blocking enqueue. A consumer too slow to drain its buffer loses
// frames and will be reaped by the ping/pong deadline eventually.
func (c *Client) Deliver(frame []byte) {
	select {
	case c.send <- frame:
	default:
		logrus.WithFields(logrus.Fields{
			"conn_id": c.connID,
			"user_id": c.identity.ID,
		}).Warn("client send buffer full, frame dropped")
	}
}

// Upgrades an HTTP request to a coordinator connection. The session
// credential is verified before the upgrade; an anonymous or forged
// token never reaches the hub.
func ServeWs(hub *Hub, verifier *auth.Verifier, cfg UpgradeConfig, w http.ResponseWriter, r *http.Request) {
	identity, err := verifier.Verify(auth.TokenFromRequest(r))
	if err != nil {
		logrus.WithError(err).Warn("websocket upgrade refused")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if cfg.AllowedOrigin == "*" {
				return true
			}
			return r.Header.Get("Origin") == cfg.AllowedOrigin
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, 512),
		limiter:  ratelimit.NewLimiter(cfg.MessageRate, cfg.MessageBurst),
		identity: identity,
		connID:   uuid.NewString(),
	}

	hub.addClient(client)

	go client.writePump()
	go client.readPump()
}

type UpgradeConfig struct {
	AllowedOrigin string
	MessageRate   float64
	MessageBurst  int
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	logCtx := logrus.WithFields(logrus.Fields{
		"conn_id": c.connID,
		"user_id": c.identity.ID,
	})
	rateLimitWarnings := 0

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logCtx.WithError(err).Warn("websocket read error")
			}
			break
		}

		if !c.limiter.Allow() {
			rateLimitWarnings++
			if rateLimitWarnings%100 == 1 {
				logCtx.WithField("warnings", rateLimitWarnings).Warn("rate limit exceeded")
			}
			if rateLimitWarnings > 1000 {
				logCtx.Warn("disconnecting client for excessive rate limit violations")
				return
			}
			continue
		}

		env, err := session.DecodeEnvelope(message)
		if err != nil {
			logCtx.WithError(err).Debug("malformed frame dropped")
			continue
		}

		c.hub.events <- inbound{client: c, envelope: env}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
