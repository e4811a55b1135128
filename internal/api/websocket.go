package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/foospulse/foospulse/internal/broadcast"
	"github.com/foospulse/foospulse/internal/domain"
	"github.com/foospulse/foospulse/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // spectators follow share links from anywhere
	},
}

// liveClient is one websocket spectator attached to a session topic
type liveClient struct {
	hub          *broadcast.Hub
	sub          *broadcast.Subscriber
	conn         *websocket.Conn
	pingInterval time.Duration
	logger       *slog.Logger
}

// connectedEnvelope is the first message every subscriber receives.
func connectedEnvelope(sess *domain.LiveSession) ([]byte, error) {
	return json.Marshal(domain.NewEvent(domain.EventConnected, domain.Connected{
		SessionID: sess.ID,
		Status:    sess.Status,
		ScoreA:    sess.ScoreA,
		ScoreB:    sess.ScoreB,
	}))
}

// handleLiveWebSocket upgrades HTTP to WebSocket and streams the session's
// broadcasts until either side hangs up.
func (r *Router) handleLiveWebSocket(w http.ResponseWriter, req *http.Request) {
	token := req.PathValue("token")
	sess, err := r.live.Lookup(req.Context(), token)
	if err != nil {
		r.writeDomainError(w, req, err)
		return
	}
	hello, err := connectedEnvelope(sess)
	if err != nil {
		r.writeDomainError(w, req, err)
		return
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		logging.Warn(r.logFromRequest(req), "websocket upgrade failed", "error", err)
		return
	}

	client := &liveClient{
		hub:          r.hub,
		sub:          r.hub.Subscribe(token),
		conn:         conn,
		pingInterval: r.pingInterval,
		logger:       r.logFromRequest(req),
	}

	go client.writePump(hello)
	go client.readPump()
}

// readPump discards client messages and detaches on close
func (c *liveClient) readPump() {
	defer func() {
		c.hub.Unsubscribe(c.sub)
		c.conn.Close()
	}()

	readWait := 2 * c.pingInterval
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(readWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived) {
				logging.Warn(c.logger, "websocket read failed", "error", err)
			}
			return
		}
	}
}

// writePump sends the connected envelope, then every broadcast, one
// envelope per frame
func (c *liveClient) writePump(hello []byte) {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, hello); err != nil {
		return
	}

	for {
		select {
		case message, ok := <-c.sub.C():
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
