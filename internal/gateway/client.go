package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/agentgate/pkg/protocol"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = (pongTimeout * 9) / 10
)

// Client represents one connected WebSocket peer: a channel plugin, the CLI,
// a paired device, or another tool speaking the gateway's RPC protocol.
type Client struct {
	id     string
	conn   *websocket.Conn
	server *Server

	// Authenticated is set once the client completes the connect handshake
	// (device pairing token or the shared gateway token).
	Authenticated bool
	DeviceID      string
	OwnerID       string

	writeMu sync.Mutex
}

// NewClient wraps a freshly upgraded WebSocket connection.
func NewClient(conn *websocket.Conn, server *Server) *Client {
	return &Client{
		id:     uuid.NewString(),
		conn:   conn,
		server: server,
	}
}

// ID returns the client's connection identifier.
func (c *Client) ID() string { return c.id }

// Run reads frames from the connection until it closes or ctx is done,
// dispatching each RequestFrame through the server's MethodRouter.
func (c *Client) Run(ctx context.Context) {
	c.conn.SetReadLimit(4 << 20) // 4MB
	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	stopPing := make(chan struct{})
	go c.pingLoop(stopPing)
	defer close(stopPing)

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("gateway client read error", "client", c.id, "error", err)
			}
			return
		}

		frameType, err := protocol.ParseFrameType(raw)
		if err != nil {
			continue
		}
		if frameType != protocol.FrameTypeRequest {
			continue // clients only ever send requests
		}

		var req protocol.RequestFrame
		if err := json.Unmarshal(raw, &req); err != nil {
			continue
		}

		if c.server.rateLimiter != nil && c.server.rateLimiter.Enabled() && !c.server.rateLimiter.Allow(c.id) {
			c.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrRateLimited, "rate limit exceeded"))
			continue
		}

		go c.server.router.Dispatch(ctx, c, &req)
	}
}

func (c *Client) pingLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

// SendResponse writes a ResponseFrame to the client. Safe for concurrent use.
func (c *Client) SendResponse(resp *protocol.ResponseFrame) {
	c.writeJSON(resp)
}

// SendEvent writes an EventFrame to the client. Safe for concurrent use.
func (c *Client) SendEvent(evt protocol.EventFrame) {
	c.writeJSON(&evt)
}

func (c *Client) writeJSON(v interface{}) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(v); err != nil {
		slog.Debug("gateway client write failed", "client", c.id, "error", err)
	}
}

// Close shuts down the underlying connection.
func (c *Client) Close() {
	c.conn.Close()
}
