package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hintnav/go-hint/internal/position"
)

// Config holds relay client configuration
type Config struct {
	URL              string        // WebSocket URL (e.g., "ws://relay.example.com/ws/nav")
	ReconnectBackoff time.Duration // Initial reconnect delay
	MaxBackoff       time.Duration // Maximum reconnect delay
	PingInterval     time.Duration // Ping interval for keepalive
	WriteTimeout     time.Duration // Write timeout
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		URL:              "ws://localhost:8080/ws/nav",
		ReconnectBackoff: 1 * time.Second,
		MaxBackoff:       30 * time.Second,
		PingInterval:     10 * time.Second,
		WriteTimeout:     5 * time.Second,
	}
}

// Client manages the WebSocket connection to the relay. It keeps the most
// recent fix received from the wire and serves it through the position
// Source interface, so the navigation loop cannot tell a relayed phone
// fix from a local GPS one.
type Client struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	cancel    context.CancelFunc

	lastFix    position.Fix
	hasFix     bool
	onFix      func(position.Fix)
	onStatus   func(StatusData)

	// Stats
	messagesSent     atomic.Uint64
	messagesReceived atomic.Uint64
	reconnects       atomic.Uint64
	fixesReceived    atomic.Uint64
}

// NewClient creates a new relay client
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:    cfg,
		logger: logger,
	}
}

// OnFix sets the callback for incoming fixes
func (c *Client) OnFix(callback func(position.Fix)) {
	c.mu.Lock()
	c.onFix = callback
	c.mu.Unlock()
}

// OnStatus sets the callback for status announcements
func (c *Client) OnStatus(callback func(StatusData)) {
	c.mu.Lock()
	c.onStatus = callback
	c.mu.Unlock()
}

// Connect establishes the WebSocket connection to the relay
func (c *Client) Connect(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	go c.connectionLoop(ctx)
	return nil
}

// connectionLoop manages connection with auto-reconnect
func (c *Client) connectionLoop(ctx context.Context) {
	backoff := c.cfg.ReconnectBackoff

	for {
		select {
		case <-ctx.Done():
			c.closeConnection()
			return
		default:
		}

		err := c.connect(ctx)
		if err != nil {
			c.logger.Warn("relay connection failed",
				"error", err,
				"retry_in", backoff,
			)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}

			// Exponential backoff
			backoff *= 2
			if backoff > c.cfg.MaxBackoff {
				backoff = c.cfg.MaxBackoff
			}
			c.reconnects.Add(1)
			continue
		}

		// Reset backoff on successful connection
		backoff = c.cfg.ReconnectBackoff

		// Read messages until error
		c.readLoop(ctx)
	}
}

// connect establishes the WebSocket connection
func (c *Client) connect(ctx context.Context) error {
	c.logger.Info("connecting to relay", "url", c.cfg.URL)

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.logger.Info("connected to relay")

	// Start ping goroutine
	go c.pingLoop(ctx)

	return nil
}

// pingLoop sends periodic pings
func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.conn == nil {
				c.mu.Unlock()
				return
			}
			conn := c.conn
			c.mu.Unlock()

			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				c.logger.Debug("ping failed", "error", err)
				return
			}
		}
	}
}

// readLoop reads messages from the relay
func (c *Client) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			c.logger.Warn("read error", "error", err)
			c.closeConnection()
			return
		}

		c.messagesReceived.Add(1)
		c.handleMessage(data)
	}
}

// handleMessage processes incoming messages
func (c *Client) handleMessage(data []byte) {
	msg, err := ParseMessage(data)
	if err != nil {
		c.logger.Warn("parse message error", "error", err)
		return
	}

	switch msg.Type {
	case TypeFix:
		fix, err := msg.GetFix()
		if err != nil {
			c.logger.Warn("bad fix message", "error", err)
			return
		}
		c.mu.Lock()
		c.lastFix = fix
		c.hasFix = true
		fixCb := c.onFix
		c.mu.Unlock()

		c.fixesReceived.Add(1)
		if fixCb != nil {
			fixCb(fix)
		}

	case TypeStatus:
		status, err := msg.GetStatus()
		if err != nil {
			c.logger.Warn("bad status message", "error", err)
			return
		}
		c.mu.Lock()
		statusCb := c.onStatus
		c.mu.Unlock()
		if statusCb != nil {
			statusCb(*status)
		}

	case TypePing:
		// Respond with pong
		pong := &Message{Type: TypePong, Timestamp: time.Now().UnixMilli()}
		c.SendMessage(pong)
	}
}

// GetFix returns the most recent fix received from the relay. It implements
// the position Source interface; the staleness check belongs to the caller.
func (c *Client) GetFix(ctx context.Context) (position.Fix, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hasFix {
		return position.Fix{}, position.ErrNoFix
	}
	return c.lastFix, nil
}

// Name identifies the source
func (c *Client) Name() string {
	return "relay"
}

// Healthy reports whether the relay connection is up
func (c *Client) Healthy() bool {
	return c.IsConnected()
}

// SendMessage sends a message to the relay
func (c *Client) SendMessage(msg *Message) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()

	if !connected || conn == nil {
		return fmt.Errorf("not connected")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logger.Warn("send error", "error", err)
		c.closeConnection()
		return fmt.Errorf("write: %w", err)
	}

	c.messagesSent.Add(1)
	return nil
}

// SendFix publishes a fix to the relay (sender role)
func (c *Client) SendFix(fix position.Fix) error {
	msg, err := NewFixMessage(fix)
	if err != nil {
		return err
	}
	return c.SendMessage(msg)
}

// SendStatus announces a component state change to the relay
func (c *Client) SendStatus(component, state string, details map[string]string) error {
	msg, err := NewStatusMessage(component, state, details)
	if err != nil {
		return err
	}
	return c.SendMessage(msg)
}

// closeConnection closes the WebSocket connection
func (c *Client) closeConnection() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.connected = false
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Close shuts down the client
func (c *Client) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.closeConnection()
	return nil
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Stats returns client statistics
type Stats struct {
	Connected        bool   `json:"connected"`
	MessagesSent     uint64 `json:"messages_sent"`
	MessagesReceived uint64 `json:"messages_received"`
	Reconnects       uint64 `json:"reconnects"`
	FixesReceived    uint64 `json:"fixes_received"`
}

// GetStats returns client statistics
func (c *Client) GetStats() Stats {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()

	return Stats{
		Connected:        connected,
		MessagesSent:     c.messagesSent.Load(),
		MessagesReceived: c.messagesReceived.Load(),
		Reconnects:       c.reconnects.Load(),
		FixesReceived:    c.fixesReceived.Load(),
	}
}
