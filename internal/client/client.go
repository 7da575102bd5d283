package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/lox/pebbles/internal/game"
	"github.com/lox/pebbles/internal/server" // Reuse message types
)

var (
	ErrNotConnected = errors.New("client: not connected")
	ErrSendFull     = errors.New("client: send buffer full")
)

// Client represents a WebSocket client for a pebbles server
type Client struct {
	serverURL string
	conn      *websocket.Conn
	send      chan *server.Message
	receive   chan *server.Message
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.RWMutex
	connected bool
	closeOnce sync.Once
	requests  atomic.Uint64

	sessionID string
	token     string

	// Event handlers
	eventHandlers map[server.MessageType][]EventHandler
	waiters       map[server.MessageType][]chan *server.Message
	calls         map[string]*call
}

// EventHandler is a function that handles incoming events. Handlers run one
// at a time in arrival order and must not block on the client.
type EventHandler func(*server.Message)

// NewClient creates a new WebSocket client
func NewClient(serverURL string, logger *log.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		serverURL:     serverURL,
		send:          make(chan *server.Message, 256),
		receive:       make(chan *server.Message, 256),
		logger:        logger.WithPrefix("client"),
		ctx:           ctx,
		cancel:        cancel,
		eventHandlers: make(map[server.MessageType][]EventHandler),
		waiters:       make(map[server.MessageType][]chan *server.Message),
		calls:         make(map[string]*call),
	}
	c.AddEventHandler(server.MessageTypeSession, c.handleSession)
	return c
}

// websocketURL turns an http(s) or ws(s) base URL into the /ws endpoint.
func websocketURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}

	// Convert http/https to ws/wss
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server URL: unsupported scheme %q", u.Scheme)
	}

	u.Path = "/ws"
	return u.String(), nil
}

// Connect establishes a WebSocket connection to the server
func (c *Client) Connect(ctx context.Context) error {
	c.logger.Info("Connecting to server", "url", c.serverURL)

	target, err := websocketURL(c.serverURL)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readPump()
	go c.writePump()
	go c.eventProcessor()

	c.logger.Info("Connected to server")
	return nil
}

// Disconnect closes the WebSocket connection
func (c *Client) Disconnect() error {
	c.closeOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		defer c.mu.Unlock()

		if c.conn != nil {
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = c.conn.Close() // Ignore close errors during shutdown
			c.connected = false
		}

		c.logger.Info("Disconnected from server")
	})
	return nil
}

// IsConnected returns whether the client is connected
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Done is closed once the client has disconnected.
func (c *Client) Done() <-chan struct{} {
	return c.ctx.Done()
}

// SessionID returns the ID of the session the server is hosting for this
// connection, or "" before the first init.
func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// Token returns the bearer token for the hosted session's HTTP endpoints.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SendMessage sends a message to the server
func (c *Client) SendMessage(msg *server.Message) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		return ErrSendFull
	}
}

func (c *Client) nextRequestID() string {
	return "c" + strconv.FormatUint(c.requests.Add(1), 10)
}

// sendRequest stamps msg with a fresh request ID and sends it.
func (c *Client) sendRequest(messageType server.MessageType, data interface{}) (string, error) {
	msg, err := server.NewMessage(messageType, data)
	if err != nil {
		return "", err
	}
	msg.RequestID = c.nextRequestID()
	return msg.RequestID, c.SendMessage(msg)
}

// readPump handles incoming messages from the server
func (c *Client) readPump() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		c.cancel()
	}()

	for {
		var msg server.Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}

		c.logger.Debug("Received message", "type", msg.Type, "request", msg.RequestID)

		select {
		case c.receive <- &msg:
		case <-c.ctx.Done():
			return
		}
	}
}

// writePump handles outgoing messages to the server
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second) // Ping interval
	defer func() {
		ticker.Stop()
		_ = c.conn.Close() // Ignore close errors during cleanup
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// eventProcessor processes incoming messages and dispatches to handlers
func (c *Client) eventProcessor() {
	for {
		select {
		case msg := <-c.receive:
			c.handleMessage(msg)
		case <-c.ctx.Done():
			c.failCalls(ErrNotConnected)
			return
		}
	}
}

// handleMessage dispatches messages to pending calls, waiters and
// registered handlers
func (c *Client) handleMessage(msg *server.Message) {
	c.mu.Lock()
	handlers := append([]EventHandler(nil), c.eventHandlers[msg.Type]...)
	waiters := c.waiters[msg.Type]
	delete(c.waiters, msg.Type)
	c.mu.Unlock()

	for _, w := range waiters {
		w <- msg
	}

	if len(handlers) == 0 && len(waiters) == 0 {
		c.logger.Debug("No handler for message type", "type", msg.Type)
	}
	for _, handler := range handlers {
		handler(msg)
	}

	c.routeCall(msg)
}

func (c *Client) handleSession(msg *server.Message) {
	var data server.SessionData
	if err := msg.Decode(&data); err != nil {
		c.logger.Warn("Malformed session message", "error", err)
		return
	}
	c.mu.Lock()
	c.sessionID = data.SessionID
	c.token = data.Token
	c.mu.Unlock()
	c.logger.Info("Session started", "session", data.SessionID)
}

// AddEventHandler adds an event handler for a specific message type
func (c *Client) AddEventHandler(messageType server.MessageType, handler EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.eventHandlers[messageType] = append(c.eventHandlers[messageType], handler)
}

// Init asks the server to start a game, replacing any it hosts for this
// connection.
func (c *Client) Init(cfg game.Init) error {
	_, err := c.sendRequest(server.MessageTypeInit, server.InitDataFrom(cfg))
	return err
}

// Turn removes count pebbles.
func (c *Client) Turn(count uint32) error {
	_, err := c.sendRequest(server.MessageTypeTurn, server.TurnData{Count: count})
	return err
}

// GiveUp forfeits the current game.
func (c *Client) GiveUp() error {
	_, err := c.sendRequest(server.MessageTypeGiveUp, nil)
	return err
}

// Restart replaces the current game with a fresh one.
func (c *Client) Restart(cfg game.Init) error {
	_, err := c.sendRequest(server.MessageTypeRestart, server.InitDataFrom(cfg))
	return err
}

// RequestState asks for a game_state snapshot.
func (c *Client) RequestState() error {
	_, err := c.sendRequest(server.MessageTypeState, nil)
	return err
}

// WaitForMessage waits for a specific message type with timeout
func (c *Client) WaitForMessage(messageType server.MessageType, timeout time.Duration) (*server.Message, error) {
	responseChan := make(chan *server.Message, 1)

	c.mu.Lock()
	c.waiters[messageType] = append(c.waiters[messageType], responseChan)
	c.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	// Wait for response or timeout
	select {
	case msg := <-responseChan:
		return msg, nil
	case <-timer.C:
		c.removeWaiter(messageType, responseChan)
		return nil, fmt.Errorf("timeout waiting for %s", messageType)
	case <-c.ctx.Done():
		c.removeWaiter(messageType, responseChan)
		return nil, c.ctx.Err()
	}
}

func (c *Client) removeWaiter(messageType server.MessageType, ch chan *server.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	waiters := c.waiters[messageType]
	for i, w := range waiters {
		if w == ch {
			c.waiters[messageType] = append(waiters[:i], waiters[i+1:]...)
			return
		}
	}
}
