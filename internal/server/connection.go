package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/lox/pebbles/internal/game"
	"github.com/lox/pebbles/internal/session"
)

// Connection represents a WebSocket connection to a client. A connection
// hosts at most one session at a time and closes it when it goes away.
type Connection struct {
	conn      *websocket.Conn
	send      chan *Message
	server    *Server
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.RWMutex
	closeOnce sync.Once

	session *session.Session
	// requestID of the message being handled, echoed on every reply
	requestID string
	// events emitted before the session message went out
	pending []game.Event
}

// NewConnection creates a new connection wrapper
func NewConnection(conn *websocket.Conn, server *Server, logger *log.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())

	return &Connection{
		conn:   conn,
		send:   make(chan *Message, 256),
		server: server,
		logger: logger.WithPrefix("conn"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins handling the connection
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Done is closed once the connection has shut down.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close closes the connection
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.cancel()
		close(c.send)
		c.mu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// SendMessage queues a message for the client, tagged with the request
// being handled.
func (c *Connection) SendMessage(msg *Message) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.ctx.Err() != nil {
		return ErrConnectionClosed
	}
	if msg.RequestID == "" {
		msg.RequestID = c.requestID
	}

	select {
	case c.send <- msg:
		return nil
	default:
		c.logger.Warn("Connection send buffer full, closing connection")
		go func() { _ = c.Close() }()
		return ErrConnectionClosed
	}
}

// SessionID returns the hosted session's ID, or "" before init.
func (c *Connection) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return ""
	}
	return c.session.ID()
}

func (c *Connection) currentSession() *session.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// Notify implements game.Notifier for the hosted session's engine.
func (c *Connection) Notify(_ context.Context, event game.Event) error {
	c.mu.Lock()
	if c.session == nil {
		c.pending = append(c.pending, event)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	msg, err := EventMessage(event)
	if err != nil {
		return err
	}
	return c.SendMessage(msg)
}

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

var (
	ErrConnectionClosed = errors.New("connection closed")
)

// readPump handles incoming messages from the client
func (c *Connection) readPump() {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}

		c.handleMessage(&msg)

		if c.ctx.Err() != nil {
			return
		}
	}
}

// writePump handles outgoing messages to the client
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes incoming messages from the client
func (c *Connection) handleMessage(msg *Message) {
	c.mu.Lock()
	c.requestID = msg.RequestID
	c.mu.Unlock()

	c.logger.Debug("Received message", "type", msg.Type, "session", c.SessionID())

	switch msg.Type {
	case MessageTypeInit:
		var data InitData
		if err := msg.Decode(&data); err != nil {
			c.sendError(CodeInvalidMessage, "Failed to parse init data")
			return
		}
		c.handleInit(data)

	case MessageTypeTurn:
		var data TurnData
		if err := msg.Decode(&data); err != nil {
			c.sendError(CodeInvalidMessage, "Failed to parse turn data")
			return
		}
		c.handleAction(game.Turn(data.Count))

	case MessageTypeGiveUp:
		c.handleAction(game.GiveUp())

	case MessageTypeRestart:
		var data InitData
		if err := msg.Decode(&data); err != nil {
			c.sendError(CodeInvalidMessage, "Failed to parse restart data")
			return
		}
		cfg, err := data.Resolve(c.server.defaults)
		if err != nil {
			c.sendErr(err)
			return
		}
		c.handleAction(game.Restart(cfg))

	case MessageTypeState:
		c.handleState()

	default:
		c.sendError(CodeUnknownAction, "Unknown message type: "+msg.Type.String())
	}
}

// sendError sends an error message to the client
func (c *Connection) sendError(code, message string) {
	errorMsg, err := NewMessage(MessageTypeError, ErrorData{
		Code:    code,
		Message: message,
	})
	if err != nil {
		c.logger.Error("Failed to create error message", "error", err)
		return
	}

	_ = c.SendMessage(errorMsg)
}

func (c *Connection) sendErr(err error) {
	code, _ := classify(err)
	c.sendError(code, err.Error())
}

// handleInit replaces any hosted session with a new one. The session message
// goes out before the program's opening move, if any.
func (c *Connection) handleInit(data InitData) {
	cfg, err := data.Resolve(c.server.defaults)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		c.sendErr(err)
		return
	}

	c.closeSession()

	s, _, err := c.server.sessions.Create(c.ctx, cfg, c)
	if err != nil {
		c.mu.Lock()
		c.pending = nil
		c.mu.Unlock()
		c.sendErr(err)
		return
	}

	token, exp, err := c.server.issuer.Issue(s.ID())
	if err != nil {
		c.logger.Error("Failed to issue token", "session", s.ID(), "error", err)
		_ = c.server.sessions.Close(s.ID())
		c.sendError(CodeInternal, "failed to issue token")
		return
	}

	c.mu.Lock()
	c.session = s
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	c.logger.Info("Game started", "session", s.ID(), "pebbles", cfg.PebblesCount, "max", cfg.MaxPebblesPerTurn, "difficulty", cfg.Difficulty)

	response, _ := NewMessage(MessageTypeSession, SessionData{SessionID: s.ID(), Token: token, ExpiresAt: exp})
	_ = c.SendMessage(response)
	for _, event := range pending {
		if err := c.Notify(c.ctx, event); err != nil {
			return
		}
	}
}

func (c *Connection) handleAction(action game.Action) {
	s := c.currentSession()
	if s == nil {
		c.sendErr(game.ErrNotInitialized)
		return
	}

	reply, err := s.Do(c.ctx, action)
	if err != nil {
		if errors.Is(err, game.ErrDelivery) {
			return
		}
		c.sendErr(err)
		return
	}

	if reply.Acknowledged {
		ack, _ := NewMessage(MessageTypeTurned, nil)
		_ = c.SendMessage(ack)
	}
}

func (c *Connection) handleState() {
	s := c.currentSession()
	if s == nil {
		c.sendErr(game.ErrNotInitialized)
		return
	}
	state, err := s.State()
	if err != nil {
		c.sendErr(err)
		return
	}
	response, err := NewMessage(MessageTypeGameState, GameStateData{SessionID: s.ID(), State: state})
	if err != nil {
		c.sendErr(fmt.Errorf("encode state: %w", err))
		return
	}
	_ = c.SendMessage(response)
}

// closeSession drops the hosted session, if any.
func (c *Connection) closeSession() {
	c.mu.Lock()
	s := c.session
	c.session = nil
	c.pending = nil
	c.mu.Unlock()

	if s != nil {
		_ = c.server.sessions.Close(s.ID())
	}
}
