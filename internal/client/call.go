package client

import (
	"context"
	"fmt"

	"github.com/lox/pebbles/internal/game"
	"github.com/lox/pebbles/internal/server"
)

// RemoteError is an error reported by the server.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("server error %s: %s", e.Code, e.Message)
}

// Unwrap maps engine error codes back to the engine's sentinel errors.
func (e *RemoteError) Unwrap() error {
	switch e.Code {
	case server.CodeInvalidConfig:
		return game.ErrInvalidConfig
	case server.CodeNotInitialized:
		return game.ErrNotInitialized
	case server.CodeRandomSource:
		return game.ErrRandomSource
	case server.CodeUnknownAction:
		return game.ErrUnknownAction
	default:
		return nil
	}
}

// Reply collects everything the server sent in answer to one request.
type Reply struct {
	Events       []game.Event
	Acknowledged bool
	State        game.GameState
	// Session is set when the request started a new session.
	Session *server.SessionData
}

// call tracks a request followed by a state request. The server handles a
// connection's messages in order, so the game_state answer closes the reply.
type call struct {
	request string
	sync    string
	reply   Reply
	err     error
	done    chan struct{}
}

// Exchange sends a request, then a state request, and gathers the events,
// acknowledgement and resulting state the server produced for it.
func (c *Client) Exchange(ctx context.Context, messageType server.MessageType, data interface{}) (*Reply, error) {
	msg, err := server.NewMessage(messageType, data)
	if err != nil {
		return nil, err
	}
	msg.RequestID = c.nextRequestID()
	sync, err := server.NewMessage(server.MessageTypeState, nil)
	if err != nil {
		return nil, err
	}
	sync.RequestID = c.nextRequestID()

	cl := &call{request: msg.RequestID, sync: sync.RequestID, done: make(chan struct{})}
	c.mu.Lock()
	c.calls[cl.request] = cl
	c.calls[cl.sync] = cl
	c.mu.Unlock()
	defer c.forgetCall(cl)

	if err := c.SendMessage(msg); err != nil {
		return nil, err
	}
	if err := c.SendMessage(sync); err != nil {
		return nil, err
	}

	select {
	case <-cl.done:
		if cl.err != nil {
			return nil, cl.err
		}
		return &cl.reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, ErrNotConnected
	}
}

// Start begins a new game and waits for the opening state.
func (c *Client) Start(ctx context.Context, cfg game.Init) (*Reply, error) {
	return c.Exchange(ctx, server.MessageTypeInit, server.InitDataFrom(cfg))
}

// Act performs a game action and waits for its outcome.
func (c *Client) Act(ctx context.Context, action game.Action) (*Reply, error) {
	switch action.Type {
	case game.ActionTurn:
		return c.Exchange(ctx, server.MessageTypeTurn, server.TurnData{Count: action.Count})
	case game.ActionGiveUp:
		return c.Exchange(ctx, server.MessageTypeGiveUp, nil)
	case game.ActionRestart:
		var data server.InitData
		if action.Init != nil {
			data = server.InitDataFrom(*action.Init)
		}
		return c.Exchange(ctx, server.MessageTypeRestart, data)
	default:
		return nil, fmt.Errorf("%w: %q", game.ErrUnknownAction, action.Type)
	}
}

func (c *Client) forgetCall(cl *call) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.calls, cl.request)
	delete(c.calls, cl.sync)
}

// routeCall feeds msg to the pending call it answers, if any.
func (c *Client) routeCall(msg *server.Message) {
	if msg.RequestID == "" {
		return
	}
	c.mu.Lock()
	cl, ok := c.calls[msg.RequestID]
	c.mu.Unlock()
	if !ok {
		return
	}

	if msg.RequestID == cl.request {
		c.collect(cl, msg)
		return
	}

	switch msg.Type {
	case server.MessageTypeGameState:
		var data server.GameStateData
		if err := msg.Decode(&data); err != nil && cl.err == nil {
			cl.err = fmt.Errorf("decode state: %w", err)
		}
		cl.reply.State = data.State
	case server.MessageTypeError:
		if cl.err == nil {
			cl.err = decodeRemoteError(msg)
		}
	default:
		return
	}
	c.finish(cl)
}

func (c *Client) collect(cl *call, msg *server.Message) {
	switch msg.Type {
	case server.MessageTypeCounterTurn, server.MessageTypeWon:
		event, _, err := server.EventFromMessage(msg)
		if err != nil {
			c.logger.Warn("Malformed event", "type", msg.Type, "error", err)
			return
		}
		cl.reply.Events = append(cl.reply.Events, event)
	case server.MessageTypeTurned:
		cl.reply.Acknowledged = true
	case server.MessageTypeSession:
		var data server.SessionData
		if err := msg.Decode(&data); err == nil {
			cl.reply.Session = &data
		}
	case server.MessageTypeError:
		if cl.err == nil {
			cl.err = decodeRemoteError(msg)
		}
	}
}

func (c *Client) finish(cl *call) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.calls[cl.sync]; !ok {
		return
	}
	delete(c.calls, cl.request)
	delete(c.calls, cl.sync)
	close(cl.done)
}

// failCalls ends every pending call with err.
func (c *Client) failCalls(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, cl := range c.calls {
		delete(c.calls, id)
		select {
		case <-cl.done:
		default:
			if cl.err == nil {
				cl.err = err
			}
			close(cl.done)
		}
	}
}

func decodeRemoteError(msg *server.Message) error {
	var data server.ErrorData
	if err := msg.Decode(&data); err != nil {
		return fmt.Errorf("decode error: %w", err)
	}
	return &RemoteError{Code: data.Code, Message: data.Message}
}
