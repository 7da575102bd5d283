package server

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lox/pebbles/internal/game"
)

// Message represents the base WebSocket message structure
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(messageType MessageType, data interface{}) (*Message, error) {
	msg := &Message{
		Type:      messageType,
		Timestamp: time.Now(),
	}
	if data != nil {
		dataBytes, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		msg.Data = dataBytes
	}
	return msg, nil
}

// Decode unmarshals the message payload into v. An empty payload leaves v
// untouched.
func (m *Message) Decode(v interface{}) error {
	if len(m.Data) == 0 || string(m.Data) == "null" {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Client → Server Messages

// InitData starts or restarts a game. Omitted fields fall back to the
// server's game defaults.
type InitData struct {
	PebblesCount      *uint32 `json:"pebblesCount,omitempty"`
	MaxPebblesPerTurn *uint32 `json:"maxPebblesPerTurn,omitempty"`
	Difficulty        string  `json:"difficulty,omitempty"`
}

// Resolve fills omitted fields from defaults.
func (d InitData) Resolve(defaults game.Init) (game.Init, error) {
	cfg := defaults
	if d.PebblesCount != nil {
		cfg.PebblesCount = *d.PebblesCount
	}
	if d.MaxPebblesPerTurn != nil {
		cfg.MaxPebblesPerTurn = *d.MaxPebblesPerTurn
	}
	if d.Difficulty != "" {
		difficulty, err := game.ParseDifficulty(d.Difficulty)
		if err != nil {
			return game.Init{}, fmt.Errorf("%w: %v", game.ErrInvalidConfig, err)
		}
		cfg.Difficulty = difficulty
	}
	return cfg, nil
}

// InitDataFrom is the inverse of Resolve, used by clients.
func InitDataFrom(cfg game.Init) InitData {
	count, limit := cfg.PebblesCount, cfg.MaxPebblesPerTurn
	return InitData{
		PebblesCount:      &count,
		MaxPebblesPerTurn: &limit,
		Difficulty:        cfg.Difficulty.String(),
	}
}

type TurnData struct {
	Count uint32 `json:"count"`
}

// Server → Client Messages

type SessionData struct {
	SessionID string    `json:"sessionId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type CounterTurnData struct {
	Player game.Player `json:"player"`
	Count  uint32      `json:"count"`
}

type WonData struct {
	Player game.Player `json:"player"`
}

type GameStateData struct {
	SessionID string         `json:"sessionId"`
	State     game.GameState `json:"state"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EventMessage converts an engine event into its wire form.
func EventMessage(event game.Event) (*Message, error) {
	switch event.Type {
	case game.EventCounterTurn:
		return NewMessage(MessageTypeCounterTurn, CounterTurnData{Player: event.Player, Count: event.Count})
	case game.EventWon:
		return NewMessage(MessageTypeWon, WonData{Player: event.Player})
	default:
		return nil, fmt.Errorf("unknown event type %q", event.Type)
	}
}

// EventFromMessage is the inverse of EventMessage. ok is false for messages
// that do not carry an event.
func EventFromMessage(msg *Message) (event game.Event, ok bool, err error) {
	switch msg.Type {
	case MessageTypeCounterTurn:
		var data CounterTurnData
		if err := msg.Decode(&data); err != nil {
			return game.Event{}, true, err
		}
		return game.CounterTurn(data.Player, data.Count), true, nil
	case MessageTypeWon:
		var data WonData
		if err := msg.Decode(&data); err != nil {
			return game.Event{}, true, err
		}
		return game.Won(data.Player), true, nil
	default:
		return game.Event{}, false, nil
	}
}
