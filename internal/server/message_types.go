package server

// MessageType represents a WebSocket message type with type safety
type MessageType string

// WebSocket message type constants
const (
	// Client to server messages
	MessageTypeInit    MessageType = "init"
	MessageTypeTurn    MessageType = "turn"
	MessageTypeGiveUp  MessageType = "give_up"
	MessageTypeRestart MessageType = "restart"
	MessageTypeState   MessageType = "state"

	// Server to client messages
	MessageTypeSession     MessageType = "session"
	MessageTypeCounterTurn MessageType = "counter_turn"
	MessageTypeWon         MessageType = "won"
	MessageTypeTurned      MessageType = "turned"
	MessageTypeGameState   MessageType = "game_state"
	MessageTypeError       MessageType = "error"
)

// String returns the string representation of the message type
func (mt MessageType) String() string {
	return string(mt)
}
