package game

import (
	"fmt"
	"strings"
)

// Player identifies one side of the game.
type Player uint8

const (
	User Player = iota
	Program
)

// String returns the string representation of the player
func (p Player) String() string {
	switch p {
	case User:
		return "user"
	case Program:
		return "program"
	default:
		return fmt.Sprintf("player(%d)", uint8(p))
	}
}

// Opponent returns the other side.
func (p Player) Opponent() Player {
	if p == User {
		return Program
	}
	return User
}

// ParsePlayer converts a string form back into a Player.
func ParsePlayer(s string) (Player, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user":
		return User, nil
	case "program":
		return Program, nil
	default:
		return 0, fmt.Errorf("unknown player %q", s)
	}
}

func (p Player) MarshalText() ([]byte, error) {
	if p != User && p != Program {
		return nil, fmt.Errorf("invalid player %d", uint8(p))
	}
	return []byte(p.String()), nil
}

func (p *Player) UnmarshalText(text []byte) error {
	parsed, err := ParsePlayer(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// DifficultyLevel selects the program's move policy.
type DifficultyLevel uint8

const (
	Easy DifficultyLevel = iota
	Hard
)

// String returns the string representation of the difficulty
func (d DifficultyLevel) String() string {
	switch d {
	case Easy:
		return "easy"
	case Hard:
		return "hard"
	default:
		return fmt.Sprintf("difficulty(%d)", uint8(d))
	}
}

// ParseDifficulty converts "easy" or "hard" (any case) into a DifficultyLevel.
func ParseDifficulty(s string) (DifficultyLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "easy":
		return Easy, nil
	case "hard":
		return Hard, nil
	default:
		return 0, fmt.Errorf("unknown difficulty %q", s)
	}
}

func (d DifficultyLevel) MarshalText() ([]byte, error) {
	if d != Easy && d != Hard {
		return nil, fmt.Errorf("invalid difficulty %d", uint8(d))
	}
	return []byte(d.String()), nil
}

func (d *DifficultyLevel) UnmarshalText(text []byte) error {
	parsed, err := ParseDifficulty(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Init is the configuration a game is created or restarted with.
type Init struct {
	PebblesCount      uint32          `json:"pebbles_count"`
	MaxPebblesPerTurn uint32          `json:"max_pebbles_per_turn"`
	Difficulty        DifficultyLevel `json:"difficulty"`
}

// Validate rejects configurations the engine cannot play.
func (i Init) Validate() error {
	if i.PebblesCount == 0 {
		return fmt.Errorf("%w: pebbles count must be at least 1", ErrInvalidConfig)
	}
	if i.MaxPebblesPerTurn == 0 {
		return fmt.Errorf("%w: max pebbles per turn must be at least 1", ErrInvalidConfig)
	}
	if i.Difficulty != Easy && i.Difficulty != Hard {
		return fmt.Errorf("%w: invalid difficulty %d", ErrInvalidConfig, uint8(i.Difficulty))
	}
	return nil
}

// GameState is the single mutable entity of a game.
type GameState struct {
	PebblesCount      uint32          `json:"pebbles_count"`
	MaxPebblesPerTurn uint32          `json:"max_pebbles_per_turn"`
	PebblesRemaining  uint32          `json:"pebbles_remaining"`
	Difficulty        DifficultyLevel `json:"difficulty"`
	// FirstPlayer is whoever moves next, not who opened the game.
	FirstPlayer Player  `json:"first_player"`
	Winner      *Player `json:"winner,omitempty"`
}

// IsOver reports whether a winner has been decided.
func (s GameState) IsOver() bool {
	return s.Winner != nil
}

// clone returns a copy that shares nothing with s.
func (s GameState) clone() GameState {
	c := s
	if s.Winner != nil {
		w := *s.Winner
		c.Winner = &w
	}
	return c
}

func (s GameState) String() string {
	winner := "none"
	if s.Winner != nil {
		winner = s.Winner.String()
	}
	return fmt.Sprintf("pebbles=%d/%d max=%d difficulty=%s next=%s winner=%s",
		s.PebblesRemaining, s.PebblesCount, s.MaxPebblesPerTurn, s.Difficulty, s.FirstPlayer, winner)
}

// ActionType tags an Action.
type ActionType string

const (
	ActionTurn    ActionType = "turn"
	ActionGiveUp  ActionType = "give_up"
	ActionRestart ActionType = "restart"
)

// String returns the string representation of the action type
func (at ActionType) String() string {
	return string(at)
}

// Action is a tagged union of Turn(count), GiveUp and Restart(init).
type Action struct {
	Type  ActionType `json:"type"`
	Count uint32     `json:"count,omitempty"`
	Init  *Init      `json:"init,omitempty"`
}

// Turn asks to remove count pebbles.
func Turn(count uint32) Action {
	return Action{Type: ActionTurn, Count: count}
}

// GiveUp forfeits the game.
func GiveUp() Action {
	return Action{Type: ActionGiveUp}
}

// Restart replaces the game with a fresh one built from init.
func Restart(cfg Init) Action {
	return Action{Type: ActionRestart, Init: &cfg}
}

// EventType tags an Event.
type EventType string

const (
	EventCounterTurn EventType = "counter_turn"
	EventWon         EventType = "won"
)

// String returns the string representation of the event type
func (et EventType) String() string {
	return string(et)
}

// Event is a tagged union of CounterTurn(player, count) and Won(player).
type Event struct {
	Type   EventType `json:"type"`
	Player Player    `json:"player"`
	Count  uint32    `json:"count,omitempty"`
}

// CounterTurn announces that player took count pebbles.
func CounterTurn(player Player, count uint32) Event {
	return Event{Type: EventCounterTurn, Player: player, Count: count}
}

// Won announces the winner.
func Won(player Player) Event {
	return Event{Type: EventWon, Player: player}
}

func (e Event) String() string {
	switch e.Type {
	case EventCounterTurn:
		return fmt.Sprintf("%s took %d", e.Player, e.Count)
	case EventWon:
		return fmt.Sprintf("%s won", e.Player)
	default:
		return string(e.Type)
	}
}

// Reply is what the action entrypoint hands back: the ordered events the
// action produced, and whether a turn was applied and acknowledged.
type Reply struct {
	Events       []Event `json:"events"`
	Acknowledged bool    `json:"acknowledged"`
}
