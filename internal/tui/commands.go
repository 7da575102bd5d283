package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lox/pebbles/internal/game"
)

// CommandKind identifies what the player typed.
type CommandKind int

const (
	CommandTurn CommandKind = iota
	CommandGiveUp
	CommandRestart
	CommandHelp
	CommandQuit
)

// Command is a parsed line of player input.
type Command struct {
	Kind  CommandKind
	Count uint32
	// Init overrides fields of the current configuration on restart.
	Init *game.Init
}

const helpText = "Commands: <n> take n pebbles • give up • restart [pebbles] [max] [easy|hard] • help • quit"

// ParseCommand turns a line of input into a Command. base supplies the
// fields a restart leaves out.
func ParseCommand(input string, base game.Init) (Command, error) {
	parts := strings.Fields(strings.ToLower(input))
	if len(parts) == 0 {
		return Command{}, fmt.Errorf("type a number of pebbles, or 'help'")
	}

	switch parts[0] {
	case "quit", "exit", "q":
		return Command{Kind: CommandQuit}, nil
	case "help", "?":
		return Command{Kind: CommandHelp}, nil
	case "giveup", "forfeit":
		return Command{Kind: CommandGiveUp}, nil
	case "give":
		if len(parts) == 2 && parts[1] == "up" {
			return Command{Kind: CommandGiveUp}, nil
		}
	case "restart", "new":
		cfg, err := parseRestart(parts[1:], base)
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: CommandRestart, Init: &cfg}, nil
	case "take":
		if len(parts) == 2 {
			return parseTurn(parts[1])
		}
	default:
		if len(parts) == 1 {
			return parseTurn(parts[0])
		}
	}
	return Command{}, fmt.Errorf("unknown command %q", input)
}

func parseTurn(s string) (Command, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return Command{}, fmt.Errorf("unknown command %q", s)
	}
	return Command{Kind: CommandTurn, Count: uint32(n)}, nil
}

func parseRestart(args []string, base game.Init) (game.Init, error) {
	cfg := base
	var numbers []uint32
	for _, arg := range args {
		if d, err := game.ParseDifficulty(arg); err == nil {
			cfg.Difficulty = d
			continue
		}
		n, err := strconv.ParseUint(arg, 10, 32)
		if err != nil {
			return game.Init{}, fmt.Errorf("restart: %q is neither a number nor a difficulty", arg)
		}
		numbers = append(numbers, uint32(n))
	}
	switch len(numbers) {
	case 0:
	case 1:
		cfg.PebblesCount = numbers[0]
	case 2:
		cfg.PebblesCount, cfg.MaxPebblesPerTurn = numbers[0], numbers[1]
	default:
		return game.Init{}, fmt.Errorf("restart takes at most two numbers")
	}
	if err := cfg.Validate(); err != nil {
		return game.Init{}, err
	}
	return cfg, nil
}

// Action converts the command into an engine action. Help and quit have
// none.
func (c Command) Action() (game.Action, bool) {
	switch c.Kind {
	case CommandTurn:
		return game.Turn(c.Count), true
	case CommandGiveUp:
		return game.GiveUp(), true
	case CommandRestart:
		return game.Action{Type: game.ActionRestart, Init: c.Init}, true
	default:
		return game.Action{}, false
	}
}
