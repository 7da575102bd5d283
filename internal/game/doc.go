// Package game implements the pebbles game state machine.
//
// A pile starts with a known number of pebbles. The user and the program take
// turns removing between one and a configured maximum; whoever removes the
// last pebble wins. The program picks its moves with a difficulty-dependent
// policy fed by an injected randomness source.
//
// The main type is Engine, which owns exactly one GameState and exposes the
// operations hosts call: Initialize, ApplyTurn, GiveUp, Restart and State,
// plus Handle for dispatching a tagged Action.
//
// # Basic Usage
//
//	e := game.NewEngine(randutil.Crypto(), logger)
//	events, err := e.Initialize(ctx, game.Init{
//	    PebblesCount:      15,
//	    MaxPebblesPerTurn: 4,
//	    Difficulty:        game.Easy,
//	})
//	// events holds the program's opening move if it was picked to start
//	events, err = e.ApplyTurn(ctx, 3)
//	// events holds the user's move and, unless the game ended, the reply
//
// # Deterministic Testing
//
// Pass a fixed source to make the first-mover draw and every program move
// reproducible:
//
//	e := game.NewEngine(randutil.Fixed(2), logger)
//
// # Notifications
//
// Every event an operation produces is returned to the caller in order and
// also delivered through the engine's Notifier, if one is configured with
// WithNotifier. State is committed before delivery, so a delivery error
// means the caller must resynchronise through State rather than replay the
// action.
//
// An Engine is not safe for concurrent use. Hosts serialise calls per engine.
package game
