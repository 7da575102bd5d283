package game

// ProgramMove returns how many pebbles the program asks to take given the
// current state and one random draw.
//
// Easy plays random%max+1. Hard plays remaining%max unless remaining is a
// multiple of max+1, where no winning move exists and it falls back to the
// random count. remaining%max is 0 whenever remaining is a multiple of max;
// applyTurn then clamps the request up to 1.
func ProgramMove(state GameState, random uint32) uint32 {
	limit := state.MaxPebblesPerTurn
	randomCount := random%limit + 1

	switch state.Difficulty {
	case Hard:
		// widened so a limit of MaxUint32 cannot wrap to a zero modulus
		if uint64(state.PebblesRemaining)%(uint64(limit)+1) == 0 {
			return randomCount
		}
		return state.PebblesRemaining % limit
	default:
		return randomCount
	}
}

// clamp bounds count to [1, limit].
func clamp(count, limit uint32) uint32 {
	if count < 1 {
		return 1
	}
	if count > limit {
		return limit
	}
	return count
}

// applyTurn removes pebbles for whoever moves next and either crowns them or
// passes the turn. The returned event carries the clamped count, which can
// exceed what was actually left in the pile.
func applyTurn(state *GameState, count uint32) Event {
	count = clamp(count, state.MaxPebblesPerTurn)
	if count >= state.PebblesRemaining {
		state.PebblesRemaining = 0
	} else {
		state.PebblesRemaining -= count
	}

	event := CounterTurn(state.FirstPlayer, count)

	if state.PebblesRemaining == 0 {
		winner := state.FirstPlayer
		state.Winner = &winner
	} else {
		state.FirstPlayer = state.FirstPlayer.Opponent()
	}

	return event
}
