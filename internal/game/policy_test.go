package game

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgramMove(t *testing.T) {
	tests := []struct {
		name       string
		remaining  uint32
		max        uint32
		difficulty DifficultyLevel
		random     uint32
		want       uint32
	}{
		{name: "easy uses random count", remaining: 15, max: 4, difficulty: Easy, random: 2, want: 3},
		{name: "easy wraps random", remaining: 15, max: 4, difficulty: Easy, random: 7, want: 4},
		{name: "hard plays optimal residue", remaining: 15, max: 4, difficulty: Hard, random: 0, want: 3},
		{name: "hard at losing residue falls back to random", remaining: 10, max: 4, difficulty: Hard, random: 2, want: 3},
		{name: "hard can ask for zero", remaining: 8, max: 4, difficulty: Hard, random: 1, want: 0},
		{name: "hard with max of one", remaining: 5, max: 1, difficulty: Hard, random: 9, want: 0},
		{name: "hard with huge max does not divide by zero", remaining: 7, max: math.MaxUint32, difficulty: Hard, random: 3, want: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := GameState{
				PebblesCount:      tt.remaining,
				PebblesRemaining:  tt.remaining,
				MaxPebblesPerTurn: tt.max,
				Difficulty:        tt.difficulty,
				FirstPlayer:       Program,
			}
			assert.Equal(t, tt.want, ProgramMove(state, tt.random))
		})
	}
}

func TestProgramMoveStaysInRange(t *testing.T) {
	for limit := uint32(1); limit <= 8; limit++ {
		for remaining := uint32(1); remaining <= 40; remaining++ {
			for random := uint32(0); random < 20; random++ {
				for _, d := range []DifficultyLevel{Easy, Hard} {
					move := ProgramMove(GameState{PebblesRemaining: remaining, MaxPebblesPerTurn: limit, Difficulty: d}, random)
					assert.LessOrEqual(t, move, limit)
					if d == Easy {
						assert.GreaterOrEqual(t, move, uint32(1))
					}
				}
			}
		}
	}
}

func TestApplyTurn(t *testing.T) {
	state := GameState{PebblesCount: 5, MaxPebblesPerTurn: 3, PebblesRemaining: 5, FirstPlayer: User}

	assert.Equal(t, CounterTurn(User, 3), applyTurn(&state, 9))
	assert.Equal(t, uint32(2), state.PebblesRemaining)
	assert.Equal(t, Program, state.FirstPlayer)
	assert.Nil(t, state.Winner)

	assert.Equal(t, CounterTurn(Program, 3), applyTurn(&state, 3))
	assert.Equal(t, uint32(0), state.PebblesRemaining)
	require.NotNil(t, state.Winner)
	assert.Equal(t, Program, *state.Winner)
}

func TestTextForms(t *testing.T) {
	winner := Program
	state := GameState{
		PebblesCount:      15,
		MaxPebblesPerTurn: 4,
		PebblesRemaining:  0,
		Difficulty:        Hard,
		FirstPlayer:       Program,
		Winner:            &winner,
	}

	data, err := json.Marshal(state)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"pebbles_count": 15,
		"max_pebbles_per_turn": 4,
		"pebbles_remaining": 0,
		"difficulty": "hard",
		"first_player": "program",
		"winner": "program"
	}`, string(data))

	var action Action
	require.NoError(t, json.Unmarshal([]byte(`{"type":"restart","init":{"pebbles_count":7,"max_pebbles_per_turn":2,"difficulty":"Easy"}}`), &action))
	assert.Equal(t, Restart(Init{PebblesCount: 7, MaxPebblesPerTurn: 2, Difficulty: Easy}), action)

	var d DifficultyLevel
	assert.Error(t, d.UnmarshalText([]byte("medium")))
	_, err = ParsePlayer("dealer")
	assert.Error(t, err)
	assert.Equal(t, "user took 3", CounterTurn(User, 3).String())
	assert.Equal(t, "program won", Won(Program).String())
}
