package games

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"game-room-engine/models"
)

func flip(i int) Move {
	return NewMove("flip", map[string]int{"index": i})
}

// pairOf finds two unmatched cards; same selects a matching or a mismatching
// pair.
func pairOf(st *MemoryState, same bool) (int, int) {
	for i := range st.Cards {
		for j := i + 1; j < len(st.Cards); j++ {
			if st.Matched[i] || st.Matched[j] {
				continue
			}
			if (st.Cards[i] == st.Cards[j]) == same {
				return i, j
			}
		}
	}
	return -1, -1
}

func TestMemory_MatchKeepsTurn(t *testing.T) {
	r := MemoryRules{}
	res, err := r.NewGame([]string{"a", "b"}, Options{Seed: 7})
	require.NoError(t, err)
	st := res.State.(*MemoryState)
	assert.Equal(t, 8, st.Pairs)
	assert.Len(t, st.Cards, 16)

	i, j := pairOf(st, true)
	res, err = r.ApplyMove(st, "a", flip(i))
	require.NoError(t, err)
	assert.Equal(t, "a", res.NextTurn)
	assert.False(t, res.TurnAdvanced)

	res, err = r.ApplyMove(res.State, "a", flip(j))
	require.NoError(t, err)
	assert.Equal(t, "a", res.NextTurn)
	assert.True(t, res.TurnAdvanced)
	st = res.State.(*MemoryState)
	assert.Equal(t, int64(1), st.Scores["a"])

	_, err = r.ApplyMove(st, "a", flip(i))
	assert.ErrorIs(t, err, models.ErrInvalidMove)
}

func TestMemory_MismatchPassesTurn(t *testing.T) {
	r := MemoryRules{}
	res, err := r.NewGame([]string{"a", "b", "c"}, Options{Seed: 11})
	require.NoError(t, err)
	st := res.State.(*MemoryState)
	assert.Equal(t, 12, st.Pairs)

	i, j := pairOf(st, false)
	res, err = r.ApplyMove(st, "a", flip(i))
	require.NoError(t, err)
	res, err = r.ApplyMove(res.State, "a", flip(j))
	require.NoError(t, err)
	assert.Equal(t, "b", res.NextTurn)
	assert.Equal(t, []int{i, j}, res.State.(*MemoryState).Mismatch)

	view := r.View(res.State, "c").(map[string]any)
	board := view["board"].([]int)
	assert.Equal(t, st.Cards[i], board[i])
	for k := range board {
		if k != i && k != j {
			assert.Equal(t, -1, board[k])
		}
	}
}

func TestMemory_ClearBoard(t *testing.T) {
	r := MemoryRules{}
	res, err := r.NewGame([]string{"a", "b"}, Options{Seed: 3})
	require.NoError(t, err)

	for {
		st := res.State.(*MemoryState)
		i, j := pairOf(st, true)
		require.GreaterOrEqual(t, i, 0)
		res, err = r.ApplyMove(st, "a", flip(i))
		require.NoError(t, err)
		res, err = r.ApplyMove(res.State, "a", flip(j))
		require.NoError(t, err)
		if res.Terminal {
			break
		}
	}
	assert.Equal(t, []string{"a"}, res.Outcome.Winners)
	assert.Equal(t, int64(8), res.Outcome.Scores["a"])
}

func TestMemory_Forfeit(t *testing.T) {
	r := MemoryRules{}
	res, err := r.NewGame([]string{"a", "b", "c"}, Options{Seed: 1})
	require.NoError(t, err)

	res, err = r.Forfeit(res.State, "a")
	require.NoError(t, err)
	assert.False(t, res.Terminal)
	assert.Equal(t, "b", res.NextTurn)

	res, err = r.Forfeit(res.State, "c")
	require.NoError(t, err)
	require.True(t, res.Terminal)
	assert.Equal(t, []string{"b"}, res.Outcome.Winners)
}
