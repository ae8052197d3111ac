package games

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"game-room-engine/models"
)

func place(i int) Move {
	return NewMove("place", map[string]int{"index": i})
}

func TestTicTacToe_Win(t *testing.T) {
	r := TicTacToeRules{}
	res, err := r.NewGame([]string{"x", "o"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "x", res.NextTurn)

	moves := []struct {
		player string
		cell   int
	}{
		{"x", 0}, {"o", 3}, {"x", 1}, {"o", 4}, {"x", 2},
	}
	for _, m := range moves {
		res, err = r.ApplyMove(res.State, m.player, place(m.cell))
		require.NoError(t, err)
	}

	require.True(t, res.Terminal)
	assert.Equal(t, []string{"x"}, res.Outcome.Winners)
	assert.False(t, res.Outcome.Draw)
	assert.Equal(t, "three_in_a_row", res.Outcome.Reason)
}

func TestTicTacToe_Draw(t *testing.T) {
	r := TicTacToeRules{}
	res, err := r.NewGame([]string{"x", "o"}, Options{})
	require.NoError(t, err)

	// x o x / x o o / o x x
	order := []int{0, 1, 2, 4, 3, 5, 7, 6, 8}
	players := []string{"x", "o"}
	for i, cell := range order {
		res, err = r.ApplyMove(res.State, players[i%2], place(cell))
		require.NoError(t, err)
	}
	require.True(t, res.Terminal)
	assert.True(t, res.Outcome.Draw)
	assert.Empty(t, res.Outcome.Winners)
}

func TestTicTacToe_InvalidMoves(t *testing.T) {
	r := TicTacToeRules{}
	res, err := r.NewGame([]string{"x", "o"}, Options{})
	require.NoError(t, err)

	tests := []struct {
		name   string
		player string
		move   Move
	}{
		{"out of turn", "o", place(0)},
		{"off board", "x", place(9)},
		{"missing index", "x", NewMove("place", map[string]int{})},
		{"unknown action", "x", Move{Action: "castle"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.ApplyMove(res.State, tt.player, tt.move)
			assert.ErrorIs(t, err, models.ErrInvalidMove)
		})
	}

	next, err := r.ApplyMove(res.State, "x", place(4))
	require.NoError(t, err)
	_, err = r.ApplyMove(next.State, "o", place(4))
	assert.ErrorIs(t, err, models.ErrInvalidMove)

	// the input state is untouched
	assert.Equal(t, "", res.State.(*TicTacToeState).Board[4])
}

func TestTicTacToe_PassAndForfeit(t *testing.T) {
	r := TicTacToeRules{}
	res, err := r.NewGame([]string{"x", "o"}, Options{})
	require.NoError(t, err)

	def := r.DefaultMove(res.State, "x")
	res, err = r.ApplyMove(res.State, "x", def)
	require.NoError(t, err)
	assert.Equal(t, "o", res.NextTurn)
	assert.True(t, res.TurnAdvanced)

	res, err = r.Forfeit(res.State, "o")
	require.NoError(t, err)
	require.True(t, res.Terminal)
	assert.Equal(t, []string{"x"}, res.Outcome.Winners)
}
