package games

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"game-room-engine/models"
)

func newPoker(t *testing.T, stacks map[string]int64, players ...string) Result {
	t.Helper()
	res, err := PokerRules{}.NewGame(players, Options{Seed: 99, SmallBlind: 5, BigBlind: 10, Stacks: stacks})
	require.NoError(t, err)
	return res
}

func totalChips(st *PokerState) int64 {
	var sum int64
	for _, s := range st.Seats {
		sum += s.Stack + s.Committed + s.Pending
	}
	return sum
}

func bet(action string, amount int64) Move {
	return NewMove(action, map[string]int64{"amount": amount})
}

func TestPoker_HeadsUpBlinds(t *testing.T) {
	res := newPoker(t, map[string]int64{"a": 1000, "b": 1000}, "a", "b")
	st := res.State.(*PokerState)

	assert.Equal(t, 0, st.Dealer)
	assert.Equal(t, int64(995), st.Seats[0].Stack, "dealer posts the small blind")
	assert.Equal(t, int64(990), st.Seats[1].Stack)
	assert.Equal(t, "a", res.NextTurn, "dealer acts first preflop")
	assert.Len(t, st.Seats[0].Hole, 2)
	assert.Len(t, st.Deck, 48)

	_, err := PokerRules{}.ApplyMove(st, "a", Move{Action: "check"})
	assert.ErrorIs(t, err, models.ErrInvalidMove)
	_, err = PokerRules{}.ApplyMove(st, "b", Move{Action: "call"})
	assert.ErrorIs(t, err, models.ErrInvalidMove)
}

func TestPoker_FoldAwardsPot(t *testing.T) {
	r := PokerRules{}
	res := newPoker(t, map[string]int64{"a": 1000, "b": 1000}, "a", "b")

	res, err := r.ApplyMove(res.State, "a", r.DefaultMove(res.State, "a"))
	require.NoError(t, err)
	assert.True(t, res.HandEnded)
	assert.False(t, res.Terminal)
	assert.Empty(t, res.NextTurn)

	st := res.State.(*PokerState)
	assert.Equal(t, int64(995), st.Seats[0].Stack)
	assert.Equal(t, int64(1005), st.Seats[1].Stack)
	assert.Equal(t, StreetComplete, st.Street)

	_, err = r.ApplyMove(st, "b", Move{Action: "check"})
	assert.ErrorIs(t, err, models.ErrInvalidMove)

	res, err = r.NextHand(st)
	require.NoError(t, err)
	st = res.State.(*PokerState)
	assert.Equal(t, 2, st.HandNumber)
	assert.Equal(t, 1, st.Dealer)
	assert.Equal(t, "b", res.NextTurn)
}

func TestPoker_StreetsAdvance(t *testing.T) {
	r := PokerRules{}
	res := newPoker(t, map[string]int64{"a": 1000, "b": 1000}, "a", "b")

	res, err := r.ApplyMove(res.State, "a", Move{Action: "call"})
	require.NoError(t, err)
	assert.Equal(t, "b", res.NextTurn, "big blind keeps the option")

	res, err = r.ApplyMove(res.State, "b", Move{Action: "check"})
	require.NoError(t, err)
	st := res.State.(*PokerState)
	assert.Equal(t, StreetFlop, st.Street)
	assert.Len(t, st.Board, 3)
	assert.Equal(t, "b", res.NextTurn, "non-dealer acts first after the flop")

	res, err = r.ApplyMove(st, "b", bet("bet", 40))
	require.NoError(t, err)
	_, err = r.ApplyMove(res.State, "a", bet("raise", 10))
	assert.ErrorIs(t, err, models.ErrInvalidMove, "raise below the last raise")

	res, err = r.ApplyMove(res.State, "a", bet("raise", 40))
	require.NoError(t, err)
	assert.Equal(t, "b", res.NextTurn)
	res, err = r.ApplyMove(res.State, "b", Move{Action: "call"})
	require.NoError(t, err)
	st = res.State.(*PokerState)
	assert.Equal(t, StreetTurn, st.Street)
	assert.Equal(t, int64(180), st.Pot())

	for st.Street != StreetComplete {
		res, err = r.ApplyMove(st, res.NextTurn, Move{Action: "check"})
		require.NoError(t, err)
		st = res.State.(*PokerState)
	}
	assert.True(t, res.HandEnded)
	assert.True(t, st.Showdown)
	assert.Len(t, st.Board, 5)
	assert.Equal(t, int64(2000), totalChips(st))
	require.NotEmpty(t, st.Awards)
}

func TestPoker_SidePots(t *testing.T) {
	r := PokerRules{}
	res := newPoker(t, map[string]int64{"a": 100, "b": 300, "c": 300}, "a", "b", "c")
	st := res.State.(*PokerState)
	require.Equal(t, 0, st.Dealer)
	require.Equal(t, "a", res.NextTurn)

	res, err := r.ApplyMove(st, "a", Move{Action: "allin"})
	require.NoError(t, err)
	res, err = r.ApplyMove(res.State, "b", Move{Action: "call"})
	require.NoError(t, err)
	res, err = r.ApplyMove(res.State, "c", Move{Action: "call"})
	require.NoError(t, err)
	require.Equal(t, StreetFlop, res.State.(*PokerState).Street)

	res, err = r.ApplyMove(res.State, "b", bet("bet", 50))
	require.NoError(t, err)
	res, err = r.ApplyMove(res.State, "c", Move{Action: "call"})
	require.NoError(t, err)

	st = res.State.(*PokerState)
	for st.Street != StreetComplete {
		res, err = r.ApplyMove(st, res.NextTurn, Move{Action: "check"})
		require.NoError(t, err)
		st = res.State.(*PokerState)
	}

	assert.Equal(t, int64(700), totalChips(st))
	assert.LessOrEqual(t, st.Seats[0].Stack, int64(300), "all-in player only wins the main pot")
	var awarded int64
	for _, a := range st.Awards {
		awarded += a.Amount
	}
	assert.Equal(t, int64(400), awarded)
}

func TestPoker_AllInRunsOut(t *testing.T) {
	r := PokerRules{}
	res := newPoker(t, map[string]int64{"a": 500, "b": 500}, "a", "b")

	res, err := r.ApplyMove(res.State, "a", Move{Action: "allin"})
	require.NoError(t, err)
	res, err = r.ApplyMove(res.State, "b", Move{Action: "call"})
	require.NoError(t, err)

	st := res.State.(*PokerState)
	require.True(t, res.HandEnded)
	assert.Len(t, st.Board, 5)
	assert.Equal(t, int64(1000), totalChips(st))

	next, err := r.NextHand(st)
	require.NoError(t, err)
	if st.Seats[0].Stack == 0 || st.Seats[1].Stack == 0 {
		require.True(t, next.Terminal)
		assert.Len(t, next.Outcome.Winners, 1)
		assert.Equal(t, int64(1000), next.Outcome.Stacks[next.Outcome.Winners[0]])
	} else {
		assert.False(t, next.Terminal)
	}
}

func TestPoker_ForfeitEndsHeadsUp(t *testing.T) {
	r := PokerRules{}
	res := newPoker(t, map[string]int64{"a": 1000, "b": 1000}, "a", "b")

	res, err := r.Forfeit(res.State, "a")
	require.NoError(t, err)
	require.True(t, res.Terminal)
	assert.Equal(t, []string{"b"}, res.Outcome.Winners)
	assert.Equal(t, int64(1005), res.Outcome.Stacks["b"])
	assert.Equal(t, int64(995), res.Outcome.Stacks["a"])
}

func TestPoker_Rebuy(t *testing.T) {
	r := PokerRules{}
	res := newPoker(t, map[string]int64{"a": 1000, "b": 1000}, "a", "b")

	st, err := r.Rebuy(res.State, "a", 200)
	require.NoError(t, err)
	ps := st.(*PokerState)
	assert.Equal(t, int64(200), ps.Seats[0].Pending, "held while the hand runs")
	assert.Equal(t, int64(1195), ps.StackOf("a"))

	res, err = r.ApplyMove(ps, "a", Move{Action: "fold"})
	require.NoError(t, err)
	res, err = r.NextHand(res.State)
	require.NoError(t, err)
	ps = res.State.(*PokerState)
	assert.Zero(t, ps.Seats[0].Pending)
	assert.Equal(t, int64(1195), ps.Seats[0].Stack+ps.Seats[0].Committed)

	_, err = r.Rebuy(ps, "nobody", 100)
	assert.ErrorIs(t, err, models.ErrInvalidMove)
}

func TestPoker_ViewHidesHoleCards(t *testing.T) {
	r := PokerRules{}
	res := newPoker(t, map[string]int64{"a": 1000, "b": 1000}, "a", "b")

	view := r.View(res.State, "a").(map[string]any)
	seats := view["seats"].([]map[string]any)
	assert.Contains(t, seats[0], "hole")
	assert.NotContains(t, seats[1], "hole")
	assert.Equal(t, int64(5), view["to_call"])

	public := r.View(res.State, "").(map[string]any)
	for _, s := range public["seats"].([]map[string]any) {
		assert.NotContains(t, s, "hole")
	}
}

func TestHandStrength(t *testing.T) {
	royal := []Card{{14, 3}, {13, 3}, {12, 3}, {11, 3}, {10, 3}, {2, 0}, {3, 1}}
	pair := []Card{{2, 0}, {2, 1}, {5, 2}, {7, 3}, {9, 0}, {11, 1}, {13, 2}}

	hi, err := HandStrength(royal)
	require.NoError(t, err)
	lo, err := HandStrength(pair)
	require.NoError(t, err)
	assert.Greater(t, hi, lo)

	_, err = HandStrength(royal[:5])
	assert.Error(t, err)
}
