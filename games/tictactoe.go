package games

import (
	"fmt"
	"strconv"
)

var ticTacToeLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// TicTacToeState is a 3x3 board; Players[0] plays X and moves first.
type TicTacToeState struct {
	Players [2]string `json:"players"`
	Board   [9]string `json:"board"`
	Turn    int       `json:"turn"`
	Moves   int       `json:"moves"`
	Winner  string    `json:"winner,omitempty"`
	Draw    bool      `json:"draw"`
	Over    bool      `json:"over"`
}

func (TicTacToeState) GameType() GameType { return TicTacToe }

// TicTacToeRules implements Rules for tic-tac-toe.
type TicTacToeRules struct{}

func (TicTacToeRules) Type() GameType { return TicTacToe }

func (TicTacToeRules) NewGame(players []string, _ Options) (Result, error) {
	if len(players) != 2 {
		return Result{}, fmt.Errorf("tic-tac-toe needs 2 players, got %d", len(players))
	}
	st := &TicTacToeState{Players: [2]string{players[0], players[1]}}
	return Result{State: st, NextTurn: players[0], TurnAdvanced: true}, nil
}

func (r TicTacToeRules) ApplyMove(state State, participantID string, move Move) (Result, error) {
	cur, ok := state.(*TicTacToeState)
	if !ok {
		return Result{}, wrongState(TicTacToe, state)
	}
	if cur.Over {
		return Result{}, invalid("game is over")
	}
	if cur.Players[cur.Turn] != participantID {
		return Result{}, invalid("%s is not on turn", participantID)
	}

	st := *cur
	mark := "X"
	if st.Turn == 1 {
		mark = "O"
	}

	var ev Event
	switch move.Action {
	case "place":
		var p struct {
			Index *int `json:"index"`
		}
		if err := move.Decode(&p); err != nil {
			return Result{}, err
		}
		if p.Index == nil || *p.Index < 0 || *p.Index > 8 {
			return Result{}, invalid("index must be within 0..8")
		}
		if st.Board[*p.Index] != "" {
			return Result{}, invalid("cell %d is taken", *p.Index)
		}
		st.Board[*p.Index] = mark
		st.Moves++
		ev = Event{ParticipantID: participantID, Action: "place", Detail: mark + "@" + strconv.Itoa(*p.Index)}
	case "pass":
		ev = Event{ParticipantID: participantID, Action: "pass"}
	default:
		return Result{}, invalid("unknown action %q", move.Action)
	}

	res := Result{State: &st, Events: []Event{ev}}
	if ticTacToeWinner(st.Board) == mark {
		st.Over = true
		st.Winner = participantID
		res.Terminal = true
		res.Outcome = &Outcome{
			Winners: []string{participantID},
			Scores:  map[string]int64{participantID: 1},
			Reason:  "three_in_a_row",
		}
		return res, nil
	}
	if st.Moves == 9 {
		st.Over = true
		st.Draw = true
		res.Terminal = true
		res.Outcome = &Outcome{Winners: []string{}, Draw: true, Reason: "board_full"}
		return res, nil
	}

	st.Turn = 1 - st.Turn
	res.NextTurn = st.Players[st.Turn]
	res.TurnAdvanced = true
	return res, nil
}

func (TicTacToeRules) DefaultMove(State, string) Move {
	return Move{Action: "pass"}
}

func (TicTacToeRules) Forfeit(state State, participantID string) (Result, error) {
	cur, ok := state.(*TicTacToeState)
	if !ok {
		return Result{}, wrongState(TicTacToe, state)
	}
	seat := indexOf(cur.Players[:], participantID)
	if seat < 0 {
		return Result{}, invalid("%s is not seated", participantID)
	}
	st := *cur
	st.Over = true
	st.Winner = st.Players[1-seat]
	return Result{
		State:    &st,
		Terminal: true,
		Outcome: &Outcome{
			Winners: []string{st.Winner},
			Scores:  map[string]int64{st.Winner: 1},
			Reason:  "forfeit",
		},
		Events: []Event{{ParticipantID: participantID, Action: "forfeit"}},
	}, nil
}

func (TicTacToeRules) View(state State, _ string) any {
	return state
}

func ticTacToeWinner(b [9]string) string {
	for _, l := range ticTacToeLines {
		if b[l[0]] != "" && b[l[0]] == b[l[1]] && b[l[1]] == b[l[2]] {
			return b[l[0]]
		}
	}
	return ""
}
