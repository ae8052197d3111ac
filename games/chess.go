package games

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/notnil/chess"
)

var squarePattern = regexp.MustCompile(`^[a-h][1-8]$`)

// ChessState stores the move list in UCI notation; the position is rebuilt
// by replaying it so repetition rules see the full history.
type ChessState struct {
	Players [2]string `json:"players"` // white, black
	Moves   []string  `json:"moves"`
	FEN     string    `json:"fen"`
	Turn    int       `json:"turn"`
	Result  string    `json:"result"`
	Method  string    `json:"method,omitempty"`
	Winner  string    `json:"winner,omitempty"`
	// DrawOffer is the participant with an open draw offer.
	DrawOffer string `json:"draw_offer,omitempty"`
	Over      bool   `json:"over"`
}

func (ChessState) GameType() GameType { return Chess }

// ChessRules implements Rules for chess; legality comes from notnil/chess.
type ChessRules struct{}

func (ChessRules) Type() GameType { return Chess }

func (ChessRules) NewGame(players []string, _ Options) (Result, error) {
	if len(players) != 2 {
		return Result{}, fmt.Errorf("chess needs 2 players, got %d", len(players))
	}
	g := chess.NewGame()
	st := &ChessState{
		Players: [2]string{players[0], players[1]},
		FEN:     g.FEN(),
		Result:  string(chess.NoOutcome),
	}
	return Result{State: st, NextTurn: players[0], TurnAdvanced: true}, nil
}

func (r ChessRules) ApplyMove(state State, participantID string, move Move) (Result, error) {
	cur, ok := state.(*ChessState)
	if !ok {
		return Result{}, wrongState(Chess, state)
	}
	if cur.Over {
		return Result{}, invalid("game is over")
	}
	if cur.Players[cur.Turn] != participantID {
		return Result{}, invalid("%s is not on turn", participantID)
	}

	switch move.Action {
	case "resign":
		return r.Forfeit(state, participantID)
	case "offer_draw":
		if cur.DrawOffer != "" {
			return Result{}, invalid("a draw offer is already open")
		}
		st := *cur
		st.DrawOffer = participantID
		return Result{
			State:    &st,
			NextTurn: participantID,
			Events:   []Event{{ParticipantID: participantID, Action: "offer_draw"}},
		}, nil
	case "accept_draw":
		if cur.DrawOffer == "" || cur.DrawOffer == participantID {
			return Result{}, invalid("no draw offer to accept")
		}
		st := *cur
		st.Over = true
		st.DrawOffer = ""
		st.Result = string(chess.Draw)
		st.Method = "DrawOffer"
		return Result{
			State:    &st,
			Terminal: true,
			Outcome:  &Outcome{Winners: []string{}, Draw: true, Reason: "agreement"},
			Events:   []Event{{ParticipantID: participantID, Action: "accept_draw"}},
		}, nil
	case "move":
	default:
		return Result{}, invalid("unknown action %q", move.Action)
	}

	var p struct {
		From      string `json:"from"`
		To        string `json:"to"`
		Promotion string `json:"promotion,omitempty"`
	}
	if err := move.Decode(&p); err != nil {
		return Result{}, err
	}
	p.From, p.To, p.Promotion = strings.ToLower(p.From), strings.ToLower(p.To), strings.ToLower(p.Promotion)
	if !squarePattern.MatchString(p.From) || !squarePattern.MatchString(p.To) {
		return Result{}, invalid("squares must match [a-h][1-8]")
	}
	if len(p.Promotion) > 1 || (p.Promotion != "" && !strings.Contains("qrbn", p.Promotion)) {
		return Result{}, invalid("promotion must be one of q, r, b, n")
	}
	uci := p.From + p.To + p.Promotion

	g, err := replayChess(cur.Moves)
	if err != nil {
		return Result{}, err
	}
	if err := g.MoveStr(uci); err != nil {
		return Result{}, invalid("illegal move %s", uci)
	}

	st := *cur
	st.Moves = append(append([]string(nil), cur.Moves...), uci)
	st.FEN = g.FEN()
	st.Turn = 1 - cur.Turn
	// moving instead of accepting declines the opponent's offer
	if st.DrawOffer != participantID {
		st.DrawOffer = ""
	}

	res := Result{
		State:  &st,
		Events: []Event{{ParticipantID: participantID, Action: "move", Detail: uci}},
	}

	outcome := g.Outcome()
	if outcome == chess.NoOutcome {
		res.NextTurn = st.Players[st.Turn]
		res.TurnAdvanced = true
		return res, nil
	}

	st.Over = true
	st.Result = string(outcome)
	st.Method = g.Method().String()
	res.Terminal = true
	switch outcome {
	case chess.WhiteWon:
		st.Winner = st.Players[0]
	case chess.BlackWon:
		st.Winner = st.Players[1]
	}
	if st.Winner == "" {
		res.Outcome = &Outcome{Winners: []string{}, Draw: true, Reason: st.Method}
	} else {
		res.Outcome = &Outcome{
			Winners: []string{st.Winner},
			Scores:  map[string]int64{st.Winner: 1},
			Reason:  st.Method,
		}
	}
	return res, nil
}

// DefaultMove resigns: chess has no pass.
func (ChessRules) DefaultMove(State, string) Move {
	return Move{Action: "resign"}
}

func (ChessRules) Forfeit(state State, participantID string) (Result, error) {
	cur, ok := state.(*ChessState)
	if !ok {
		return Result{}, wrongState(Chess, state)
	}
	seat := indexOf(cur.Players[:], participantID)
	if seat < 0 {
		return Result{}, invalid("%s is not seated", participantID)
	}
	st := *cur
	st.Moves = append([]string(nil), cur.Moves...)
	st.Over = true
	st.Winner = st.Players[1-seat]
	st.Method = "Resignation"
	if seat == 0 {
		st.Result = string(chess.BlackWon)
	} else {
		st.Result = string(chess.WhiteWon)
	}
	return Result{
		State:    &st,
		Terminal: true,
		Outcome: &Outcome{
			Winners: []string{st.Winner},
			Scores:  map[string]int64{st.Winner: 1},
			Reason:  "resignation",
		},
		Events: []Event{{ParticipantID: participantID, Action: "resign"}},
	}, nil
}

func (ChessRules) View(state State, _ string) any {
	return state
}

func replayChess(moves []string) (*chess.Game, error) {
	g := chess.NewGame(chess.UseNotation(chess.UCINotation{}))
	for _, m := range moves {
		if err := g.MoveStr(m); err != nil {
			return nil, fmt.Errorf("corrupt move history at %s: %w", m, err)
		}
	}
	return g, nil
}
