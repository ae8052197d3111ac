package games

import (
	"fmt"
	"strconv"
)

// MemoryState is a face-down board of pairs. A turn is two flips; a match
// scores and keeps the turn.
type MemoryState struct {
	Players   []string         `json:"players"`
	Cards     []int            `json:"cards"`
	Matched   []bool           `json:"matched"`
	Flipped   []int            `json:"flipped"`
	Mismatch  []int            `json:"mismatch,omitempty"`
	Scores    map[string]int64 `json:"scores"`
	Forfeited []bool           `json:"forfeited"`
	Turn      int              `json:"turn"`
	Pairs     int              `json:"pairs"`
	Found     int              `json:"found"`
	Over      bool             `json:"over"`
}

func (MemoryState) GameType() GameType { return Memory }

func (s *MemoryState) clone() *MemoryState {
	c := *s
	c.Players = append([]string(nil), s.Players...)
	c.Cards = append([]int(nil), s.Cards...)
	c.Matched = copyBools(s.Matched)
	c.Flipped = append([]int(nil), s.Flipped...)
	c.Mismatch = append([]int(nil), s.Mismatch...)
	c.Scores = copyScores(s.Scores)
	c.Forfeited = copyBools(s.Forfeited)
	return &c
}

func (s *MemoryState) active(p string) bool {
	i := indexOf(s.Players, p)
	return i >= 0 && !s.Forfeited[i]
}

// MemoryRules implements Rules for the memory pairs game.
type MemoryRules struct{}

func (MemoryRules) Type() GameType { return Memory }

func (MemoryRules) NewGame(players []string, opts Options) (Result, error) {
	if len(players) < 2 || len(players) > 4 {
		return Result{}, fmt.Errorf("memory needs 2-4 players, got %d", len(players))
	}
	pairs := 8
	if len(players) > 2 {
		pairs = 12
	}
	cards := make([]int, 0, pairs*2)
	for i := 0; i < pairs; i++ {
		cards = append(cards, i, i)
	}
	rng := newRand(opts.Seed, 0)
	rng.Shuffle(len(cards), func(i, j int) { cards[i], cards[j] = cards[j], cards[i] })

	st := &MemoryState{
		Players:   append([]string(nil), players...),
		Cards:     cards,
		Matched:   make([]bool, len(cards)),
		Scores:    make(map[string]int64, len(players)),
		Forfeited: make([]bool, len(players)),
		Pairs:     pairs,
	}
	for _, p := range players {
		st.Scores[p] = 0
	}
	return Result{State: st, NextTurn: players[0], TurnAdvanced: true}, nil
}

func (r MemoryRules) ApplyMove(state State, participantID string, move Move) (Result, error) {
	cur, ok := state.(*MemoryState)
	if !ok {
		return Result{}, wrongState(Memory, state)
	}
	if cur.Over {
		return Result{}, invalid("game is over")
	}
	if cur.Players[cur.Turn] != participantID {
		return Result{}, invalid("%s is not on turn", participantID)
	}

	st := cur.clone()
	switch move.Action {
	case "pass":
		st.Flipped = nil
		st.Mismatch = nil
		return r.advance(st, Event{ParticipantID: participantID, Action: "pass"}), nil
	case "flip":
	default:
		return Result{}, invalid("unknown action %q", move.Action)
	}

	var p struct {
		Index *int `json:"index"`
	}
	if err := move.Decode(&p); err != nil {
		return Result{}, err
	}
	if p.Index == nil || *p.Index < 0 || *p.Index >= len(st.Cards) {
		return Result{}, invalid("index must be within 0..%d", len(st.Cards)-1)
	}
	idx := *p.Index
	if st.Matched[idx] {
		return Result{}, invalid("card %d is already matched", idx)
	}
	if len(st.Flipped) == 1 && st.Flipped[0] == idx {
		return Result{}, invalid("card %d is already face up", idx)
	}

	st.Mismatch = nil
	st.Flipped = append(st.Flipped, idx)
	ev := Event{ParticipantID: participantID, Action: "flip", Detail: strconv.Itoa(idx)}
	if len(st.Flipped) == 1 {
		return Result{State: st, NextTurn: participantID, Events: []Event{ev}}, nil
	}

	a, b := st.Flipped[0], st.Flipped[1]
	st.Flipped = nil
	if st.Cards[a] != st.Cards[b] {
		st.Mismatch = []int{a, b}
		return r.advance(st, ev), nil
	}

	st.Matched[a], st.Matched[b] = true, true
	st.Scores[participantID]++
	st.Found++
	events := []Event{ev, {ParticipantID: participantID, Action: "match", Amount: 1, Detail: strconv.Itoa(st.Cards[a])}}
	if st.Found == st.Pairs {
		return r.finish(st, events, "board_cleared"), nil
	}
	return Result{State: st, NextTurn: participantID, TurnAdvanced: true, Events: events}, nil
}

func (MemoryRules) DefaultMove(State, string) Move {
	return Move{Action: "pass"}
}

func (r MemoryRules) Forfeit(state State, participantID string) (Result, error) {
	cur, ok := state.(*MemoryState)
	if !ok {
		return Result{}, wrongState(Memory, state)
	}
	seat := indexOf(cur.Players, participantID)
	if seat < 0 {
		return Result{}, invalid("%s is not seated", participantID)
	}
	st := cur.clone()
	st.Forfeited[seat] = true
	ev := Event{ParticipantID: participantID, Action: "forfeit"}

	remaining := 0
	for _, f := range st.Forfeited {
		if !f {
			remaining++
		}
	}
	if remaining <= 1 {
		return r.finish(st, []Event{ev}, "forfeit"), nil
	}
	if st.Turn == seat {
		st.Flipped = nil
		return r.advance(st, ev), nil
	}
	return Result{State: st, NextTurn: st.Players[st.Turn], Events: []Event{ev}}, nil
}

func (MemoryRules) View(state State, _ string) any {
	st, ok := state.(*MemoryState)
	if !ok {
		return state
	}
	board := make([]int, len(st.Cards))
	for i := range board {
		board[i] = -1
		if st.Matched[i] || st.Over {
			board[i] = st.Cards[i]
		}
	}
	for _, i := range st.Flipped {
		board[i] = st.Cards[i]
	}
	for _, i := range st.Mismatch {
		board[i] = st.Cards[i]
	}
	return map[string]any{
		"players":   st.Players,
		"board":     board,
		"matched":   st.Matched,
		"flipped":   st.Flipped,
		"mismatch":  st.Mismatch,
		"scores":    st.Scores,
		"forfeited": st.Forfeited,
		"turn":      st.Players[st.Turn],
		"pairs":     st.Pairs,
		"found":     st.Found,
		"over":      st.Over,
	}
}

func (MemoryRules) advance(st *MemoryState, events ...Event) Result {
	st.Turn = nextActive(len(st.Players), st.Turn, func(i int) bool { return st.Forfeited[i] })
	return Result{State: st, NextTurn: st.Players[st.Turn], TurnAdvanced: true, Events: events}
}

func (MemoryRules) finish(st *MemoryState, events []Event, reason string) Result {
	st.Over = true
	winners := topScorers(st.Players, st.Scores, st.active)
	active := 0
	for _, f := range st.Forfeited {
		if !f {
			active++
		}
	}
	return Result{
		State:    st,
		Terminal: true,
		Events:   events,
		Outcome: &Outcome{
			Winners: winners,
			Draw:    len(winners) > 1 && len(winners) == active,
			Scores:  copyScores(st.Scores),
			Reason:  reason,
		},
	}
}
