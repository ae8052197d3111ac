package games

import (
	"fmt"
	"strconv"
	"strings"
)

// Card colours.
const (
	TeamRed  = "red"
	TeamBlue = "blue"
	Neutral  = "neutral"
	Assassin = "assassin"
)

const (
	phaseClue  = "clue"
	phaseGuess = "guess"
)

var codenameWords = []string{
	"agent", "angel", "apple", "army", "atlas", "band", "bank", "bark", "bat", "battery",
	"beach", "bear", "bell", "berry", "board", "bolt", "bomb", "bond", "boot", "bottle",
	"bridge", "bug", "button", "canada", "cap", "car", "card", "castle", "cat", "cell",
	"center", "chair", "check", "chest", "china", "circle", "cliff", "cloak", "club", "code",
	"comic", "compound", "copper", "cotton", "court", "cover", "crane", "crash", "cross", "crown",
	"cycle", "dance", "day", "diamond", "dice", "dog", "draft", "dragon", "dress", "drill",
	"drop", "duck", "eagle", "egypt", "engine", "eye", "face", "fair", "fall", "fan",
	"field", "file", "film", "fire", "fish", "flute", "fly", "forest", "fork", "france",
	"game", "gas", "ghost", "giant", "glass", "glove", "gold", "grace", "grass", "green",
	"ham", "hand", "hawk", "head", "heart", "hole", "hood", "hook", "horn", "horse",
	"ice", "iron", "jack", "jam", "jet", "key", "kid", "king", "knife", "knight",
	"lab", "lap", "laser", "lead", "lemon", "life", "light", "line", "link", "lock",
}

// CodenamesCard is one word on the board.
type CodenamesCard struct {
	Word     string `json:"word"`
	Colour   string `json:"colour"`
	Revealed bool   `json:"revealed"`
}

// CodenamesState is a 2v2 game. Seats 0 and 2 are the red spymaster and
// operative, seats 1 and 3 the blue ones.
type CodenamesState struct {
	Players     []string        `json:"players"`
	Board       []CodenamesCard `json:"board"`
	Team        string          `json:"team"`
	Phase       string          `json:"phase"`
	Clue        string          `json:"clue,omitempty"`
	ClueNumber  int             `json:"clue_number"`
	GuessesLeft int             `json:"guesses_left"`
	Remaining   map[string]int  `json:"remaining"`
	Winner      string          `json:"winner,omitempty"`
	Over        bool            `json:"over"`
}

func (CodenamesState) GameType() GameType { return Codenames }

func (s *CodenamesState) clone() *CodenamesState {
	c := *s
	c.Players = append([]string(nil), s.Players...)
	c.Board = append([]CodenamesCard(nil), s.Board...)
	c.Remaining = map[string]int{TeamRed: s.Remaining[TeamRed], TeamBlue: s.Remaining[TeamBlue]}
	return &c
}

// seatOf returns the seat of the team's spymaster or operative.
func (s *CodenamesState) seatOf(team, phase string) int {
	seat := 0
	if team == TeamBlue {
		seat = 1
	}
	if phase == phaseGuess {
		seat += 2
	}
	return seat
}

func (s *CodenamesState) current() string {
	return s.Players[s.seatOf(s.Team, s.Phase)]
}

func (s *CodenamesState) teamMembers(team string) []string {
	if team == TeamRed {
		return []string{s.Players[0], s.Players[2]}
	}
	return []string{s.Players[1], s.Players[3]}
}

// TeamOf returns the team of a participant.
func (s *CodenamesState) TeamOf(participantID string) string {
	i := indexOf(s.Players, participantID)
	if i < 0 {
		return ""
	}
	if i%2 == 0 {
		return TeamRed
	}
	return TeamBlue
}

func otherTeam(team string) string {
	if team == TeamRed {
		return TeamBlue
	}
	return TeamRed
}

// CodenamesRules implements Rules for codenames.
type CodenamesRules struct{}

func (CodenamesRules) Type() GameType { return Codenames }

func (CodenamesRules) NewGame(players []string, opts Options) (Result, error) {
	if len(players) != 4 {
		return Result{}, fmt.Errorf("codenames needs 4 players, got %d", len(players))
	}
	rng := newRand(opts.Seed, 0)
	starting := TeamRed
	if rng.IntN(2) == 1 {
		starting = TeamBlue
	}

	words := rng.Perm(len(codenameWords))[:25]
	colours := make([]string, 0, 25)
	for i := 0; i < 9; i++ {
		colours = append(colours, starting)
	}
	for i := 0; i < 8; i++ {
		colours = append(colours, otherTeam(starting))
	}
	for i := 0; i < 7; i++ {
		colours = append(colours, Neutral)
	}
	colours = append(colours, Assassin)
	rng.Shuffle(len(colours), func(i, j int) { colours[i], colours[j] = colours[j], colours[i] })

	board := make([]CodenamesCard, 25)
	for i := range board {
		board[i] = CodenamesCard{Word: codenameWords[words[i]], Colour: colours[i]}
	}
	st := &CodenamesState{
		Players:   append([]string(nil), players...),
		Board:     board,
		Team:      starting,
		Phase:     phaseClue,
		Remaining: map[string]int{starting: 9, otherTeam(starting): 8},
	}
	return Result{State: st, NextTurn: st.current(), TurnAdvanced: true}, nil
}

func (r CodenamesRules) ApplyMove(state State, participantID string, move Move) (Result, error) {
	cur, ok := state.(*CodenamesState)
	if !ok {
		return Result{}, wrongState(Codenames, state)
	}
	if cur.Over {
		return Result{}, invalid("game is over")
	}
	if cur.current() != participantID {
		return Result{}, invalid("%s is not on turn", participantID)
	}
	st := cur.clone()

	switch move.Action {
	case "pass":
		return r.switchTeam(st, Event{ParticipantID: participantID, Action: "pass"}), nil

	case "clue":
		if st.Phase != phaseClue {
			return Result{}, invalid("waiting for a guess")
		}
		var p struct {
			Word   string `json:"word"`
			Number int    `json:"number"`
		}
		if err := move.Decode(&p); err != nil {
			return Result{}, err
		}
		word := strings.ToLower(strings.TrimSpace(p.Word))
		if word == "" || strings.ContainsAny(word, " \t") {
			return Result{}, invalid("clue must be a single word")
		}
		if p.Number < 0 || p.Number > 9 {
			return Result{}, invalid("clue number must be within 0..9")
		}
		for _, c := range st.Board {
			if !c.Revealed && c.Word == word {
				return Result{}, invalid("clue %q is on the board", word)
			}
		}
		st.Clue, st.ClueNumber = word, p.Number
		st.GuessesLeft = p.Number + 1
		st.Phase = phaseGuess
		ev := Event{ParticipantID: participantID, Action: "clue", Amount: int64(p.Number), Detail: word}
		return Result{State: st, NextTurn: st.current(), TurnAdvanced: true, Events: []Event{ev}}, nil

	case "guess":
		if st.Phase != phaseGuess {
			return Result{}, invalid("waiting for a clue")
		}
		var p struct {
			Card *int `json:"card"`
		}
		if err := move.Decode(&p); err != nil {
			return Result{}, err
		}
		if p.Card == nil || *p.Card < 0 || *p.Card >= len(st.Board) {
			return Result{}, invalid("card must be within 0..%d", len(st.Board)-1)
		}
		card := &st.Board[*p.Card]
		if card.Revealed {
			return Result{}, invalid("card %d is already revealed", *p.Card)
		}
		card.Revealed = true
		ev := Event{ParticipantID: participantID, Action: "guess", Detail: strconv.Itoa(*p.Card) + ":" + card.Colour}

		switch card.Colour {
		case Assassin:
			return r.finish(st, otherTeam(st.Team), "assassin", ev), nil
		case TeamRed, TeamBlue:
			st.Remaining[card.Colour]--
			if st.Remaining[card.Colour] == 0 {
				return r.finish(st, card.Colour, "all_agents_found", ev), nil
			}
		}
		if card.Colour != st.Team {
			return r.switchTeam(st, ev), nil
		}
		st.GuessesLeft--
		if st.GuessesLeft == 0 {
			return r.switchTeam(st, ev), nil
		}
		return Result{State: st, NextTurn: participantID, TurnAdvanced: true, Events: []Event{ev}}, nil
	}
	return Result{}, invalid("unknown action %q", move.Action)
}

// DefaultMove ends the team's turn.
func (CodenamesRules) DefaultMove(State, string) Move {
	return Move{Action: "pass"}
}

func (r CodenamesRules) Forfeit(state State, participantID string) (Result, error) {
	cur, ok := state.(*CodenamesState)
	if !ok {
		return Result{}, wrongState(Codenames, state)
	}
	team := cur.TeamOf(participantID)
	if team == "" {
		return Result{}, invalid("%s is not seated", participantID)
	}
	return r.finish(cur.clone(), otherTeam(team), "forfeit", Event{ParticipantID: participantID, Action: "forfeit"}), nil
}

func (CodenamesRules) View(state State, viewerID string) any {
	st, ok := state.(*CodenamesState)
	if !ok {
		return state
	}
	seat := indexOf(st.Players, viewerID)
	spymaster := seat == 0 || seat == 1
	board := make([]CodenamesCard, len(st.Board))
	for i, c := range st.Board {
		board[i] = c
		if !c.Revealed && !spymaster && !st.Over {
			board[i].Colour = ""
		}
	}
	view := map[string]any{
		"players":      st.Players,
		"board":        board,
		"team":         st.Team,
		"phase":        st.Phase,
		"clue":         st.Clue,
		"clue_number":  st.ClueNumber,
		"guesses_left": st.GuessesLeft,
		"remaining":    st.Remaining,
		"winner":       st.Winner,
		"over":         st.Over,
	}
	if seat >= 0 {
		view["my_team"] = st.TeamOf(viewerID)
		view["spymaster"] = spymaster
	}
	if !st.Over {
		view["turn"] = st.current()
	}
	return view
}

func (CodenamesRules) switchTeam(st *CodenamesState, ev Event) Result {
	st.Team = otherTeam(st.Team)
	st.Phase = phaseClue
	st.Clue, st.ClueNumber, st.GuessesLeft = "", 0, 0
	return Result{State: st, NextTurn: st.current(), TurnAdvanced: true, Events: []Event{ev}}
}

func (CodenamesRules) finish(st *CodenamesState, winner, reason string, ev Event) Result {
	st.Over = true
	st.Winner = winner
	winners := st.teamMembers(winner)
	scores := map[string]int64{}
	for _, team := range []string{TeamRed, TeamBlue} {
		found := 0
		for _, c := range st.Board {
			if c.Colour == team && c.Revealed {
				found++
			}
		}
		for _, p := range st.teamMembers(team) {
			scores[p] = int64(found)
		}
	}
	return Result{
		State:    st,
		Terminal: true,
		Events:   []Event{ev},
		Outcome:  &Outcome{Winners: winners, Scores: scores, Reason: reason},
	}
}
