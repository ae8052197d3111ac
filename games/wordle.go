package games

import (
	"fmt"
	"regexp"
	"strings"
)

const wordleAttempts = 6

var wordPattern = regexp.MustCompile(`^[a-z]{5}$`)

var wordleWords = []string{
	"crane", "slate", "pride", "flame", "ghost", "brick", "chair", "plant",
	"storm", "train", "bread", "clock", "dance", "eagle", "frost", "grape",
	"heart", "ivory", "jelly", "knife", "lemon", "mango", "night", "ocean",
	"piano", "queen", "river", "smile", "tiger", "under", "vivid", "whale",
	"youth", "zebra", "amber", "blaze", "cider", "drift", "ember", "fable",
	"glide", "honey", "input", "joker", "karma", "lunar", "maple", "noble",
	"orbit", "pearl",
}

// Letter feedback values.
const (
	LetterCorrect = "correct"
	LetterPresent = "present"
	LetterAbsent  = "absent"
)

// WordleGuess is one scored attempt.
type WordleGuess struct {
	ParticipantID string   `json:"participant_id"`
	Word          string   `json:"word"`
	Feedback      []string `json:"feedback"`
}

// WordleState is a shared secret word guessed in rotation; the first correct
// guess wins.
type WordleState struct {
	Players   []string       `json:"players"`
	Secret    string         `json:"secret"`
	Guesses   []WordleGuess  `json:"guesses"`
	Attempts  map[string]int `json:"attempts"`
	Forfeited []bool         `json:"forfeited"`
	Turn      int            `json:"turn"`
	Winner    string         `json:"winner,omitempty"`
	Over      bool           `json:"over"`
}

func (WordleState) GameType() GameType { return Wordle }

func (s *WordleState) clone() *WordleState {
	c := *s
	c.Players = append([]string(nil), s.Players...)
	c.Guesses = append([]WordleGuess(nil), s.Guesses...)
	c.Attempts = make(map[string]int, len(s.Attempts))
	for k, v := range s.Attempts {
		c.Attempts[k] = v
	}
	c.Forfeited = copyBools(s.Forfeited)
	return &c
}

func (s *WordleState) exhausted(i int) bool {
	return s.Forfeited[i] || s.Attempts[s.Players[i]] >= wordleAttempts
}

// WordleRules implements Rules for competitive wordle.
type WordleRules struct{}

func (WordleRules) Type() GameType { return Wordle }

func (WordleRules) NewGame(players []string, opts Options) (Result, error) {
	if len(players) < 1 || len(players) > 4 {
		return Result{}, fmt.Errorf("wordle needs 1-4 players, got %d", len(players))
	}
	rng := newRand(opts.Seed, 0)
	st := &WordleState{
		Players:   append([]string(nil), players...),
		Secret:    wordleWords[rng.IntN(len(wordleWords))],
		Attempts:  make(map[string]int, len(players)),
		Forfeited: make([]bool, len(players)),
	}
	return Result{State: st, NextTurn: players[0], TurnAdvanced: true}, nil
}

func (r WordleRules) ApplyMove(state State, participantID string, move Move) (Result, error) {
	cur, ok := state.(*WordleState)
	if !ok {
		return Result{}, wrongState(Wordle, state)
	}
	if cur.Over {
		return Result{}, invalid("game is over")
	}
	if cur.Players[cur.Turn] != participantID {
		return Result{}, invalid("%s is not on turn", participantID)
	}

	st := cur.clone()
	var ev Event
	switch move.Action {
	case "guess":
		var p struct {
			Word string `json:"word"`
		}
		if err := move.Decode(&p); err != nil {
			return Result{}, err
		}
		word := strings.ToLower(strings.TrimSpace(p.Word))
		if !wordPattern.MatchString(word) {
			return Result{}, invalid("guess must be five letters")
		}
		fb := ScoreGuess(st.Secret, word)
		st.Guesses = append(st.Guesses, WordleGuess{ParticipantID: participantID, Word: word, Feedback: fb})
		st.Attempts[participantID]++
		ev = Event{ParticipantID: participantID, Action: "guess", Detail: word}
		if word == st.Secret {
			st.Over = true
			st.Winner = participantID
			return Result{
				State:    st,
				Terminal: true,
				Events:   []Event{ev},
				Outcome: &Outcome{
					Winners: []string{participantID},
					Scores:  map[string]int64{participantID: int64(wordleAttempts - st.Attempts[participantID] + 1)},
					Reason:  "solved",
				},
			}, nil
		}
	case "skip":
		st.Attempts[participantID]++
		ev = Event{ParticipantID: participantID, Action: "skip"}
	default:
		return Result{}, invalid("unknown action %q", move.Action)
	}
	return r.advance(st, ev), nil
}

func (WordleRules) DefaultMove(State, string) Move {
	return Move{Action: "skip"}
}

func (r WordleRules) Forfeit(state State, participantID string) (Result, error) {
	cur, ok := state.(*WordleState)
	if !ok {
		return Result{}, wrongState(Wordle, state)
	}
	seat := indexOf(cur.Players, participantID)
	if seat < 0 {
		return Result{}, invalid("%s is not seated", participantID)
	}
	st := cur.clone()
	st.Forfeited[seat] = true
	ev := Event{ParticipantID: participantID, Action: "forfeit"}

	var remaining []string
	for i, p := range st.Players {
		if !st.Forfeited[i] {
			remaining = append(remaining, p)
		}
	}
	if len(st.Players) > 1 && len(remaining) == 1 {
		st.Over = true
		st.Winner = remaining[0]
		return Result{
			State:    st,
			Terminal: true,
			Events:   []Event{ev},
			Outcome:  &Outcome{Winners: remaining, Reason: "forfeit"},
		}, nil
	}
	if st.Turn == seat || len(remaining) == 0 {
		return r.advance(st, ev), nil
	}
	return Result{State: st, NextTurn: st.Players[st.Turn], Events: []Event{ev}}, nil
}

func (WordleRules) View(state State, _ string) any {
	st, ok := state.(*WordleState)
	if !ok {
		return state
	}
	view := map[string]any{
		"players":      st.Players,
		"guesses":      st.Guesses,
		"attempts":     st.Attempts,
		"max_attempts": wordleAttempts,
		"forfeited":    st.Forfeited,
		"winner":       st.Winner,
		"over":         st.Over,
	}
	if st.Over {
		view["secret"] = st.Secret
	} else {
		view["turn"] = st.Players[st.Turn]
	}
	return view
}

func (WordleRules) advance(st *WordleState, ev Event) Result {
	next := nextActive(len(st.Players), st.Turn, st.exhausted)
	if next < 0 {
		st.Over = true
		return Result{
			State:    st,
			Terminal: true,
			Events:   []Event{ev},
			Outcome:  &Outcome{Winners: []string{}, Draw: true, Reason: "attempts_exhausted"},
		}
	}
	st.Turn = next
	return Result{State: st, NextTurn: st.Players[next], TurnAdvanced: true, Events: []Event{ev}}
}

// ScoreGuess returns per-letter feedback; repeated letters are only marked
// present as many times as they occur in the secret.
func ScoreGuess(secret, guess string) []string {
	fb := make([]string, len(guess))
	remaining := map[byte]int{}
	for i := 0; i < len(secret); i++ {
		if guess[i] == secret[i] {
			fb[i] = LetterCorrect
		} else {
			remaining[secret[i]]++
		}
	}
	for i := 0; i < len(guess); i++ {
		if fb[i] != "" {
			continue
		}
		if remaining[guess[i]] > 0 {
			fb[i] = LetterPresent
			remaining[guess[i]]--
		} else {
			fb[i] = LetterAbsent
		}
	}
	return fb
}
