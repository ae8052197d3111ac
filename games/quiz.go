package games

import (
	"fmt"
	"strconv"
)

const (
	quizQuestions     = 10
	quizPointsCorrect = 10
	quizBlank         = -1
)

// Question is one multiple choice question.
type Question struct {
	Text    string    `json:"text"`
	Options [4]string `json:"options"`
	Answer  int       `json:"answer"`
}

var questionBank = []Question{
	{"What is the capital of Australia?", [4]string{"Sydney", "Melbourne", "Canberra", "Perth"}, 2},
	{"How many sides does a hexagon have?", [4]string{"5", "6", "7", "8"}, 1},
	{"Which planet is known as the Red Planet?", [4]string{"Venus", "Jupiter", "Mercury", "Mars"}, 3},
	{"What is the chemical symbol for gold?", [4]string{"Au", "Ag", "Gd", "Go"}, 0},
	{"Who painted the Mona Lisa?", [4]string{"Michelangelo", "Leonardo da Vinci", "Raphael", "Donatello"}, 1},
	{"What is the largest ocean on Earth?", [4]string{"Atlantic", "Indian", "Arctic", "Pacific"}, 3},
	{"How many players are on a football (soccer) team on the field?", [4]string{"9", "10", "11", "12"}, 2},
	{"What is the boiling point of water at sea level in Celsius?", [4]string{"90", "100", "110", "120"}, 1},
	{"Which element has the atomic number 1?", [4]string{"Hydrogen", "Helium", "Oxygen", "Carbon"}, 0},
	{"In which year did the first human land on the Moon?", [4]string{"1965", "1969", "1972", "1959"}, 1},
	{"What is the square root of 144?", [4]string{"10", "11", "12", "14"}, 2},
	{"Which language has the most native speakers?", [4]string{"English", "Spanish", "Hindi", "Mandarin Chinese"}, 3},
	{"What is the smallest prime number?", [4]string{"0", "1", "2", "3"}, 2},
	{"Which organ pumps blood through the human body?", [4]string{"Heart", "Liver", "Lungs", "Kidney"}, 0},
	{"How many continents are there?", [4]string{"5", "6", "7", "8"}, 2},
	{"What is the longest river in the world?", [4]string{"Amazon", "Nile", "Yangtze", "Mississippi"}, 1},
	{"Which gas do plants absorb from the air?", [4]string{"Oxygen", "Nitrogen", "Carbon dioxide", "Helium"}, 2},
	{"How many minutes are in a day?", [4]string{"1240", "1440", "1640", "1040"}, 1},
	{"Which chess piece can only move diagonally?", [4]string{"Rook", "Knight", "Bishop", "King"}, 2},
	{"What is the hardest natural substance?", [4]string{"Gold", "Iron", "Quartz", "Diamond"}, 3},
}

// QuizState asks every active participant each question in seat order.
// Answers stay hidden until the question closes.
type QuizState struct {
	Players   []string         `json:"players"`
	Questions []Question       `json:"questions"`
	Current   int              `json:"current"`
	Answers   map[string]int   `json:"answers"`
	Scores    map[string]int64 `json:"scores"`
	Forfeited []bool           `json:"forfeited"`
	Turn      int              `json:"turn"`
	Reveal    *QuizReveal      `json:"reveal,omitempty"`
	Over      bool             `json:"over"`
}

// QuizReveal shows the result of the question that just closed.
type QuizReveal struct {
	Question int            `json:"question"`
	Answer   int            `json:"answer"`
	Answers  map[string]int `json:"answers"`
}

func (QuizState) GameType() GameType { return Quiz }

func (s *QuizState) clone() *QuizState {
	c := *s
	c.Players = append([]string(nil), s.Players...)
	c.Answers = make(map[string]int, len(s.Answers))
	for k, v := range s.Answers {
		c.Answers[k] = v
	}
	c.Scores = copyScores(s.Scores)
	c.Forfeited = copyBools(s.Forfeited)
	return &c
}

func (s *QuizState) active(p string) bool {
	i := indexOf(s.Players, p)
	return i >= 0 && !s.Forfeited[i]
}

// QuizRules implements Rules for the quiz game.
type QuizRules struct{}

func (QuizRules) Type() GameType { return Quiz }

func (QuizRules) NewGame(players []string, opts Options) (Result, error) {
	if len(players) < 2 || len(players) > 4 {
		return Result{}, fmt.Errorf("quiz needs 2-4 players, got %d", len(players))
	}
	rng := newRand(opts.Seed, 0)
	order := rng.Perm(len(questionBank))
	n := quizQuestions
	if n > len(order) {
		n = len(order)
	}
	qs := make([]Question, n)
	for i := 0; i < n; i++ {
		qs[i] = questionBank[order[i]]
	}
	st := &QuizState{
		Players:   append([]string(nil), players...),
		Questions: qs,
		Answers:   map[string]int{},
		Scores:    make(map[string]int64, len(players)),
		Forfeited: make([]bool, len(players)),
	}
	for _, p := range players {
		st.Scores[p] = 0
	}
	return Result{State: st, NextTurn: players[0], TurnAdvanced: true}, nil
}

func (r QuizRules) ApplyMove(state State, participantID string, move Move) (Result, error) {
	cur, ok := state.(*QuizState)
	if !ok {
		return Result{}, wrongState(Quiz, state)
	}
	if cur.Over {
		return Result{}, invalid("game is over")
	}
	if cur.Players[cur.Turn] != participantID {
		return Result{}, invalid("%s is not on turn", participantID)
	}

	answer := quizBlank
	switch move.Action {
	case "answer":
		var p struct {
			Answer *int `json:"answer"`
		}
		if err := move.Decode(&p); err != nil {
			return Result{}, err
		}
		if p.Answer == nil || *p.Answer < 0 || *p.Answer > 3 {
			return Result{}, invalid("answer must be within 0..3")
		}
		answer = *p.Answer
	case "skip":
	default:
		return Result{}, invalid("unknown action %q", move.Action)
	}

	st := cur.clone()
	st.Answers[participantID] = answer
	events := []Event{{ParticipantID: participantID, Action: move.Action}}
	return r.afterAnswer(st, events), nil
}

// afterAnswer moves to the next unanswered participant or closes the question.
func (r QuizRules) afterAnswer(st *QuizState, events []Event) Result {
	next := nextActive(len(st.Players), st.Turn, func(i int) bool {
		if st.Forfeited[i] {
			return true
		}
		_, answered := st.Answers[st.Players[i]]
		return answered
	})
	if next >= 0 {
		st.Turn = next
		return Result{State: st, NextTurn: st.Players[next], TurnAdvanced: true, Events: events}
	}

	q := st.Questions[st.Current]
	for _, p := range st.Players {
		a, answered := st.Answers[p]
		if !answered || !st.active(p) {
			continue
		}
		if a == q.Answer {
			st.Scores[p] += quizPointsCorrect
			events = append(events, Event{ParticipantID: p, Action: "correct", Amount: quizPointsCorrect, Detail: strconv.Itoa(st.Current)})
		} else {
			events = append(events, Event{ParticipantID: p, Action: "incorrect", Detail: strconv.Itoa(st.Current)})
		}
	}
	st.Reveal = &QuizReveal{Question: st.Current, Answer: q.Answer, Answers: st.Answers}
	st.Answers = map[string]int{}
	st.Current++

	if st.Current >= len(st.Questions) {
		return r.finish(st, events, "questions_exhausted")
	}
	st.Turn = nextActive(len(st.Players), len(st.Players)-1, func(i int) bool { return st.Forfeited[i] })
	return Result{State: st, NextTurn: st.Players[st.Turn], TurnAdvanced: true, Events: events}
}

// DefaultMove submits a blank answer, which always scores as incorrect.
func (QuizRules) DefaultMove(State, string) Move {
	return Move{Action: "skip"}
}

func (r QuizRules) Forfeit(state State, participantID string) (Result, error) {
	cur, ok := state.(*QuizState)
	if !ok {
		return Result{}, wrongState(Quiz, state)
	}
	seat := indexOf(cur.Players, participantID)
	if seat < 0 {
		return Result{}, invalid("%s is not seated", participantID)
	}
	st := cur.clone()
	st.Forfeited[seat] = true
	delete(st.Answers, participantID)
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
		return r.afterAnswer(st, []Event{ev}), nil
	}
	return Result{State: st, NextTurn: st.Players[st.Turn], Events: []Event{ev}}, nil
}

func (QuizRules) View(state State, viewerID string) any {
	st, ok := state.(*QuizState)
	if !ok {
		return state
	}
	view := map[string]any{
		"players":   st.Players,
		"scores":    st.Scores,
		"forfeited": st.Forfeited,
		"total":     len(st.Questions),
		"current":   st.Current,
		"reveal":    st.Reveal,
		"over":      st.Over,
	}
	answered := make([]string, 0, len(st.Answers))
	for _, p := range st.Players {
		if _, ok := st.Answers[p]; ok {
			answered = append(answered, p)
		}
	}
	view["answered"] = answered
	if a, ok := st.Answers[viewerID]; ok {
		view["my_answer"] = a
	}
	if !st.Over && st.Current < len(st.Questions) {
		q := st.Questions[st.Current]
		view["question"] = map[string]any{"text": q.Text, "options": q.Options}
		view["turn"] = st.Players[st.Turn]
	}
	return view
}

func (QuizRules) finish(st *QuizState, events []Event, reason string) Result {
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
