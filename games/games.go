// Package games holds the rule modules hosted by the room engine. Each module
// is a set of pure functions over its own state type: a move is validated
// against a state and produces a new state, the input is never modified.
package games

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sort"

	"game-room-engine/models"
)

// GameType identifies a rule module.
type GameType string

const (
	TicTacToe GameType = "tic-tac-toe"
	Chess     GameType = "chess"
	Memory    GameType = "memory"
	Poker     GameType = "poker"
	Quiz      GameType = "quiz"
	Wordle    GameType = "wordle"
	Codenames GameType = "codenames"
)

// State is the per-game payload of a room. Each module owns a concrete type.
type State interface {
	GameType() GameType
}

// Move is a participant command. Data is decoded by the owning module.
type Move struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// NewMove builds a move, encoding data as its payload.
func NewMove(action string, data any) Move {
	m := Move{Action: action}
	if data != nil {
		raw, err := json.Marshal(data)
		if err == nil {
			m.Data = raw
		}
	}
	return m
}

// Decode unmarshals the move payload into v.
func (m Move) Decode(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%w: %s requires a payload", models.ErrInvalidMove, m.Action)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidMove, err)
	}
	return nil
}

// Event is an explicit record of what a move did, sent alongside snapshots.
type Event struct {
	ParticipantID string `json:"participant_id"`
	Action        string `json:"action"`
	Amount        int64  `json:"amount,omitempty"`
	Detail        string `json:"detail,omitempty"`
}

// Outcome is the terminal result of a game.
type Outcome struct {
	Winners []string         `json:"winners"`
	Draw    bool             `json:"draw"`
	Scores  map[string]int64 `json:"scores,omitempty"`
	// Stacks holds final chip counts for games played with stacks; settlement
	// pays them out instead of splitting the pot.
	Stacks map[string]int64 `json:"stacks,omitempty"`
	Reason string           `json:"reason,omitempty"`
}

// Result is what a rule module returns for every state transition.
type Result struct {
	State State
	// NextTurn is the participant expected to act next, empty when nobody is
	// (between poker hands, or once the game is over).
	NextTurn string
	// TurnAdvanced reports that a new turn begins, possibly for the same
	// participant. When false the current turn and its deadline continue.
	TurnAdvanced bool
	Terminal     bool
	Outcome      *Outcome
	Events       []Event
	// HandEnded marks a hand boundary in games played as a series of hands.
	HandEnded bool
}

// Options configures a new game.
type Options struct {
	Seed       uint64
	Format     string
	TableType  string
	SmallBlind int64
	BigBlind   int64
	// Stacks are the starting chips per participant for stack games.
	Stacks map[string]int64
}

// Rules is the capability every game module implements.
type Rules interface {
	Type() GameType
	NewGame(players []string, opts Options) (Result, error)
	ApplyMove(state State, participantID string, move Move) (Result, error)
	// DefaultMove is applied when a turn deadline expires.
	DefaultMove(state State, participantID string) Move
	// Forfeit removes a participant from contention.
	Forfeit(state State, participantID string) (Result, error)
	// View filters the state to what viewerID may see. An empty viewer gets
	// the public view.
	View(state State, viewerID string) any
}

// HandDealer is implemented by games played as a series of hands.
type HandDealer interface {
	NextHand(state State) (Result, error)
}

// Rebuyer is implemented by games that accept chips mid-game.
type Rebuyer interface {
	Rebuy(state State, participantID string, amount int64) (State, error)
}

// Registry maps game types to their rule modules.
type Registry struct {
	rules map[GameType]Rules
}

// NewRegistry returns a registry holding the given modules.
func NewRegistry(rules ...Rules) *Registry {
	r := &Registry{rules: make(map[GameType]Rules, len(rules))}
	for _, rule := range rules {
		r.rules[rule.Type()] = rule
	}
	return r
}

// DefaultRegistry holds every built-in game.
func DefaultRegistry() *Registry {
	return NewRegistry(
		TicTacToeRules{},
		ChessRules{},
		MemoryRules{},
		PokerRules{},
		QuizRules{},
		WordleRules{},
		CodenamesRules{},
	)
}

// Get returns the module for a game type.
func (r *Registry) Get(t GameType) (Rules, bool) {
	rule, ok := r.rules[t]
	return rule, ok
}

// Types lists the registered game types.
func (r *Registry) Types() []GameType {
	out := make([]GameType, 0, len(r.rules))
	for t := range r.rules {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func newRand(seed, stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, stream))
}

func wrongState(want GameType, got State) error {
	if got == nil {
		return fmt.Errorf("%w: nil state for %s", models.ErrInvalidMove, want)
	}
	return fmt.Errorf("%w: %s state passed to %s rules", models.ErrInvalidMove, got.GameType(), want)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", models.ErrInvalidMove, fmt.Sprintf(format, args...))
}

func indexOf(players []string, id string) int {
	for i, p := range players {
		if p == id {
			return i
		}
	}
	return -1
}

// nextActive returns the first seat after from that is not skipped, or -1.
func nextActive(n, from int, skip func(int) bool) int {
	for step := 1; step <= n; step++ {
		i := (from + step) % n
		if !skip(i) {
			return i
		}
	}
	return -1
}

// topScorers returns the participants holding the best score among the
// eligible ones, in seat order.
func topScorers(players []string, scores map[string]int64, eligible func(string) bool) []string {
	var best int64
	var top []string
	for _, p := range players {
		if !eligible(p) {
			continue
		}
		s := scores[p]
		switch {
		case len(top) == 0 || s > best:
			best = s
			top = []string{p}
		case s == best:
			top = append(top, p)
		}
	}
	return top
}

func copyScores(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyBools(in []bool) []bool {
	return append([]bool(nil), in...)
}
