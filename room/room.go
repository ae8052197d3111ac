// Package room hosts live game rooms. Every room is an actor: one goroutine
// owns the room's state and applies commands from its inbound channel one
// at a time, while different rooms run in parallel.
package room

import (
	"context"
	"fmt"
	"time"

	"game-room-engine/config"
	"game-room-engine/games"
	"game-room-engine/models"
)

// Message types sent to clients.
const (
	MsgGameUpdate = "game_update"
	MsgGameStart  = "game_start"
	MsgGameEnd    = "game_end"
	MsgNewHand    = "new_hand_started"
)

// Broadcaster delivers room messages to every connection of a user.
type Broadcaster interface {
	SendToUser(userID, msgType, roomID string, data any)
}

type nopBroadcaster struct{}

func (nopBroadcaster) SendToUser(string, string, string, any) {}

// MatchResult is the terminal result of a tournament match room.
type MatchResult struct {
	TournamentID string           `json:"tournament_id"`
	MatchID      string           `json:"match_id"`
	RoomID       string           `json:"room_id"`
	WinnerID     string           `json:"winner_id,omitempty"`
	Draw         bool             `json:"draw"`
	Scores       map[string]int64 `json:"scores,omitempty"`
}

// MatchReporter is told when a tournament match room finishes.
type MatchReporter interface {
	ReportMatch(ctx context.Context, res MatchResult) error
}

// CreateRequest describes a lobby room.
type CreateRequest struct {
	GameType        string `json:"game_type"`
	Bet             int64  `json:"bet"`
	MaxParticipants int    `json:"max_participants"`
	TableType       string `json:"table_type,omitempty"`
	GameFormat      string `json:"game_format,omitempty"`
	HostID          string `json:"-"`
}

// MatchRoom describes the room of a tournament match. Seats are reserved
// for Players, in seat order.
type MatchRoom struct {
	TournamentID string
	MatchID      string
	GameType     string
	Players      []string
	// Decisive rooms replay drawn games until there is a single winner.
	Decisive bool
}

// MoveRequest is a move submitted by a participant. A non-zero TurnSeq must
// match the current turn or the move is rejected as too late.
type MoveRequest struct {
	UserID   string     `json:"-"`
	Move     games.Move `json:"move"`
	TurnSeq  uint64     `json:"turn_seq,omitempty"`
	ClientTS *time.Time `json:"client_ts,omitempty"`
}

// Snapshot is a room as seen by one viewer.
type Snapshot struct {
	ID              string                   `json:"id"`
	GameType        string                   `json:"game_type"`
	Status          string                   `json:"status"`
	Participants    []models.GameParticipant `json:"participants"`
	MaxParticipants int                      `json:"max_participants"`
	Bet             int64                    `json:"bet"`
	TableType       string                   `json:"table_type,omitempty"`
	GameFormat      string                   `json:"game_format"`
	HostID          string                   `json:"host_id"`
	TournamentID    *string                  `json:"tournament_id,omitempty"`
	MatchID         *string                  `json:"match_id,omitempty"`
	Version         uint64                   `json:"version"`
	CurrentTurn     string                   `json:"current_turn,omitempty"`
	TurnSeq         uint64                   `json:"turn_seq"`
	TurnDeadline    *time.Time               `json:"turn_deadline,omitempty"`
	Pot             int64                    `json:"pot"`
	State           any                      `json:"state,omitempty"`
	Outcome         *games.Outcome           `json:"outcome,omitempty"`
	CreatedAt       time.Time                `json:"created_at"`
}

// Update is the payload of game_update, game_start and game_end.
type Update struct {
	Version uint64        `json:"version"`
	Events  []games.Event `json:"events"`
	Room    Snapshot      `json:"room"`
}

type result struct {
	v   any
	err error
}

type command struct {
	fn    func() (any, error)
	reply chan result
}

// Room is the live state of one room. Every field below cmds is owned by
// the actor goroutine.
type Room struct {
	id    string
	m     *Manager
	def   config.GameDef
	rules games.Rules
	cmds  chan command
	stop  chan struct{}
	done  chan struct{}

	model        models.GameRoom
	state        games.State
	outcome      *games.Outcome
	opts         games.Options
	decisive     bool
	turn         string
	turnSeq      uint64
	deadline     time.Time
	timer        *time.Timer
	timeouts     map[string]int
	reservations map[string]string
	stakes       map[string]int64
	watchers     map[string]bool
	left         map[string]bool
	lastActivity time.Time
}

func newRoom(m *Manager, def config.GameDef, rules games.Rules, model models.GameRoom) *Room {
	return &Room{
		id:           model.ID,
		m:            m,
		def:          def,
		rules:        rules,
		cmds:         make(chan command),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		model:        model,
		timeouts:     make(map[string]int),
		reservations: make(map[string]string),
		stakes:       make(map[string]int64),
		watchers:     make(map[string]bool),
		left:         make(map[string]bool),
		lastActivity: time.Now(),
	}
}

func (r *Room) run() {
	defer close(r.done)
	for {
		select {
		case cmd := <-r.cmds:
			v, err := cmd.fn()
			cmd.reply <- result{v: v, err: err}
		case <-r.stop:
			r.cancelTurn()
			return
		}
	}
}

// shutdown stops the actor and waits for it to exit.
func (r *Room) shutdown() {
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
	<-r.done
}

// do runs fn on the actor goroutine and waits for its reply.
func (r *Room) do(ctx context.Context, fn func() (any, error)) (any, error) {
	cmd := command{fn: fn, reply: make(chan result, 1)}
	select {
	case r.cmds <- cmd:
	case <-r.done:
		return nil, fmt.Errorf("room %s: %w", r.id, models.ErrNotFound)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-cmd.reply:
		return res.v, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func call[T any](ctx context.Context, r *Room, fn func() (T, error)) (T, error) {
	v, err := r.do(ctx, func() (any, error) { return fn() })
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func (r *Room) participant(userID string) *models.GameParticipant {
	for i := range r.model.Participants {
		if r.model.Participants[i].UserID == userID {
			return &r.model.Participants[i]
		}
	}
	return nil
}

func (r *Room) playerIDs() []string {
	ids := make([]string, len(r.model.Participants))
	for i, p := range r.model.Participants {
		ids[i] = p.UserID
	}
	return ids
}

func (r *Room) pot() int64 {
	var pot int64
	for _, v := range r.stakes {
		pot += v
	}
	return pot
}

func (r *Room) isTournament() bool {
	return r.model.TournamentID != nil
}

func (r *Room) touch() {
	r.lastActivity = time.Now()
}
