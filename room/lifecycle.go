package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"game-room-engine/economy"
	"game-room-engine/events"
	"game-room-engine/games"
	"game-room-engine/models"
)

const persistTimeout = 5 * time.Second

// tournamentStackBlinds is the starting stack, in big blinds, of stack games
// played without a buy-in.
const tournamentStackBlinds = 100

// save writes the room snapshot. Failures are logged; the live room is
// authoritative.
func (r *Room) save() {
	if err := r.persist(); err != nil {
		log.Error().Err(err).Str("component", "room").Str("room_id", r.id).Str("status", r.model.Status).Msg("room snapshot write failed")
	}
}

func (r *Room) persist() error {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	snap := r.model
	snap.Participants = append([]models.GameParticipant(nil), r.model.Participants...)
	return r.m.store.SaveRoom(ctx, &snap)
}

// join seats userID after reserving the buy-in. A participant joining again
// is only marked connected.
func (r *Room) join(ctx context.Context, userID string) (models.GameParticipant, error) {
	if p := r.participant(userID); p != nil {
		delete(r.left, userID)
		if p.ConnectionStatus != models.Connected {
			p.ConnectionStatus = models.Connected
			r.broadcast(MsgGameUpdate, []games.Event{{ParticipantID: userID, Action: "reconnected"}})
		}
		return *p, nil
	}
	if r.model.Status != models.RoomWaiting || r.isTournament() {
		return models.GameParticipant{}, fmt.Errorf("room %s is %s: %w", r.id, r.model.Status, models.ErrRoomNotJoinable)
	}
	if len(r.model.Participants) >= r.model.MaxParticipants {
		return models.GameParticipant{}, fmt.Errorf("room %s: %w", r.id, models.ErrRoomFull)
	}

	res, _, err := r.m.economy.Reserve(ctx, economy.Hold{
		UserID: userID,
		Amount: r.model.Bet,
		Reason: "buy-in",
		RoomID: r.id,
	})
	if err != nil {
		return models.GameParticipant{}, err
	}

	p := models.GameParticipant{
		ID:               uuid.NewString(),
		RoomID:           r.id,
		UserID:           userID,
		Seat:             len(r.model.Participants),
		IsHost:           userID == r.model.HostID,
		Stack:            r.model.Bet,
		BuyIn:            r.model.Bet,
		ConnectionStatus: models.Connected,
		JoinedAt:         time.Now(),
	}
	r.model.Participants = append(r.model.Participants, p)
	if err := r.persist(); err != nil {
		r.model.Participants = r.model.Participants[:len(r.model.Participants)-1]
		if res != nil {
			if _, rerr := r.m.economy.Release(ctx, res.ID, "seat failed"); rerr != nil {
				log.Error().Err(rerr).Str("component", "room").Str("room_id", r.id).Str("reservation_id", res.ID).Msg("buy-in refund failed")
			}
		}
		return models.GameParticipant{}, fmt.Errorf("seat %s: %w", userID, err)
	}
	if res != nil {
		r.reservations[userID] = res.ID
		r.stakes[userID] = res.Amount
	}
	r.m.index(userID, r.id, true)
	r.touch()
	log.Info().Str("component", "room").Str("room_id", r.id).Str("user_id", userID).Int("seat", p.Seat).Msg("participant joined")
	r.broadcast(MsgGameUpdate, []games.Event{{ParticipantID: userID, Action: "joined", Amount: r.model.Bet}})

	if r.readyToStart() {
		if err := r.start(); err != nil {
			log.Error().Err(err).Str("component", "room").Str("room_id", r.id).Msg("auto start failed")
		}
	}
	return p, nil
}

// readyToStart reports whether the room starts by itself: once it is full,
// or once the minimum is seated for games the host cannot start by hand.
func (r *Room) readyToStart() bool {
	n := len(r.model.Participants)
	if n < r.def.MinPlayers {
		return false
	}
	return n >= r.model.MaxParticipants || !r.def.ForceStart
}

// start deals the game and begins the first turn.
func (r *Room) start() error {
	if r.model.Status != models.RoomWaiting {
		return fmt.Errorf("room %s is %s: %w", r.id, r.model.Status, models.ErrInvalidTransition)
	}
	players := r.playerIDs()
	opts := games.Options{
		Seed:      r.m.seed(),
		Format:    r.model.GameFormat,
		TableType: r.model.TableType,
		Stacks:    make(map[string]int64, len(players)),
	}
	if blinds, ok := r.def.TableTypes[r.model.TableType]; ok {
		opts.SmallBlind, opts.BigBlind = blinds.SmallBlind, blinds.BigBlind
	}
	for _, p := range players {
		stack := r.stakes[p]
		if stack == 0 {
			stack = opts.BigBlind * tournamentStackBlinds
		}
		opts.Stacks[p] = stack
	}
	res, err := r.rules.NewGame(players, opts)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidConfiguration, err)
	}

	// seats are now in use
	for user, id := range r.reservations {
		if err := r.m.economy.Confirm(context.Background(), id); err != nil {
			log.Error().Err(err).Str("component", "room").Str("room_id", r.id).Str("user_id", user).Msg("buy-in confirm failed")
		}
	}
	r.reservations = make(map[string]string)

	now := time.Now()
	r.opts = opts
	r.state = res.State
	r.model.Status = models.RoomInProgress
	r.model.StartedAt = &now
	r.model.Version++
	r.touch()
	r.syncParticipants()
	r.save()
	r.record("", "start", nil, false, nil)
	log.Info().Str("component", "room").Str("room_id", r.id).Str("game_type", r.model.GameType).Int("players", len(players)).Msg("game started")
	r.advance(MsgGameStart, res)
	return nil
}

// startByHost force-starts a waiting room.
func (r *Room) startByHost(userID string) error {
	if r.model.Status != models.RoomWaiting {
		return fmt.Errorf("room %s is %s: %w", r.id, r.model.Status, models.ErrInvalidTransition)
	}
	if userID != r.model.HostID {
		return fmt.Errorf("only the host can start room %s: %w", r.id, models.ErrForbidden)
	}
	if !r.def.ForceStart {
		return fmt.Errorf("%s cannot be started early: %w", r.model.GameType, models.ErrInvalidTransition)
	}
	if n := len(r.model.Participants); n < r.def.MinPlayers {
		return fmt.Errorf("%s needs %d players, %d seated: %w", r.model.GameType, r.def.MinPlayers, n, models.ErrInvalidTransition)
	}
	return r.start()
}

// leave removes a waiting participant and refunds the buy-in. Once the game
// runs the participant is only marked disconnected.
func (r *Room) leave(ctx context.Context, userID string) error {
	p := r.participant(userID)
	if p == nil {
		if r.watchers[userID] {
			delete(r.watchers, userID)
			return nil
		}
		return fmt.Errorf("user %s: %w", userID, models.ErrNotParticipant)
	}

	switch r.model.Status {
	case models.RoomWaiting:
		if r.isTournament() {
			return r.setConnection(userID, models.Disconnected)
		}
		if id, ok := r.reservations[userID]; ok {
			if _, err := r.m.economy.Release(ctx, id, "left room"); err != nil {
				return err
			}
			delete(r.reservations, userID)
		}
		delete(r.stakes, userID)
		r.removeParticipant(userID)
		r.m.index(userID, r.id, false)
		r.touch()
		r.save()
		log.Info().Str("component", "room").Str("room_id", r.id).Str("user_id", userID).Msg("participant left")
		r.broadcast(MsgGameUpdate, []games.Event{{ParticipantID: userID, Action: "left"}})
		r.m.broadcaster.SendToUser(userID, MsgGameUpdate, r.id, Update{
			Version: r.model.Version,
			Events:  []games.Event{{ParticipantID: userID, Action: "left"}},
			Room:    r.snapshot(userID),
		})
		return nil
	case models.RoomInProgress:
		return r.setConnection(userID, models.Disconnected)
	default:
		r.left[userID] = true
		p.ConnectionStatus = models.Disconnected
		return nil
	}
}

func (r *Room) removeParticipant(userID string) {
	kept := r.model.Participants[:0]
	for _, p := range r.model.Participants {
		if p.UserID != userID {
			kept = append(kept, p)
		}
	}
	r.model.Participants = kept
	for i := range r.model.Participants {
		r.model.Participants[i].Seat = i
	}
	if userID == r.model.HostID && len(r.model.Participants) > 0 {
		r.model.HostID = r.model.Participants[0].UserID
		r.model.Participants[0].IsHost = true
	}
}

// setConnection records a transport connect or disconnect. It never forfeits.
func (r *Room) setConnection(userID, status string) error {
	p := r.participant(userID)
	if p == nil {
		return fmt.Errorf("user %s: %w", userID, models.ErrNotParticipant)
	}
	if p.ConnectionStatus == status {
		return nil
	}
	p.ConnectionStatus = status
	action := "reconnected"
	if status == models.Disconnected {
		action = "disconnected"
	}
	log.Debug().Str("component", "room").Str("room_id", r.id).Str("user_id", userID).Msg(action)
	r.broadcast(MsgGameUpdate, []games.Event{{ParticipantID: userID, Action: action}})
	return nil
}

// rebuy buys more chips for a participant of a running game. When the debit
// fails the stack is unchanged.
func (r *Room) rebuy(ctx context.Context, userID string, amount int64) (int64, error) {
	if r.model.Status != models.RoomInProgress {
		return 0, fmt.Errorf("room %s is %s: %w", r.id, r.model.Status, models.ErrRoomNotActive)
	}
	rb, ok := r.rules.(games.Rebuyer)
	if !ok || !r.def.AllowRebuy || r.isTournament() {
		return 0, fmt.Errorf("%s: %w", r.model.GameType, models.ErrRebuyNotAllowed)
	}
	p := r.participant(userID)
	if p == nil {
		return 0, fmt.Errorf("user %s: %w", userID, models.ErrNotParticipant)
	}
	next, err := rb.Rebuy(r.state, userID, amount)
	if err != nil {
		return 0, err
	}
	bal, err := r.m.economy.Rebuy(ctx, userID, r.id, amount)
	if err != nil {
		return bal, err
	}

	r.state = next
	r.stakes[userID] += amount
	p.BuyIn += amount
	r.model.Version++
	r.touch()
	data, _ := json.Marshal(map[string]int64{"amount": amount})
	r.record(userID, "rebuy", data, false, nil)
	r.syncParticipants()
	log.Info().Str("component", "room").Str("room_id", r.id).Str("user_id", userID).Int64("amount", amount).Msg("rebuy")
	r.broadcast(MsgGameUpdate, []games.Event{{ParticipantID: userID, Action: "rebuy", Amount: amount}})
	return bal, nil
}

func singleWinner(o *games.Outcome) bool {
	return o != nil && !o.Draw && len(o.Winners) == 1
}

// finish records the terminal result, announces it, then queues the
// settlement and reports tournament matches.
func (r *Room) finish(res games.Result) {
	r.cancelTurn()
	r.turn = ""
	if r.decisive && !singleWinner(res.Outcome) {
		err := r.replay(res.Events)
		if err == nil {
			return
		}
		log.Error().Err(err).Str("component", "room").Str("room_id", r.id).Msg("replay failed, keeping result")
	}

	now := time.Now()
	r.outcome = res.Outcome
	r.model.Status = models.RoomFinished
	r.model.FinishedAt = &now
	if o := res.Outcome; o != nil {
		r.model.WinnerIDs = strings.Join(o.Winners, ",")
		r.model.IsDraw = o.Draw
		if raw, err := json.Marshal(o); err == nil {
			r.model.Outcome = string(raw)
		}
		for i := range r.model.Participants {
			p := &r.model.Participants[i]
			p.Score = o.Scores[p.UserID]
		}
	}
	r.save()
	r.broadcast(MsgGameEnd, res.Events)
	log.Info().Str("component", "room").Str("room_id", r.id).Uint64("version", r.model.Version).
		Str("winners", r.model.WinnerIDs).Bool("draw", r.model.IsDraw).Msg("game finished")
	events.Emit(context.Background(), r.m.events, events.RoomFinished, map[string]any{
		"room_id":   r.id,
		"game_type": r.model.GameType,
		"version":   r.model.Version,
		"outcome":   r.outcome,
	})
	r.settle()
	r.reportMatch()
}

// replay deals a new game in the same room after a drawn decisive game.
func (r *Room) replay(prev []games.Event) error {
	opts := r.opts
	opts.Seed = r.m.seed()
	res, err := r.rules.NewGame(r.playerIDs(), opts)
	if err != nil {
		return err
	}
	r.opts = opts
	r.state = res.State
	r.model.Version++
	r.timeouts = make(map[string]int)
	r.record("", "replay", nil, false, nil)
	r.syncParticipants()
	log.Info().Str("component", "room").Str("room_id", r.id).Msg("drawn match replayed")
	res.Events = append(append(prev, games.Event{Action: "replay", Detail: "draw"}), res.Events...)
	r.advance(MsgGameStart, res)
	return nil
}

func (r *Room) settle() {
	if r.isTournament() || r.pot() == 0 {
		return
	}
	stakes := make([]economy.Stake, 0, len(r.model.Participants))
	for _, p := range r.model.Participants {
		stakes = append(stakes, economy.Stake{UserID: p.UserID, BuyIn: r.stakes[p.UserID]})
	}
	s := economy.Settlement{
		RoomID:  r.id,
		Version: r.model.Version,
		Stakes:  stakes,
		Outcome: r.outcome,
	}
	if err := r.m.settlements.Enqueue(context.Background(), s); err != nil {
		log.Error().Err(err).Str("component", "room").Str("key", s.Key()).Msg("settlement not queued")
	}
}

func (r *Room) reportMatch() {
	reporter := r.m.matchReporter()
	if r.model.MatchID == nil || reporter == nil {
		return
	}
	res := MatchResult{TournamentID: *r.model.TournamentID, MatchID: *r.model.MatchID, RoomID: r.id}
	if o := r.outcome; o != nil {
		res.Scores = o.Scores
		if singleWinner(o) {
			res.WinnerID = o.Winners[0]
		} else {
			res.Draw = true
		}
	}
	go func() {
		err := reporter.ReportMatch(context.Background(), res)
		switch {
		case err == nil:
		case errors.Is(err, models.ErrMatchAlreadyResolved):
			log.Debug().Str("component", "room").Str("match_id", res.MatchID).Msg("match already resolved")
		default:
			log.Error().Err(err).Str("component", "room").Str("match_id", res.MatchID).Msg("match report failed")
		}
	}()
}

// cancel tears the room down and returns every coin still at stake.
func (r *Room) cancel(ctx context.Context, reason string) error {
	if r.model.Status == models.RoomFinished || r.model.Status == models.RoomCancelled {
		return fmt.Errorf("room %s is %s: %w", r.id, r.model.Status, models.ErrInvalidTransition)
	}
	running := r.model.Status == models.RoomInProgress
	r.cancelTurn()
	r.turn = ""
	r.turnSeq++

	if err := r.m.economy.ReleaseRoom(ctx, r.id, reason); err != nil {
		log.Error().Err(err).Str("component", "room").Str("room_id", r.id).Msg("reservation release failed")
	}
	r.reservations = make(map[string]string)
	if running {
		for user, amount := range r.stakes {
			key := "refund:" + r.id + ":" + user
			if _, err := r.m.economy.Refund(ctx, key, user, amount, "", reason); err != nil {
				log.Error().Err(err).Str("component", "room").Str("room_id", r.id).Str("user_id", user).Msg("stake refund failed")
			}
		}
	}

	now := time.Now()
	r.model.Status = models.RoomCancelled
	r.model.FinishedAt = &now
	r.save()
	log.Info().Str("component", "room").Str("room_id", r.id).Str("reason", reason).Msg("room cancelled")
	r.broadcast(MsgGameEnd, []games.Event{{Action: "cancelled", Detail: reason}})
	return nil
}

// evictable reports whether the room can be dropped from memory. Idle
// waiting rooms are cancelled first.
func (r *Room) evictable(ctx context.Context, now time.Time) bool {
	switch r.model.Status {
	case models.RoomFinished, models.RoomCancelled:
		if r.model.FinishedAt != nil && now.Sub(*r.model.FinishedAt) >= r.m.finishedTTL {
			return true
		}
		for _, p := range r.model.Participants {
			if !r.left[p.UserID] {
				return false
			}
		}
		return true
	case models.RoomWaiting:
		if now.Sub(r.lastActivity) < r.m.idleTTL {
			return false
		}
		for _, p := range r.model.Participants {
			if p.ConnectionStatus == models.Connected {
				return false
			}
		}
		return r.cancel(ctx, "idle") == nil
	}
	return false
}
