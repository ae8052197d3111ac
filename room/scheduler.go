package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"game-room-engine/games"
	"game-room-engine/models"
)

// beginTurn arms the deadline of participantID's turn. At most one timer is
// live per room; a new turn bumps turnSeq, which makes every older timer
// stale.
func (r *Room) beginTurn(participantID string) {
	r.cancelTurn()
	r.turnSeq++
	r.turn = participantID
	r.deadline = time.Now().Add(r.def.TurnTimeout)
	seq := r.turnSeq
	r.timer = time.AfterFunc(r.def.TurnTimeout, func() {
		r.fire(seq, "turn timeout", func() error { return r.expire(seq) })
	})
}

func (r *Room) cancelTurn() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.deadline = time.Time{}
}

// fire delivers a timer callback to the actor as a pseudo-command.
func (r *Room) fire(seq uint64, what string, fn func() error) {
	_, err := r.do(context.Background(), func() (any, error) { return nil, fn() })
	switch {
	case err == nil:
	case errors.Is(err, models.ErrTooLate), errors.Is(err, models.ErrNotFound):
		log.Debug().Str("component", "scheduler").Str("room_id", r.id).Uint64("turn_seq", seq).Msgf("%s discarded", what)
	default:
		log.Error().Err(err).Str("component", "scheduler").Str("room_id", r.id).Uint64("turn_seq", seq).Msgf("%s failed", what)
	}
}

// expire resolves a turn whose deadline passed. The default move goes
// through the same path as a submitted one; after too many consecutive
// expiries the participant forfeits instead.
func (r *Room) expire(seq uint64) error {
	if seq != r.turnSeq || r.turn == "" || r.model.Status != models.RoomInProgress {
		return fmt.Errorf("turn %d: %w", seq, models.ErrTooLate)
	}
	who := r.turn
	r.timer = nil
	r.timeouts[who]++
	logger := log.Info().Str("component", "scheduler").Str("room_id", r.id).Str("user_id", who).Int("consecutive", r.timeouts[who])

	if r.timeouts[who] >= r.m.maxTimeouts {
		logger.Msg("turn expired, forfeiting")
		return r.forfeit(who)
	}

	move := r.rules.DefaultMove(r.state, who)
	res, err := r.rules.ApplyMove(r.state, who, move)
	if err != nil {
		logger.Err(err).Msg("default move rejected, forfeiting")
		return r.forfeit(who)
	}
	logger.Str("action", move.Action).Msg("turn expired")
	r.commit(who, move, res, true, nil)
	return nil
}

// submit applies a participant's move.
func (r *Room) submit(req MoveRequest) (uint64, error) {
	if r.model.Status != models.RoomInProgress {
		return 0, fmt.Errorf("room %s is %s: %w", r.id, r.model.Status, models.ErrRoomNotActive)
	}
	if r.participant(req.UserID) == nil {
		return 0, fmt.Errorf("user %s: %w", req.UserID, models.ErrNotParticipant)
	}
	if req.TurnSeq != 0 && req.TurnSeq != r.turnSeq {
		return 0, fmt.Errorf("turn %d is over: %w", req.TurnSeq, models.ErrTooLate)
	}
	if r.turn != req.UserID {
		return 0, models.ErrNotYourTurn
	}
	res, err := r.rules.ApplyMove(r.state, req.UserID, req.Move)
	if err != nil {
		return 0, err
	}
	r.timeouts[req.UserID] = 0
	r.commit(req.UserID, req.Move, res, false, req.ClientTS)
	return r.model.Version, nil
}

func (r *Room) forfeit(userID string) error {
	res, err := r.rules.Forfeit(r.state, userID)
	if err != nil {
		return err
	}
	r.timeouts[userID] = 0
	r.commit(userID, games.Move{Action: "forfeit"}, res, true, nil)
	return nil
}

// commit stores an accepted transition and moves the room on.
func (r *Room) commit(userID string, move games.Move, res games.Result, timeout bool, clientTS *time.Time) {
	r.state = res.State
	r.model.Version++
	r.touch()
	r.record(userID, move.Action, move.Data, timeout, clientTS)
	r.syncParticipants()
	r.advance(MsgGameUpdate, res)
}

// advance arms the next turn (or hand) and broadcasts the result.
func (r *Room) advance(msgType string, res games.Result) {
	if res.Terminal {
		r.finish(res)
		return
	}
	switch {
	case res.NextTurn == "":
		r.cancelTurn()
		r.turn = ""
		r.broadcast(msgType, res.Events)
		if res.HandEnded {
			r.scheduleNextHand()
		}
	case res.TurnAdvanced || res.NextTurn != r.turn:
		r.beginTurn(res.NextTurn)
		r.broadcast(msgType, res.Events)
	default:
		r.broadcast(msgType, res.Events)
	}
}

func (r *Room) scheduleNextHand() {
	dealer, ok := r.rules.(games.HandDealer)
	if !ok {
		return
	}
	r.cancelTurn()
	r.turnSeq++
	seq := r.turnSeq
	r.timer = time.AfterFunc(r.m.nextHandDelay, func() {
		r.fire(seq, "next hand", func() error { return r.nextHand(dealer, seq) })
	})
}

func (r *Room) nextHand(dealer games.HandDealer, seq uint64) error {
	if seq != r.turnSeq || r.model.Status != models.RoomInProgress {
		return fmt.Errorf("hand %d: %w", seq, models.ErrTooLate)
	}
	r.timer = nil
	res, err := dealer.NextHand(r.state)
	if err != nil {
		return err
	}
	r.state = res.State
	r.model.Version++
	r.record("", "deal", nil, false, nil)
	r.syncParticipants()
	if !res.Terminal {
		r.broadcast(MsgNewHand, nil)
	}
	r.advance(MsgGameUpdate, res)
	return nil
}

// record appends to the move log. The in-memory state stays authoritative
// when the write fails.
func (r *Room) record(userID, action string, data json.RawMessage, timeout bool, clientTS *time.Time) {
	payload := "{}"
	if len(data) > 0 {
		payload = string(data)
	}
	rec := &models.MoveRecord{
		RoomID:        r.id,
		Version:       r.model.Version,
		ParticipantID: userID,
		Type:          action,
		Payload:       payload,
		Timeout:       timeout,
		ClientTS:      clientTS,
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := r.m.store.AppendMove(ctx, rec); err != nil {
		log.Error().Err(err).Str("component", "room").Str("room_id", r.id).Uint64("version", r.model.Version).Msg("move log write failed")
	}
}
