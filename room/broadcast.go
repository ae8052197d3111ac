package room

import (
	"game-room-engine/games"
	"game-room-engine/models"
)

type stacker interface {
	StackOf(participantID string) int64
}

// snapshot builds the room as viewerID may see it. An empty viewer gets the
// public view.
func (r *Room) snapshot(viewerID string) Snapshot {
	s := Snapshot{
		ID:              r.model.ID,
		GameType:        r.model.GameType,
		Status:          r.model.Status,
		Participants:    append([]models.GameParticipant(nil), r.model.Participants...),
		MaxParticipants: r.model.MaxParticipants,
		Bet:             r.model.Bet,
		TableType:       r.model.TableType,
		GameFormat:      r.model.GameFormat,
		HostID:          r.model.HostID,
		TournamentID:    r.model.TournamentID,
		MatchID:         r.model.MatchID,
		Version:         r.model.Version,
		TurnSeq:         r.turnSeq,
		Pot:             r.pot(),
		Outcome:         r.outcome,
		CreatedAt:       r.model.CreatedAt,
	}
	if r.turn != "" && r.model.Status == models.RoomInProgress {
		s.CurrentTurn = r.turn
		if !r.deadline.IsZero() {
			d := r.deadline
			s.TurnDeadline = &d
		}
	}
	if r.state != nil {
		s.State = r.rules.View(r.state, viewerID)
	}
	return s
}

// syncParticipants copies stacks out of the game state.
func (r *Room) syncParticipants() {
	st, ok := r.state.(stacker)
	if !ok {
		return
	}
	for i := range r.model.Participants {
		p := &r.model.Participants[i]
		p.Stack = st.StackOf(p.UserID)
	}
}

// broadcast sends msgType to every participant and watcher, each with their
// own view. It runs on the actor goroutine, so messages leave in the order
// the commands were applied.
func (r *Room) broadcast(msgType string, events []games.Event) {
	if events == nil {
		events = []games.Event{}
	}
	b := r.m.broadcaster
	for _, p := range r.model.Participants {
		b.SendToUser(p.UserID, msgType, r.id, Update{Version: r.model.Version, Events: events, Room: r.snapshot(p.UserID)})
	}
	if len(r.watchers) == 0 {
		return
	}
	public := Update{Version: r.model.Version, Events: events, Room: r.snapshot("")}
	for w := range r.watchers {
		if r.participant(w) == nil {
			b.SendToUser(w, msgType, r.id, public)
		}
	}
}
