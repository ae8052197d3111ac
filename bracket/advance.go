package bracket

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"game-room-engine/events"
	"game-room-engine/models"
	"game-room-engine/room"
)

// advance creates whatever matches the latest results unlock, starts their
// rooms and completes the tournament once a champion is known.
func (m *Manager) advance(ctx context.Context, t *models.Tournament) error {
	var (
		champion string
		err      error
	)
	switch t.Type {
	case models.SingleElimination:
		champion, err = m.advanceElimination(ctx, t, models.BracketMain)
	case models.DoubleElimination:
		champion, err = m.advanceDouble(ctx, t)
	case models.RoundRobin, models.Swiss:
		champion, err = m.advanceRounds(ctx, t)
	default:
		err = fmt.Errorf("%w: unknown tournament type %q", models.ErrInvalidConfiguration, t.Type)
	}
	if err != nil {
		return err
	}
	if champion != "" {
		return m.complete(ctx, t, champion)
	}
	if err := m.store.SaveTournament(ctx, t); err != nil {
		return err
	}
	m.launchReady(ctx, t)
	return nil
}

// advanceElimination pairs the winners of sibling matches (positions 2k and
// 2k+1) into match k of the next round once both are resolved. It returns the
// winner of the final.
func (m *Manager) advanceElimination(ctx context.Context, t *models.Tournament, side string) (string, error) {
	size := bracketSize(len(t.Participants))
	for r := 1; r < t.Rounds; r++ {
		count := size >> r
		for k := 0; k < count/2; k++ {
			if findMatch(t, side, r+1, k) != nil {
				continue
			}
			a, b := findMatch(t, side, r, 2*k), findMatch(t, side, r, 2*k+1)
			if a == nil || b == nil || !a.Resolved() || !b.Resolved() {
				continue
			}
			next := newMatch(t.ID, side, r+1, k, pair{P1: a.WinnerID, P2: b.WinnerID})
			if err := m.addMatch(ctx, t, next); err != nil {
				return "", err
			}
		}
	}
	if final := findMatch(t, side, t.Rounds, 0); final != nil && final.Resolved() {
		return final.WinnerID, nil
	}
	return "", nil
}

// advanceDouble runs the winners bracket as a single elimination bracket.
// Players dropping out of it wait in the losers queue and are paired first in,
// first out; losing there eliminates them. The last player standing on each
// side meets in one grand final.
func (m *Manager) advanceDouble(ctx context.Context, t *models.Tournament) (string, error) {
	top, err := m.advanceElimination(ctx, t, models.BracketWinners)
	if err != nil {
		return "", err
	}
	if gf := findMatch(t, models.BracketGrandFinal, 1, 0); gf != nil {
		if gf.Resolved() {
			return gf.WinnerID, nil
		}
		return "", nil
	}

	queue := losersQueue(t)
	for len(queue) >= 2 {
		round := 1
		position := 0
		for _, mt := range t.Matches {
			if mt.Bracket != models.BracketLosers {
				continue
			}
			if mt.Has(queue[0]) || mt.Has(queue[1]) {
				round = max(round, mt.Round+1)
			}
		}
		for _, mt := range t.Matches {
			if mt.Bracket == models.BracketLosers && mt.Round == round {
				position++
			}
		}
		next := newMatch(t.ID, models.BracketLosers, round, position, pair{P1: queue[0], P2: queue[1]})
		if err := m.addMatch(ctx, t, next); err != nil {
			return "", err
		}
		queue = queue[2:]
	}

	if top == "" || len(queue) != 1 {
		return "", nil
	}
	for _, mt := range t.Matches {
		if mt.Bracket == models.BracketLosers && !mt.Resolved() {
			return "", nil
		}
	}
	gf := newMatch(t.ID, models.BracketGrandFinal, 1, 0, pair{P1: top, P2: queue[0]})
	return "", m.addMatch(ctx, t, gf)
}

// losersQueue lists players with one loss who are not playing, in the order
// they became free.
func losersQueue(t *models.Tournament) []string {
	busy := make(map[string]bool)
	freeAt := make(map[string]time.Time)
	for _, mt := range t.Matches {
		for _, id := range mt.ParticipantIDs() {
			if !mt.Resolved() {
				busy[id] = true
				continue
			}
			if mt.CompletedAt != nil && mt.CompletedAt.After(freeAt[id]) {
				freeAt[id] = *mt.CompletedAt
			}
		}
	}
	var waiting []models.TournamentParticipant
	for _, p := range t.Participants {
		if p.Status == models.ParticipantActive && p.Losses == 1 && !busy[p.UserID] {
			waiting = append(waiting, p)
		}
	}
	sort.SliceStable(waiting, func(i, j int) bool {
		a, b := freeAt[waiting[i].UserID], freeAt[waiting[j].UserID]
		if !a.Equal(b) {
			return a.Before(b)
		}
		return waiting[i].Seed < waiting[j].Seed
	})
	out := make([]string, len(waiting))
	for i, p := range waiting {
		out[i] = p.UserID
	}
	return out
}

// advanceRounds plays round robin and swiss one round at a time. The
// champion is the leader of the final standings.
func (m *Manager) advanceRounds(ctx context.Context, t *models.Tournament) (string, error) {
	for _, mt := range t.Matches {
		if mt.Round == t.CurrentRound && !mt.Resolved() {
			return "", nil
		}
	}
	if t.CurrentRound >= t.Rounds {
		return rank(t.Participants)[0].UserID, nil
	}

	next := t.CurrentRound + 1
	var pairs []pair
	if t.Type == models.RoundRobin {
		ids := make([]string, len(t.Participants))
		for i, p := range t.Participants {
			ids[i] = p.UserID
		}
		pairs = roundRobinPairs(ids, next)
	} else {
		pairs = swissPairs(rank(t.Participants), playedPairs(t.Matches))
	}
	for i, p := range pairs {
		if err := m.addMatch(ctx, t, newMatch(t.ID, models.BracketMain, next, i, p)); err != nil {
			return "", err
		}
	}
	log.Info().Str("component", "bracket").Str("tournament_id", t.ID).Int("round", next).Msg("round paired")
	return "", nil
}

// launchReady opens a room for every ready match. A failure leaves the match
// ready for the next attempt.
func (m *Manager) launchReady(ctx context.Context, t *models.Tournament) {
	for i := range t.Matches {
		mt := &t.Matches[i]
		if mt.Status != models.MatchReady || mt.RoomID != nil {
			continue
		}
		snap, err := m.rooms.CreateMatchRoom(ctx, room.MatchRoom{
			TournamentID: t.ID,
			MatchID:      mt.ID,
			GameType:     t.GameType,
			Players:      mt.ParticipantIDs(),
			Decisive:     isElimination(t.Type),
		})
		if err != nil {
			log.Error().Err(err).Str("component", "bracket").Str("tournament_id", t.ID).Str("match_id", mt.ID).Msg("match room not created")
			continue
		}
		now := time.Now()
		roomID := snap.ID
		mt.RoomID = &roomID
		mt.Status = models.MatchInProgress
		mt.StartedAt = &now
		if err := m.store.SaveMatch(ctx, mt); err != nil {
			log.Error().Err(err).Str("component", "bracket").Str("match_id", mt.ID).Msg("match update failed")
		}
	}
}

// RetryPending opens rooms for ready matches of active tournaments whose
// first attempt failed.
func (m *Manager) RetryPending(ctx context.Context) {
	active, err := m.store.ListTournaments(ctx, models.TournamentActive)
	if err != nil {
		log.Error().Err(err).Str("component", "bracket").Msg("active tournaments lookup failed")
		return
	}
	for _, a := range active {
		unlock := m.lock(a.ID)
		t, err := m.store.GetTournament(ctx, a.ID)
		if err == nil && t.Status == models.TournamentActive {
			m.launchReady(ctx, t)
		}
		unlock()
	}
}

// complete ranks the field, pays the prize pool to the champion and closes
// the tournament.
func (m *Manager) complete(ctx context.Context, t *models.Tournament, champion string) error {
	ranked := rank(t.Participants)
	order := make([]string, 0, len(ranked))
	order = append(order, champion)
	for _, p := range ranked {
		if p.UserID != champion {
			order = append(order, p.UserID)
		}
	}
	for i, id := range order {
		p := participant(t, id)
		p.FinalRank = i + 1
		switch {
		case id == champion:
			p.Status = models.ParticipantChampion
		case p.Status == models.ParticipantActive:
			p.Status = models.ParticipantEliminated
		}
		if err := m.store.SaveParticipant(ctx, p); err != nil {
			return err
		}
	}

	now := time.Now()
	t.Status = models.TournamentCompleted
	t.ChampionID = champion
	t.EndedAt = &now
	if err := m.store.SaveTournament(ctx, t); err != nil {
		return err
	}
	if t.PrizePool > 0 {
		if _, err := m.economy.AwardPrize(ctx, "prize:"+t.ID, champion, t.PrizePool, t.ID); err != nil {
			log.Error().Err(err).Str("component", "bracket").Str("tournament_id", t.ID).Str("user_id", champion).
				Int64("prize", t.PrizePool).Msg("prize payout failed")
		}
	}
	log.Info().Str("component", "bracket").Str("tournament_id", t.ID).Str("champion_id", champion).
		Int64("prize", t.PrizePool).Msg("tournament completed")
	events.Emit(ctx, m.events, events.TournamentCompleted, map[string]any{
		"tournament_id": t.ID,
		"champion_id":   champion,
		"prize_pool":    t.PrizePool,
	})
	return nil
}
