// Package bracket runs tournaments: registration, bracket generation and
// advancing rounds as match rooms report their results.
package bracket

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/rs/zerolog/log"

	"game-room-engine/config"
	"game-room-engine/economy"
	"game-room-engine/events"
	"game-room-engine/models"
	"game-room-engine/room"
	"game-room-engine/store"
)

const (
	defaultMaxParticipants = 16
	maxTournamentSize      = 256
	standingsWin           = 2
	standingsDraw          = 1
	standingsBye           = 2
)

// RoomCreator opens and tears down the rooms matches are played in.
type RoomCreator interface {
	CreateMatchRoom(ctx context.Context, mr room.MatchRoom) (room.Snapshot, error)
	CancelRoom(ctx context.Context, roomID, reason string) error
}

// CreateRequest describes a new tournament.
type CreateRequest struct {
	Name            string     `json:"name"`
	Type            string     `json:"type"`
	GameType        string     `json:"game_type"`
	MaxParticipants int        `json:"max_participants"`
	MinParticipants int        `json:"min_participants"`
	EntryFee        int64      `json:"entry_fee_coins"`
	BasePrize       int64      `json:"base_prize"`
	Rounds          int        `json:"rounds"`
	StartAt         *time.Time `json:"start_at,omitempty"`
	CreatorID       string     `json:"-"`
}

// Standing is one line of a tournament table.
type Standing struct {
	Rank         int    `json:"rank"`
	UserID       string `json:"user_id"`
	Seed         int    `json:"seed"`
	Points       int    `json:"points"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
	Draws        int    `json:"draws"`
	Differential int64  `json:"differential"`
	HadBye       bool   `json:"had_bye"`
	Status       string `json:"status"`
}

// Manager owns tournament state transitions. Mutations of one tournament are
// serialized; different tournaments proceed in parallel.
type Manager struct {
	store   store.Tournaments
	economy *economy.Service
	rooms   RoomCreator
	catalog *config.Catalog
	events  events.Publisher

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewManager(st store.Tournaments, econ *economy.Service, rooms RoomCreator, catalog *config.Catalog, pub events.Publisher) *Manager {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Manager{
		store:   st,
		economy: econ,
		rooms:   rooms,
		catalog: catalog,
		events:  pub,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (m *Manager) lock(id string) func() {
	m.mu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	m.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func isElimination(format string) bool {
	return format == models.SingleElimination || format == models.DoubleElimination
}

// Create stores a tournament in the preparing state.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*models.Tournament, error) {
	switch req.Type {
	case models.SingleElimination, models.DoubleElimination, models.RoundRobin, models.Swiss:
	default:
		return nil, fmt.Errorf("%w: unknown tournament type %q", models.ErrInvalidConfiguration, req.Type)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", models.ErrInvalidConfiguration)
	}
	def, ok := m.catalog.Get(req.GameType)
	if !ok {
		return nil, fmt.Errorf("%w: unknown game type %q", models.ErrInvalidConfiguration, req.GameType)
	}
	if def.MinPlayers > 2 || def.MaxPlayers < 2 {
		return nil, fmt.Errorf("%w: %s matches cannot seat two players", models.ErrInvalidConfiguration, req.GameType)
	}
	if req.MaxParticipants == 0 {
		req.MaxParticipants = defaultMaxParticipants
	}
	if req.MinParticipants == 0 {
		req.MinParticipants = 2
	}
	if req.MinParticipants < 2 || req.MaxParticipants < req.MinParticipants || req.MaxParticipants > maxTournamentSize {
		return nil, fmt.Errorf("%w: participants %d..%d", models.ErrInvalidConfiguration, req.MinParticipants, req.MaxParticipants)
	}
	if req.EntryFee < 0 || req.BasePrize < 0 || req.Rounds < 0 {
		return nil, fmt.Errorf("%w: negative fee, prize or rounds", models.ErrInvalidConfiguration)
	}

	id := uuid.NewString()
	t := &models.Tournament{
		ID:              id,
		Name:            name,
		Slug:            slug.Make(name) + "-" + id[:8],
		Type:            req.Type,
		GameType:        req.GameType,
		Status:          models.TournamentPreparing,
		MaxParticipants: req.MaxParticipants,
		MinParticipants: req.MinParticipants,
		EntryFeeCoins:   req.EntryFee,
		BasePrize:       req.BasePrize,
		PrizePool:       req.BasePrize,
		Rounds:          req.Rounds,
		CreatorID:       req.CreatorID,
		StartAt:         req.StartAt,
	}
	if err := m.store.CreateTournament(ctx, t); err != nil {
		return nil, fmt.Errorf("create tournament: %w", err)
	}
	log.Info().Str("component", "bracket").Str("tournament_id", t.ID).Str("slug", t.Slug).
		Str("type", t.Type).Str("game_type", t.GameType).Msg("tournament created")
	return t, nil
}

func (m *Manager) Get(ctx context.Context, id string) (*models.Tournament, error) {
	return m.store.GetTournament(ctx, id)
}

func (m *Manager) List(ctx context.Context, status string) ([]models.Tournament, error) {
	return m.store.ListTournaments(ctx, status)
}

// Bracket returns every match of a tournament ordered by bracket, round and
// position.
func (m *Manager) Bracket(ctx context.Context, id string) ([]models.TournamentMatch, error) {
	t, err := m.store.GetTournament(ctx, id)
	if err != nil {
		return nil, err
	}
	return t.Matches, nil
}

// OpenRegistration moves a preparing tournament to registering.
func (m *Manager) OpenRegistration(ctx context.Context, id string) (*models.Tournament, error) {
	unlock := m.lock(id)
	defer unlock()

	t, err := m.store.GetTournament(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != models.TournamentPreparing {
		return nil, fmt.Errorf("tournament %s is %s: %w", id, t.Status, models.ErrInvalidTransition)
	}
	t.Status = models.TournamentRegistering
	if err := m.store.SaveTournament(ctx, t); err != nil {
		return nil, err
	}
	log.Info().Str("component", "bracket").Str("tournament_id", id).Msg("registration opened")
	return t, nil
}

// Register enters userID and reserves the entry fee.
func (m *Manager) Register(ctx context.Context, id, userID string) (*models.TournamentParticipant, error) {
	unlock := m.lock(id)
	defer unlock()

	t, err := m.store.GetTournament(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != models.TournamentRegistering {
		return nil, fmt.Errorf("tournament %s is %s: %w", id, t.Status, models.ErrRegistrationClosed)
	}
	seed := 1
	for _, p := range t.Participants {
		if p.UserID == userID {
			return nil, fmt.Errorf("user %s: %w", userID, models.ErrAlreadyJoined)
		}
		if p.Seed >= seed {
			seed = p.Seed + 1
		}
	}
	if len(t.Participants) >= t.MaxParticipants {
		return nil, fmt.Errorf("tournament %s: %w", id, models.ErrTournamentFull)
	}

	res, _, err := m.economy.Reserve(ctx, economy.Hold{
		UserID:       userID,
		Amount:       t.EntryFeeCoins,
		Type:         models.TxTournamentEntry,
		Reason:       "tournament entry",
		TournamentID: t.ID,
	})
	if err != nil {
		return nil, err
	}
	p := &models.TournamentParticipant{
		TournamentID: t.ID,
		UserID:       userID,
		Seed:         seed,
		Status:       models.ParticipantRegistered,
	}
	if res != nil {
		p.ReservationID = res.ID
	}
	if err := m.store.AddParticipant(ctx, p); err != nil {
		if res != nil {
			if _, rerr := m.economy.Release(ctx, res.ID, "registration failed"); rerr != nil {
				log.Error().Err(rerr).Str("component", "bracket").Str("reservation_id", res.ID).Msg("entry fee refund failed")
			}
		}
		return nil, err
	}

	t.PrizePool += t.EntryFeeCoins
	if err := m.store.SaveTournament(ctx, t); err != nil {
		log.Error().Err(err).Str("component", "bracket").Str("tournament_id", id).Msg("prize pool update failed")
	}
	log.Info().Str("component", "bracket").Str("tournament_id", id).Str("user_id", userID).Int("seed", seed).Msg("participant registered")
	return p, nil
}

// Unregister withdraws userID while registration is open and refunds the
// entry fee.
func (m *Manager) Unregister(ctx context.Context, id, userID string) error {
	unlock := m.lock(id)
	defer unlock()

	t, err := m.store.GetTournament(ctx, id)
	if err != nil {
		return err
	}
	if t.Status != models.TournamentRegistering {
		return fmt.Errorf("tournament %s is %s: %w", id, t.Status, models.ErrRegistrationClosed)
	}
	p := participant(t, userID)
	if p == nil {
		return fmt.Errorf("user %s: %w", userID, models.ErrNotParticipant)
	}
	if p.ReservationID != "" {
		if _, err := m.economy.Release(ctx, p.ReservationID, "unregistered"); err != nil {
			return err
		}
	}
	if err := m.store.RemoveParticipant(ctx, id, userID); err != nil {
		return err
	}
	t.PrizePool -= t.EntryFeeCoins
	if err := m.store.SaveTournament(ctx, t); err != nil {
		log.Error().Err(err).Str("component", "bracket").Str("tournament_id", id).Msg("prize pool update failed")
	}
	log.Info().Str("component", "bracket").Str("tournament_id", id).Str("user_id", userID).Msg("participant unregistered")
	return nil
}

// Start moves a registering tournament to active and plays round one. A
// tournament is started early only when force is set. Below the minimum
// field it is cancelled with refunds instead.
func (m *Manager) Start(ctx context.Context, id string, force bool) (*models.Tournament, error) {
	unlock := m.lock(id)
	defer unlock()

	t, err := m.store.GetTournament(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != models.TournamentRegistering {
		return nil, fmt.Errorf("tournament %s is %s: %w", id, t.Status, models.ErrInvalidTransition)
	}
	now := time.Now()
	if !force && (t.StartAt == nil || t.StartAt.After(now)) {
		return nil, fmt.Errorf("tournament %s is not due: %w", id, models.ErrInvalidTransition)
	}
	if need := max(t.MinParticipants, 2); len(t.Participants) < need {
		log.Warn().Str("component", "bracket").Str("tournament_id", id).Int("registered", len(t.Participants)).
			Int("min", need).Msg("not enough participants, cancelling")
		if err := m.cancel(ctx, t, "not enough participants"); err != nil {
			return nil, err
		}
		return t, nil
	}

	players := make([]string, 0, len(t.Participants))
	for i := range t.Participants {
		p := &t.Participants[i]
		if p.ReservationID != "" {
			if err := m.economy.Confirm(ctx, p.ReservationID); err != nil {
				log.Error().Err(err).Str("component", "bracket").Str("user_id", p.UserID).Msg("entry fee confirm failed")
			}
		}
		p.Status = models.ParticipantActive
		if err := m.store.SaveParticipant(ctx, p); err != nil {
			return nil, err
		}
		players = append(players, p.UserID)
	}

	matches, err := GenerateBracket(t.ID, t.Type, players)
	if err != nil {
		return nil, err
	}
	switch t.Type {
	case models.SingleElimination, models.DoubleElimination:
		t.Rounds = eliminationRounds(len(players))
	case models.RoundRobin:
		t.Rounds = roundRobinRounds(len(players))
	case models.Swiss:
		if t.Rounds == 0 || t.Rounds > len(players)-1 {
			t.Rounds = swissRounds(len(players))
		}
	}
	t.Status = models.TournamentActive
	t.StartedAt = &now
	t.CurrentRound = 1
	if err := m.store.SaveTournament(ctx, t); err != nil {
		return nil, err
	}
	for i := range matches {
		if err := m.addMatch(ctx, t, matches[i]); err != nil {
			return nil, err
		}
	}
	log.Info().Str("component", "bracket").Str("tournament_id", id).Int("participants", len(players)).
		Int("rounds", t.Rounds).Msg("tournament started")

	if err := m.advance(ctx, t); err != nil {
		return nil, err
	}
	return m.store.GetTournament(ctx, id)
}

// StartDue starts every registering tournament whose start time passed and
// returns how many were started.
func (m *Manager) StartDue(ctx context.Context, now time.Time) int {
	due, err := m.store.DueTournaments(ctx, now)
	if err != nil {
		log.Error().Err(err).Str("component", "bracket").Msg("due tournaments lookup failed")
		return 0
	}
	started := 0
	for _, d := range due {
		t, err := m.Start(ctx, d.ID, false)
		if err != nil {
			log.Error().Err(err).Str("component", "bracket").Str("tournament_id", d.ID).Msg("scheduled start failed")
			continue
		}
		if t.Status == models.TournamentActive {
			started++
		}
	}
	return started
}

// GenerateBracket builds round one of a tournament for participants given in
// seed order. Byes are returned already resolved in favour of their player.
func GenerateBracket(tournamentID, format string, participantIDs []string) ([]models.TournamentMatch, error) {
	if len(participantIDs) < 2 {
		return nil, fmt.Errorf("%w: %d participants", models.ErrInvalidConfiguration, len(participantIDs))
	}
	side := models.BracketMain
	var pairs []pair
	switch format {
	case models.SingleElimination:
		pairs = eliminationPairs(participantIDs)
	case models.DoubleElimination:
		side = models.BracketWinners
		pairs = eliminationPairs(participantIDs)
	case models.RoundRobin:
		pairs = roundRobinPairs(participantIDs, 1)
	case models.Swiss:
		field := make([]models.TournamentParticipant, len(participantIDs))
		for i, id := range participantIDs {
			field[i] = models.TournamentParticipant{UserID: id, Seed: i + 1}
		}
		pairs = swissPairs(field, nil)
	default:
		return nil, fmt.Errorf("%w: unknown tournament type %q", models.ErrInvalidConfiguration, format)
	}
	matches := make([]models.TournamentMatch, 0, len(pairs))
	for i, p := range pairs {
		matches = append(matches, newMatch(tournamentID, side, 1, i, p))
	}
	return matches, nil
}

func newMatch(tournamentID, side string, round, position int, p pair) models.TournamentMatch {
	mt := models.TournamentMatch{
		ID:             uuid.NewString(),
		TournamentID:   tournamentID,
		Bracket:        side,
		Round:          round,
		Position:       position,
		Participant1ID: p.P1,
		Participant2ID: p.P2,
		Status:         models.MatchReady,
	}
	if p.P2 == "" {
		now := time.Now()
		mt.IsBye = true
		mt.WinnerID = p.P1
		mt.Status = models.MatchCompleted
		mt.CompletedAt = &now
	}
	return mt
}

func participant(t *models.Tournament, userID string) *models.TournamentParticipant {
	for i := range t.Participants {
		if t.Participants[i].UserID == userID {
			return &t.Participants[i]
		}
	}
	return nil
}

func findMatch(t *models.Tournament, side string, round, position int) *models.TournamentMatch {
	for i := range t.Matches {
		mt := &t.Matches[i]
		if mt.Bracket == side && mt.Round == round && mt.Position == position {
			return mt
		}
	}
	return nil
}

// addMatch stores a new match. A bye credits its player right away.
func (m *Manager) addMatch(ctx context.Context, t *models.Tournament, mt models.TournamentMatch) error {
	if err := m.store.SaveMatch(ctx, &mt); err != nil {
		return fmt.Errorf("save match: %w", err)
	}
	t.Matches = append(t.Matches, mt)
	if mt.Round > t.CurrentRound && mt.Bracket != models.BracketLosers {
		t.CurrentRound = mt.Round
	}
	if !mt.IsBye {
		return nil
	}
	p := participant(t, mt.WinnerID)
	if p == nil {
		return nil
	}
	p.Points += standingsBye
	p.HadBye = true
	return m.store.SaveParticipant(ctx, p)
}

// ReportMatch receives match results from rooms.
func (m *Manager) ReportMatch(ctx context.Context, res room.MatchResult) error {
	return m.OnMatchComplete(ctx, res)
}

// OnMatchComplete records the result of a match and moves the tournament on.
// A match resolves once; later reports fail with ErrMatchAlreadyResolved.
func (m *Manager) OnMatchComplete(ctx context.Context, res room.MatchResult) error {
	unlock := m.lock(res.TournamentID)
	defer unlock()

	t, err := m.store.GetTournament(ctx, res.TournamentID)
	if err != nil {
		return err
	}
	var mt *models.TournamentMatch
	for i := range t.Matches {
		if t.Matches[i].ID == res.MatchID {
			mt = &t.Matches[i]
			break
		}
	}
	if mt == nil {
		return fmt.Errorf("match %s: %w", res.MatchID, models.ErrNotFound)
	}
	if mt.Resolved() || mt.Status == models.MatchCancelled || t.IsTerminal() {
		return fmt.Errorf("match %s: %w", res.MatchID, models.ErrMatchAlreadyResolved)
	}

	winner, draw := res.WinnerID, res.Draw
	if draw && isElimination(t.Type) {
		// decisive rooms replay draws; a draw that still arrives goes to the higher seed
		winner, draw = mt.Participant1ID, false
	}
	if !draw && !mt.Has(winner) {
		return fmt.Errorf("winner %s of match %s: %w", winner, mt.ID, models.ErrNotParticipant)
	}
	if err := m.resolve(ctx, t, mt, winner, draw, res.Scores); err != nil {
		return err
	}
	log.Info().Str("component", "bracket").Str("tournament_id", t.ID).Str("match_id", mt.ID).
		Str("winner_id", mt.WinnerID).Bool("draw", mt.IsDraw).Msg("match completed")
	events.Emit(ctx, m.events, events.MatchCompleted, map[string]any{
		"tournament_id": t.ID,
		"match_id":      mt.ID,
		"winner_id":     mt.WinnerID,
		"draw":          mt.IsDraw,
	})
	return m.advance(ctx, t)
}

// resolve writes a match result and the standings it produces.
func (m *Manager) resolve(ctx context.Context, t *models.Tournament, mt *models.TournamentMatch, winner string, draw bool, scores map[string]int64) error {
	now := time.Now()
	mt.Status = models.MatchCompleted
	mt.CompletedAt = &now
	mt.IsDraw = draw
	mt.Player1Score = scores[mt.Participant1ID]
	mt.Player2Score = scores[mt.Participant2ID]
	if !draw {
		mt.WinnerID = winner
		mt.LoserID = mt.Participant1ID
		if winner == mt.Participant1ID {
			mt.LoserID = mt.Participant2ID
		}
	}
	if err := m.store.SaveMatch(ctx, mt); err != nil {
		return fmt.Errorf("save match: %w", err)
	}

	p1, p2 := participant(t, mt.Participant1ID), participant(t, mt.Participant2ID)
	if p1 == nil || p2 == nil {
		return fmt.Errorf("match %s: %w", mt.ID, models.ErrNotParticipant)
	}
	p1.ScoreFor += mt.Player1Score
	p1.ScoreAgainst += mt.Player2Score
	p2.ScoreFor += mt.Player2Score
	p2.ScoreAgainst += mt.Player1Score
	if draw {
		p1.Points += standingsDraw
		p2.Points += standingsDraw
		p1.Draws++
		p2.Draws++
	} else {
		w, l := p1, p2
		if winner == p2.UserID {
			w, l = p2, p1
		}
		w.Points += standingsWin
		w.Wins++
		l.Losses++
		switch t.Type {
		case models.SingleElimination:
			l.Status = models.ParticipantEliminated
		case models.DoubleElimination:
			if l.Losses >= 2 || mt.Bracket == models.BracketGrandFinal {
				l.Status = models.ParticipantEliminated
			}
		}
	}
	if err := m.store.SaveParticipant(ctx, p1); err != nil {
		return err
	}
	return m.store.SaveParticipant(ctx, p2)
}

// Standings ranks participants by points, point differential and seed.
func (m *Manager) Standings(ctx context.Context, id string) ([]Standing, error) {
	t, err := m.store.GetTournament(ctx, id)
	if err != nil {
		return nil, err
	}
	ranked := rank(t.Participants)
	out := make([]Standing, len(ranked))
	for i, p := range ranked {
		out[i] = Standing{
			Rank:         i + 1,
			UserID:       p.UserID,
			Seed:         p.Seed,
			Points:       p.Points,
			Wins:         p.Wins,
			Losses:       p.Losses,
			Draws:        p.Draws,
			Differential: p.Differential(),
			HadBye:       p.HadBye,
			Status:       p.Status,
		}
		if p.FinalRank > 0 {
			out[i].Rank = p.FinalRank
		}
	}
	if t.Status == models.TournamentCompleted {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	}
	return out, nil
}

// Cancel stops a tournament that has not finished.
func (m *Manager) Cancel(ctx context.Context, id, reason string) (*models.Tournament, error) {
	unlock := m.lock(id)
	defer unlock()

	t, err := m.store.GetTournament(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.IsTerminal() {
		return nil, fmt.Errorf("tournament %s is %s: %w", id, t.Status, models.ErrInvalidTransition)
	}
	if err := m.cancel(ctx, t, reason); err != nil {
		return nil, err
	}
	return t, nil
}

// cancel closes every unresolved match and refunds the entry fee of every
// participant who never started a match.
func (m *Manager) cancel(ctx context.Context, t *models.Tournament, reason string) error {
	started := make(map[string]bool)
	for i := range t.Matches {
		mt := &t.Matches[i]
		if !mt.IsBye && (mt.Status == models.MatchInProgress || mt.Status == models.MatchCompleted) {
			started[mt.Participant1ID] = true
			started[mt.Participant2ID] = true
		}
		if mt.Resolved() || mt.Status == models.MatchCancelled {
			continue
		}
		if mt.Status == models.MatchInProgress && mt.RoomID != nil {
			if err := m.rooms.CancelRoom(ctx, *mt.RoomID, "tournament cancelled"); err != nil {
				log.Error().Err(err).Str("component", "bracket").Str("room_id", *mt.RoomID).Msg("match room cancel failed")
			}
		}
		mt.Status = models.MatchCancelled
		if err := m.store.SaveMatch(ctx, mt); err != nil {
			return fmt.Errorf("save match: %w", err)
		}
	}

	held := t.Status == models.TournamentRegistering || t.Status == models.TournamentPreparing
	for i := range t.Participants {
		p := &t.Participants[i]
		if started[p.UserID] {
			continue
		}
		var err error
		switch {
		case held && p.ReservationID != "":
			_, err = m.economy.Release(ctx, p.ReservationID, reason)
		case !held && t.EntryFeeCoins > 0:
			_, err = m.economy.Refund(ctx, "refund:"+t.ID+":"+p.UserID, p.UserID, t.EntryFeeCoins, t.ID, reason)
		}
		if err != nil {
			log.Error().Err(err).Str("component", "bracket").Str("tournament_id", t.ID).Str("user_id", p.UserID).Msg("entry fee refund failed")
			continue
		}
		p.Status = models.ParticipantRefunded
		if err := m.store.SaveParticipant(ctx, p); err != nil {
			return err
		}
	}

	now := time.Now()
	t.Status = models.TournamentCancelled
	t.CancelReason = reason
	t.EndedAt = &now
	if err := m.store.SaveTournament(ctx, t); err != nil {
		return err
	}
	log.Info().Str("component", "bracket").Str("tournament_id", t.ID).Str("reason", reason).Msg("tournament cancelled")
	events.Emit(ctx, m.events, events.TournamentCancelled, map[string]any{
		"tournament_id": t.ID,
		"reason":        reason,
	})
	return nil
}
