package room

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"game-room-engine/config"
	"game-room-engine/economy"
	"game-room-engine/events"
	"game-room-engine/games"
	"game-room-engine/models"
	"game-room-engine/store"
)

const maxRoomSize = 10

// Options wires a Manager.
type Options struct {
	Catalog     *config.Catalog
	Games       *games.Registry
	Store       store.Rooms
	Economy     *economy.Service
	Settlements *economy.Queue
	Events      events.Publisher
	Broadcaster Broadcaster

	MaxConsecutiveTimeouts int
	IdleTTL                time.Duration
	FinishedTTL            time.Duration
	NextHandDelay          time.Duration
	// Seed returns the seed of every new game. Defaults to a random one.
	Seed func() uint64
}

// Manager owns every live room of the process.
type Manager struct {
	catalog     *config.Catalog
	registry    *games.Registry
	store       store.Rooms
	economy     *economy.Service
	settlements *economy.Queue
	events      events.Publisher
	broadcaster Broadcaster

	maxTimeouts   int
	idleTTL       time.Duration
	finishedTTL   time.Duration
	nextHandDelay time.Duration
	seed          func() uint64

	mu       sync.RWMutex
	rooms    map[string]*Room
	byUser   map[string]map[string]struct{}
	reporter MatchReporter
}

func NewManager(opts Options) *Manager {
	m := &Manager{
		catalog:       opts.Catalog,
		registry:      opts.Games,
		store:         opts.Store,
		economy:       opts.Economy,
		settlements:   opts.Settlements,
		events:        opts.Events,
		broadcaster:   opts.Broadcaster,
		maxTimeouts:   opts.MaxConsecutiveTimeouts,
		idleTTL:       opts.IdleTTL,
		finishedTTL:   opts.FinishedTTL,
		nextHandDelay: opts.NextHandDelay,
		seed:          opts.Seed,
		rooms:         make(map[string]*Room),
		byUser:        make(map[string]map[string]struct{}),
	}
	if m.registry == nil {
		m.registry = games.DefaultRegistry()
	}
	if m.events == nil {
		m.events = events.Nop{}
	}
	if m.broadcaster == nil {
		m.broadcaster = nopBroadcaster{}
	}
	if m.maxTimeouts < 1 {
		m.maxTimeouts = 3
	}
	if m.seed == nil {
		m.seed = rand.Uint64
	}
	return m
}

// SetMatchReporter registers the receiver of tournament match results.
func (m *Manager) SetMatchReporter(r MatchReporter) {
	m.mu.Lock()
	m.reporter = r
	m.mu.Unlock()
}

func (m *Manager) matchReporter() MatchReporter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reporter
}

func (m *Manager) lookup(gameType string) (config.GameDef, games.Rules, error) {
	def, ok := m.catalog.Get(gameType)
	if !ok {
		return config.GameDef{}, nil, fmt.Errorf("%w: unknown game type %q", models.ErrInvalidConfiguration, gameType)
	}
	rules, ok := m.registry.Get(games.GameType(gameType))
	if !ok {
		return config.GameDef{}, nil, fmt.Errorf("%w: no rules for %q", models.ErrInvalidConfiguration, gameType)
	}
	return def, rules, nil
}

func (m *Manager) get(roomID string) (*Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("room %s: %w", roomID, models.ErrNotFound)
	}
	return r, nil
}

func (m *Manager) add(r *Room) {
	m.mu.Lock()
	m.rooms[r.id] = r
	m.mu.Unlock()
	go r.run()
}

func (m *Manager) remove(r *Room) {
	m.mu.Lock()
	delete(m.rooms, r.id)
	for user, rooms := range m.byUser {
		delete(rooms, r.id)
		if len(rooms) == 0 {
			delete(m.byUser, user)
		}
	}
	m.mu.Unlock()
	r.shutdown()
}

// index tracks which rooms a user is seated in.
func (m *Manager) index(userID, roomID string, seated bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rooms := m.byUser[userID]
	if seated {
		if rooms == nil {
			rooms = make(map[string]struct{})
			m.byUser[userID] = rooms
		}
		rooms[roomID] = struct{}{}
		return
	}
	delete(rooms, roomID)
	if len(rooms) == 0 {
		delete(m.byUser, userID)
	}
}

// RoomsOf lists the rooms userID is seated in.
func (m *Manager) RoomsOf(userID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.byUser[userID]))
	for id := range m.byUser[userID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// validate checks a lobby room against its game's catalog entry.
func validate(def config.GameDef, req *CreateRequest) error {
	if req.HostID == "" {
		return fmt.Errorf("%w: host is required", models.ErrInvalidConfiguration)
	}
	if req.Bet < def.MinBet || req.Bet > def.MaxBet {
		return fmt.Errorf("%w: bet %d outside %d..%d", models.ErrInvalidConfiguration, req.Bet, def.MinBet, def.MaxBet)
	}
	if req.MaxParticipants == 0 {
		req.MaxParticipants = def.MaxPlayers
	}
	if req.MaxParticipants < def.MinPlayers || req.MaxParticipants > def.MaxPlayers || req.MaxParticipants > maxRoomSize {
		return fmt.Errorf("%w: max participants %d outside %d..%d", models.ErrInvalidConfiguration, req.MaxParticipants, def.MinPlayers, def.MaxPlayers)
	}
	if len(def.TableTypes) == 0 {
		if req.TableType != "" {
			return fmt.Errorf("%w: %s has no table types", models.ErrInvalidConfiguration, def.Type)
		}
	} else {
		if req.TableType == "" {
			req.TableType = "standard"
		}
		if _, ok := def.TableTypes[req.TableType]; !ok {
			return fmt.Errorf("%w: unknown table type %q", models.ErrInvalidConfiguration, req.TableType)
		}
	}
	if req.GameFormat == "" {
		req.GameFormat = models.Format1v1
		if len(def.Formats) > 0 {
			req.GameFormat = def.Formats[0]
		}
	}
	if !def.SupportsFormat(req.GameFormat) {
		return fmt.Errorf("%w: %s cannot be played %s", models.ErrInvalidConfiguration, def.Type, req.GameFormat)
	}
	return nil
}

// CreateRoom opens a lobby room and seats the host, whose buy-in is
// reserved like any other participant's.
func (m *Manager) CreateRoom(ctx context.Context, req CreateRequest) (Snapshot, error) {
	def, rules, err := m.lookup(req.GameType)
	if err != nil {
		return Snapshot{}, err
	}
	if err := validate(def, &req); err != nil {
		return Snapshot{}, err
	}

	model := models.GameRoom{
		ID:              uuid.NewString(),
		GameType:        req.GameType,
		Status:          models.RoomWaiting,
		MaxParticipants: req.MaxParticipants,
		Bet:             req.Bet,
		TableType:       req.TableType,
		GameFormat:      req.GameFormat,
		HostID:          req.HostID,
		CreatedAt:       time.Now(),
	}
	if err := m.store.SaveRoom(ctx, &model); err != nil {
		return Snapshot{}, fmt.Errorf("create room: %w", err)
	}
	r := newRoom(m, def, rules, model)
	m.add(r)

	if _, err := call(ctx, r, func() (models.GameParticipant, error) { return r.join(ctx, req.HostID) }); err != nil {
		m.remove(r)
		model.Status = models.RoomCancelled
		if serr := m.store.SaveRoom(context.Background(), &model); serr != nil {
			log.Error().Err(serr).Str("component", "room").Str("room_id", model.ID).Msg("room snapshot write failed")
		}
		return Snapshot{}, err
	}
	log.Info().Str("component", "room").Str("room_id", model.ID).Str("game_type", req.GameType).
		Int64("bet", req.Bet).Str("host_id", req.HostID).Msg("room created")
	return m.GetState(ctx, model.ID, req.HostID)
}

// CreateMatchRoom opens the room of a tournament match. Seats are assigned
// to the match participants and the game starts at once; absent players
// are resolved by their turn deadlines.
func (m *Manager) CreateMatchRoom(ctx context.Context, mr MatchRoom) (Snapshot, error) {
	def, rules, err := m.lookup(mr.GameType)
	if err != nil {
		return Snapshot{}, err
	}
	if len(mr.Players) < def.MinPlayers || len(mr.Players) > def.MaxPlayers {
		return Snapshot{}, fmt.Errorf("%w: %s cannot seat %d players", models.ErrInvalidConfiguration, mr.GameType, len(mr.Players))
	}

	now := time.Now()
	tournamentID, matchID := mr.TournamentID, mr.MatchID
	model := models.GameRoom{
		ID:              uuid.NewString(),
		GameType:        mr.GameType,
		Status:          models.RoomWaiting,
		MaxParticipants: len(mr.Players),
		GameFormat:      models.Format1v1,
		HostID:          mr.Players[0],
		TournamentID:    &tournamentID,
		MatchID:         &matchID,
		CreatedAt:       now,
	}
	if len(def.Formats) > 0 {
		model.GameFormat = def.Formats[0]
	}
	if len(def.TableTypes) > 0 {
		model.TableType = "standard"
	}
	for i, p := range mr.Players {
		model.Participants = append(model.Participants, models.GameParticipant{
			ID:               uuid.NewString(),
			RoomID:           model.ID,
			UserID:           p,
			Seat:             i,
			IsHost:           i == 0,
			ConnectionStatus: models.Disconnected,
			JoinedAt:         now,
		})
	}
	if err := m.store.SaveRoom(ctx, &model); err != nil {
		return Snapshot{}, fmt.Errorf("create match room: %w", err)
	}

	r := newRoom(m, def, rules, model)
	r.decisive = mr.Decisive
	for _, p := range mr.Players {
		m.index(p, r.id, true)
	}
	m.add(r)
	log.Info().Str("component", "room").Str("room_id", model.ID).Str("match_id", mr.MatchID).
		Strs("players", mr.Players).Msg("match room created")

	return call(ctx, r, func() (Snapshot, error) {
		if err := r.start(); err != nil {
			return Snapshot{}, err
		}
		return r.snapshot(""), nil
	})
}

func (m *Manager) JoinRoom(ctx context.Context, roomID, userID string) (models.GameParticipant, error) {
	r, err := m.get(roomID)
	if err != nil {
		return models.GameParticipant{}, err
	}
	return call(ctx, r, func() (models.GameParticipant, error) { return r.join(ctx, userID) })
}

func (m *Manager) LeaveRoom(ctx context.Context, roomID, userID string) error {
	r, err := m.get(roomID)
	if err != nil {
		return err
	}
	_, err = r.do(ctx, func() (any, error) { return nil, r.leave(ctx, userID) })
	return err
}

// GetState returns the room as userID may see it.
func (m *Manager) GetState(ctx context.Context, roomID, userID string) (Snapshot, error) {
	r, err := m.get(roomID)
	if err != nil {
		return Snapshot{}, err
	}
	return call(ctx, r, func() (Snapshot, error) { return r.snapshot(userID), nil })
}

// Watch subscribes userID to the room's public updates.
func (m *Manager) Watch(ctx context.Context, roomID, userID string) (Snapshot, error) {
	r, err := m.get(roomID)
	if err != nil {
		return Snapshot{}, err
	}
	return call(ctx, r, func() (Snapshot, error) {
		if r.participant(userID) == nil {
			r.watchers[userID] = true
		}
		return r.snapshot(userID), nil
	})
}

// StartRoom lets the host start a waiting room early.
func (m *Manager) StartRoom(ctx context.Context, roomID, userID string) (Snapshot, error) {
	r, err := m.get(roomID)
	if err != nil {
		return Snapshot{}, err
	}
	return call(ctx, r, func() (Snapshot, error) {
		if err := r.startByHost(userID); err != nil {
			return Snapshot{}, err
		}
		return r.snapshot(userID), nil
	})
}

// SubmitMove applies a move and returns the room version it produced.
func (m *Manager) SubmitMove(ctx context.Context, roomID string, req MoveRequest) (uint64, error) {
	r, err := m.get(roomID)
	if err != nil {
		return 0, err
	}
	return call(ctx, r, func() (uint64, error) { return r.submit(req) })
}

// Rebuy buys amount more chips and returns the user's coin balance.
func (m *Manager) Rebuy(ctx context.Context, roomID, userID string, amount int64) (int64, error) {
	r, err := m.get(roomID)
	if err != nil {
		return 0, err
	}
	return call(ctx, r, func() (int64, error) { return r.rebuy(ctx, userID, amount) })
}

func (m *Manager) Disconnect(ctx context.Context, roomID, userID string) error {
	return m.connection(ctx, roomID, userID, models.Disconnected)
}

func (m *Manager) Reconnect(ctx context.Context, roomID, userID string) error {
	return m.connection(ctx, roomID, userID, models.Connected)
}

func (m *Manager) connection(ctx context.Context, roomID, userID, status string) error {
	r, err := m.get(roomID)
	if err != nil {
		return err
	}
	_, err = r.do(ctx, func() (any, error) { return nil, r.setConnection(userID, status) })
	return err
}

// DisconnectUser marks userID disconnected in every room they sit in.
func (m *Manager) DisconnectUser(ctx context.Context, userID string) {
	for _, id := range m.RoomsOf(userID) {
		if err := m.Disconnect(ctx, id, userID); err != nil {
			log.Debug().Err(err).Str("component", "room").Str("room_id", id).Str("user_id", userID).Msg("disconnect skipped")
		}
	}
}

// CancelRoom tears a room down and refunds what is at stake.
func (m *Manager) CancelRoom(ctx context.Context, roomID, reason string) error {
	r, err := m.get(roomID)
	if err != nil {
		return err
	}
	_, err = r.do(ctx, func() (any, error) { return nil, r.cancel(ctx, reason) })
	return err
}

// ListRooms returns the public view of waiting lobby rooms, oldest first.
// An empty gameType lists every game.
func (m *Manager) ListRooms(ctx context.Context, gameType string) ([]Snapshot, error) {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		if gameType == "" || r.def.Type == gameType {
			rooms = append(rooms, r)
		}
	}
	m.mu.RUnlock()

	out := make([]Snapshot, 0, len(rooms))
	for _, r := range rooms {
		s, err := call(ctx, r, func() (Snapshot, error) { return r.snapshot(""), nil })
		if err != nil {
			continue
		}
		if s.Status == models.RoomWaiting && s.TournamentID == nil {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Sweep evicts finished rooms and idle waiting rooms. It returns how many
// rooms were dropped.
func (m *Manager) Sweep(ctx context.Context) int {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	now := time.Now()
	evicted := 0
	for _, r := range rooms {
		ok, err := call(ctx, r, func() (bool, error) { return r.evictable(ctx, now), nil })
		if err != nil || !ok {
			continue
		}
		m.remove(r)
		evicted++
	}
	if evicted > 0 {
		log.Info().Str("component", "room").Int("evicted", evicted).Msg("rooms evicted")
	}
	return evicted
}

// Close stops every room.
func (m *Manager) Close() {
	m.mu.Lock()
	rooms := m.rooms
	m.rooms = make(map[string]*Room)
	m.byUser = make(map[string]map[string]struct{})
	m.mu.Unlock()
	for _, r := range rooms {
		r.shutdown()
	}
}
