// Package economy moves coins between wallets and rooms: seat reservations,
// rebuys, terminal settlement and tournament entries and prizes. Every
// operation goes through the ledger and is safe to call concurrently.
package economy

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"game-room-engine/events"
	"game-room-engine/models"
	"game-room-engine/store"
)

// SettlementKey is the idempotence key of a room settlement.
func SettlementKey(roomID string, version uint64) string {
	return "settle:" + roomID + ":" + strconv.FormatUint(version, 10)
}

// BalanceListener is told about every balance change.
type BalanceListener func(userID string, balance int64)

// Hold describes coins to reserve.
type Hold struct {
	UserID       string
	Amount       int64
	Type         string
	Reason       string
	RoomID       string
	TournamentID string
}

// Result of a settlement.
type Result struct {
	Key      string           `json:"key"`
	RoomID   string           `json:"room_id"`
	Applied  bool             `json:"applied"`
	Entries  int              `json:"entries"`
	Rake     int64            `json:"rake"`
	Balances map[string]int64 `json:"balances"`
	Payouts  map[string]int64 `json:"payouts"`
}

type Service struct {
	ledger       store.Ledger
	events       events.Publisher
	rakePercent  int64
	bonusPercent int64

	mu        sync.RWMutex
	listeners []BalanceListener
}

func NewService(ledger store.Ledger, pub events.Publisher, rakePercent, bonusPercent int64) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{
		ledger:       ledger,
		events:       pub,
		rakePercent:  rakePercent,
		bonusPercent: bonusPercent,
	}
}

// OnBalance registers a listener for balance changes.
func (s *Service) OnBalance(fn BalanceListener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Service) notify(balances map[string]int64) {
	s.mu.RLock()
	listeners := s.listeners
	s.mu.RUnlock()
	for user, bal := range balances {
		for _, fn := range listeners {
			fn(user, bal)
		}
	}
}

// Reserve debits h.Amount into a held reservation. A zero amount reserves
// nothing and returns a nil reservation.
func (s *Service) Reserve(ctx context.Context, h Hold) (*models.Reservation, int64, error) {
	if h.Amount < 0 {
		return nil, 0, fmt.Errorf("%w: negative amount %d", models.ErrInvalidConfiguration, h.Amount)
	}
	if h.Amount == 0 {
		bal, err := s.ledger.Balance(ctx, h.UserID)
		return nil, bal, err
	}
	if h.Type == "" {
		h.Type = models.TxDebit
	}
	res := &models.Reservation{
		UserID: h.UserID,
		Amount: h.Amount,
		Type:   h.Type,
		Reason: h.Reason,
	}
	if h.RoomID != "" {
		res.RoomID = &h.RoomID
	}
	if h.TournamentID != "" {
		res.TournamentID = &h.TournamentID
	}
	bal, err := s.ledger.Reserve(ctx, res)
	if err != nil {
		return nil, bal, err
	}
	log.Debug().Str("component", "economy").Str("user_id", h.UserID).Int64("amount", h.Amount).
		Str("reservation_id", res.ID).Msg("coins reserved")
	s.notify(map[string]int64{h.UserID: bal})
	return res, bal, nil
}

// Release refunds a held reservation. Releasing twice refunds once.
func (s *Service) Release(ctx context.Context, reservationID, reason string) (int64, error) {
	res, bal, err := s.ledger.Release(ctx, reservationID, reason)
	if err != nil {
		return 0, err
	}
	s.notify(map[string]int64{res.UserID: bal})
	return bal, nil
}

// ReleaseRoom refunds every reservation still held for a room.
func (s *Service) ReleaseRoom(ctx context.Context, roomID, reason string) error {
	held, err := s.ledger.HeldReservations(ctx, store.ReservationFilter{RoomID: roomID})
	if err != nil {
		return err
	}
	for _, r := range held {
		if _, err := s.Release(ctx, r.ID, reason); err != nil {
			return fmt.Errorf("release %s: %w", r.ID, err)
		}
	}
	return nil
}

// Confirm marks a reservation as spent once its seat or entry is used.
func (s *Service) Confirm(ctx context.Context, reservationID string) error {
	if reservationID == "" {
		return nil
	}
	return s.ledger.Consume(ctx, reservationID)
}

// Rebuy debits amount for more chips in a running room. The coins join the
// pot immediately.
func (s *Service) Rebuy(ctx context.Context, userID, roomID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: rebuy amount must be positive", models.ErrInvalidMove)
	}
	res, bal, err := s.Reserve(ctx, Hold{UserID: userID, Amount: amount, Reason: "rebuy", RoomID: roomID})
	if err != nil {
		return bal, err
	}
	if err := s.ledger.Consume(ctx, res.ID); err != nil {
		// a rebuy is spent or refunded, never left held
		refunded, rerr := s.Release(ctx, res.ID, "rebuy failed")
		if rerr != nil {
			log.Error().Err(rerr).Str("component", "economy").Str("reservation_id", res.ID).Msg("rebuy release failed")
			return bal, err
		}
		return refunded, err
	}
	return bal, nil
}

// Settle pays out a finished room exactly once per settlement key. A replay
// returns the current balances and writes nothing.
func (s *Service) Settle(ctx context.Context, st Settlement) (*Result, error) {
	key := st.Key()
	entries := Payouts(st, s.rakePercent, s.bonusPercent)

	// seats already paid for stay spent
	held, err := s.ledger.HeldReservations(ctx, store.ReservationFilter{RoomID: st.RoomID})
	if err != nil {
		return nil, err
	}
	for _, r := range held {
		if err := s.ledger.Consume(ctx, r.ID); err != nil {
			return nil, err
		}
	}

	roomID := st.RoomID
	applied, balances, err := s.ledger.ApplyBatch(ctx, key, &roomID, entries)
	if err != nil {
		return nil, fmt.Errorf("settle %s: %w", key, err)
	}

	res := &Result{
		Key:      key,
		RoomID:   st.RoomID,
		Applied:  applied,
		Entries:  len(entries),
		Balances: balances,
		Payouts:  make(map[string]int64),
	}
	if st.Outcome != nil && !st.Outcome.Draw {
		res.Rake = st.Pot() * s.rakePercent / 100
	}
	for _, e := range entries {
		res.Payouts[e.UserID] += e.Amount
	}
	// losers get a balance update too
	for _, stake := range st.Stakes {
		if _, ok := balances[stake.UserID]; !ok {
			if bal, err := s.ledger.Balance(ctx, stake.UserID); err == nil {
				balances[stake.UserID] = bal
			}
		}
	}

	if applied {
		log.Info().Str("component", "economy").Str("key", key).Int("entries", len(entries)).
			Int64("pot", st.Pot()).Int64("rake", res.Rake).Msg("room settled")
		events.Emit(ctx, s.events, events.LedgerSettled, res)
	} else {
		log.Debug().Str("component", "economy").Str("key", key).Msg("settlement replayed")
	}
	s.notify(balances)
	return res, nil
}

// Refund credits amount once per key.
func (s *Service) Refund(ctx context.Context, key, userID string, amount int64, tournamentID, reason string) (int64, error) {
	return s.credit(ctx, key, models.Transaction{
		UserID:       userID,
		TournamentID: optional(tournamentID),
		Type:         models.TxRefund,
		Amount:       amount,
		Reason:       reason,
	})
}

// AwardPrize pays a tournament prize once per key.
func (s *Service) AwardPrize(ctx context.Context, key, userID string, amount int64, tournamentID string) (int64, error) {
	return s.credit(ctx, key, models.Transaction{
		UserID:       userID,
		TournamentID: optional(tournamentID),
		Type:         models.TxTournamentPrize,
		Amount:       amount,
		Reason:       "tournament prize",
	})
}

// Grant credits coins outside of play. An empty key makes the grant unique.
func (s *Service) Grant(ctx context.Context, key, userID string, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: grant amount must be positive", models.ErrInvalidConfiguration)
	}
	if key == "" {
		key = "grant:" + uuid.NewString()
	}
	return s.credit(ctx, key, models.Transaction{
		UserID: userID,
		Type:   models.TxCredit,
		Amount: amount,
		Reason: reason,
	})
}

func (s *Service) credit(ctx context.Context, key string, tx models.Transaction) (int64, error) {
	if tx.Amount <= 0 {
		return s.ledger.Balance(ctx, tx.UserID)
	}
	_, balances, err := s.ledger.ApplyBatch(ctx, key, nil, []models.Transaction{tx})
	if err != nil {
		return 0, err
	}
	s.notify(balances)
	return balances[tx.UserID], nil
}

// Settled reports whether the settlement key was already paid out.
func (s *Service) Settled(ctx context.Context, key string) (bool, error) {
	return s.ledger.Settled(ctx, key)
}

func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	return s.ledger.Balance(ctx, userID)
}

func (s *Service) Transactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	return s.ledger.Transactions(ctx, userID, limit)
}

// Reconcile logs every wallet whose balance drifted from its transactions.
func (s *Service) Reconcile(ctx context.Context) ([]store.Drift, error) {
	drift, err := s.ledger.Reconcile(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range drift {
		log.Error().Str("component", "economy").Str("user_id", d.UserID).
			Int64("balance", d.Balance).Int64("ledger", d.Ledger).Msg("wallet balance drift")
	}
	return drift, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
