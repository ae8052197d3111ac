package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"game-room-engine/models"
)

// MemoryLedger is a Ledger held in process memory. A single mutex makes each
// operation atomic.
type MemoryLedger struct {
	mu           sync.Mutex
	balances     map[string]int64
	transactions []models.Transaction
	reservations map[string]*models.Reservation
	settlements  map[string]models.SettlementRecord
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances:     make(map[string]int64),
		reservations: make(map[string]*models.Reservation),
		settlements:  make(map[string]models.SettlementRecord),
	}
}

func (l *MemoryLedger) record(t models.Transaction) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Currency == "" {
		t.Currency = models.CurrencyCoin
	}
	t.CreatedAt = time.Now()
	l.balances[t.UserID] += t.Amount
	l.transactions = append(l.transactions, t)
}

func (l *MemoryLedger) Reserve(_ context.Context, res *models.Reservation) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[res.UserID] < res.Amount {
		return l.balances[res.UserID], fmt.Errorf("user %s: %w", res.UserID, models.ErrInsufficientFunds)
	}
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	now := time.Now()
	res.Status = models.ReservationHeld
	res.TransactionID = uuid.NewString()
	res.CreatedAt, res.UpdatedAt = now, now
	id := res.ID
	l.record(models.Transaction{
		ID:            res.TransactionID,
		UserID:        res.UserID,
		RoomID:        res.RoomID,
		TournamentID:  res.TournamentID,
		ReservationID: &id,
		Type:          res.Type,
		Amount:        -res.Amount,
		Reason:        res.Reason,
	})
	stored := *res
	l.reservations[res.ID] = &stored
	return l.balances[res.UserID], nil
}

func (l *MemoryLedger) Release(_ context.Context, reservationID, reason string) (*models.Reservation, int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, ok := l.reservations[reservationID]
	if !ok {
		return nil, 0, fmt.Errorf("reservation %s: %w", reservationID, models.ErrNotFound)
	}
	if res.Status == models.ReservationHeld {
		id := res.ID
		l.record(models.Transaction{
			UserID:        res.UserID,
			RoomID:        res.RoomID,
			TournamentID:  res.TournamentID,
			ReservationID: &id,
			Type:          models.TxRefund,
			Amount:        res.Amount,
			Reason:        reason,
		})
		res.Status = models.ReservationReleased
		res.UpdatedAt = time.Now()
	}
	out := *res
	return &out, l.balances[res.UserID], nil
}

func (l *MemoryLedger) Consume(_ context.Context, reservationID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, ok := l.reservations[reservationID]
	if !ok {
		return fmt.Errorf("reservation %s: %w", reservationID, models.ErrNotFound)
	}
	if res.Status == models.ReservationHeld {
		res.Status = models.ReservationConsumed
		res.UpdatedAt = time.Now()
	}
	return nil
}

func (l *MemoryLedger) ApplyBatch(_ context.Context, key string, roomID *string, entries []models.Transaction) (bool, map[string]int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	balances := make(map[string]int64)
	_, replay := l.settlements[key]
	if !replay {
		// check every entry first so a failing batch writes nothing
		next := make(map[string]int64)
		for _, e := range entries {
			if _, ok := next[e.UserID]; !ok {
				next[e.UserID] = l.balances[e.UserID]
			}
			next[e.UserID] += e.Amount
			if next[e.UserID] < 0 {
				return false, nil, fmt.Errorf("user %s: %w", e.UserID, models.ErrInsufficientFunds)
			}
		}
		for _, e := range entries {
			e.SettlementKey = key
			l.record(e)
		}
		l.settlements[key] = models.SettlementRecord{Key: key, RoomID: roomID, Entries: len(entries), CreatedAt: time.Now()}
	}
	for _, e := range entries {
		balances[e.UserID] = l.balances[e.UserID]
	}
	return !replay, balances, nil
}

func (l *MemoryLedger) Reservation(_ context.Context, id string) (*models.Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, ok := l.reservations[id]
	if !ok {
		return nil, fmt.Errorf("reservation %s: %w", id, models.ErrNotFound)
	}
	out := *res
	return &out, nil
}

func (l *MemoryLedger) HeldReservations(_ context.Context, f ReservationFilter) ([]models.Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []models.Reservation
	for _, res := range l.reservations {
		if res.Status == models.ReservationHeld && f.match(res) {
			out = append(out, *res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (l *MemoryLedger) Balance(_ context.Context, userID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID], nil
}

func (l *MemoryLedger) Transactions(_ context.Context, userID string, limit int) ([]models.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	var out []models.Transaction
	for i := len(l.transactions) - 1; i >= 0 && len(out) < limit; i-- {
		if l.transactions[i].UserID == userID {
			out = append(out, l.transactions[i])
		}
	}
	return out, nil
}

func (l *MemoryLedger) Reconcile(context.Context) ([]Drift, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sums := make(map[string]int64)
	for _, t := range l.transactions {
		sums[t.UserID] += t.Amount
	}
	var out []Drift
	for user, bal := range l.balances {
		if sums[user] != bal {
			out = append(out, Drift{UserID: user, Balance: bal, Ledger: sums[user]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (l *MemoryLedger) Settled(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.settlements[key]
	return ok, nil
}
