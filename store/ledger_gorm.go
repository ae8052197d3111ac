package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"game-room-engine/models"
)

// GormLedger is the Postgres ledger. Debits use a conditional update so the
// balance check and the write are one statement.
type GormLedger struct {
	db *gorm.DB
}

func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{db: db}
}

func ensureWallet(tx *gorm.DB, userID string) error {
	return tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Wallet{UserID: userID}).Error
}

// adjust moves a wallet balance by delta, refusing to go below zero.
func adjust(tx *gorm.DB, userID string, delta int64) error {
	if err := ensureWallet(tx, userID); err != nil {
		return err
	}
	res := tx.Model(&models.Wallet{}).
		Where("user_id = ? AND balance + ? >= 0", userID, delta).
		Update("balance", gorm.Expr("balance + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %s: %w", userID, models.ErrInsufficientFunds)
	}
	return nil
}

func balanceOf(tx *gorm.DB, userID string) (int64, error) {
	var w models.Wallet
	err := tx.Where("user_id = ?", userID).Limit(1).Find(&w).Error
	return w.Balance, err
}

func (l *GormLedger) Reserve(ctx context.Context, res *models.Reservation) (int64, error) {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	res.Status = models.ReservationHeld

	var balance int64
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := adjust(tx, res.UserID, -res.Amount); err != nil {
			return err
		}
		txn := models.Transaction{
			ID:            uuid.NewString(),
			UserID:        res.UserID,
			RoomID:        res.RoomID,
			TournamentID:  res.TournamentID,
			ReservationID: &res.ID,
			Type:          res.Type,
			Amount:        -res.Amount,
			Currency:      models.CurrencyCoin,
			Reason:        res.Reason,
		}
		res.TransactionID = txn.ID
		if err := tx.Create(res).Error; err != nil {
			return err
		}
		if err := tx.Create(&txn).Error; err != nil {
			return err
		}
		var err error
		balance, err = balanceOf(tx, res.UserID)
		return err
	})
	if errors.Is(err, models.ErrInsufficientFunds) {
		if bal, berr := balanceOf(l.db.WithContext(ctx), res.UserID); berr == nil {
			balance = bal
		}
	}
	return balance, err
}

func (l *GormLedger) Release(ctx context.Context, reservationID, reason string) (*models.Reservation, int64, error) {
	var res models.Reservation
	var balance int64
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", reservationID).First(&res).Error; err != nil {
			return notFound(err, "reservation "+reservationID)
		}
		if res.Status == models.ReservationHeld {
			if err := adjust(tx, res.UserID, res.Amount); err != nil {
				return err
			}
			refund := models.Transaction{
				ID:            uuid.NewString(),
				UserID:        res.UserID,
				RoomID:        res.RoomID,
				TournamentID:  res.TournamentID,
				ReservationID: &res.ID,
				Type:          models.TxRefund,
				Amount:        res.Amount,
				Currency:      models.CurrencyCoin,
				Reason:        reason,
			}
			if err := tx.Create(&refund).Error; err != nil {
				return err
			}
			res.Status = models.ReservationReleased
			if err := tx.Model(&res).Update("status", res.Status).Error; err != nil {
				return err
			}
		}
		var err error
		balance, err = balanceOf(tx, res.UserID)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return &res, balance, nil
}

func (l *GormLedger) Consume(ctx context.Context, reservationID string) error {
	res := l.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("id = ? AND status = ?", reservationID, models.ReservationHeld).
		Update("status", models.ReservationConsumed)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := l.Reservation(ctx, reservationID); err != nil {
			return err
		}
	}
	return nil
}

func (l *GormLedger) ApplyBatch(ctx context.Context, key string, roomID *string, entries []models.Transaction) (bool, map[string]int64, error) {
	applied := false
	balances := make(map[string]int64)
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := models.SettlementRecord{Key: key, RoomID: roomID, Entries: len(entries)}
		created := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
		if created.Error != nil {
			return created.Error
		}
		if created.RowsAffected > 0 {
			applied = true
			for i := range entries {
				e := entries[i]
				if e.ID == "" {
					e.ID = uuid.NewString()
				}
				if e.Currency == "" {
					e.Currency = models.CurrencyCoin
				}
				e.SettlementKey = key
				if err := adjust(tx, e.UserID, e.Amount); err != nil {
					return err
				}
				if err := tx.Create(&e).Error; err != nil {
					return err
				}
			}
		}
		for _, e := range entries {
			b, err := balanceOf(tx, e.UserID)
			if err != nil {
				return err
			}
			balances[e.UserID] = b
		}
		return nil
	})
	if err != nil {
		return false, nil, err
	}
	return applied, balances, nil
}

func (l *GormLedger) Reservation(ctx context.Context, id string) (*models.Reservation, error) {
	var res models.Reservation
	if err := l.db.WithContext(ctx).Where("id = ?", id).First(&res).Error; err != nil {
		return nil, notFound(err, "reservation "+id)
	}
	return &res, nil
}

func (l *GormLedger) HeldReservations(ctx context.Context, f ReservationFilter) ([]models.Reservation, error) {
	q := l.db.WithContext(ctx).Where("status = ?", models.ReservationHeld)
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.RoomID != "" {
		q = q.Where("room_id = ?", f.RoomID)
	}
	if f.TournamentID != "" {
		q = q.Where("tournament_id = ?", f.TournamentID)
	}
	var out []models.Reservation
	err := q.Order("created_at").Find(&out).Error
	return out, err
}

func (l *GormLedger) Balance(ctx context.Context, userID string) (int64, error) {
	return balanceOf(l.db.WithContext(ctx), userID)
}

func (l *GormLedger) Transactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []models.Transaction
	err := l.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (l *GormLedger) Reconcile(ctx context.Context) ([]Drift, error) {
	var out []Drift
	err := l.db.WithContext(ctx).Raw(`
		SELECT w.user_id, w.balance, COALESCE(SUM(t.amount), 0) AS ledger
		FROM wallets w
		LEFT JOIN transactions t ON t.user_id = w.user_id
		GROUP BY w.user_id, w.balance
		HAVING w.balance <> COALESCE(SUM(t.amount), 0)`).
		Scan(&out).Error
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, err
}

func (l *GormLedger) Settled(ctx context.Context, key string) (bool, error) {
	var n int64
	err := l.db.WithContext(ctx).Model(&models.SettlementRecord{}).Where("key = ?", key).Count(&n).Error
	return n > 0, err
}
