package models

import (
	"time"
)

// Transaction types
const (
	TxDebit           = "debit"
	TxCredit          = "credit"
	TxRefund          = "refund"
	TxBonus           = "bonus"
	TxPenalty         = "penalty"
	TxTournamentEntry = "tournament_entry"
	TxTournamentPrize = "tournament_prize"
)

// Reservation statuses
const (
	ReservationHeld     = "held"
	ReservationConsumed = "consumed"
	ReservationReleased = "released"
)

const CurrencyCoin = "COIN"

// Wallet caches the running coin balance of a user.
// The balance must always equal the sum of the user's transactions.
type Wallet struct {
	UserID    string    `gorm:"primaryKey;type:varchar(64)" json:"user_id"`
	Balance   int64     `gorm:"not null;default:0" json:"balance"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Transaction is one immutable entry of the coin ledger.
// Debits carry negative amounts.
type Transaction struct {
	ID            string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID        string    `gorm:"type:varchar(64);not null;index" json:"user_id"`
	RoomID        *string   `gorm:"type:uuid;index" json:"room_id,omitempty"`
	TournamentID  *string   `gorm:"type:uuid;index" json:"tournament_id,omitempty"`
	ReservationID *string   `gorm:"type:uuid;index" json:"reservation_id,omitempty"`
	SettlementKey string    `gorm:"type:varchar(128);index" json:"settlement_key,omitempty"`
	Type          string    `gorm:"type:varchar(32);not null;check:type IN ('debit','credit','refund','bonus','penalty','tournament_entry','tournament_prize')" json:"type"`
	Amount        int64     `gorm:"not null" json:"amount"`
	Currency      string    `gorm:"type:varchar(8);not null;default:'COIN'" json:"currency"`
	Reason        string    `json:"reason,omitempty"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Reservation is a provisional debit held until the seat (or entry) it paid
// for is confirmed, or refunded when it is released.
type Reservation struct {
	ID            string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID        string    `gorm:"type:varchar(64);not null;index" json:"user_id"`
	RoomID        *string   `gorm:"type:uuid;index" json:"room_id,omitempty"`
	TournamentID  *string   `gorm:"type:uuid;index" json:"tournament_id,omitempty"`
	Amount        int64     `gorm:"not null" json:"amount"`
	Type          string    `gorm:"type:varchar(32);not null" json:"type"`
	Reason        string    `json:"reason"`
	Status        string    `gorm:"type:varchar(16);not null;default:'held'" json:"status"`
	TransactionID string    `gorm:"type:uuid" json:"transaction_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// SettlementRecord makes a batch of ledger entries idempotent: the key is
// unique, so a replayed batch is detected and skipped.
type SettlementRecord struct {
	Key       string    `gorm:"primaryKey;type:varchar(128)" json:"key"`
	RoomID    *string   `gorm:"type:uuid;index" json:"room_id,omitempty"`
	Entries   int       `json:"entries"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
