// Package store persists the ledger, room snapshots and tournaments. Every
// repository has a gorm implementation for Postgres and an in-memory one used
// when no database is configured and in tests.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"game-room-engine/models"
)

// Ledger is the coin ledger. Every balance change is a Transaction row written
// in the same database transaction as the cached Wallet balance.
type Ledger interface {
	// Reserve debits res.Amount and records the reservation as held. It fails
	// with ErrInsufficientFunds without writing anything.
	Reserve(ctx context.Context, res *models.Reservation) (int64, error)
	// Release refunds a held reservation. A reservation that is no longer held
	// is returned unchanged.
	Release(ctx context.Context, reservationID, reason string) (*models.Reservation, int64, error)
	// Consume marks a held reservation as spent.
	Consume(ctx context.Context, reservationID string) error
	// ApplyBatch writes entries once per key. A replayed key writes nothing
	// and reports applied=false; balances are returned either way.
	ApplyBatch(ctx context.Context, key string, roomID *string, entries []models.Transaction) (applied bool, balances map[string]int64, err error)
	Reservation(ctx context.Context, id string) (*models.Reservation, error)
	HeldReservations(ctx context.Context, f ReservationFilter) ([]models.Reservation, error)
	Balance(ctx context.Context, userID string) (int64, error)
	Transactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error)
	// Settled reports whether a batch was written under key.
	Settled(ctx context.Context, key string) (bool, error)
	// Reconcile lists wallets whose cached balance differs from the sum of
	// their transactions.
	Reconcile(ctx context.Context) ([]Drift, error)
}

// ReservationFilter selects held reservations.
type ReservationFilter struct {
	UserID       string
	RoomID       string
	TournamentID string
}

func (f ReservationFilter) match(r *models.Reservation) bool {
	if f.UserID != "" && r.UserID != f.UserID {
		return false
	}
	if f.RoomID != "" && (r.RoomID == nil || *r.RoomID != f.RoomID) {
		return false
	}
	if f.TournamentID != "" && (r.TournamentID == nil || *r.TournamentID != f.TournamentID) {
		return false
	}
	return true
}

// Drift is a wallet out of line with its transactions.
type Drift struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
	Ledger  int64  `json:"ledger"`
}

// Rooms stores room snapshots and the append-only move log.
type Rooms interface {
	SaveRoom(ctx context.Context, room *models.GameRoom) error
	GetRoom(ctx context.Context, id string) (*models.GameRoom, error)
	AppendMove(ctx context.Context, m *models.MoveRecord) error
	Moves(ctx context.Context, roomID string) ([]models.MoveRecord, error)
	// PendingArchives returns finished rooms whose move log is not archived.
	PendingArchives(ctx context.Context, limit int) ([]models.GameRoom, error)
	MarkArchived(ctx context.Context, roomID, url string, at time.Time) error
	// FinishedRooms returns finished rooms outside tournaments whose finish
	// time is after since, oldest first, with their participants.
	FinishedRooms(ctx context.Context, since time.Time, limit int) ([]models.GameRoom, error)
}

// Tournaments stores tournaments with their participants and matches.
type Tournaments interface {
	CreateTournament(ctx context.Context, t *models.Tournament) error
	// SaveTournament updates the tournament row only, not its associations.
	SaveTournament(ctx context.Context, t *models.Tournament) error
	GetTournament(ctx context.Context, id string) (*models.Tournament, error)
	ListTournaments(ctx context.Context, status string) ([]models.Tournament, error)
	// DueTournaments returns registering tournaments whose start time passed.
	DueTournaments(ctx context.Context, now time.Time) ([]models.Tournament, error)
	AddParticipant(ctx context.Context, p *models.TournamentParticipant) error
	RemoveParticipant(ctx context.Context, tournamentID, userID string) error
	SaveParticipant(ctx context.Context, p *models.TournamentParticipant) error
	SaveMatch(ctx context.Context, m *models.TournamentMatch) error
}

// Store bundles the repositories.
type Store struct {
	Ledger      Ledger
	Rooms       Rooms
	Tournaments Tournaments
}

// NewMemory returns a store held entirely in memory.
func NewMemory() *Store {
	return &Store{
		Ledger:      NewMemoryLedger(),
		Rooms:       NewMemoryRooms(),
		Tournaments: NewMemoryTournaments(),
	}
}

// NewGorm returns a store backed by db.
func NewGorm(db *gorm.DB) *Store {
	return &Store{
		Ledger:      NewGormLedger(db),
		Rooms:       NewGormRooms(db),
		Tournaments: NewGormTournaments(db),
	}
}

// Open connects to Postgres and migrates the schema.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates every table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Wallet{},
		&models.Transaction{},
		&models.Reservation{},
		&models.SettlementRecord{},
		&models.GameRoom{},
		&models.GameParticipant{},
		&models.MoveRecord{},
		&models.Tournament{},
		&models.TournamentParticipant{},
		&models.TournamentMatch{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, models.ErrNotFound)
	}
	return err
}
