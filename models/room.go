package models

import (
	"time"
)

// Room statuses
const (
	RoomWaiting    = "waiting"
	RoomInProgress = "in_progress"
	RoomFinished   = "finished"
	RoomCancelled  = "cancelled"
)

// Connection statuses
const (
	Connected    = "connected"
	Disconnected = "disconnected"
)

// Game formats
const (
	Format1v1 = "1v1"
	Format2v2 = "2v2"
)

// GameRoom is the persisted snapshot of a room, written on every status
// transition. The live state is held in memory by the room manager.
type GameRoom struct {
	ID              string     `gorm:"primaryKey;type:uuid" json:"id"`
	GameType        string     `gorm:"type:varchar(32);not null;index" json:"game_type"`
	Status          string     `gorm:"type:varchar(16);not null;index" json:"status"`
	MaxParticipants int        `gorm:"not null" json:"max_participants"`
	Bet             int64      `gorm:"not null;default:0" json:"bet"`
	TableType       string     `gorm:"type:varchar(16)" json:"table_type,omitempty"`
	GameFormat      string     `gorm:"type:varchar(8);default:'1v1'" json:"game_format"`
	HostID          string     `gorm:"type:varchar(64)" json:"host_id"`
	TournamentID    *string    `gorm:"type:uuid;index" json:"tournament_id,omitempty"`
	MatchID         *string    `gorm:"type:uuid;uniqueIndex" json:"match_id,omitempty"`
	Version         uint64     `json:"version"`
	WinnerIDs       string     `json:"winner_ids,omitempty"`
	IsDraw          bool       `json:"is_draw"`
	Outcome         string     `gorm:"type:text" json:"-"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	ArchivedAt      *time.Time `gorm:"index" json:"archived_at,omitempty"`
	ArchiveURL      string     `json:"archive_url,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Participants []GameParticipant `gorm:"foreignKey:RoomID" json:"participants,omitempty"`
}

// GameParticipant is a seat in a room.
type GameParticipant struct {
	ID               string    `gorm:"primaryKey;type:uuid" json:"id"`
	RoomID           string    `gorm:"type:uuid;not null;uniqueIndex:idx_room_user" json:"room_id"`
	UserID           string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_room_user" json:"user_id"`
	Seat             int       `json:"seat"`
	IsHost           bool      `json:"is_host"`
	Stack            int64     `json:"stack"`
	Score            int64     `json:"score"`
	BuyIn            int64     `json:"buy_in"`
	ConnectionStatus string    `gorm:"type:varchar(16);default:'connected'" json:"connection_status"`
	JoinedAt         time.Time `json:"joined_at"`
}

// MoveRecord is one entry of the append-only move log used for replay and
// audit. Timeout-driven default moves are recorded with Timeout set.
type MoveRecord struct {
	ID            string     `gorm:"primaryKey;type:uuid" json:"id"`
	RoomID        string     `gorm:"type:uuid;not null;index:idx_room_version" json:"room_id"`
	Version       uint64     `gorm:"not null;index:idx_room_version" json:"version"`
	ParticipantID string     `gorm:"type:varchar(64);not null" json:"participant_id"`
	Type          string     `gorm:"type:varchar(32);not null" json:"type"`
	Payload       string     `gorm:"type:jsonb" json:"payload"`
	Timeout       bool       `json:"timeout"`
	ClientTS      *time.Time `json:"client_ts,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
}
