package models

import (
	"time"
)

// Tournament formats
const (
	SingleElimination = "single_elimination"
	DoubleElimination = "double_elimination"
	RoundRobin        = "round_robin"
	Swiss             = "swiss"
)

// Tournament statuses
const (
	TournamentPreparing   = "preparing"
	TournamentRegistering = "registering"
	TournamentActive      = "active"
	TournamentCompleted   = "completed"
	TournamentCancelled   = "cancelled"
)

// Tournament is a bracketed competition whose matches are played in rooms.
type Tournament struct {
	ID              string     `json:"id" gorm:"primaryKey;type:uuid"`
	Name            string     `json:"name" gorm:"not null"`
	Slug            string     `json:"slug" gorm:"type:varchar(160);uniqueIndex"`
	Type            string     `json:"type" gorm:"type:varchar(32);not null"`
	GameType        string     `json:"game_type" gorm:"type:varchar(32);not null"`
	Status          string     `json:"status" gorm:"type:varchar(16);default:'preparing';index"`
	MaxParticipants int        `json:"max_participants" gorm:"default:16"`
	MinParticipants int        `json:"min_participants" gorm:"default:2"`
	EntryFeeCoins   int64      `json:"entry_fee_coins" gorm:"default:0"`
	BasePrize       int64      `json:"base_prize" gorm:"default:0"`
	PrizePool       int64      `json:"prize_pool" gorm:"default:0"`
	Rounds          int        `json:"rounds" gorm:"default:0"`
	CurrentRound    int        `json:"current_round" gorm:"default:0"`
	CreatorID       string     `json:"creator_id" gorm:"type:varchar(64)"`
	ChampionID      string     `json:"champion_id,omitempty" gorm:"type:varchar(64)"`
	CancelReason    string     `json:"cancel_reason,omitempty"`
	StartAt         *time.Time `json:"start_at,omitempty" gorm:"index"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time  `json:"updated_at" gorm:"autoUpdateTime"`

	// Relationships
	Participants []TournamentParticipant `json:"participants,omitempty" gorm:"foreignKey:TournamentID"`
	Matches      []TournamentMatch       `json:"matches,omitempty" gorm:"foreignKey:TournamentID"`
}

// IsTerminal reports whether the tournament can no longer change.
func (t *Tournament) IsTerminal() bool {
	return t.Status == TournamentCompleted || t.Status == TournamentCancelled
}
