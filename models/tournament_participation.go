package models

import (
	"time"
)

// TournamentParticipant = registration + standings summary
type TournamentParticipant struct {
	ID            string `gorm:"primaryKey;type:uuid" json:"id"`
	TournamentID  string `gorm:"type:uuid;not null;uniqueIndex:idx_tournament_user" json:"tournament_id"`
	UserID        string `gorm:"type:varchar(64);not null;uniqueIndex:idx_tournament_user" json:"user_id"`
	Seed          int    `json:"seed"` // registration order, 1-based
	ReservationID string `gorm:"type:uuid" json:"reservation_id,omitempty"`

	// Standings
	Points       int   `json:"points" gorm:"default:0"`
	Wins         int   `json:"wins" gorm:"default:0"`
	Losses       int   `json:"losses" gorm:"default:0"`
	Draws        int   `json:"draws" gorm:"default:0"`
	ScoreFor     int64 `json:"score_for" gorm:"default:0"`
	ScoreAgainst int64 `json:"score_against" gorm:"default:0"`
	HadBye       bool  `json:"had_bye" gorm:"default:false"`
	FinalRank    int   `json:"final_rank" gorm:"default:0"` // 0 = not ranked

	// Status
	Status       string    `json:"status" gorm:"type:varchar(16);default:'registered'"` // registered → active → eliminated | champion | refunded
	RegisteredAt time.Time `json:"registered_at" gorm:"autoCreateTime"`
}

// Participant statuses
const (
	ParticipantRegistered = "registered"
	ParticipantActive     = "active"
	ParticipantEliminated = "eliminated"
	ParticipantChampion   = "champion"
	ParticipantRefunded   = "refunded"
)

// Differential is the tie-break score.
func (p *TournamentParticipant) Differential() int64 {
	return p.ScoreFor - p.ScoreAgainst
}
