package models

import (
	"time"
)

// Match statuses
const (
	MatchPending    = "pending"
	MatchReady      = "ready"
	MatchInProgress = "in_progress"
	MatchCompleted  = "completed"
	MatchCancelled  = "cancelled"
)

// Bracket sides
const (
	BracketWinners    = "winners"
	BracketLosers     = "losers"
	BracketGrandFinal = "grand_final"
	BracketMain       = "main"
)

// TournamentMatch pairs two participants of a tournament. WinnerID is set
// exactly once, from the terminal result of the match's room (or at creation
// for a bye).
type TournamentMatch struct {
	ID             string     `json:"id" gorm:"primaryKey;type:uuid"`
	TournamentID   string     `json:"tournament_id" gorm:"type:uuid;not null;index"`
	Bracket        string     `json:"bracket" gorm:"type:varchar(16);default:'main'"`
	Round          int        `json:"round" gorm:"not null"`
	Position       int        `json:"position" gorm:"not null"`
	Participant1ID string     `json:"participant1_id,omitempty" gorm:"type:varchar(64)"`
	Participant2ID string     `json:"participant2_id,omitempty" gorm:"type:varchar(64)"`
	Player1Score   int64      `json:"player1_score"`
	Player2Score   int64      `json:"player2_score"`
	RoomID         *string    `json:"room_id,omitempty" gorm:"type:uuid;uniqueIndex"`
	WinnerID       string     `json:"winner_id,omitempty" gorm:"type:varchar(64)"`
	LoserID        string     `json:"loser_id,omitempty" gorm:"type:varchar(64)"`
	IsDraw         bool       `json:"is_draw"`
	IsBye          bool       `json:"is_bye"`
	Status         string     `json:"status" gorm:"type:varchar(16);default:'pending'"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// ParticipantIDs returns the seated participants of the match.
func (m *TournamentMatch) ParticipantIDs() []string {
	var ids []string
	if m.Participant1ID != "" {
		ids = append(ids, m.Participant1ID)
	}
	if m.Participant2ID != "" {
		ids = append(ids, m.Participant2ID)
	}
	return ids
}

// Resolved reports whether the match has a final result.
func (m *TournamentMatch) Resolved() bool {
	return m.Status == MatchCompleted
}

// Has reports whether userID plays in the match.
func (m *TournamentMatch) Has(userID string) bool {
	return userID != "" && (m.Participant1ID == userID || m.Participant2ID == userID)
}
