package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"game-room-engine/models"
)

type GormTournaments struct {
	db *gorm.DB
}

func NewGormTournaments(db *gorm.DB) *GormTournaments {
	return &GormTournaments{db: db}
}

func (s *GormTournaments) CreateTournament(ctx context.Context, t *models.Tournament) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(t).Error
}

func (s *GormTournaments) SaveTournament(ctx context.Context, t *models.Tournament) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Save(t).Error
}

func (s *GormTournaments) GetTournament(ctx context.Context, id string) (*models.Tournament, error) {
	var t models.Tournament
	err := s.db.WithContext(ctx).
		Preload("Participants", func(db *gorm.DB) *gorm.DB { return db.Order("seed") }).
		Preload("Matches", func(db *gorm.DB) *gorm.DB { return db.Order("bracket, round, position") }).
		Where("id = ?", id).
		First(&t).Error
	if err != nil {
		return nil, notFound(err, "tournament "+id)
	}
	return &t, nil
}

func (s *GormTournaments) ListTournaments(ctx context.Context, status string) ([]models.Tournament, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []models.Tournament
	err := q.Find(&out).Error
	return out, err
}

func (s *GormTournaments) DueTournaments(ctx context.Context, now time.Time) ([]models.Tournament, error) {
	var out []models.Tournament
	err := s.db.WithContext(ctx).
		Where("status = ? AND start_at IS NOT NULL AND start_at <= ?", models.TournamentRegistering, now).
		Order("start_at").
		Find(&out).Error
	return out, err
}

func (s *GormTournaments) AddParticipant(ctx context.Context, p *models.TournamentParticipant) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	err := s.db.WithContext(ctx).Create(p).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("user %s: %w", p.UserID, models.ErrAlreadyJoined)
	}
	return err
}

func (s *GormTournaments) RemoveParticipant(ctx context.Context, tournamentID, userID string) error {
	res := s.db.WithContext(ctx).
		Where("tournament_id = ? AND user_id = ?", tournamentID, userID).
		Delete(&models.TournamentParticipant{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %s: %w", userID, models.ErrNotParticipant)
	}
	return nil
}

func (s *GormTournaments) SaveParticipant(ctx context.Context, p *models.TournamentParticipant) error {
	return s.db.WithContext(ctx).Save(p).Error
}

func (s *GormTournaments) SaveMatch(ctx context.Context, m *models.TournamentMatch) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Save(m).Error
}
