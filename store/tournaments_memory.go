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

type MemoryTournaments struct {
	mu           sync.RWMutex
	tournaments  map[string]models.Tournament
	participants map[string][]models.TournamentParticipant
	matches      map[string][]models.TournamentMatch
}

func NewMemoryTournaments() *MemoryTournaments {
	return &MemoryTournaments{
		tournaments:  make(map[string]models.Tournament),
		participants: make(map[string][]models.TournamentParticipant),
		matches:      make(map[string][]models.TournamentMatch),
	}
}

func (s *MemoryTournaments) CreateTournament(_ context.Context, t *models.Tournament) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	for _, existing := range s.tournaments {
		if t.Slug != "" && existing.Slug == t.Slug {
			return fmt.Errorf("slug %s already taken", t.Slug)
		}
	}
	now := time.Now()
	t.CreatedAt, t.UpdatedAt = now, now
	c := *t
	c.Participants, c.Matches = nil, nil
	s.tournaments[t.ID] = c
	return nil
}

func (s *MemoryTournaments) SaveTournament(_ context.Context, t *models.Tournament) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tournaments[t.ID]; !ok {
		return fmt.Errorf("tournament %s: %w", t.ID, models.ErrNotFound)
	}
	t.UpdatedAt = time.Now()
	c := *t
	c.Participants, c.Matches = nil, nil
	s.tournaments[t.ID] = c
	return nil
}

func (s *MemoryTournaments) GetTournament(_ context.Context, id string) (*models.Tournament, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tournaments[id]
	if !ok {
		return nil, fmt.Errorf("tournament %s: %w", id, models.ErrNotFound)
	}
	t.Participants = append([]models.TournamentParticipant(nil), s.participants[id]...)
	sort.Slice(t.Participants, func(i, j int) bool { return t.Participants[i].Seed < t.Participants[j].Seed })
	t.Matches = append([]models.TournamentMatch(nil), s.matches[id]...)
	sort.Slice(t.Matches, func(i, j int) bool {
		a, b := t.Matches[i], t.Matches[j]
		if a.Bracket != b.Bracket {
			return a.Bracket < b.Bracket
		}
		if a.Round != b.Round {
			return a.Round < b.Round
		}
		return a.Position < b.Position
	})
	return &t, nil
}

func (s *MemoryTournaments) ListTournaments(_ context.Context, status string) ([]models.Tournament, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Tournament
	for _, t := range s.tournaments {
		if status == "" || t.Status == status {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryTournaments) DueTournaments(_ context.Context, now time.Time) ([]models.Tournament, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Tournament
	for _, t := range s.tournaments {
		if t.Status == models.TournamentRegistering && t.StartAt != nil && !t.StartAt.After(now) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(*out[j].StartAt) })
	return out, nil
}

func (s *MemoryTournaments) AddParticipant(_ context.Context, p *models.TournamentParticipant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.participants[p.TournamentID] {
		if existing.UserID == p.UserID {
			return fmt.Errorf("user %s: %w", p.UserID, models.ErrAlreadyJoined)
		}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.RegisteredAt = time.Now()
	s.participants[p.TournamentID] = append(s.participants[p.TournamentID], *p)
	return nil
}

func (s *MemoryTournaments) RemoveParticipant(_ context.Context, tournamentID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ps := s.participants[tournamentID]
	for i, p := range ps {
		if p.UserID == userID {
			s.participants[tournamentID] = append(ps[:i:i], ps[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("user %s: %w", userID, models.ErrNotParticipant)
}

func (s *MemoryTournaments) SaveParticipant(_ context.Context, p *models.TournamentParticipant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ps := s.participants[p.TournamentID]
	for i := range ps {
		if ps[i].ID == p.ID {
			ps[i] = *p
			return nil
		}
	}
	return fmt.Errorf("participant %s: %w", p.ID, models.ErrNotFound)
}

func (s *MemoryTournaments) SaveMatch(_ context.Context, m *models.TournamentMatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	m.UpdatedAt = now
	ms := s.matches[m.TournamentID]
	if m.ID != "" {
		for i := range ms {
			if ms[i].ID == m.ID {
				ms[i] = *m
				return nil
			}
		}
	} else {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = now
	s.matches[m.TournamentID] = append(ms, *m)
	return nil
}
