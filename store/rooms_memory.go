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

type MemoryRooms struct {
	mu    sync.RWMutex
	rooms map[string]models.GameRoom
	moves map[string][]models.MoveRecord
}

func NewMemoryRooms() *MemoryRooms {
	return &MemoryRooms{
		rooms: make(map[string]models.GameRoom),
		moves: make(map[string][]models.MoveRecord),
	}
}

func copyRoom(room *models.GameRoom) models.GameRoom {
	c := *room
	c.Participants = append([]models.GameParticipant(nil), room.Participants...)
	return c
}

func (r *MemoryRooms) SaveRoom(_ context.Context, room *models.GameRoom) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if prev, ok := r.rooms[room.ID]; ok {
		room.CreatedAt = prev.CreatedAt
	} else if room.CreatedAt.IsZero() {
		room.CreatedAt = now
	}
	room.UpdatedAt = now
	for i := range room.Participants {
		room.Participants[i].RoomID = room.ID
		if room.Participants[i].ID == "" {
			room.Participants[i].ID = uuid.NewString()
		}
	}
	r.rooms[room.ID] = copyRoom(room)
	return nil
}

func (r *MemoryRooms) GetRoom(_ context.Context, id string) (*models.GameRoom, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[id]
	if !ok {
		return nil, fmt.Errorf("room %s: %w", id, models.ErrNotFound)
	}
	c := copyRoom(&room)
	return &c, nil
}

func (r *MemoryRooms) AppendMove(_ context.Context, m *models.MoveRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	r.moves[m.RoomID] = append(r.moves[m.RoomID], *m)
	return nil
}

func (r *MemoryRooms) Moves(_ context.Context, roomID string) ([]models.MoveRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.MoveRecord(nil), r.moves[roomID]...), nil
}

func (r *MemoryRooms) PendingArchives(_ context.Context, limit int) ([]models.GameRoom, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.GameRoom
	for _, room := range r.rooms {
		done := room.Status == models.RoomFinished || room.Status == models.RoomCancelled
		if done && room.ArchivedAt == nil {
			out = append(out, copyRoom(&room))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRooms) MarkArchived(_ context.Context, roomID, url string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return fmt.Errorf("room %s: %w", roomID, models.ErrNotFound)
	}
	room.ArchivedAt = &at
	room.ArchiveURL = url
	r.rooms[roomID] = room
	return nil
}

func (r *MemoryRooms) FinishedRooms(_ context.Context, since time.Time, limit int) ([]models.GameRoom, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.GameRoom
	for _, room := range r.rooms {
		if room.Status != models.RoomFinished || room.TournamentID != nil || room.FinishedAt == nil {
			continue
		}
		if room.FinishedAt.After(since) {
			out = append(out, copyRoom(&room))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FinishedAt.Before(*out[j].FinishedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
