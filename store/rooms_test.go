package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"game-room-engine/models"
)

func testRooms(t *testing.T, s Rooms) {
	ctx := context.Background()
	room := &models.GameRoom{
		ID:              uuid.NewString(),
		GameType:        "chess",
		Status:          models.RoomWaiting,
		MaxParticipants: 2,
		Bet:             100,
		HostID:          "alice",
		Participants: []models.GameParticipant{
			{UserID: "alice", Seat: 0, IsHost: true, BuyIn: 100, ConnectionStatus: models.Connected, JoinedAt: time.Now()},
		},
	}
	require.NoError(t, s.SaveRoom(ctx, room))

	room.Participants = append(room.Participants, models.GameParticipant{
		UserID: "bob", Seat: 1, BuyIn: 100, ConnectionStatus: models.Connected, JoinedAt: time.Now(),
	})
	room.Status = models.RoomInProgress
	room.Version = 1
	require.NoError(t, s.SaveRoom(ctx, room))

	got, err := s.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomInProgress, got.Status)
	require.Len(t, got.Participants, 2)
	assert.Equal(t, "alice", got.Participants[0].UserID)
	assert.Equal(t, "bob", got.Participants[1].UserID)

	_, err = s.GetRoom(ctx, uuid.NewString())
	assert.ErrorIs(t, err, models.ErrNotFound)

	for v := uint64(1); v <= 3; v++ {
		require.NoError(t, s.AppendMove(ctx, &models.MoveRecord{
			RoomID:        room.ID,
			Version:       v,
			ParticipantID: "alice",
			Type:          "move",
			Payload:       `{"from":"e2","to":"e4"}`,
			Timeout:       v == 3,
		}))
	}
	moves, err := s.Moves(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, moves, 3)
	assert.Equal(t, uint64(1), moves[0].Version)
	assert.True(t, moves[2].Timeout)

	pending, err := s.PendingArchives(ctx, 10)
	require.NoError(t, err)
	for _, p := range pending {
		assert.NotEqual(t, room.ID, p.ID, "in-progress rooms are not archived")
	}

	now := time.Now()
	room.Status = models.RoomFinished
	room.FinishedAt = &now
	require.NoError(t, s.SaveRoom(ctx, room))

	pending, err = s.PendingArchives(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, pending)

	finished, err := s.FinishedRooms(ctx, now.Add(-time.Minute), 100)
	require.NoError(t, err)
	var found *models.GameRoom
	for i := range finished {
		if finished[i].ID == room.ID {
			found = &finished[i]
		}
	}
	require.NotNil(t, found)
	assert.Len(t, found.Participants, 2)
	finished, err = s.FinishedRooms(ctx, now.Add(time.Minute), 100)
	require.NoError(t, err)
	for _, f := range finished {
		assert.NotEqual(t, room.ID, f.ID)
	}

	require.NoError(t, s.MarkArchived(ctx, room.ID, "https://archive/rooms/"+room.ID+".jsonl", now))
	got, err = s.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ArchivedAt)
	assert.Contains(t, got.ArchiveURL, room.ID)
}
