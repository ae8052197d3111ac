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

func testTournaments(t *testing.T, s Tournaments) {
	ctx := context.Background()
	past := time.Now().Add(-time.Minute)
	tour := &models.Tournament{
		Name:            "Spring Open",
		Slug:            "spring-open-" + uuid.NewString()[:8],
		Type:            models.SingleElimination,
		GameType:        "chess",
		Status:          models.TournamentRegistering,
		MaxParticipants: 8,
		MinParticipants: 2,
		StartAt:         &past,
	}
	require.NoError(t, s.CreateTournament(ctx, tour))
	require.NotEmpty(t, tour.ID)

	for i, user := range []string{"u1", "u2", "u3"} {
		require.NoError(t, s.AddParticipant(ctx, &models.TournamentParticipant{
			TournamentID: tour.ID,
			UserID:       user,
			Seed:         i + 1,
			Status:       models.ParticipantRegistered,
		}))
	}
	err := s.AddParticipant(ctx, &models.TournamentParticipant{TournamentID: tour.ID, UserID: "u2", Seed: 4})
	assert.ErrorIs(t, err, models.ErrAlreadyJoined)

	require.NoError(t, s.RemoveParticipant(ctx, tour.ID, "u3"))
	assert.ErrorIs(t, s.RemoveParticipant(ctx, tour.ID, "u3"), models.ErrNotParticipant)

	due, err := s.DueTournaments(ctx, time.Now())
	require.NoError(t, err)
	found := false
	for _, d := range due {
		found = found || d.ID == tour.ID
	}
	assert.True(t, found)

	match := &models.TournamentMatch{
		TournamentID:   tour.ID,
		Bracket:        models.BracketMain,
		Round:          1,
		Position:       0,
		Participant1ID: "u1",
		Participant2ID: "u2",
		Status:         models.MatchReady,
	}
	require.NoError(t, s.SaveMatch(ctx, match))
	match.Status = models.MatchCompleted
	match.WinnerID = "u1"
	match.LoserID = "u2"
	require.NoError(t, s.SaveMatch(ctx, match))

	tour.Status = models.TournamentActive
	tour.CurrentRound = 1
	require.NoError(t, s.SaveTournament(ctx, tour))

	got, err := s.GetTournament(ctx, tour.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TournamentActive, got.Status)
	require.Len(t, got.Participants, 2)
	assert.Equal(t, "u1", got.Participants[0].UserID)
	require.Len(t, got.Matches, 1)
	assert.Equal(t, "u1", got.Matches[0].WinnerID)

	p := got.Participants[0]
	p.Points = 2
	p.Wins = 1
	require.NoError(t, s.SaveParticipant(ctx, &p))
	got, err = s.GetTournament(ctx, tour.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Participants[0].Points)

	active, err := s.ListTournaments(ctx, models.TournamentActive)
	require.NoError(t, err)
	assert.NotEmpty(t, active)

	_, err = s.GetTournament(ctx, uuid.NewString())
	assert.ErrorIs(t, err, models.ErrNotFound)
}
