package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"game-room-engine/models"
	"game-room-engine/store"
)

const archiveBatch = 50

// Uploader stores an object and returns its URL.
type Uploader interface {
	Put(ctx context.Context, key, contentType string, body []byte) (string, error)
}

// ArchiveClient moves the logs of finished rooms to object storage.
type ArchiveClient struct {
	Rooms    store.Rooms
	Uploader Uploader
}

func NewArchiveClient(rooms store.Rooms, up Uploader) *ArchiveClient {
	return &ArchiveClient{Rooms: rooms, Uploader: up}
}

// ArchiveKey is the object key of a room's move log.
func ArchiveKey(room models.GameRoom) string {
	at := room.CreatedAt
	if room.FinishedAt != nil {
		at = *room.FinishedAt
	}
	return fmt.Sprintf("rooms/%s/%s/%s.jsonl", room.GameType, at.UTC().Format("2006/01/02"), room.ID)
}

// encodeLog writes the room header followed by one line per move.
func encodeLog(room models.GameRoom, moves []models.MoveRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(room); err != nil {
		return nil, err
	}
	for _, m := range moves {
		if err := enc.Encode(m); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// ArchiveOnce uploads one batch of pending rooms. A room that fails stays
// pending and is retried on the next call.
func (c *ArchiveClient) ArchiveOnce(ctx context.Context) (int, error) {
	pending, err := c.Rooms.PendingArchives(ctx, archiveBatch)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending archives: %w", err)
	}

	archived := 0
	for _, room := range pending {
		moves, err := c.Rooms.Moves(ctx, room.ID)
		if err != nil {
			log.Error().Err(err).Str("component", "archive").Str("room_id", room.ID).Msg("move log not loaded")
			continue
		}
		body, err := encodeLog(room, moves)
		if err != nil {
			log.Error().Err(err).Str("component", "archive").Str("room_id", room.ID).Msg("move log not encoded")
			continue
		}
		url, err := c.Uploader.Put(ctx, ArchiveKey(room), "application/x-ndjson", body)
		if err != nil {
			log.Error().Err(err).Str("component", "archive").Str("room_id", room.ID).Msg("upload failed")
			continue
		}
		if err := c.Rooms.MarkArchived(ctx, room.ID, url, time.Now()); err != nil {
			log.Error().Err(err).Str("component", "archive").Str("room_id", room.ID).Msg("archive not recorded")
			continue
		}
		archived++
	}
	return archived, nil
}

// PollArchives archives finished rooms every pollInterval until ctx is done.
func PollArchives(ctx context.Context, client *ArchiveClient, pollInterval time.Duration) {
	log.Info().Str("component", "archive").Dur("interval", pollInterval).Msg("starting archive polling")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("component", "archive").Msg("archive polling stopped")
			return
		case <-ticker.C:
			n, err := client.ArchiveOnce(ctx)
			if err != nil {
				log.Error().Err(err).Str("component", "archive").Msg("archive poll failed")
				continue
			}
			if n > 0 {
				log.Info().Str("component", "archive").Int("rooms", n).Msg("move logs archived")
			}
		}
	}
}
