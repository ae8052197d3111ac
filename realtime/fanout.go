package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const fanoutChannel = "game-room-engine:user-messages"

type relayed struct {
	Origin  string          `json:"origin"`
	UserID  string          `json:"user_id"`
	Payload json.RawMessage `json:"payload"`
}

// Fanout relays user-scoped messages between instances over Redis pub/sub.
// Every instance delivers what others publish to its own connections.
type Fanout struct {
	rdb    *redis.Client
	hub    *Hub
	origin string
}

// ConnectRedis parses url and checks the server is reachable.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func NewFanout(rdb *redis.Client, hub *Hub) *Fanout {
	return &Fanout{rdb: rdb, hub: hub, origin: uuid.NewString()}
}

// Publish relays payload for userID to the other instances.
func (f *Fanout) Publish(ctx context.Context, userID string, payload []byte) {
	msg, err := json.Marshal(relayed{Origin: f.origin, UserID: userID, Payload: payload})
	if err != nil {
		return
	}
	if err := f.rdb.Publish(ctx, fanoutChannel, msg).Err(); err != nil {
		log.Warn().Err(err).Str("component", "realtime").Str("user_id", userID).Msg("fanout publish failed")
	}
}

// Run subscribes and delivers relayed messages until ctx is done.
func (f *Fanout) Run(ctx context.Context) error {
	sub := f.rdb.Subscribe(ctx, fanoutChannel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	log.Info().Str("component", "realtime").Str("channel", fanoutChannel).Msg("fanout subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var r relayed
			if err := json.Unmarshal([]byte(m.Payload), &r); err != nil {
				log.Warn().Err(err).Str("component", "realtime").Msg("fanout message dropped")
				continue
			}
			if r.Origin == f.origin {
				continue
			}
			f.hub.deliver(r.UserID, r.Payload)
		}
	}
}
