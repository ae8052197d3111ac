package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// redisClient starts a throwaway Redis. It skips in -short mode and when no
// container runtime is reachable.
func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	tc.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get redis connection string: %v", err)
	}
	rdb, err := ConnectRedis(ctx, uri)
	if err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestFanoutAcrossInstances(t *testing.T) {
	rdb := redisClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	local, remote := NewHub(), NewHub()
	local.UseFanout(NewFanout(rdb, local))
	remoteFanout := NewFanout(rdb, remote)
	remote.UseFanout(remoteFanout)
	go func() { _ = remoteFanout.Run(ctx) }()

	here := NewClient("alice", nil)
	there := NewClient("alice", nil)
	local.Register(here)
	remote.Register(there)

	// the subscription may not be confirmed yet, so keep sending until it lands
	require.Eventually(t, func() bool {
		local.SendToUser("alice", "game_update", "room-1", map[string]int{"version": 1})
		return len(there.send) > 0
	}, 10*time.Second, 100*time.Millisecond)

	env := next(t, there)
	assert.Equal(t, "game_update", env.Type)
	assert.Equal(t, "room-1", env.RoomID)
	assert.JSONEq(t, `{"version":1}`, string(env.Data))
	assert.NotEmpty(t, here.send, "the sender's own connections get it directly")
}

func TestFanoutSkipsOwnMessages(t *testing.T) {
	rdb := redisClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHub()
	f := NewFanout(rdb, h)
	h.UseFanout(f)
	go func() { _ = f.Run(ctx) }()

	c := NewClient("bob", nil)
	h.Register(c)

	require.Eventually(t, func() bool {
		n, err := rdb.PubSubNumSub(ctx, fanoutChannel).Result()
		return err == nil && n[fanoutChannel] > 0
	}, 10*time.Second, 50*time.Millisecond)

	h.SendToUser("bob", "game_update", "room-1", nil)
	time.Sleep(200 * time.Millisecond)
	assert.Len(t, c.send, 1)
}

func TestConnectRedisRejectsBadURL(t *testing.T) {
	_, err := ConnectRedis(context.Background(), "://nope")
	assert.Error(t, err)
}
