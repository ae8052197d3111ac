package economy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"game-room-engine/events"
	"game-room-engine/games"
	"game-room-engine/models"
	"game-room-engine/store"
)

func newService(t *testing.T, rake, bonus int64) (*Service, *events.Recorder) {
	t.Helper()
	rec := &events.Recorder{}
	return NewService(store.NewMemoryLedger(), rec, rake, bonus), rec
}

func fund(t *testing.T, s *Service, user string, amount int64) {
	t.Helper()
	_, err := s.Grant(context.Background(), "", user, amount, "seed")
	require.NoError(t, err)
}

func TestPayouts(t *testing.T) {
	stakes := []Stake{{"a", 100}, {"b", 100}}
	tests := []struct {
		name    string
		stakes  []Stake
		outcome games.Outcome
		rake    int64
		bonus   int64
		want    map[string]int64
	}{
		{
			name:    "single winner takes pot plus bonus",
			stakes:  stakes,
			outcome: games.Outcome{Winners: []string{"a"}},
			bonus:   10,
			want:    map[string]int64{"a": 220},
		},
		{
			name:    "rake comes off the pot",
			stakes:  stakes,
			outcome: games.Outcome{Winners: []string{"b"}},
			rake:    5,
			want:    map[string]int64{"b": 190},
		},
		{
			name:    "draw refunds buy-ins",
			stakes:  []Stake{{"a", 100}, {"b", 150}},
			outcome: games.Outcome{Draw: true},
			rake:    5,
			bonus:   10,
			want:    map[string]int64{"a": 100, "b": 150},
		},
		{
			name:    "split pot gives odd coin to first winner",
			stakes:  []Stake{{"a", 101}, {"b", 100}, {"c", 100}},
			outcome: games.Outcome{Winners: []string{"b", "c"}},
			want:    map[string]int64{"b": 151, "c": 150},
		},
		{
			name:   "stacks pay out final chips",
			stakes: []Stake{{"a", 500}, {"b", 300}, {"c", 200}},
			outcome: games.Outcome{
				Winners: []string{"a"},
				Stacks:  map[string]int64{"a": 700, "b": 300, "c": 0},
			},
			bonus: 10,
			want:  map[string]int64{"a": 770, "b": 300},
		},
		{
			name:   "stacks scaled by rake",
			stakes: []Stake{{"a", 500}, {"b", 500}},
			outcome: games.Outcome{
				Winners: []string{"a"},
				Stacks:  map[string]int64{"a": 1000, "b": 0},
			},
			rake: 10,
			want: map[string]int64{"a": 900},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := tt.outcome
			entries := Payouts(Settlement{RoomID: "r", Version: 1, Stakes: tt.stakes, Outcome: &outcome}, tt.rake, tt.bonus)
			got := map[string]int64{}
			for _, e := range entries {
				assert.Positive(t, e.Amount)
				got[e.UserID] += e.Amount
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBonusIsSeparateEntry(t *testing.T) {
	entries := Payouts(Settlement{
		RoomID:  "r",
		Stakes:  []Stake{{"a", 100}, {"b", 100}},
		Outcome: &games.Outcome{Winners: []string{"a"}},
	}, 0, 10)
	require.Len(t, entries, 2)
	assert.Equal(t, models.TxCredit, entries[0].Type)
	assert.Equal(t, int64(200), entries[0].Amount)
	assert.Equal(t, models.TxBonus, entries[1].Type)
	assert.Equal(t, int64(20), entries[1].Amount)
}

func TestReserveAndSettle(t *testing.T) {
	ctx := context.Background()
	svc, rec := newService(t, 0, 10)
	fund(t, svc, "a", 500)
	fund(t, svc, "b", 500)

	var mu sync.Mutex
	updates := map[string]int64{}
	svc.OnBalance(func(user string, bal int64) {
		mu.Lock()
		updates[user] = bal
		mu.Unlock()
	})

	for _, u := range []string{"a", "b"} {
		_, bal, err := svc.Reserve(ctx, Hold{UserID: u, Amount: 100, RoomID: "room-1", Reason: "bet"})
		require.NoError(t, err)
		assert.Equal(t, int64(400), bal)
	}

	st := Settlement{
		RoomID:  "room-1",
		Version: 9,
		Stakes:  []Stake{{"a", 100}, {"b", 100}},
		Outcome: &games.Outcome{Winners: []string{"a"}},
	}
	res, err := svc.Settle(ctx, st)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, int64(620), res.Balances["a"])
	assert.Equal(t, int64(400), res.Balances["b"])
	assert.Equal(t, int64(620), updates["a"])
	assert.Equal(t, int64(400), updates["b"])
	assert.Len(t, rec.Events(events.LedgerSettled), 1)

	// a replay writes nothing
	res, err = svc.Settle(ctx, st)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	bal, err := svc.Balance(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(620), bal)
	assert.Len(t, rec.Events(events.LedgerSettled), 1)

	// the seat reservation is spent, not refundable
	require.NoError(t, svc.ReleaseRoom(ctx, "room-1", "evicted"))
	bal, err = svc.Balance(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, int64(400), bal)

	drift, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, drift)
}

func TestRebuyInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, 0, 10)
	fund(t, svc, "a", 30)

	_, err := svc.Rebuy(ctx, "a", "room-1", 50)
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)
	bal, err := svc.Balance(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(30), bal)

	bal, err = svc.Rebuy(ctx, "a", "room-1", 20)
	require.NoError(t, err)
	assert.Equal(t, int64(10), bal)
}

// stuckLedger fails every Consume.
type stuckLedger struct {
	store.Ledger
}

func (stuckLedger) Consume(context.Context, string) error {
	return errors.New("connection reset")
}

func TestRebuyConsumeFailureRefunds(t *testing.T) {
	ctx := context.Background()
	svc := NewService(stuckLedger{Ledger: store.NewMemoryLedger()}, nil, 0, 0)
	fund(t, svc, "a", 100)

	bal, err := svc.Rebuy(ctx, "a", "room-1", 40)
	require.Error(t, err)
	assert.Equal(t, int64(100), bal)

	held, err := svc.ledger.HeldReservations(ctx, store.ReservationFilter{RoomID: "room-1"})
	require.NoError(t, err)
	assert.Empty(t, held)
	bal, err = svc.Balance(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(100), bal)
}

func TestReleaseRefundsOnce(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, 0, 0)
	fund(t, svc, "a", 200)

	res, _, err := svc.Reserve(ctx, Hold{UserID: "a", Amount: 150, RoomID: "room-2"})
	require.NoError(t, err)

	bal, err := svc.Release(ctx, res.ID, "left")
	require.NoError(t, err)
	assert.Equal(t, int64(200), bal)
	bal, err = svc.Release(ctx, res.ID, "left")
	require.NoError(t, err)
	assert.Equal(t, int64(200), bal)

	none, bal, err := svc.Reserve(ctx, Hold{UserID: "a", Amount: 0})
	require.NoError(t, err)
	assert.Nil(t, none)
	assert.Equal(t, int64(200), bal)
}

func TestRefundAndPrizeIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, 0, 0)

	for i := 0; i < 2; i++ {
		bal, err := svc.AwardPrize(ctx, "prize:t1", "champ", 1000, "t1")
		require.NoError(t, err)
		assert.Equal(t, int64(1000), bal)

		bal, err = svc.Refund(ctx, "refund:t1:u1", "u1", 50, "t1", "tournament cancelled")
		require.NoError(t, err)
		assert.Equal(t, int64(50), bal)
	}

	txs, err := svc.Transactions(ctx, "champ", 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, models.TxTournamentPrize, txs[0].Type)
}

// flakyLedger fails the first few batches.
type flakyLedger struct {
	store.Ledger
	mu       sync.Mutex
	failures int
}

func (f *flakyLedger) ApplyBatch(ctx context.Context, key string, roomID *string, entries []models.Transaction) (bool, map[string]int64, error) {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return false, nil, errors.New("connection reset")
	}
	f.mu.Unlock()
	return f.Ledger.ApplyBatch(ctx, key, roomID, entries)
}

func TestQueueRetriesUntilSettled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ledger := &flakyLedger{Ledger: store.NewMemoryLedger(), failures: 3}
	svc := NewService(ledger, nil, 0, 0)
	q := NewQueue(svc, 4)
	q.newBackOff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }

	settled := make(chan *Result, 1)
	q.OnSettled(func(r *Result) { settled <- r })
	q.Start(ctx, 1)
	defer q.Close()

	require.NoError(t, q.Enqueue(ctx, Settlement{
		RoomID:  "room-3",
		Version: 2,
		Stakes:  []Stake{{"a", 10}, {"b", 10}},
		Outcome: &games.Outcome{Winners: []string{"b"}},
	}))

	select {
	case r := <-settled:
		assert.True(t, r.Applied)
		assert.Equal(t, int64(20), r.Balances["b"])
	case <-time.After(5 * time.Second):
		t.Fatal("settlement was not retried to completion")
	}
	q.Drain()
}

func finishedRoom(id string, finished time.Time, winner string) *models.GameRoom {
	return &models.GameRoom{
		ID:         id,
		GameType:   "tic-tac-toe",
		Status:     models.RoomFinished,
		Bet:        100,
		Version:    7,
		WinnerIDs:  winner,
		Outcome:    `{"winners":["` + winner + `"]}`,
		FinishedAt: &finished,
		Participants: []models.GameParticipant{
			{UserID: "a", Seat: 0, BuyIn: 100},
			{UserID: "b", Seat: 1, BuyIn: 100},
		},
	}
}

func TestRecoverSettlesFinishedRooms(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, _ := newService(t, 0, 0)
	rooms := store.NewMemoryRooms()
	now := time.Now()

	require.NoError(t, rooms.SaveRoom(ctx, finishedRoom("lost-on-restart", now.Add(-time.Minute), "a")))
	require.NoError(t, rooms.SaveRoom(ctx, finishedRoom("too-old", now.Add(-48*time.Hour), "a")))
	tourney := finishedRoom("match", now.Add(-time.Minute), "b")
	tid := "t1"
	tourney.TournamentID = &tid
	require.NoError(t, rooms.SaveRoom(ctx, tourney))
	paid := finishedRoom("paid", now.Add(-time.Minute), "b")
	_, err := svc.Settle(ctx, Settlement{RoomID: "paid", Version: 7, Stakes: []Stake{{"a", 100}, {"b", 100}}, Outcome: &games.Outcome{Winners: []string{"b"}}})
	require.NoError(t, err)
	require.NoError(t, rooms.SaveRoom(ctx, paid))

	q := NewQueue(svc, 4)
	q.Start(ctx, 1)
	defer q.Close()

	n, err := q.Recover(ctx, rooms, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	q.Drain()

	bal, err := svc.Balance(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(200), bal)
	settled, err := svc.Settled(ctx, SettlementKey("lost-on-restart", 7))
	require.NoError(t, err)
	assert.True(t, settled)

	n, err = q.Recover(ctx, rooms, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSettlementFromRoom(t *testing.T) {
	room := finishedRoom("r1", time.Now(), "b")
	room.Outcome = ""
	s, ok, err := SettlementFromRoom(*room)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "settle:r1:7", s.Key())
	assert.Equal(t, []string{"b"}, s.Outcome.Winners)

	room.Participants[0].BuyIn, room.Participants[1].BuyIn = 0, 0
	_, ok, err = SettlementFromRoom(*room)
	require.NoError(t, err)
	assert.False(t, ok)

	room = finishedRoom("r2", time.Now(), "b")
	room.Outcome = "{"
	_, _, err = SettlementFromRoom(*room)
	assert.Error(t, err)
}
