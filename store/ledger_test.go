package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"game-room-engine/models"
)

func grant(t *testing.T, l Ledger, userID string, amount int64) {
	t.Helper()
	_, _, err := l.ApplyBatch(context.Background(), "grant:"+uuid.NewString(), nil, []models.Transaction{
		{UserID: userID, Type: models.TxCredit, Amount: amount, Reason: "test grant"},
	})
	require.NoError(t, err)
}

func testLedger(t *testing.T, l Ledger) {
	ctx := context.Background()

	t.Run("reserve and release", func(t *testing.T) {
		user := uuid.NewString()
		room := uuid.NewString()
		grant(t, l, user, 500)

		res := &models.Reservation{UserID: user, RoomID: &room, Amount: 100, Type: models.TxDebit, Reason: "bet"}
		bal, err := l.Reserve(ctx, res)
		require.NoError(t, err)
		assert.Equal(t, int64(400), bal)
		assert.NotEmpty(t, res.ID)

		held, err := l.HeldReservations(ctx, ReservationFilter{RoomID: room})
		require.NoError(t, err)
		require.Len(t, held, 1)
		assert.Equal(t, res.ID, held[0].ID)

		released, bal, err := l.Release(ctx, res.ID, "left room")
		require.NoError(t, err)
		assert.Equal(t, models.ReservationReleased, released.Status)
		assert.Equal(t, int64(500), bal)

		// releasing twice refunds once
		_, bal, err = l.Release(ctx, res.ID, "left room")
		require.NoError(t, err)
		assert.Equal(t, int64(500), bal)

		txs, err := l.Transactions(ctx, user, 10)
		require.NoError(t, err)
		assert.Len(t, txs, 3)
	})

	t.Run("insufficient funds writes nothing", func(t *testing.T) {
		user := uuid.NewString()
		grant(t, l, user, 30)

		bal, err := l.Reserve(ctx, &models.Reservation{UserID: user, Amount: 50, Type: models.TxDebit})
		assert.ErrorIs(t, err, models.ErrInsufficientFunds)
		assert.Equal(t, int64(30), bal, "a refused reserve reports the current balance")

		bal, err = l.Balance(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, int64(30), bal)
		txs, err := l.Transactions(ctx, user, 10)
		require.NoError(t, err)
		assert.Len(t, txs, 1)
	})

	t.Run("consume keeps the debit", func(t *testing.T) {
		user := uuid.NewString()
		grant(t, l, user, 100)

		res := &models.Reservation{UserID: user, Amount: 60, Type: models.TxDebit}
		_, err := l.Reserve(ctx, res)
		require.NoError(t, err)
		require.NoError(t, l.Consume(ctx, res.ID))

		got, err := l.Reservation(ctx, res.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ReservationConsumed, got.Status)

		_, bal, err := l.Release(ctx, res.ID, "too late")
		require.NoError(t, err)
		assert.Equal(t, int64(40), bal)

		assert.ErrorIs(t, l.Consume(ctx, uuid.NewString()), models.ErrNotFound)
	})

	t.Run("batch is idempotent", func(t *testing.T) {
		user := uuid.NewString()
		room := uuid.NewString()
		key := "settle:" + room + ":7"
		entries := []models.Transaction{
			{UserID: user, RoomID: &room, Type: models.TxCredit, Amount: 200},
			{UserID: user, RoomID: &room, Type: models.TxBonus, Amount: 20},
		}

		settled, err := l.Settled(ctx, key)
		require.NoError(t, err)
		assert.False(t, settled)

		applied, bals, err := l.ApplyBatch(ctx, key, &room, entries)
		require.NoError(t, err)
		assert.True(t, applied)
		settled, err = l.Settled(ctx, key)
		require.NoError(t, err)
		assert.True(t, settled)
		assert.Equal(t, int64(220), bals[user])

		applied, bals, err = l.ApplyBatch(ctx, key, &room, entries)
		require.NoError(t, err)
		assert.False(t, applied)
		assert.Equal(t, int64(220), bals[user])
	})

	t.Run("concurrent reserves never overdraw", func(t *testing.T) {
		user := uuid.NewString()
		grant(t, l, user, 300)

		var ok atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := l.Reserve(ctx, &models.Reservation{UserID: user, Amount: 100, Type: models.TxDebit})
				if err == nil {
					ok.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(3), ok.Load())
		bal, err := l.Balance(ctx, user)
		require.NoError(t, err)
		assert.Zero(t, bal)
	})

	t.Run("reconcile finds no drift", func(t *testing.T) {
		drift, err := l.Reconcile(ctx)
		require.NoError(t, err)
		assert.Empty(t, drift)
	})
}
