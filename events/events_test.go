package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	var rec Recorder
	Emit(context.Background(), &rec, RoomFinished, map[string]any{"room_id": "r1", "draw": false})
	Emit(context.Background(), &rec, LedgerSettled, map[string]any{"key": "settle:r1:4"})

	got := rec.Events(RoomFinished)
	require.Len(t, got, 1)
	assert.Equal(t, RoomFinished, got[0].Subject)
	assert.False(t, got[0].OccurredAt.IsZero())

	var payload struct {
		RoomID string `json:"room_id"`
	}
	require.NoError(t, json.Unmarshal(got[0].Data, &payload))
	assert.Equal(t, "r1", payload.RoomID)
	assert.Len(t, rec.Events(""), 2)
}

func TestEncodeRejectsUnmarshalable(t *testing.T) {
	var rec Recorder
	err := rec.Publish(context.Background(), RoomFinished, map[string]any{"bad": make(chan int)})
	assert.Error(t, err)
	assert.Empty(t, rec.Events(""))
}

func TestNopAndNil(t *testing.T) {
	assert.NoError(t, Nop{}.Publish(context.Background(), RoomFinished, nil))
	Emit(context.Background(), nil, RoomFinished, nil)
}
