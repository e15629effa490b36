package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestBroadcaster(t *testing.T) (*Broadcaster, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewBroadcaster(client, logger), mr
}

func TestChannel(t *testing.T) {
	assert.Equal(t, "room-events:game-42", Channel("game-42"))
}

func TestBroadcaster_SubscribeReceivesEmissions(t *testing.T) {
	b, _ := setupTestBroadcaster(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := b.Subscribe(ctx, "game-1")
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	b.Emit("game-1", "message-stream", "3|1|Hello")
	b.Emit("game-2", "game-block", nil)
	b.Emit("game-1", "game-unblock", nil)

	var got []Event
	for len(got) < 2 {
		select {
		case e := <-sub.Events():
			got = append(got, e)
		case <-ctx.Done():
			t.Fatalf("timed out, got %d events", len(got))
		}
	}

	assert.Equal(t, "message-stream", got[0].Event)
	assert.Equal(t, "game-1", got[0].Room)
	var packet string
	require.NoError(t, json.Unmarshal(got[0].Data, &packet))
	assert.Equal(t, "3|1|Hello", packet)

	assert.Equal(t, "game-unblock", got[1].Event)
	assert.Empty(t, got[1].Data)
}

func TestBroadcaster_PublishErrorsWhenRedisIsDown(t *testing.T) {
	b, mr := setupTestBroadcaster(t)
	mr.Close()

	err := b.Publish(context.Background(), "game-1", "game-block", nil)
	assert.Error(t, err)

	// Emit only logs
	b.Emit("game-1", "game-block", nil)
}

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	b, _ := setupTestBroadcaster(t)
	sub, err := b.Subscribe(context.Background(), "game-1")
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	assert.NoError(t, sub.Close())
}
