package handlers

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/closed-ai/internal/game"
	"github.com/jwebster45206/closed-ai/internal/services"
	"github.com/jwebster45206/closed-ai/internal/services/events"
	"github.com/jwebster45206/closed-ai/pkg/chat"
)

// readEvent reads lines up to the next blank line and returns the event name
// and data, skipping comments.
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var name, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if name != "" {
				return name, data
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestEventsHandler_Stream(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	broadcaster := events.NewBroadcaster(client, testLogger())

	llm := services.NewMockLLMAPI()
	registry := game.NewRegistry(game.Deps{LLM: llm, Logger: testLogger()}, nopEmitter{}, game.Options{})
	t.Cleanup(func() { _ = registry.Close() })
	g, err := registry.Create("1", []string{"Horror"})
	require.NoError(t, err)

	gamesHandler := NewGamesHandler(registry, llm, newFakeRooms(), 0, testLogger())
	r := gin.New()
	api := r.Group("/api/games", identity)
	NewEventsHandler(gamesHandler, broadcaster, testLogger()).Register(api)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	t.Run("outsider is rejected", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/games/"+g.ID()+"/events", nil)
		require.NoError(t, err)
		req.Header.Set("X-Test-User", "2")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("relays room events", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/games/"+g.ID()+"/events", nil)
		require.NoError(t, err)
		req.Header.Set("X-Test-User", "1")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

		reader := bufio.NewReader(resp.Body)
		name, data := readEvent(t, reader)
		assert.Equal(t, "connected", name)
		assert.JSONEq(t, `{"gameId":"`+g.ID()+`","blocked":false}`, data)

		packet := chat.FormatPacket(chat.Packet{StreamID: 4, PacketID: 1, Delta: "Drip."})
		require.NoError(t, broadcaster.Publish(ctx, game.GameRoom(g.ID()), game.EventMessageStream, packet))
		require.NoError(t, broadcaster.Publish(ctx, game.GameRoom(g.ID()), game.EventGameBlock, nil))

		name, data = readEvent(t, reader)
		assert.Equal(t, game.EventMessageStream, name)
		assert.Equal(t, `"4|1|Drip."`, data)

		name, data = readEvent(t, reader)
		assert.Equal(t, game.EventGameBlock, name)
		assert.Equal(t, "null", data)
	})
}
