package realtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/closed-ai/internal/game"
	"github.com/jwebster45206/closed-ai/internal/services"
	"github.com/jwebster45206/closed-ai/internal/session"
	"github.com/jwebster45206/closed-ai/pkg/chat"
)

type emitted struct {
	Event string
	Args  []interface{}
}

type fakeConn struct {
	id     string
	header http.Header

	mu      sync.Mutex
	ctx     interface{}
	emitted []emitted
	rooms   []string
	closed  bool
}

func newFakeConn(cookie string) *fakeConn {
	h := http.Header{}
	if cookie != "" {
		h.Set("Cookie", "closed-ai="+cookie)
	}
	return &fakeConn{id: "conn-1", header: h}
}

func (c *fakeConn) ID() string                { return c.id }
func (c *fakeConn) RemoteHeader() http.Header { return c.header }

func (c *fakeConn) Context() interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

func (c *fakeConn) SetContext(ctx interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctx = ctx
}

func (c *fakeConn) Emit(event string, v ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitted = append(c.emitted, emitted{Event: event, Args: v})
}

func (c *fakeConn) Join(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms = append(c.rooms, room)
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) joined() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.rooms...)
}

func (c *fakeConn) errors() []chat.ErrorBody {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []chat.ErrorBody
	for _, e := range c.emitted {
		if e.Event == game.EventError {
			out = append(out, e.Args[0].(chat.ErrorResponse).Error)
		}
	}
	return out
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []string
	rooms  []string
}

func (r *recordingEmitter) Emit(room, event string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.rooms = append(r.rooms, room)
}

func (r *recordingEmitter) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == event {
			n++
		}
	}
	return n
}

type testEnv struct {
	gw       *Gateway
	registry *game.Registry
	llm      *services.MockLLMAPI
	sessions *session.Store
	notices  *recordingEmitter
}

func setupGateway(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := session.NewStore(client, "closed-ai-session", "closed-ai", "")
	users := session.NewUsers(client)
	ctx := context.Background()
	require.NoError(t, sessions.Save(ctx, &session.Session{ID: "s1", UserID: "u1"}, time.Hour))
	require.NoError(t, sessions.Save(ctx, &session.Session{ID: "s-ghost", UserID: "ghost"}, time.Hour))
	require.NoError(t, users.Put(ctx, session.User{ID: "u1", Name: "Ann"}))

	llm := services.NewMockLLMAPI()
	registry := game.NewRegistry(game.Deps{LLM: llm, Logger: logger}, &recordingEmitter{}, game.Options{})
	notices := &recordingEmitter{}
	gw := NewGateway(sessions, users, Config{Notifier: notices}, logger)
	gw.Bind(registry)
	t.Cleanup(func() {
		gw.Wait()
		_ = registry.Close()
	})

	return &testEnv{gw: gw, registry: registry, llm: llm, sessions: sessions, notices: notices}
}

func connect(t *testing.T, env *testEnv) *fakeConn {
	t.Helper()
	c := newFakeConn("s1")
	require.NoError(t, env.gw.onConnect(c))
	require.False(t, c.isClosed())
	return c
}

func TestGateway_ConnectRejectsAnonymous(t *testing.T) {
	env := setupGateway(t)

	tests := []struct {
		name   string
		cookie string
	}{
		{"no cookie", ""},
		{"unknown session", "nope"},
		{"unknown user", "s-ghost"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newFakeConn(tt.cookie)
			require.NoError(t, env.gw.onConnect(c))
			assert.True(t, c.isClosed())
			assert.Nil(t, c.Context())
		})
	}
}

func TestGateway_ConnectJoinsRooms(t *testing.T) {
	env := setupGateway(t)

	c := connect(t, env)
	assert.Equal(t, &ConnContext{SessionID: "s1", UserID: "u1", UserName: "Ann"}, c.Context())
	assert.Equal(t, []string{"session-s1"}, c.joined())

	g, err := env.registry.Create("u1", []string{"Horror"})
	require.NoError(t, err)
	c2 := connect(t, env)
	assert.Equal(t, []string{"session-s1", "game-" + g.ID()}, c2.joined())
}

func TestGateway_UserGameInputValidation(t *testing.T) {
	env := setupGateway(t)
	c := connect(t, env)

	env.gw.onUserGameInput(c, "look around")
	env.gw.onUserGameInput(c, map[string]interface{}{"msg": 12})
	env.gw.onUserGameInput(c, map[string]interface{}{"msg": "look"})

	assert.Equal(t, []chat.ErrorBody{
		{Msg: msgBadFormat, Status: http.StatusUnprocessableEntity},
		{Msg: msgBadFormat, Status: http.StatusUnprocessableEntity},
		{Msg: msgNotInGame, Status: http.StatusNotFound},
	}, c.errors())
}

func TestGateway_StartGame(t *testing.T) {
	env := setupGateway(t)
	c := connect(t, env)

	env.gw.onStartGame(c)
	env.gw.Wait()
	assert.Equal(t, []chat.ErrorBody{{Msg: msgNotInGame, Status: http.StatusNotFound}}, c.errors())

	g, err := env.registry.Create("u1", nil)
	require.NoError(t, err)
	env.gw.onStartGame(c)
	env.gw.Wait()
	assert.True(t, g.Started())
	assert.Contains(t, c.joined(), game.GameRoom(g.ID()))
	assert.Len(t, g.History(), 1)

	env.gw.onStartGame(c)
	env.gw.Wait()
	errs := c.errors()
	require.Len(t, errs, 2)
	assert.Equal(t, chat.ErrorBody{Msg: msgGameStarted, Status: http.StatusConflict}, errs[1])
}

func TestGateway_UserGameInput(t *testing.T) {
	env := setupGateway(t)
	c := connect(t, env)
	g, err := env.registry.Create("u1", nil)
	require.NoError(t, err)

	env.gw.onUserGameInput(c, map[string]interface{}{"msg": "I open the door"})
	env.gw.Wait()
	g.Wait()

	assert.Empty(t, c.errors())
	history := g.History()
	require.Len(t, history, 2)
	assert.Equal(t, chat.ClientEvent{Type: chat.ClientEventPlayer, Author: "Ann", Content: "I open the door", SentAt: history[0].SentAt}, history[0])
	assert.Equal(t, 1, env.notices.count(game.EventStoryComplete))
}

func TestGateway_UserGameInputWhileBlocked(t *testing.T) {
	env := setupGateway(t)
	c := connect(t, env)
	g, err := env.registry.Create("u1", nil)
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	env.llm.StreamChatFunc = func(context.Context, []chat.ChatMessage, services.ChatOptions) (io.ReadCloser, error) {
		close(entered)
		<-release
		return services.MockStream("Slowly"), nil
	}

	env.gw.onUserGameInput(c, map[string]interface{}{"msg": "first"})
	<-entered
	env.gw.onUserGameInput(c, map[string]interface{}{"msg": "second"})

	require.Eventually(t, func() bool { return len(c.errors()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, chat.ErrorBody{Msg: msgQueueBlocked, Status: http.StatusConflict}, c.errors()[0])

	close(release)
	env.gw.Wait()
	g.Wait()
	assert.Equal(t, 1, env.notices.count(game.EventStoryComplete))
}

func TestGateway_StartGameWhileBlocked(t *testing.T) {
	env := setupGateway(t)
	c := connect(t, env)
	g, err := env.registry.Create("u1", nil)
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	env.llm.StreamChatFunc = func(context.Context, []chat.ChatMessage, services.ChatOptions) (io.ReadCloser, error) {
		close(entered)
		<-release
		return services.MockStream("Slowly"), nil
	}

	env.gw.onUserGameInput(c, map[string]interface{}{"msg": "first"})
	<-entered
	env.gw.onStartGame(c)

	require.Eventually(t, func() bool { return len(c.errors()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, chat.ErrorBody{Msg: msgQueueBlocked, Status: http.StatusConflict}, c.errors()[0])
	assert.False(t, g.Started())

	close(release)
	env.gw.Wait()
	g.Wait()
	assert.Len(t, c.errors(), 1)
}

type brokenStream struct{ sent bool }

func (b *brokenStream) Read(p []byte) (int, error) {
	if !b.sent {
		b.sent = true
		return copy(p, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"The door\"}}]}\n"), nil
	}
	return 0, errors.New("connection reset by peer")
}

func TestGateway_UserGameInputInterruptedStream(t *testing.T) {
	env := setupGateway(t)
	c := connect(t, env)
	g, err := env.registry.Create("u1", nil)
	require.NoError(t, err)

	env.llm.StreamChatFunc = func(context.Context, []chat.ChatMessage, services.ChatOptions) (io.ReadCloser, error) {
		return io.NopCloser(&brokenStream{}), nil
	}

	env.gw.onUserGameInput(c, map[string]interface{}{"msg": "I open the door"})
	env.gw.Wait()
	g.Wait()

	assert.Equal(t, []chat.ErrorBody{{Msg: msgUnknown, Status: http.StatusInternalServerError}}, c.errors())
	assert.Empty(t, g.History())
	assert.Equal(t, 0, env.notices.count(game.EventStoryComplete))
}

func TestGateway_ReauthDisconnectsEndedSessions(t *testing.T) {
	env := setupGateway(t)
	ctx := context.Background()

	t.Run("signed out", func(t *testing.T) {
		c := connect(t, env)
		require.NoError(t, env.sessions.Delete(ctx, "s1"))
		t.Cleanup(func() {
			_ = env.sessions.Save(ctx, &session.Session{ID: "s1", UserID: "u1"}, time.Hour)
		})

		env.gw.onStartGame(c)
		assert.True(t, c.isClosed())
		assert.Empty(t, c.errors())
	})

	t.Run("different user", func(t *testing.T) {
		c := connect(t, env)
		require.NoError(t, env.sessions.Save(ctx, &session.Session{ID: "s1", UserID: "u2"}, time.Hour))
		t.Cleanup(func() {
			_ = env.sessions.Save(ctx, &session.Session{ID: "s1", UserID: "u1"}, time.Hour)
		})

		env.gw.onUserGameInput(c, map[string]interface{}{"msg": "hi"})
		assert.True(t, c.isClosed())
	})

	t.Run("no login context", func(t *testing.T) {
		c := newFakeConn("s1")
		env.gw.onStartGame(c)
		assert.True(t, c.isClosed())
	})
}
