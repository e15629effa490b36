package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/closed-ai/internal/game"
	"github.com/jwebster45206/closed-ai/internal/middleware"
	"github.com/jwebster45206/closed-ai/internal/services"
	"github.com/jwebster45206/closed-ai/internal/session"
	"github.com/jwebster45206/closed-ai/pkg/chat"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRooms struct {
	mu           sync.Mutex
	joined       map[string]string
	disconnected []string
}

func newFakeRooms() *fakeRooms {
	return &fakeRooms{joined: make(map[string]string)}
}

func (f *fakeRooms) JoinSessionToGame(sessionID, gameID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined[sessionID] = gameID
}

func (f *fakeRooms) DisconnectSession(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = append(f.disconnected, sessionID)
}

type nopEmitter struct{}

func (nopEmitter) Emit(string, string, any) {}

type gamesEnv struct {
	router   *gin.Engine
	registry *game.Registry
	llm      *services.MockLLMAPI
	rooms    *fakeRooms
}

// identity signs every request in as the user named by the X-Test-User
// header, using session "sess-{user}".
func identity(c *gin.Context) {
	id := c.GetHeader("X-Test-User")
	if id == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, chat.ErrorResponse{Error: chat.ErrorBody{Msg: "Please sign in to use this endpoint."}})
		return
	}
	middleware.SetIdentity(c, &session.Session{ID: "sess-" + id, UserID: id}, &session.User{ID: id, Name: "Player " + id})
	c.Next()
}

func setupGames(t *testing.T) *gamesEnv {
	t.Helper()
	llm := services.NewMockLLMAPI()
	registry := game.NewRegistry(game.Deps{LLM: llm, Logger: testLogger()}, nopEmitter{}, game.Options{})
	t.Cleanup(func() { _ = registry.Close() })
	rooms := newFakeRooms()

	r := gin.New()
	api := r.Group("/api/games", identity)
	NewGamesHandler(registry, llm, rooms, 0, testLogger()).Register(api)

	return &gamesEnv{router: r, registry: registry, llm: llm, rooms: rooms}
}

func (e *gamesEnv) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp chat.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error.Msg
}
