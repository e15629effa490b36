package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/closed-ai/internal/session"
)

func TestSessionHandler_SignOut(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := session.NewStore(client, "sess", "connect.sid", "keyboard cat")
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, &session.Session{ID: "sess-1", UserID: "1"}, time.Hour))

	rooms := newFakeRooms()
	r := gin.New()
	NewSessionHandler(store, rooms, testLogger()).Register(r.Group("/api/session", identity))

	req := httptest.NewRequest(http.MethodPost, "/api/session/signout", nil)
	req.Header.Set("X-Test-User", "1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"sess-1"}, rooms.disconnected)

	_, err := store.Get(ctx, "sess-1")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "connect.sid", cookies[0].Name)
	assert.Less(t, cookies[0].MaxAge, 0)
}
