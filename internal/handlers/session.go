package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwebster45206/closed-ai/internal/middleware"
	"github.com/jwebster45206/closed-ai/internal/session"
)

// SessionHandler serves /api/session.
type SessionHandler struct {
	sessions *session.Store
	rooms    SocketRooms
	logger   *slog.Logger
}

func NewSessionHandler(sessions *session.Store, rooms SocketRooms, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, rooms: rooms, logger: logger}
}

func (h *SessionHandler) Register(r gin.IRouter) {
	r.POST("/signout", h.SignOut)
}

// SignOut ends the session and drops its socket connections.
func (h *SessionHandler) SignOut(c *gin.Context) {
	sess, ok := middleware.Session(c)
	if !ok {
		respondWithError(c, http.StatusUnauthorized, msgUnknownUser)
		return
	}
	if err := h.sessions.Delete(c.Request.Context(), sess.ID); err != nil {
		h.logger.Error("Failed to delete session", "error", err)
		respondWithError(c, http.StatusInternalServerError, msgUnknown)
		return
	}
	h.rooms.DisconnectSession(sess.ID)
	c.SetCookie(h.sessions.CookieName(), "", -1, "/", "", false, true)
	c.Status(http.StatusNoContent)
}
