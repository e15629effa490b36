package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwebster45206/closed-ai/internal/session"
	"github.com/jwebster45206/closed-ai/pkg/chat"
)

const (
	sessionKey = "session"
	userKey    = "user"

	msgSignIn = "Please sign in to use this endpoint."
)

// Authenticator resolves the session and user of a request.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (*session.Session, *session.User, error)
}

// Auth rejects requests without a signed-in session and stores the session
// and user on the context for handlers.
func Auth(auth Authenticator, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, user, err := auth.Authenticate(c.Request.Context(), c.Request)
		if err != nil {
			if !isSignedOut(err) {
				logger.Error("Failed to authenticate request", "error", err, "path", c.Request.URL.Path)
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, chat.ErrorResponse{Error: chat.ErrorBody{Msg: msgSignIn}})
			return
		}
		c.Set(sessionKey, sess)
		c.Set(userKey, user)
		c.Next()
	}
}

func isSignedOut(err error) bool {
	return errors.Is(err, session.ErrNoSession) ||
		errors.Is(err, session.ErrInvalidSignature) ||
		errors.Is(err, session.ErrSessionNotFound) ||
		errors.Is(err, session.ErrUserNotFound)
}

// Session returns the session stored by Auth.
func Session(c *gin.Context) (*session.Session, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil, false
	}
	sess, ok := v.(*session.Session)
	return sess, ok
}

// User returns the user stored by Auth.
func User(c *gin.Context) (*session.User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*session.User)
	return user, ok
}

// SetIdentity stores a session and user on the context. Tests use it to skip
// Auth.
func SetIdentity(c *gin.Context, sess *session.Session, user *session.User) {
	c.Set(sessionKey, sess)
	c.Set(userKey, user)
}
