package session

import (
	"context"
	"net/http"
)

// Authenticator resolves a request to its session and user.
type Authenticator struct {
	Sessions *Store
	Users    *Users
}

func NewAuthenticator(sessions *Store, users *Users) *Authenticator {
	return &Authenticator{Sessions: sessions, Users: users}
}

// Authenticate returns ErrNoSession, ErrInvalidSignature or
// ErrSessionNotFound when the request is not signed in, and ErrUserNotFound
// when the session points at an unknown account.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (*Session, *User, error) {
	sid, err := a.Sessions.SessionID(r)
	if err != nil {
		return nil, nil, err
	}
	sess, err := a.Sessions.Get(ctx, sid)
	if err != nil {
		return nil, nil, err
	}
	if !sess.Authenticated() {
		return nil, nil, ErrSessionNotFound
	}
	user, err := a.Users.Get(ctx, sess.UserID)
	if err != nil {
		return nil, nil, err
	}
	return sess, user, nil
}
