// Package session reads the login sessions and user records written by the
// authentication service. It never creates sessions for real users; that is
// the auth service's job.
package session

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrNoSession        = errors.New("no session cookie")
	ErrInvalidSignature = errors.New("session cookie signature mismatch")
	ErrSessionNotFound  = errors.New("session not found")
	ErrUserNotFound     = errors.New("user not found")
)

const signedPrefix = "s:"

// Session is the part of a stored session the engine cares about.
type Session struct {
	ID     string `json:"-"`
	UserID string `json:"userId"`
}

// Authenticated reports whether the session belongs to a signed-in user.
func (s *Session) Authenticated() bool {
	return s != nil && s.UserID != ""
}

// UnmarshalJSON accepts numeric and string user ids.
func (s *Session) UnmarshalJSON(data []byte) error {
	var raw struct {
		UserID json.RawMessage `json:"userId"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.UserID = ""
	if len(raw.UserID) == 0 || string(raw.UserID) == "null" {
		return nil
	}
	var str string
	if err := json.Unmarshal(raw.UserID, &str); err == nil {
		s.UserID = str
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(raw.UserID, &num); err != nil {
		return fmt.Errorf("unsupported userId %s", raw.UserID)
	}
	s.UserID = num.String()
	return nil
}

// Store loads sessions from Redis.
type Store struct {
	client     *redis.Client
	prefix     string
	cookieName string
	secret     string
}

// NewStore creates a store for sessions saved under "{prefix}:{sid}". When
// secret is set, cookies must carry a valid "s:{sid}.{signature}" value.
func NewStore(client *redis.Client, prefix, cookieName, secret string) *Store {
	return &Store{
		client:     client,
		prefix:     prefix,
		cookieName: cookieName,
		secret:     secret,
	}
}

func (s *Store) CookieName() string { return s.cookieName }

func (s *Store) key(sid string) string {
	return s.prefix + ":" + sid
}

// SessionID extracts the session id from the session cookie of r.
func (s *Store) SessionID(r *http.Request) (string, error) {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil || cookie.Value == "" {
		return "", ErrNoSession
	}
	return s.Unsign(cookie.Value)
}

// Unsign decodes a cookie value into a session id.
func (s *Store) Unsign(value string) (string, error) {
	if unescaped, err := url.QueryUnescape(value); err == nil {
		value = unescaped
	}
	if !strings.HasPrefix(value, signedPrefix) {
		if s.secret != "" {
			return "", ErrInvalidSignature
		}
		return value, nil
	}

	value = strings.TrimPrefix(value, signedPrefix)
	dot := strings.LastIndex(value, ".")
	if dot < 0 {
		return "", ErrInvalidSignature
	}
	sid, sig := value[:dot], value[dot+1:]
	if s.secret != "" && !hmac.Equal([]byte(sig), []byte(Sign(sid, s.secret))) {
		return "", ErrInvalidSignature
	}
	return sid, nil
}

// Sign computes the cookie signature of sid: unpadded base64 of its
// HMAC-SHA256 under secret.
func Sign(sid, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(sid))
	return base64.RawStdEncoding.EncodeToString(mac.Sum(nil))
}

// Get loads a session. A missing key gives ErrSessionNotFound.
func (s *Store) Get(ctx context.Context, sid string) (*Session, error) {
	data, err := s.client.Get(ctx, s.key(sid)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	sess.ID = sid
	return &sess, nil
}

// Save stores a session with the given lifetime. Used by tooling and tests.
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sess.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Delete signs the session out.
func (s *Store) Delete(ctx context.Context, sid string) error {
	if err := s.client.Del(ctx, s.key(sid)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
