// Package realtime is the socket.io gateway players use to drive their game
// and receive its broadcasts.
package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	socketio "github.com/googollee/go-socket.io"

	"github.com/jwebster45206/closed-ai/internal/game"
	"github.com/jwebster45206/closed-ai/internal/session"
	"github.com/jwebster45206/closed-ai/pkg/chat"
)

const namespace = "/"

// Client to server events.
const (
	EventStartGame     = "start-game"
	EventUserGameInput = "user-game-input"
)

const (
	msgNotInGame      = "You are not currently in a game. Please join a game first."
	msgGameStarted    = "Game already started."
	msgBadFormat      = "Incorrect format."
	msgQueueBlocked   = "Generating response, please be patient."
	msgUnknown        = "Unknown error."
	storyCompleteText = "Story generation completed!"
)

// Conn is the part of a socket connection the gateway uses. socketio.Conn
// satisfies it.
type Conn interface {
	ID() string
	Context() interface{}
	SetContext(ctx interface{})
	RemoteHeader() http.Header
	Emit(event string, v ...interface{})
	Join(room string)
	Close() error
}

// ConnContext is what a connection remembers about its login.
type ConnContext struct {
	SessionID string
	UserID    string
	UserName  string
}

// Games finds the game a player is in.
type Games interface {
	GetByPlayer(playerID string) (*game.SinglePlayerGame, bool)
}

// Sessions loads login sessions.
type Sessions interface {
	SessionID(r *http.Request) (string, error)
	Get(ctx context.Context, sid string) (*session.Session, error)
}

// Users resolves account ids.
type Users interface {
	Get(ctx context.Context, id string) (*session.User, error)
}

// Config tunes the gateway. Zero durations pick the defaults.
type Config struct {
	SessionTimeout time.Duration
	ActionTimeout  time.Duration
	// Notifier receives story-complete notices. Defaults to the gateway.
	Notifier game.Emitter
}

// Gateway owns the socket.io server.
type Gateway struct {
	io       *socketio.Server
	sessions Sessions
	users    Users
	games    Games
	cfg      Config
	logger   *slog.Logger

	inflight sync.WaitGroup
}

func NewGateway(sessions Sessions, users Users, cfg Config, logger *slog.Logger) *Gateway {
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 2 * time.Second
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 2 * time.Minute
	}
	g := &Gateway{
		io:       socketio.NewServer(nil),
		sessions: sessions,
		users:    users,
		cfg:      cfg,
		logger:   logger,
	}
	if g.cfg.Notifier == nil {
		g.cfg.Notifier = g
	}
	return g
}

// Bind registers the socket handlers against games. It must be called once
// before Mount.
func (g *Gateway) Bind(games Games) {
	g.games = games

	g.io.OnConnect(namespace, func(s socketio.Conn) error {
		return g.onConnect(s)
	})
	g.io.OnEvent(namespace, EventStartGame, func(s socketio.Conn) {
		g.onStartGame(s)
	})
	g.io.OnEvent(namespace, EventUserGameInput, func(s socketio.Conn, payload interface{}) {
		g.onUserGameInput(s, payload)
	})
	g.io.OnError(namespace, func(s socketio.Conn, e error) {
		if s == nil {
			g.logger.Error("Socket error", "error", e)
			return
		}
		g.logger.Error("Socket error", "sid", s.ID(), "error", e)
	})
	g.io.OnDisconnect(namespace, func(s socketio.Conn, reason string) {
		g.logger.Debug("Socket disconnected", "sid", s.ID(), "reason", reason)
	})
}

// UseRedis relays room broadcasts through Redis so every process reaches its
// own connections.
func (g *Gateway) UseRedis(opts *socketio.RedisAdapterOptions) error {
	ok, err := g.io.Adapter(opts)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("socket.io redis adapter not enabled")
	}
	g.logger.Info("Socket.io redis adapter enabled", "addr", opts.Addr)
	return nil
}

// Mount serves the socket.io endpoints on r.
func (g *Gateway) Mount(r *gin.Engine) {
	go func() {
		if err := g.io.Serve(); err != nil {
			g.logger.Error("Socket.io server stopped", "error", err)
		}
	}()

	r.GET("/socket.io/*any", gin.WrapH(g.io))
	r.POST("/socket.io/*any", gin.WrapH(g.io))
}

// Close stops the socket server and waits for in-flight game work.
func (g *Gateway) Close() error {
	err := g.io.Close()
	g.Wait()
	return err
}

// Wait blocks until every game operation started by a socket event is done.
func (g *Gateway) Wait() {
	g.inflight.Wait()
}

// Emit implements game.Emitter.
func (g *Gateway) Emit(room, event string, payload any) {
	if payload == nil {
		g.io.BroadcastToRoom(namespace, room, event)
		return
	}
	g.io.BroadcastToRoom(namespace, room, event, payload)
}

// JoinSessionToGame puts every connection of a session into the game room.
func (g *Gateway) JoinSessionToGame(sessionID, gameID string) {
	for _, c := range g.sessionConns(sessionID) {
		c.Join(game.GameRoom(gameID))
	}
}

// DisconnectSession closes every connection of a session.
func (g *Gateway) DisconnectSession(sessionID string) {
	for _, c := range g.sessionConns(sessionID) {
		if err := c.Close(); err != nil {
			g.logger.Debug("Failed to close socket", "sid", c.ID(), "error", err)
		}
	}
}

// sessionConns collects the local connections of a session. Joining or
// closing inside ForEach would deadlock on the room lock.
func (g *Gateway) sessionConns(sessionID string) []socketio.Conn {
	var conns []socketio.Conn
	g.io.ForEach(namespace, game.SessionRoom(sessionID), func(c socketio.Conn) {
		conns = append(conns, c)
	})
	return conns
}

func (g *Gateway) onConnect(s Conn) error {
	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.SessionTimeout)
	defer cancel()

	r := &http.Request{Header: s.RemoteHeader()}
	sid, err := g.sessions.SessionID(r)
	if err != nil {
		g.logger.Debug("Socket without session", "sid", s.ID(), "error", err)
		return g.reject(s)
	}
	sess, err := g.sessions.Get(ctx, sid)
	if err != nil || !sess.Authenticated() {
		g.logger.Debug("Socket session not signed in", "sid", s.ID(), "error", err)
		return g.reject(s)
	}
	user, err := g.users.Get(ctx, sess.UserID)
	if err != nil {
		g.logger.Warn("Socket user lookup failed", "sid", s.ID(), "user_id", sess.UserID, "error", err)
		return g.reject(s)
	}

	s.SetContext(&ConnContext{SessionID: sid, UserID: user.ID, UserName: user.Name})
	s.Join(game.SessionRoom(sid))
	if gm, ok := g.games.GetByPlayer(user.ID); ok {
		s.Join(game.GameRoom(gm.ID()))
	}
	g.logger.Info("Socket connected", "sid", s.ID(), "user_id", user.ID)
	return nil
}

func (g *Gateway) reject(s Conn) error {
	_ = s.Close()
	return nil
}

// reauth reloads the session of s and drops the connection when it is gone
// or now belongs to someone else. Every event handler starts with it.
func (g *Gateway) reauth(s Conn) (*ConnContext, bool) {
	cc, ok := s.Context().(*ConnContext)
	if !ok || cc == nil {
		_ = s.Close()
		return nil, false
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.SessionTimeout)
	defer cancel()

	sess, err := g.sessions.Get(ctx, cc.SessionID)
	if err != nil || sess.ID != cc.SessionID || sess.UserID != cc.UserID {
		g.logger.Info("Socket session ended, disconnecting", "sid", s.ID(), "error", err)
		_ = s.Close()
		return nil, false
	}
	return cc, true
}

func (g *Gateway) sendError(s Conn, status int, msg string) {
	s.Emit(game.EventError, chat.ErrorResponse{Error: chat.ErrorBody{Msg: msg, Status: status}})
}

func (g *Gateway) onStartGame(s Conn) {
	cc, ok := g.reauth(s)
	if !ok {
		return
	}
	gm, ok := g.games.GetByPlayer(cc.UserID)
	if !ok {
		g.sendError(s, http.StatusNotFound, msgNotInGame)
		return
	}
	if gm.Started() {
		g.sendError(s, http.StatusConflict, msgGameStarted)
		return
	}
	s.Join(game.GameRoom(gm.ID()))

	g.inflight.Add(1)
	go func() {
		defer g.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), g.cfg.ActionTimeout)
		defer cancel()

		err := gm.Init(ctx)
		switch {
		case err == nil:
		case errors.Is(err, game.ErrGameStarted):
			g.sendError(s, http.StatusConflict, msgGameStarted)
		case errors.Is(err, game.ErrActionQueueBlocked):
			g.sendError(s, http.StatusConflict, msgQueueBlocked)
		default:
			g.logger.Error("Failed to start game", "game_id", gm.ID(), "error", err)
			g.sendError(s, http.StatusInternalServerError, msgUnknown)
		}
	}()
}

func (g *Gateway) onUserGameInput(s Conn, payload interface{}) {
	cc, ok := g.reauth(s)
	if !ok {
		return
	}
	fields, ok := payload.(map[string]interface{})
	if !ok {
		g.sendError(s, http.StatusUnprocessableEntity, msgBadFormat)
		return
	}
	msg, ok := fields["msg"].(string)
	if !ok {
		g.sendError(s, http.StatusUnprocessableEntity, msgBadFormat)
		return
	}
	gm, ok := g.games.GetByPlayer(cc.UserID)
	if !ok {
		g.sendError(s, http.StatusNotFound, msgNotInGame)
		return
	}

	action := game.NewPlayerTextAction(gm.ID(), cc.UserName, msg, time.Now())
	g.inflight.Add(1)
	go func() {
		defer g.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), g.cfg.ActionTimeout)
		defer cancel()

		err := gm.HandleUserAction(ctx, action)
		switch {
		case err == nil:
			g.cfg.Notifier.Emit(game.SessionRoom(cc.SessionID), game.EventStoryComplete, chat.Notification{Title: storyCompleteText})
		case errors.Is(err, game.ErrActionQueueBlocked):
			g.sendError(s, http.StatusConflict, msgQueueBlocked)
		default:
			g.logger.Error("Failed to handle user input", "game_id", gm.ID(), "error", err)
			g.sendError(s, http.StatusInternalServerError, msgUnknown)
		}
	}()
}
