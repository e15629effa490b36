package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwebster45206/closed-ai/internal/game"
	"github.com/jwebster45206/closed-ai/internal/middleware"
	"github.com/jwebster45206/closed-ai/internal/services"
	"github.com/jwebster45206/closed-ai/pkg/chat"
	"github.com/jwebster45206/closed-ai/pkg/prompts"
)

const (
	msgUnknownUser    = "Unknown user."
	msgInGame         = "User is currently in a game."
	msgInvalidBody    = "Invalid request body."
	msgInvalidTheme   = "%q is not a valid story theme."
	msgOpenAI         = "Error connecting to openai."
	msgNoGames        = "No games created."
	msgGameNotFound   = "Game not found."
	msgNotInThisGame  = "You are not in this game."
	msgOwnerDelete    = "Only the owner can delete this game."
	msgGameStarted    = "Game already started."
	msgBadFormat      = "Incorrect format."
	msgQueueBlocked   = "Generating response, please be patient."
	msgUnknown        = "Unknown error."
	defaultActionWait = 2 * time.Minute
)

// GameRegistry is the part of game.Registry the handlers use.
type GameRegistry interface {
	Create(owner string, themes []string) (*game.SinglePlayerGame, error)
	Get(gameID string) (*game.SinglePlayerGame, bool)
	GetByPlayer(playerID string) (*game.SinglePlayerGame, bool)
	RemovePlayer(g *game.SinglePlayerGame, playerID string) error
	Delete(g *game.SinglePlayerGame)
}

// SocketRooms lets HTTP requests steer the socket connections of a session.
type SocketRooms interface {
	JoinSessionToGame(sessionID, gameID string)
	DisconnectSession(sessionID string)
}

// GamesHandler serves /api/games.
type GamesHandler struct {
	registry      GameRegistry
	llm           services.LLMService
	rooms         SocketRooms
	actionTimeout time.Duration
	logger        *slog.Logger
}

func NewGamesHandler(registry GameRegistry, llm services.LLMService, rooms SocketRooms, actionTimeout time.Duration, logger *slog.Logger) *GamesHandler {
	if actionTimeout <= 0 {
		actionTimeout = defaultActionWait
	}
	return &GamesHandler{
		registry:      registry,
		llm:           llm,
		rooms:         rooms,
		actionTimeout: actionTimeout,
		logger:        logger,
	}
}

// Register mounts the routes on r, which must already require a session.
func (h *GamesHandler) Register(r gin.IRouter) {
	r.POST("", h.Create)
	r.GET("/my", h.Mine)
	r.GET("/:id/history", h.History)
	r.GET("/:id/blocked", h.Blocked)
	r.DELETE("/:id", h.Delete)
	r.POST("/:id/start", h.Start)
	r.POST("/:id/input", h.Input)
}

// Create handles POST /api/games.
func (h *GamesHandler) Create(c *gin.Context) {
	user, ok := middleware.User(c)
	sess, _ := middleware.Session(c)
	if !ok || sess == nil {
		respondWithError(c, http.StatusUnauthorized, msgUnknownUser)
		return
	}

	var req chat.CreateGameRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Debug("Invalid create game body", "error", err)
		respondWithError(c, http.StatusUnprocessableEntity, msgInvalidBody)
		return
	}

	if _, ok := h.registry.GetByPlayer(user.ID); ok {
		respondWithError(c, http.StatusConflict, msgInGame)
		return
	}

	themes := prompts.NormalizeThemes(req.Themes)
	if len(themes) == 0 {
		themes = prompts.RandomThemes()
	} else if unknown := prompts.UnknownThemes(themes); len(unknown) > 0 {
		verdicts, err := h.llm.VerifyThemes(c.Request.Context(), unknown)
		if err != nil {
			h.logger.Error("Theme verification failed", "error", err, "themes", unknown)
			respondWithError(c, http.StatusInternalServerError, msgOpenAI)
			return
		}
		for i, valid := range verdicts {
			if !valid {
				respondWithError(c, http.StatusUnprocessableEntity, fmt.Sprintf(msgInvalidTheme, unknown[i]))
				return
			}
		}
	}

	g, err := h.registry.Create(user.ID, themes)
	if errors.Is(err, game.ErrAlreadyInGame) {
		respondWithError(c, http.StatusConflict, msgInGame)
		return
	}
	if err != nil {
		h.logger.Error("Failed to create game", "error", err, "user_id", user.ID)
		respondWithError(c, http.StatusInternalServerError, msgUnknown)
		return
	}

	h.rooms.JoinSessionToGame(sess.ID, g.ID())
	c.JSON(http.StatusOK, chat.GameResponse{Game: g.Summary()})
}

// Mine handles GET /api/games/my.
func (h *GamesHandler) Mine(c *gin.Context) {
	user, ok := middleware.User(c)
	if !ok {
		respondWithError(c, http.StatusUnauthorized, msgUnknownUser)
		return
	}
	g, ok := h.registry.GetByPlayer(user.ID)
	if !ok {
		respondWithError(c, http.StatusNotFound, msgNoGames)
		return
	}
	c.JSON(http.StatusOK, chat.GamesResponse{Games: []chat.GameInfo{g.Info()}})
}

// memberGame resolves :id to a game the user plays in, or responds with the
// matching error.
func (h *GamesHandler) memberGame(c *gin.Context) (*game.SinglePlayerGame, bool) {
	user, ok := middleware.User(c)
	if !ok {
		respondWithError(c, http.StatusUnauthorized, msgUnknownUser)
		return nil, false
	}
	g, ok := h.registry.Get(c.Param("id"))
	if !ok {
		respondWithError(c, http.StatusNotFound, msgGameNotFound)
		return nil, false
	}
	if !g.HasPlayer(user.ID) {
		respondWithError(c, http.StatusForbidden, msgNotInThisGame)
		return nil, false
	}
	return g, true
}

// History handles GET /api/games/:id/history.
func (h *GamesHandler) History(c *gin.Context) {
	g, ok := h.memberGame(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, chat.HistoryResponse{Messages: g.History()})
}

// Blocked handles GET /api/games/:id/blocked.
func (h *GamesHandler) Blocked(c *gin.Context) {
	g, ok := h.memberGame(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, chat.BlockedResponse{Blocked: g.Blocked()})
}

// Delete handles DELETE /api/games/:id.
func (h *GamesHandler) Delete(c *gin.Context) {
	user, ok := middleware.User(c)
	if !ok {
		respondWithError(c, http.StatusUnauthorized, msgUnknownUser)
		return
	}
	g, ok := h.registry.Get(c.Param("id"))
	if !ok {
		respondWithError(c, http.StatusNotFound, msgGameNotFound)
		return
	}
	if g.Owner() != user.ID {
		respondWithError(c, http.StatusForbidden, msgOwnerDelete)
		return
	}

	if err := h.registry.RemovePlayer(g, user.ID); err != nil && !errors.Is(err, game.ErrPlayerNotInGame) {
		h.logger.Warn("Failed to remove owner before delete", "error", err, "game_id", g.ID())
	}
	h.registry.Delete(g)
	c.JSON(http.StatusOK, chat.GameResponse{Game: g.Summary()})
}

// actionContext outlives the request so a dropped client does not cut a
// story short.
func (h *GamesHandler) actionContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(c.Request.Context()), h.actionTimeout)
}

// Start handles POST /api/games/:id/start, the HTTP twin of start-game.
func (h *GamesHandler) Start(c *gin.Context) {
	g, ok := h.memberGame(c)
	if !ok {
		return
	}
	if g.Started() {
		respondWithError(c, http.StatusConflict, msgGameStarted)
		return
	}

	ctx, cancel := h.actionContext(c)
	defer cancel()
	if err := g.Init(ctx); err != nil {
		h.respondWithGameError(c, g, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Input handles POST /api/games/:id/input, the HTTP twin of user-game-input.
func (h *GamesHandler) Input(c *gin.Context) {
	g, ok := h.memberGame(c)
	if !ok {
		return
	}
	user, _ := middleware.User(c)

	var req chat.InputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, http.StatusUnprocessableEntity, msgBadFormat)
		return
	}
	if err := req.Validate(); err != nil {
		respondWithError(c, http.StatusUnprocessableEntity, msgBadFormat)
		return
	}

	ctx, cancel := h.actionContext(c)
	defer cancel()
	action := game.NewPlayerTextAction(g.ID(), user.Name, req.Msg, time.Now())
	if err := g.HandleUserAction(ctx, action); err != nil {
		h.respondWithGameError(c, g, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *GamesHandler) respondWithGameError(c *gin.Context, g *game.SinglePlayerGame, err error) {
	switch {
	case errors.Is(err, game.ErrActionQueueBlocked):
		respondWithError(c, http.StatusConflict, msgQueueBlocked)
	case errors.Is(err, game.ErrGameStarted):
		respondWithError(c, http.StatusConflict, msgGameStarted)
	default:
		h.logger.Error("Game action failed", "error", err, "game_id", g.ID())
		respondWithError(c, http.StatusInternalServerError, msgUnknown)
	}
}
