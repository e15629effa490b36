package game

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/jwebster45206/closed-ai/internal/logger"
	"github.com/jwebster45206/closed-ai/pkg/chat"
	"github.com/jwebster45206/closed-ai/pkg/prompts"
)

const (
	DefaultInteractionsPerBackground = 3
	DefaultSideActionTimeout         = 90 * time.Second

	notStartedPreview = "Game not started."
)

// Options tune a game. Zero values pick the defaults.
type Options struct {
	InteractionsPerBackground int
	SideActionTimeout         time.Duration
	Metrics                   Metrics
}

// Game holds the state every game variant shares: membership, the started
// and blocked flags, the background image and the event chunks.
type Game struct {
	id         string
	owner      string
	maxPlayers int
	emitter    Emitter
	deps       Deps
	metrics    Metrics
	logger     *slog.Logger

	mu           sync.RWMutex
	players      []string
	started      bool
	blocked      bool
	bgURL        string
	chunks       []*Chunk
	currentChunk int
}

func newGame(owner string, maxPlayers int, systemPrompt string, deps Deps, emitter Emitter, metrics Metrics) *Game {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	id := uuid.NewString()
	g := &Game{
		id:         id,
		owner:      owner,
		maxPlayers: maxPlayers,
		emitter:    emitter,
		metrics:    metrics,
		logger:     logger.WithGame(deps.logger(), id),
	}
	deps.Logger = g.logger
	g.deps = deps
	g.chunks = []*Chunk{NewChunk(systemPrompt, deps, emitter, g.setBlocked)}
	return g
}

func (g *Game) ID() string    { return g.id }
func (g *Game) Owner() string { return g.owner }

func (g *Game) Started() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.started
}

func (g *Game) Blocked() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.blocked
}

func (g *Game) BackgroundURL() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.bgURL
}

func (g *Game) setBackgroundURL(url string) {
	g.mu.Lock()
	g.bgURL = url
	g.mu.Unlock()
}

func (g *Game) Players() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.players...)
}

func (g *Game) HasPlayer(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return lo.Contains(g.players, id)
}

func (g *Game) chunk() *Chunk {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.chunks[g.currentChunk]
}

// setBlocked is the chunk's onBlock hook and the only writer of blocked.
func (g *Game) setBlocked(blocked bool) {
	g.mu.Lock()
	changed := g.blocked != blocked
	g.blocked = blocked
	g.mu.Unlock()
	if !changed {
		return
	}
	event := EventGameUnblock
	if blocked {
		event = EventGameBlock
	}
	g.emitter.Emit(GameRoom(g.id), event, nil)
}

// AddPlayer adds id to the game. Adding a player already in the game is a
// no-op.
func (g *Game) AddPlayer(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if lo.Contains(g.players, id) {
		return nil
	}
	if len(g.players) > g.maxPlayers {
		return ErrGameFull
	}
	g.players = append(g.players, id)
	return nil
}

func (g *Game) RemovePlayer(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !lo.Contains(g.players, id) {
		return ErrPlayerNotInGame
	}
	g.players = lo.Without(g.players, id)
	return nil
}

// History returns the client-visible history across all chunks.
func (g *Game) History() []chat.ClientEvent {
	g.mu.RLock()
	chunks := append([]*Chunk(nil), g.chunks...)
	g.mu.RUnlock()

	var history []chat.ClientEvent
	for _, c := range chunks {
		history = append(history, c.History()...)
	}
	if history == nil {
		history = []chat.ClientEvent{}
	}
	return history
}

// Preview is the content of the latest history entry of the current chunk.
func (g *Game) Preview() string {
	history := g.chunk().History()
	if len(history) == 0 {
		return notStartedPreview
	}
	return history[len(history)-1].Content
}

func (g *Game) Summary() chat.GameSummary {
	return chat.GameSummary{GameID: g.id, Started: g.Started()}
}

func (g *Game) Info() chat.GameInfo {
	return chat.GameInfo{
		GameID:   g.id,
		Started:  g.Started(),
		Preview:  g.Preview(),
		BgImgURL: g.BackgroundURL(),
	}
}

// UsedTokens reports how much of the context window the current chunk fills.
func (g *Game) UsedTokens() int {
	return g.chunk().UsedTokens(g.deps.Tokens)
}

// processAction runs action through the current chunk's main queue.
func (g *Game) processAction(ctx context.Context, action Action) error {
	start := time.Now()
	err := g.chunk().ProcessAction(ctx, action)
	g.metrics.ActionProcessed(action.Kind(), time.Since(start), err)
	return err
}

// SinglePlayerGame is a story for one player with a background image that is
// regenerated every few interactions.
type SinglePlayerGame struct {
	*Game
	themes      []string
	cadence     int
	sideTimeout time.Duration

	interactions int // guarded by Game.mu
	sideRunning  atomic.Bool
	side         sync.WaitGroup
}

func NewSinglePlayerGame(owner string, themes []string, deps Deps, emitter Emitter, opts Options) *SinglePlayerGame {
	if opts.InteractionsPerBackground <= 0 {
		opts.InteractionsPerBackground = DefaultInteractionsPerBackground
	}
	if opts.SideActionTimeout <= 0 {
		opts.SideActionTimeout = DefaultSideActionTimeout
	}
	g := &SinglePlayerGame{
		Game:        newGame(owner, 1, prompts.StorySystemPrompt(themes), deps, emitter, opts.Metrics),
		themes:      append([]string(nil), themes...),
		cadence:     opts.InteractionsPerBackground,
		sideTimeout: opts.SideActionTimeout,
	}
	g.logger.Debug("Story system prompt", "themes", strings.Join(themes, ", "))
	return g
}

func (g *SinglePlayerGame) Themes() []string {
	return append([]string(nil), g.themes...)
}

// Init opens the story. It fails with ErrGameStarted on a second call. If the
// opening cannot be generated the game goes back to not started.
func (g *SinglePlayerGame) Init(ctx context.Context) error {
	g.mu.Lock()
	if g.started {
		g.mu.Unlock()
		return ErrGameStarted
	}
	g.started = true
	g.mu.Unlock()

	if err := g.processAction(ctx, NewStartStoryAction(g.id)); err != nil {
		g.mu.Lock()
		g.started = false
		g.mu.Unlock()
		return err
	}
	return nil
}

// HandleUserAction processes a player's action and, every few successful
// interactions, starts a background regeneration that runs detached from
// ctx.
func (g *SinglePlayerGame) HandleUserAction(ctx context.Context, action Action) error {
	playerAction, ok := action.(*PlayerTextAction)
	if !ok {
		return ErrUnsupportedAction
	}
	if err := g.processAction(ctx, playerAction); err != nil {
		return err
	}

	g.mu.Lock()
	n := g.interactions
	g.interactions++
	g.mu.Unlock()

	if n%g.cadence == 0 {
		g.startBackground(ctx)
	}
	return nil
}

// Interactions is the number of player actions processed so far.
func (g *SinglePlayerGame) Interactions() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.interactions
}

func (g *SinglePlayerGame) startBackground(ctx context.Context) {
	if !g.sideRunning.CompareAndSwap(false, true) {
		g.logger.Info("Background regeneration still running, skipping")
		g.metrics.SideActionSkipped(KindGenerateBackground)
		return
	}

	action := NewGenerateBackgroundAction(g.id, strings.Join(g.themes, ", "), g.setBackgroundURL)
	sideCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.sideTimeout)
	chunk := g.chunk()

	g.side.Add(1)
	go func() {
		defer g.side.Done()
		defer g.sideRunning.Store(false)
		defer cancel()

		start := time.Now()
		err := chunk.ProcessSideAction(sideCtx, action)
		g.metrics.SideActionFinished(action.Kind(), time.Since(start), err)
		if err != nil {
			level := slog.LevelError
			if errors.Is(err, context.DeadlineExceeded) {
				level = slog.LevelWarn
			}
			g.logger.Log(sideCtx, level, "Background regeneration failed", "error", err)
			return
		}
		g.logger.Debug("Background regenerated", "url", g.BackgroundURL())
	}()
}

// AddPlayer only admits the owner.
func (g *SinglePlayerGame) AddPlayer(id string) error {
	if id != g.owner {
		return ErrOwnerOnly
	}
	return g.Game.AddPlayer(id)
}

// Wait blocks until detached side actions have finished.
func (g *SinglePlayerGame) Wait() {
	g.side.Wait()
}
