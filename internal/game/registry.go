package game

import (
	"errors"
	"log/slog"
	"sync"
)

var ErrRegistryClosed = errors.New("game registry is closed")

// Registry tracks live games by id and by player. It owns game construction
// so every game shares the same collaborators.
type Registry struct {
	deps    Deps
	emitter Emitter
	opts    Options
	logger  *slog.Logger

	mu       sync.RWMutex
	games    map[string]*SinglePlayerGame
	byPlayer map[string]*SinglePlayerGame
	closed   bool
}

func NewRegistry(deps Deps, emitter Emitter, opts Options) *Registry {
	if deps.Streams == nil {
		deps.Streams = NewSequence()
	}
	return &Registry{
		deps:     deps,
		emitter:  emitter,
		opts:     opts,
		logger:   deps.logger(),
		games:    make(map[string]*SinglePlayerGame),
		byPlayer: make(map[string]*SinglePlayerGame),
	}
}

// Create starts a new game owned by owner and binds the owner to it.
func (r *Registry) Create(owner string, themes []string) (*SinglePlayerGame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	if _, ok := r.byPlayer[owner]; ok {
		return nil, ErrAlreadyInGame
	}

	g := NewSinglePlayerGame(owner, themes, r.deps, r.emitter, r.opts)
	if err := g.AddPlayer(owner); err != nil {
		return nil, err
	}
	r.games[g.ID()] = g
	r.byPlayer[owner] = g
	r.logger.Info("Game created", "game_id", g.ID(), "owner", owner, "themes", themes)
	return g, nil
}

func (r *Registry) Get(gameID string) (*SinglePlayerGame, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.games[gameID]
	return g, ok
}

func (r *Registry) GetByPlayer(playerID string) (*SinglePlayerGame, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.byPlayer[playerID]
	return g, ok
}

// AddPlayer adds playerID to g and binds the player to it.
func (r *Registry) AddPlayer(g *SinglePlayerGame, playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if bound, ok := r.byPlayer[playerID]; ok && bound != g {
		return ErrAlreadyInGame
	}
	if err := g.AddPlayer(playerID); err != nil {
		return err
	}
	r.byPlayer[playerID] = g
	return nil
}

// RemovePlayer removes playerID from g and drops the player's binding.
func (r *Registry) RemovePlayer(g *SinglePlayerGame, playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := g.RemovePlayer(playerID); err != nil {
		return err
	}
	if r.byPlayer[playerID] == g {
		delete(r.byPlayer, playerID)
	}
	return nil
}

// Delete forgets g and every player binding that points at it.
func (r *Registry) Delete(g *SinglePlayerGame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.games, g.ID())
	for _, p := range g.Players() {
		if r.byPlayer[p] == g {
			delete(r.byPlayer, p)
		}
	}
	// The owner may already have been removed from the player list.
	if r.byPlayer[g.Owner()] == g {
		delete(r.byPlayer, g.Owner())
	}
	r.logger.Info("Game deleted", "game_id", g.ID())
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.games)
}

// Close rejects new games, waits for running side actions and forgets every
// game.
func (r *Registry) Close() error {
	r.mu.Lock()
	r.closed = true
	games := make([]*SinglePlayerGame, 0, len(r.games))
	for _, g := range r.games {
		games = append(games, g)
	}
	r.games = make(map[string]*SinglePlayerGame)
	r.byPlayer = make(map[string]*SinglePlayerGame)
	r.mu.Unlock()

	for _, g := range games {
		g.Wait()
	}
	r.logger.Info("Game registry closed", "games", len(games))
	return nil
}
