package game

import "errors"

var (
	// ErrActionQueueBlocked means another action is still being processed.
	// Callers should wait and retry.
	ErrActionQueueBlocked = errors.New("action queue is blocked")
	ErrGameFull           = errors.New("game is full")
	ErrGameStarted        = errors.New("game already started")
	ErrPlayerNotInGame    = errors.New("player is not in the game")
	ErrOwnerOnly          = errors.New("only the owner can join this game")
	ErrUnsupportedAction  = errors.New("unsupported action")
	ErrAlreadyInGame      = errors.New("player is already in a game")
	ErrGameNotFound       = errors.New("game not found")
)
