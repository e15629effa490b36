package game

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jwebster45206/closed-ai/internal/services"
	"github.com/jwebster45206/closed-ai/pkg/chat"
)

// Kind discriminates the fixed set of game events.
type Kind string

const (
	KindPlayerText         Kind = "player_text"
	KindStartStory         Kind = "start_story"
	KindGenerateBackground Kind = "generate_background"
	KindStreamStory        Kind = "stream_story"
	KindBackgroundImage    Kind = "background_image"
)

// Event is anything that happens in a game. The set of implementations is
// closed: PlayerTextAction, StartStoryAction, GenerateBackgroundAction,
// StreamStoryResponse and GenerateBackgroundResponse.
type Event interface {
	GameID() string
	Kind() Kind
	// ModelMessage is the event as seen by the completion service, if at all.
	ModelMessage() (chat.ChatMessage, bool)
	// ClientView is the event as shown to players, if at all.
	ClientView() (chat.ClientEvent, bool)
	ShowInHistory() bool
	UsedTokens(counter services.TokenCounter) int
	Broadcast(ctx context.Context, emitter Emitter) error

	isEvent()
}

// Action is an event that is processed against the completion service and
// yields responses.
type Action interface {
	Event
	Process(ctx context.Context, deps Deps, messages []chat.ChatMessage) error
	Responses() []Response
	Processed() bool
}

// Response is an event produced by processing an action.
type Response interface {
	Event
	isResponse()
}

// Deps are the collaborators actions reach while processing.
type Deps struct {
	LLM     services.LLMService
	Streams *Sequence
	Tokens  services.TokenCounter
	Logger  *slog.Logger
	Now     func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

var storyOptions = services.ChatOptions{
	Temperature:      0.7,
	TopP:             1,
	PresencePenalty:  0.5,
	FrequencyPenalty: 0.5,
}

// tokensOf counts the tokens an event contributes to the context window.
func tokensOf(e Event, counter services.TokenCounter) int {
	if counter == nil {
		return 0
	}
	msg, ok := e.ModelMessage()
	if !ok {
		return 0
	}
	return counter.Count(msg.Content)
}

// actionBase holds the bookkeeping shared by all actions.
type actionBase struct {
	gameID string

	mu        sync.Mutex
	responses []Response
	processed bool
}

func (a *actionBase) GameID() string { return a.gameID }

func (a *actionBase) Responses() []Response {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Response(nil), a.responses...)
}

func (a *actionBase) Processed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.processed
}

func (a *actionBase) complete(responses ...Response) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.responses = responses
	a.processed = true
}

func (a *actionBase) isEvent() {}

// openStory starts a streamed narrator reply for the given context.
func openStory(ctx context.Context, gameID string, deps Deps, messages []chat.ChatMessage) (*StreamStoryResponse, error) {
	body, err := deps.LLM.StreamChat(ctx, messages, storyOptions)
	if err != nil {
		return nil, err
	}
	return NewStreamStoryResponse(gameID, deps.Streams.Next(), body, deps.now(), deps.logger()), nil
}
