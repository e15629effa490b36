package game

import (
	"context"
	"time"

	"github.com/jwebster45206/closed-ai/internal/services"
	"github.com/jwebster45206/closed-ai/pkg/chat"
)

// PlayerTextAction is a line of free text typed by a player.
type PlayerTextAction struct {
	actionBase
	author  string
	content string
	sentAt  time.Time
}

func NewPlayerTextAction(gameID, author, content string, sentAt time.Time) *PlayerTextAction {
	return &PlayerTextAction{
		actionBase: actionBase{gameID: gameID},
		author:     author,
		content:    content,
		sentAt:     sentAt,
	}
}

func (a *PlayerTextAction) Kind() Kind      { return KindPlayerText }
func (a *PlayerTextAction) Author() string  { return a.author }
func (a *PlayerTextAction) Content() string { return a.content }

func (a *PlayerTextAction) ModelMessage() (chat.ChatMessage, bool) {
	return chat.ChatMessage{Role: chat.ChatRoleUser, Name: a.author, Content: a.content}, true
}

func (a *PlayerTextAction) ClientView() (chat.ClientEvent, bool) {
	return chat.ClientEvent{
		Type:    chat.ClientEventPlayer,
		Author:  a.author,
		Content: a.content,
		SentAt:  chat.FormatTime(a.sentAt),
	}, true
}

func (a *PlayerTextAction) ShowInHistory() bool { return true }

func (a *PlayerTextAction) UsedTokens(counter services.TokenCounter) int {
	return tokensOf(a, counter)
}

func (a *PlayerTextAction) Broadcast(_ context.Context, emitter Emitter) error {
	view, _ := a.ClientView()
	emitter.Emit(GameRoom(a.gameID), EventGameMessage, view)
	return nil
}

func (a *PlayerTextAction) Process(ctx context.Context, deps Deps, messages []chat.ChatMessage) error {
	resp, err := openStory(ctx, a.gameID, deps, messages)
	if err != nil {
		return err
	}
	a.complete(resp)
	return nil
}

// StartStoryAction asks the narrator to open the story. It is internal
// bookkeeping: it never reaches the model as a message or the history.
type StartStoryAction struct {
	actionBase
}

func NewStartStoryAction(gameID string) *StartStoryAction {
	return &StartStoryAction{actionBase: actionBase{gameID: gameID}}
}

func (a *StartStoryAction) Kind() Kind { return KindStartStory }

func (a *StartStoryAction) ModelMessage() (chat.ChatMessage, bool) { return chat.ChatMessage{}, false }
func (a *StartStoryAction) ClientView() (chat.ClientEvent, bool)   { return chat.ClientEvent{}, false }
func (a *StartStoryAction) ShowInHistory() bool                    { return false }

func (a *StartStoryAction) UsedTokens(services.TokenCounter) int { return 0 }

func (a *StartStoryAction) Broadcast(context.Context, Emitter) error { return nil }

func (a *StartStoryAction) Process(ctx context.Context, deps Deps, messages []chat.ChatMessage) error {
	resp, err := openStory(ctx, a.gameID, deps, messages)
	if err != nil {
		return err
	}
	a.complete(resp)
	return nil
}
