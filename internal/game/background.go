package game

import (
	"context"
	"strings"

	"github.com/jwebster45206/closed-ai/internal/services"
	"github.com/jwebster45206/closed-ai/pkg/chat"
	"github.com/jwebster45206/closed-ai/pkg/prompts"
)

const narratorName = "narrator"

var sceneOptions = services.ChatOptions{
	Temperature:      0.2,
	TopP:             1,
	PresencePenalty:  0.5,
	FrequencyPenalty: 0.5,
}

// GenerateBackgroundAction asks for a description of the current scene and
// turns it into a background image. It runs as a side action.
type GenerateBackgroundAction struct {
	actionBase
	themes string
	apply  func(url string)
}

// NewGenerateBackgroundAction builds the action. apply is called with the new
// URL right before background-change is emitted.
func NewGenerateBackgroundAction(gameID, themes string, apply func(url string)) *GenerateBackgroundAction {
	return &GenerateBackgroundAction{
		actionBase: actionBase{gameID: gameID},
		themes:     themes,
		apply:      apply,
	}
}

func (a *GenerateBackgroundAction) Kind() Kind { return KindGenerateBackground }

func (a *GenerateBackgroundAction) ModelMessage() (chat.ChatMessage, bool) {
	return chat.ChatMessage{Role: chat.ChatRoleUser, Name: narratorName, Content: prompts.SurroundingsPrompt}, true
}

func (a *GenerateBackgroundAction) ClientView() (chat.ClientEvent, bool) { return chat.ClientEvent{}, false }
func (a *GenerateBackgroundAction) ShowInHistory() bool                  { return false }

func (a *GenerateBackgroundAction) UsedTokens(counter services.TokenCounter) int {
	return tokensOf(a, counter)
}

func (a *GenerateBackgroundAction) Broadcast(context.Context, Emitter) error { return nil }

func (a *GenerateBackgroundAction) Process(ctx context.Context, deps Deps, messages []chat.ChatMessage) error {
	description, err := deps.LLM.Chat(ctx, messages, sceneOptions)
	if err != nil {
		return err
	}

	prompt := strings.TrimSpace(description)
	if a.themes != "" {
		prompt = prompt + ", " + a.themes
	}
	deps.logger().Debug("Generating background", "game_id", a.gameID, "prompt", prompt)

	url, err := deps.LLM.GenerateImage(ctx, prompt)
	if err != nil {
		return err
	}

	a.complete(NewGenerateBackgroundResponse(a.gameID, url, a.apply))
	return nil
}

// GenerateBackgroundResponse carries a freshly generated background URL.
type GenerateBackgroundResponse struct {
	gameID string
	url    string
	apply  func(url string)
}

func NewGenerateBackgroundResponse(gameID, url string, apply func(url string)) *GenerateBackgroundResponse {
	return &GenerateBackgroundResponse{gameID: gameID, url: url, apply: apply}
}

func (r *GenerateBackgroundResponse) GameID() string { return r.gameID }
func (r *GenerateBackgroundResponse) Kind() Kind     { return KindBackgroundImage }
func (r *GenerateBackgroundResponse) URL() string    { return r.url }
func (r *GenerateBackgroundResponse) isEvent()       {}
func (r *GenerateBackgroundResponse) isResponse()    {}

func (r *GenerateBackgroundResponse) ModelMessage() (chat.ChatMessage, bool) {
	return chat.ChatMessage{}, false
}
func (r *GenerateBackgroundResponse) ClientView() (chat.ClientEvent, bool) {
	return chat.ClientEvent{}, false
}
func (r *GenerateBackgroundResponse) ShowInHistory() bool { return false }

func (r *GenerateBackgroundResponse) UsedTokens(services.TokenCounter) int { return 0 }

func (r *GenerateBackgroundResponse) Broadcast(_ context.Context, emitter Emitter) error {
	if r.apply != nil {
		r.apply(r.url)
	}
	emitter.Emit(GameRoom(r.gameID), EventBackgroundChange, r.url)
	return nil
}
