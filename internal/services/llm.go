package services

import (
	"context"
	"errors"
	"io"

	"github.com/jwebster45206/closed-ai/pkg/chat"
)

var (
	// ErrOpenAI wraps failures to reach the completion or image service.
	ErrOpenAI = errors.New("completion service request failed")
	// ErrIncorrectAIResponse marks a reply that could not be interpreted.
	ErrIncorrectAIResponse = errors.New("completion service returned an unusable response")
)

// ChatOptions are the sampling parameters of a completion request.
type ChatOptions struct {
	Temperature      float32
	TopP             float32
	PresencePenalty  float32
	FrequencyPenalty float32
	MaxTokens        int
}

// LLMService defines the interface for interacting with the completion and
// image generation services.
type LLMService interface {
	// StreamChat starts a streaming completion and returns the raw
	// server-sent-event body. The caller must close it.
	StreamChat(ctx context.Context, messages []chat.ChatMessage, opts ChatOptions) (io.ReadCloser, error)

	// Chat returns the full text of a non-streaming completion.
	Chat(ctx context.Context, messages []chat.ChatMessage, opts ChatOptions) (string, error)

	// GenerateImage returns the URL of an image generated from prompt.
	GenerateImage(ctx context.Context, prompt string) (string, error)

	// VerifyThemes reports, per theme, whether it is usable as a story theme.
	VerifyThemes(ctx context.Context, themes []string) ([]bool, error)
}
