package services

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/jwebster45206/closed-ai/pkg/chat"
)

// MockLLMAPI is a mock implementation of LLMService for testing
type MockLLMAPI struct {
	StreamChatFunc    func(ctx context.Context, messages []chat.ChatMessage, opts ChatOptions) (io.ReadCloser, error)
	ChatFunc          func(ctx context.Context, messages []chat.ChatMessage, opts ChatOptions) (string, error)
	GenerateImageFunc func(ctx context.Context, prompt string) (string, error)
	VerifyThemesFunc  func(ctx context.Context, themes []string) ([]bool, error)

	// Track calls for testing
	StreamChatCalls    []ChatCall
	ChatCalls          []ChatCall
	GenerateImageCalls []string
	VerifyThemesCalls  [][]string

	mu sync.Mutex // protects all fields above
}

type ChatCall struct {
	Messages []chat.ChatMessage
	Options  ChatOptions
}

var _ LLMService = (*MockLLMAPI)(nil)

// NewMockLLMAPI creates a new mock LLM service
func NewMockLLMAPI() *MockLLMAPI {
	return &MockLLMAPI{}
}

// StreamChat mocks a streaming completion. By default it streams "Mock response".
func (m *MockLLMAPI) StreamChat(ctx context.Context, messages []chat.ChatMessage, opts ChatOptions) (io.ReadCloser, error) {
	m.mu.Lock()
	m.StreamChatCalls = append(m.StreamChatCalls, ChatCall{Messages: copyMessages(messages), Options: opts})
	fn := m.StreamChatFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, messages, opts)
	}
	return MockStream("Mock ", "response"), nil
}

// Chat mocks a non-streaming completion.
func (m *MockLLMAPI) Chat(ctx context.Context, messages []chat.ChatMessage, opts ChatOptions) (string, error) {
	m.mu.Lock()
	m.ChatCalls = append(m.ChatCalls, ChatCall{Messages: copyMessages(messages), Options: opts})
	fn := m.ChatFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, messages, opts)
	}
	return "A dim stone corridor lit by torches", nil
}

// GenerateImage mocks image generation.
func (m *MockLLMAPI) GenerateImage(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.GenerateImageCalls = append(m.GenerateImageCalls, prompt)
	fn := m.GenerateImageFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, prompt)
	}
	return "https://images.example/mock.png", nil
}

// VerifyThemes mocks theme verification. By default every theme is accepted.
func (m *MockLLMAPI) VerifyThemes(ctx context.Context, themes []string) ([]bool, error) {
	m.mu.Lock()
	m.VerifyThemesCalls = append(m.VerifyThemesCalls, append([]string(nil), themes...))
	fn := m.VerifyThemesFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, themes)
	}
	out := make([]bool, len(themes))
	for i := range out {
		out[i] = true
	}
	return out, nil
}

// SetStreamError makes StreamChat fail with err.
func (m *MockLLMAPI) SetStreamError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StreamChatFunc = func(context.Context, []chat.ChatMessage, ChatOptions) (io.ReadCloser, error) {
		return nil, err
	}
}

// SetImageError makes GenerateImage fail with err.
func (m *MockLLMAPI) SetImageError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GenerateImageFunc = func(context.Context, string) (string, error) {
		return "", err
	}
}

// GetStreamChatCalls returns a snapshot of recorded streaming calls.
func (m *MockLLMAPI) GetStreamChatCalls() []ChatCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChatCall(nil), m.StreamChatCalls...)
}

// GetChatCalls returns a snapshot of recorded completion calls.
func (m *MockLLMAPI) GetChatCalls() []ChatCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChatCall(nil), m.ChatCalls...)
}

// GetGenerateImageCalls returns a snapshot of recorded image prompts.
func (m *MockLLMAPI) GetGenerateImageCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.GenerateImageCalls...)
}

// MockStream renders deltas as an OpenAI style event stream terminated by
// [DONE].
func MockStream(deltas ...string) io.ReadCloser {
	var sb strings.Builder
	sb.WriteString("data: {\"choices\":[{\"index\":0,\"delta\":{\"role\":\"assistant\"}}]}\n\n")
	for _, d := range deltas {
		payload, _ := json.Marshal(map[string]any{
			"choices": []any{map[string]any{"index": 0, "delta": map[string]string{"content": d}}},
		})
		sb.WriteString("data: ")
		sb.Write(payload)
		sb.WriteString("\n\n")
	}
	sb.WriteString("data: [DONE]\n\n")
	return io.NopCloser(strings.NewReader(sb.String()))
}

func copyMessages(messages []chat.ChatMessage) []chat.ChatMessage {
	return append([]chat.ChatMessage(nil), messages...)
}
