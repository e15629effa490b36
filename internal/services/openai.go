package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/jwebster45206/closed-ai/pkg/chat"
	"github.com/jwebster45206/closed-ai/pkg/prompts"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIConfig configures OpenAIService.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	ImageSize string

	StreamTimeout time.Duration
	ChatTimeout   time.Duration
	ImageTimeout  time.Duration
}

// OpenAIService implements LLMService against an OpenAI compatible API.
// Non-streaming calls go through go-openai; the streaming call is issued
// directly so the raw event stream can be handed to the caller.
type OpenAIService struct {
	client     *openai.Client
	httpClient *http.Client
	cfg        OpenAIConfig
	logger     *slog.Logger
}

var _ LLMService = (*OpenAIService)(nil)

// NewOpenAIService creates a new completion client.
func NewOpenAIService(cfg OpenAIConfig, logger *slog.Logger) *OpenAIService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = openai.GPT3Dot5Turbo
	}
	if cfg.ImageSize == "" {
		cfg.ImageSize = openai.CreateImageSize512x512
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL

	return &OpenAIService{
		client: openai.NewClientWithConfig(clientCfg),
		// No client timeout: streams are bounded by their context instead.
		httpClient: &http.Client{},
		cfg:        cfg,
		logger:     logger,
	}
}

func (s *OpenAIService) request(messages []chat.ChatMessage, opts ChatOptions, stream bool) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:            s.cfg.Model,
		Messages:         toOpenAIMessages(messages),
		Temperature:      opts.Temperature,
		TopP:             opts.TopP,
		PresencePenalty:  opts.PresencePenalty,
		FrequencyPenalty: opts.FrequencyPenalty,
		MaxTokens:        opts.MaxTokens,
		Stream:           stream,
	}
}

// StreamChat posts a streaming chat completion and returns the response body.
func (s *OpenAIService) StreamChat(ctx context.Context, messages []chat.ChatMessage, opts ChatOptions) (io.ReadCloser, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("no messages provided")
	}

	reqBody, err := json.Marshal(s.request(messages, opts, true))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := contextWithOptionalTimeout(ctx, s.cfg.StreamTimeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", ErrOpenAI, err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: status %d: %s", ErrOpenAI, resp.StatusCode, string(body))
	}

	s.logger.Debug("Completion stream opened", "model", s.cfg.Model, "messages", len(messages))
	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, nil
}

// Chat runs a non-streaming chat completion.
func (s *OpenAIService) Chat(ctx context.Context, messages []chat.ChatMessage, opts ChatOptions) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("no messages provided")
	}

	ctx, cancel := contextWithOptionalTimeout(ctx, s.cfg.ChatTimeout)
	defer cancel()

	resp, err := s.client.CreateChatCompletion(ctx, s.request(messages, opts, false))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOpenAI, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrIncorrectAIResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateImage creates a single image and returns its URL.
func (s *OpenAIService) GenerateImage(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := contextWithOptionalTimeout(ctx, s.cfg.ImageTimeout)
	defer cancel()

	resp, err := s.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		N:              1,
		Size:           s.cfg.ImageSize,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOpenAI, err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", fmt.Errorf("%w: no image returned", ErrIncorrectAIResponse)
	}
	return resp.Data[0].URL, nil
}

// VerifyThemes asks the model which of the given themes are usable.
func (s *OpenAIService) VerifyThemes(ctx context.Context, themes []string) ([]bool, error) {
	if len(themes) == 0 {
		return []bool{}, nil
	}

	s.logger.Info("Verifying themes", "themes", themes)
	reply, err := s.Chat(ctx, []chat.ChatMessage{
		{Role: chat.ChatRoleUser, Content: prompts.ThemeValidationPrompt(themes)},
	}, ChatOptions{Temperature: 0, TopP: 1})
	if err != nil {
		return nil, err
	}

	results, err := parseThemeVerdicts(reply, len(themes))
	if err != nil {
		s.logger.Warn("Unusable theme verification reply", "reply", reply, "error", err)
		return nil, err
	}
	return results, nil
}

func parseThemeVerdicts(reply string, want int) ([]bool, error) {
	reply = strings.TrimSpace(reply)
	// Models sometimes wrap the array in a code fence.
	reply = strings.TrimPrefix(reply, "```json")
	reply = strings.Trim(reply, "`\n ")

	var results []bool
	if err := json.Unmarshal([]byte(reply), &results); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncorrectAIResponse, err)
	}
	if len(results) != want {
		return nil, fmt.Errorf("%w: expected %d verdicts, got %d", ErrIncorrectAIResponse, want, len(results))
	}
	return results, nil
}

var invalidNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// messageName fits an author name to the charset the API accepts for the
// optional name field.
func messageName(name string) string {
	name = invalidNameChars.ReplaceAllString(strings.TrimSpace(name), "_")
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}

func toOpenAIMessages(messages []chat.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{
			Role:    m.Role,
			Name:    messageName(m.Name),
			Content: m.Content,
		})
	}
	return out
}

func contextWithOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// cancelOnClose releases the request context once the stream is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
