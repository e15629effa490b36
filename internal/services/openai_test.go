package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/closed-ai/pkg/chat"
)

func newTestOpenAI(t *testing.T, handler http.HandlerFunc) *OpenAIService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewOpenAIService(OpenAIConfig{
		APIKey:      "test-key",
		BaseURL:     srv.URL + "/v1/",
		ChatTimeout: 5 * time.Second,
	}, log)
}

func TestNewOpenAIService_Defaults(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewOpenAIService(OpenAIConfig{APIKey: "k"}, log)

	assert.Equal(t, defaultOpenAIBaseURL, s.cfg.BaseURL)
	assert.Equal(t, "gpt-3.5-turbo", s.cfg.Model)
	assert.Equal(t, "512x512", s.cfg.ImageSize)
}

func TestOpenAIService_StreamChat(t *testing.T) {
	var got map[string]any
	s := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\ndata: [DONE]\n\n")
	})

	body, err := s.StreamChat(context.Background(), []chat.ChatMessage{
		{Role: chat.ChatRoleSystem, Content: "narrate"},
		{Role: chat.ChatRoleUser, Name: "Sir Robin!", Content: "run away"},
	}, ChatOptions{Temperature: 0.7, TopP: 1, PresencePenalty: 0.5, FrequencyPenalty: 0.5})
	require.NoError(t, err)
	defer body.Close()

	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "data: [DONE]")

	assert.Equal(t, true, got["stream"])
	assert.Equal(t, "gpt-3.5-turbo", got["model"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Sir_Robin_", msgs[1].(map[string]any)["name"])
}

func TestOpenAIService_StreamChat_ErrorStatus(t *testing.T) {
	s := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	})

	_, err := s.StreamChat(context.Background(), []chat.ChatMessage{{Role: "user", Content: "x"}}, ChatOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOpenAI))
	assert.Contains(t, err.Error(), "429")
}

func TestOpenAIService_Chat(t *testing.T) {
	s := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"A foggy pier."},"finish_reason":"stop"}]}`)
	})

	text, err := s.Chat(context.Background(), []chat.ChatMessage{{Role: "user", Content: "describe"}}, ChatOptions{Temperature: 0.2})
	require.NoError(t, err)
	assert.Equal(t, "A foggy pier.", text)
}

func TestOpenAIService_Chat_NoChoices(t *testing.T) {
	s := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"1","choices":[]}`)
	})

	_, err := s.Chat(context.Background(), []chat.ChatMessage{{Role: "user", Content: "describe"}}, ChatOptions{})
	assert.ErrorIs(t, err, ErrIncorrectAIResponse)
}

func TestOpenAIService_GenerateImage(t *testing.T) {
	s := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images/generations", r.URL.Path)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "url", req["response_format"])
		assert.EqualValues(t, 1, req["n"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"created":1,"data":[{"url":"https://img.test/a.png"}]}`)
	})

	url, err := s.GenerateImage(context.Background(), "a foggy pier, Horror")
	require.NoError(t, err)
	assert.Equal(t, "https://img.test/a.png", url)
}

func TestOpenAIService_GenerateImage_Failure(t *testing.T) {
	s := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":{"message":"boom","type":"server_error"}}`)
	})

	_, err := s.GenerateImage(context.Background(), "x")
	assert.ErrorIs(t, err, ErrOpenAI)
}

func TestOpenAIService_VerifyThemes(t *testing.T) {
	reply := "[true, false]"
	s := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		assert.True(t, strings.Contains(req.Messages[0].Content, `["Pirates","Asdf"]`))

		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{
			"choices": []any{map[string]any{"index": 0, "message": map[string]any{"role": "assistant", "content": reply}}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	got, err := s.VerifyThemes(context.Background(), []string{"Pirates", "Asdf"})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, got)

	empty, err := s.VerifyThemes(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestParseThemeVerdicts(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    int
		expect  []bool
		wantErr bool
	}{
		{name: "plain", reply: "[true,true]", want: 2, expect: []bool{true, true}},
		{name: "fenced", reply: "```json\n[false]\n```", want: 1, expect: []bool{false}},
		{name: "length mismatch", reply: "[true]", want: 2, wantErr: true},
		{name: "not json", reply: "yes", want: 1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseThemeVerdicts(tt.reply, tt.want)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrIncorrectAIResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expect, got)
		})
	}
}

func TestMessageName(t *testing.T) {
	assert.Equal(t, "", messageName(""))
	assert.Equal(t, "narrator", messageName("narrator"))
	assert.Equal(t, "Jane_Doe", messageName("Jane Doe"))
	assert.Len(t, messageName(strings.Repeat("a", 80)), 64)
}
