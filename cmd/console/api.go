package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jwebster45206/closed-ai/pkg/chat"
)

// errInGame is returned by createGame when the user already has a game.
var errInGame = errors.New("user is currently in a game")

// apiClient talks to the HTTP API with the user's session cookie.
type apiClient struct {
	http    *http.Client
	baseURL string
}

func testConnection(client *http.Client, baseURL string) bool {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()
	return resp.StatusCode == http.StatusOK
}

// do sends a JSON request and decodes a JSON response into out, if given.
// Non 2xx responses are turned into errors carrying the server's message.
func (c *apiClient) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errorResp chat.ErrorResponse
		if err := json.Unmarshal(respBody, &errorResp); err != nil || errorResp.Error.Msg == "" {
			return resp.StatusCode, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(respBody))
		}
		return resp.StatusCode, errors.New(errorResp.Error.Msg)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func (c *apiClient) createGame(ctx context.Context, themes []string) (chat.GameSummary, error) {
	var resp chat.GameResponse
	status, err := c.do(ctx, http.MethodPost, "/api/games", chat.CreateGameRequest{Themes: themes}, &resp)
	if status == http.StatusConflict {
		return chat.GameSummary{}, errInGame
	}
	if err != nil {
		return chat.GameSummary{}, fmt.Errorf("failed to create game: %w", err)
	}
	return resp.Game, nil
}

func (c *apiClient) myGame(ctx context.Context) (chat.GameInfo, error) {
	var resp chat.GamesResponse
	if _, err := c.do(ctx, http.MethodGet, "/api/games/my", nil, &resp); err != nil {
		return chat.GameInfo{}, fmt.Errorf("failed to list games: %w", err)
	}
	if len(resp.Games) == 0 {
		return chat.GameInfo{}, errors.New("no games created")
	}
	return resp.Games[0], nil
}

func (c *apiClient) startGame(ctx context.Context, gameID string) error {
	if _, err := c.do(ctx, http.MethodPost, "/api/games/"+gameID+"/start", nil, nil); err != nil {
		return fmt.Errorf("failed to start game: %w", err)
	}
	return nil
}

func (c *apiClient) sendInput(ctx context.Context, gameID, msg string) error {
	_, err := c.do(ctx, http.MethodPost, "/api/games/"+gameID+"/input", chat.InputRequest{Msg: msg}, nil)
	return err
}

func (c *apiClient) history(ctx context.Context, gameID string) ([]chat.ClientEvent, error) {
	var resp chat.HistoryResponse
	if _, err := c.do(ctx, http.MethodGet, "/api/games/"+gameID+"/history", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return resp.Messages, nil
}

func (c *apiClient) deleteGame(ctx context.Context, gameID string) error {
	if _, err := c.do(ctx, http.MethodDelete, "/api/games/"+gameID, nil, nil); err != nil {
		return fmt.Errorf("failed to delete game: %w", err)
	}
	return nil
}

// SSEEvent represents an event from the SSE stream
type SSEEvent struct {
	Type string
	Data json.RawMessage
}

// listenToSSE connects to the game's event stream and forwards events to
// eventChan until ctx ends or the stream closes.
func (c *apiClient) listenToSSE(ctx context.Context, gameID string, eventChan chan<- SSEEvent) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/games/"+gameID+"/events", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	// The stream outlives the regular request timeout.
	streamClient := *c.http
	streamClient.Timeout = 0

	resp, err := streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to SSE: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("SSE connection failed with status %d: %s", resp.StatusCode, string(body))
	}

	scanner := bufio.NewScanner(resp.Body)
	var currentEvent SSEEvent

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			// Empty line signals end of event
			if currentEvent.Type != "" {
				select {
				case eventChan <- currentEvent:
				case <-ctx.Done():
					return ctx.Err()
				}
				currentEvent = SSEEvent{}
			}
			continue
		}

		if strings.HasPrefix(line, "event: ") {
			currentEvent.Type = strings.TrimPrefix(line, "event: ")
		} else if strings.HasPrefix(line, "data: ") {
			currentEvent.Data = json.RawMessage(strings.TrimPrefix(line, "data: "))
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading SSE stream: %w", err)
	}
	return nil
}
