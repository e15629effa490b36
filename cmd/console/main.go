package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

type ConsoleConfig struct {
	APIBaseURL    string
	SessionCookie string
	Session       string
	Timeout       time.Duration
}

func main() {
	cfg := &ConsoleConfig{
		APIBaseURL:    getEnv("API_BASE_URL", "http://localhost:5000"),
		SessionCookie: getEnv("SESSION_COOKIE", "closed-ai"),
		Session:       os.Getenv("CLOSED_AI_SESSION"),
		Timeout:       3 * time.Minute,
	}

	if cfg.Session == "" {
		fmt.Fprintf(os.Stderr, "CLOSED_AI_SESSION must hold the value of your signed-in session cookie.\n")
		os.Exit(1)
	}

	client, err := newSessionClient(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if !testConnection(client, cfg.APIBaseURL) {
		fmt.Fprintf(os.Stderr, "Could not connect to API. Please ensure the API is running.\nTry: docker-compose up -d\n")
		os.Exit(1)
	}

	api := &apiClient{http: client, baseURL: cfg.APIBaseURL}

	// Any arguments are story themes, e.g. `console horror pirates`.
	gameID, started, err := openGame(api, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	p := tea.NewProgram(NewConsoleUI(cfg, api, gameID, started),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
}

// newSessionClient returns a client that presents the session cookie on
// every request to the API.
func newSessionClient(cfg *ConsoleConfig) (*http.Client, error) {
	base, err := url.Parse(cfg.APIBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API_BASE_URL: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	jar.SetCookies(base, []*http.Cookie{{Name: cfg.SessionCookie, Value: cfg.Session, Path: "/"}})
	return &http.Client{Jar: jar, Timeout: cfg.Timeout}, nil
}

// openGame creates a game, or resumes the one the user already has.
func openGame(api *apiClient, themes []string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	summary, err := api.createGame(ctx, themes)
	if err == nil {
		return summary.GameID, summary.Started, nil
	}
	if !errors.Is(err, errInGame) {
		return "", false, err
	}

	info, err := api.myGame(ctx)
	if err != nil {
		return "", false, err
	}
	fmt.Printf("Resuming game %s\n", info.GameID)
	return info.GameID, info.Started, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
