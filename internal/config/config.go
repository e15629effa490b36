package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string     `envconfig:"PORT" default:"5000"`
	Environment string     `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    slog.Level `envconfig:"LOG_LEVEL" default:"info"`

	RedisURL           string `envconfig:"REDIS_URL" default:"redis://localhost:6379"`
	SocketRedisAdapter bool   `envconfig:"SOCKET_REDIS_ADAPTER" default:"true"`

	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	ModelName     string `envconfig:"MODEL_NAME" default:"gpt-3.5-turbo"`
	ImageSize     string `envconfig:"IMAGE_SIZE" default:"512x512"`

	ClientOrigin  string `envconfig:"CLIENT_ORIGIN" default:"http://localhost:3000"`
	SessionCookie string `envconfig:"SESSION_COOKIE" default:"closed-ai"`
	SessionPrefix string `envconfig:"SESSION_PREFIX" default:"closed-ai-session"`
	SessionSecret string `envconfig:"SESSION_SECRET"`

	InteractionsPerBackground int `envconfig:"INTERACTIONS_PER_BACKGROUND" default:"3"`

	StreamTimeout     time.Duration `envconfig:"STREAM_TIMEOUT" default:"2m"`
	ChatTimeout       time.Duration `envconfig:"CHAT_TIMEOUT" default:"30s"`
	ImageTimeout      time.Duration `envconfig:"IMAGE_TIMEOUT" default:"60s"`
	SessionTimeout    time.Duration `envconfig:"SESSION_TIMEOUT" default:"2s"`
	SideActionTimeout time.Duration `envconfig:"SIDE_ACTION_TIMEOUT" default:"90s"`
	ShutdownTimeout   time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var problems []string
	if c.OpenAIAPIKey == "" {
		problems = append(problems, "OPENAI_API_KEY is required")
	}
	if c.Port == "" {
		problems = append(problems, "PORT cannot be empty")
	}
	if c.SessionCookie == "" {
		problems = append(problems, "SESSION_COOKIE cannot be empty")
	}
	if c.InteractionsPerBackground < 1 {
		problems = append(problems, "INTERACTIONS_PER_BACKGROUND must be at least 1")
	}
	for name, d := range map[string]time.Duration{
		"STREAM_TIMEOUT":      c.StreamTimeout,
		"CHAT_TIMEOUT":        c.ChatTimeout,
		"IMAGE_TIMEOUT":       c.ImageTimeout,
		"SESSION_TIMEOUT":     c.SessionTimeout,
		"SIDE_ACTION_TIMEOUT": c.SideActionTimeout,
	} {
		if d <= 0 {
			problems = append(problems, name+" must be positive")
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
