package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisService owns the shared Redis connection used for sessions, user
// lookups and the room event relay.
type RedisService struct {
	client *redis.Client
	addr   string
	logger *slog.Logger
}

// NewRedisService parses a redis:// URL and creates the client. It does not
// dial; use Ping or WaitForConnection for that.
func NewRedisService(redisURL string, logger *slog.Logger) (*RedisService, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	return &RedisService{
		client: redis.NewClient(opt),
		addr:   opt.Addr,
		logger: logger,
	}, nil
}

func (r *RedisService) Ping(ctx context.Context) error {
	cmd := r.client.Ping(ctx)
	if err := cmd.Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	r.logger.Debug("Redis ping successful", "result", cmd.Val())
	return nil
}

// Addr is the host:port of the server, as needed by clients that dial on
// their own.
func (r *RedisService) Addr() string {
	return r.addr
}

func (r *RedisService) GetClient() *redis.Client {
	return r.client
}

func (r *RedisService) WaitForConnection(ctx context.Context) error {
	maxRetries := 30
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established", "addr", r.addr)
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}

func (r *RedisService) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}

	r.logger.Info("Redis connection closed")
	return nil
}
