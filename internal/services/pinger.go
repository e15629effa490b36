package services

import "context"

// Pinger is a dependency that can report whether it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

var _ Pinger = (*RedisService)(nil)
