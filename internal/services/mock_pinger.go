package services

import (
	"context"
	"sync"
)

// MockPinger is a mock implementation of Pinger for testing
type MockPinger struct {
	PingFunc func(ctx context.Context) error

	// Track calls for testing
	PingCalls int

	mu sync.Mutex
}

func NewMockPinger() *MockPinger {
	return &MockPinger{}
}

// Ping mocks a connectivity check. By default it succeeds.
func (m *MockPinger) Ping(ctx context.Context) error {
	m.mu.Lock()
	m.PingCalls++
	fn := m.PingFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return nil
}

// SetPingError makes Ping fail with err.
func (m *MockPinger) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PingFunc = func(context.Context) error { return err }
}
