package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// User is what the engine needs to know about an account.
type User struct {
	ID   string
	Name string
}

// Users looks accounts up in the "user:{id}" hashes kept by the auth service.
type Users struct {
	client *redis.Client
}

func NewUsers(client *redis.Client) *Users {
	return &Users{client: client}
}

func userKey(id string) string {
	return "user:" + id
}

func (u *Users) Get(ctx context.Context, id string) (*User, error) {
	name, err := u.client.HGet(ctx, userKey(id), "name").Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", id, err)
	}
	return &User{ID: id, Name: name}, nil
}

// Put writes a user record. Used by tooling and tests.
func (u *Users) Put(ctx context.Context, user User) error {
	if err := u.client.HSet(ctx, userKey(user.ID), "name", user.Name).Err(); err != nil {
		return fmt.Errorf("failed to save user %s: %w", user.ID, err)
	}
	return nil
}
