// Package session keeps the server side of RPC sessions handed out by the
// sales agent endpoint.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound means the session never existed, expired, or belongs to
// another tenant.
var ErrNotFound = errors.New("session invalid or expired")

const DefaultTTL = 60 * time.Second

type Session struct {
	ID        string    `json:"id"`
	Tenant    string    `json:"tenant"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store interface for session management
type Store interface {
	// Create opens a new session for tenant.
	Create(ctx context.Context, tenant string, ttl time.Duration) (Session, error)
	// Validate checks that id is live for tenant and extends it by ttl.
	Validate(ctx context.Context, id, tenant string, ttl time.Duration) (Session, error)
	Delete(ctx context.Context, id string) error
}

type StoreType string

const (
	InMemoryStore StoreType = "memory"
	RedisStore    StoreType = "redis"
)
