// Package kv provides the key-value and queue abstraction the job store is
// built on. Backends are Valkey/Redis or an in-process memory store.
package kv

import (
	"context"
	"time"
)

// Store defines a minimal key-value interface for job records.
// Keys are strings, values are byte slices. All operations support TTL.
type Store interface {
	// Set stores a value with the given key and TTL.
	// If TTL is 0, the key does not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves a value by key. Returns ErrNotFound if key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key. Returns nil if key doesn't exist.
	Delete(ctx context.Context, key string) error

	// SetNX sets a value only if the key doesn't exist (atomic).
	// Returns true if the key was set, false if it already existed.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error

	// Close closes the connection to the store.
	Close() error
}

// Queue is a FIFO list of opaque messages.
type Queue interface {
	// Push appends a message to the named queue.
	Push(ctx context.Context, queue string, msg []byte) error

	// Pop removes the oldest message, waiting up to timeout for one to
	// arrive. Returns ErrEmpty when the wait expires.
	Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error)

	// Len returns the number of pending messages.
	Len(ctx context.Context, queue string) (int64, error)
}

// Backend is a store that also provides queues.
type Backend interface {
	Store
	Queue
}
