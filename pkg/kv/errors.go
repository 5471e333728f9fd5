package kv

import "errors"

var (
	// ErrNotFound is returned when a key does not exist in the store.
	ErrNotFound = errors.New("kv: key not found")

	// ErrEmpty is returned by Pop when no message arrived in time.
	ErrEmpty = errors.New("kv: queue empty")
)
