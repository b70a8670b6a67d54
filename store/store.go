// Package store defines the aggregate Store interface every buffer backend
// implements.
//
// The buffer package owns the entry contract; the aggregate adds the
// lifecycle operations hosts need to open, check and close a backend.
package store

import (
	"context"

	"github.com/vyasoai/relay/buffer"
)

// Store is the aggregate persistence interface.
type Store interface {
	buffer.Store

	// Migrate prepares the backend's schema. Safe to call repeatedly.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}
