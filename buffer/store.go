package buffer

import "context"

// Store defines the persistence contract for buffered entries.
//
// Every write is atomic for a single entry and durable before it returns.
// No cross-entry transactions are required.
type Store interface {
	// Put inserts or replaces the entry with e.ID.
	Put(ctx context.Context, e *Entry) error

	// GetAll returns a snapshot of every entry. Order is unspecified.
	GetAll(ctx context.Context) ([]*Entry, error)

	// Update replaces the mutable retry fields (Attempts, LastAttempt,
	// NextDue) of an existing entry. Updating an absent entry is a no-op so
	// a retry racing with a concurrent delete does not resurrect it.
	Update(ctx context.Context, e *Entry) error

	// Delete removes the entry with id. Deleting an absent id is a no-op.
	Delete(ctx context.Context, id string) error
}
