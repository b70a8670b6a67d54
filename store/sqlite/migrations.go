package sqlite

import (
	"context"
	"fmt"

	"github.com/vyasoai/relay"
)

// migrations are applied in order; user_version records how many ran.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS relay_buffer (
    id           TEXT PRIMARY KEY,
    body         TEXT NOT NULL,
    attempts     INTEGER NOT NULL DEFAULT 0,
    last_attempt INTEGER NOT NULL DEFAULT 0,
    next_due     INTEGER
);`,
	`CREATE INDEX IF NOT EXISTS idx_relay_buffer_next_due ON relay_buffer (next_due);`,
}

// Migrate applies pending schema migrations inside one transaction.
func (s *Store) Migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", relay.ErrMigrationFailed, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var version int
	if err := tx.QueryRowContext(ctx, "PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("%w: read user_version: %w", relay.ErrMigrationFailed, err)
	}

	for i := version; i < len(migrations); i++ {
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			return fmt.Errorf("%w: step %d: %w", relay.ErrMigrationFailed, i+1, err)
		}
	}
	if version < len(migrations) {
		// PRAGMA does not accept bind parameters.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d;", len(migrations))); err != nil {
			return fmt.Errorf("%w: write user_version: %w", relay.ErrMigrationFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", relay.ErrMigrationFailed, err)
	}
	return nil
}

// SchemaVersion returns the applied migration count.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("relay/sqlite: read user_version: %w", err)
	}
	return version, nil
}
