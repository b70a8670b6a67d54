// Package redis provides a Redis-backed Store for hosts that already run a
// local Redis. Each entry is a hash; a set indexes the buffered IDs.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vyasoai/relay"
	"github.com/vyasoai/relay/buffer"
	"github.com/vyasoai/relay/envelope"
	relaystore "github.com/vyasoai/relay/store"
)

// compile-time interface check.
var _ relaystore.Store = (*Store)(nil)

// Store implements store.Store using go-redis.
type Store struct {
	rdb    goredis.UniversalClient
	prefix string
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key namespace. Defaults to DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a store on an existing client. The store owns the client and
// closes it on Close.
func New(rdb goredis.UniversalClient, opts ...Option) *Store {
	s := &Store{rdb: rdb, prefix: DefaultPrefix, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open parses a redis:// URL, connects and pings.
func Open(ctx context.Context, url string, opts ...Option) (*Store, error) {
	o, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("relay/redis: parse url: %w", err)
	}
	s := New(goredis.NewClient(o), opts...)
	if err := s.Ping(ctx); err != nil {
		_ = s.rdb.Close()
		return nil, err
	}
	return s, nil
}

// Migrate is a no-op for Redis (no schema migrations needed).
func (s *Store) Migrate(_ context.Context) error {
	return nil
}

// Ping checks Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("relay/redis: ping: %w", translate(err))
	}
	return nil
}

// Close closes the client.
func (s *Store) Close() error {
	err := s.rdb.Close()
	if errors.Is(err, goredis.ErrClosed) {
		return nil
	}
	return err
}

// Put replaces the entry's hash and indexes its ID in one MULTI/EXEC.
func (s *Store) Put(ctx context.Context, e *buffer.Entry) error {
	body, err := json.Marshal(e.Body)
	if err != nil {
		return fmt.Errorf("relay/redis: put: encode: %w", err)
	}
	key := s.entryKey(e.ID)

	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			fieldBody, body,
			fieldAttempts, e.Attempts,
			fieldLastAttempt, e.LastAttempt,
			fieldNextDue, e.NextDue,
		)
		pipe.SAdd(ctx, s.indexKey(), e.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("relay/redis: put: %w", translate(err))
	}
	return nil
}

// GetAll reads the ID index and fetches every hash in one pipeline. IDs
// whose hash vanished between the two reads are skipped, as are hashes that
// no longer decode; the latter are logged.
func (s *Store) GetAll(ctx context.Context) ([]*buffer.Entry, error) {
	ids, err := s.rdb.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("relay/redis: get all: index: %w", translate(err))
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	_, err = s.rdb.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.entryKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("relay/redis: get all: %w", translate(err))
	}

	out := make([]*buffer.Entry, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		e, err := decodeEntry(ids[i], fields)
		if err != nil {
			s.logger.ErrorContext(ctx, "skipping undecodable buffer entry", "id", ids[i], "error", err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// updateScript rewrites the retry fields only if the entry still exists.
// KEYS[1] = entry hash
// ARGV[1] = attempts, ARGV[2] = last_attempt, ARGV[3] = next_due
var updateScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return 0 end
redis.call('HSET', KEYS[1], 'attempts', ARGV[1], 'last_attempt', ARGV[2], 'next_due', ARGV[3])
return 1
`)

// Update replaces the retry fields of an existing entry.
func (s *Store) Update(ctx context.Context, e *buffer.Entry) error {
	err := updateScript.Run(ctx, s.rdb, []string{s.entryKey(e.ID)},
		e.Attempts, e.LastAttempt, e.NextDue).Err()
	if err != nil {
		return fmt.Errorf("relay/redis: update: %w", translate(err))
	}
	return nil
}

// Delete removes the entry's hash and index membership.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, s.entryKey(id))
		pipe.SRem(ctx, s.indexKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("relay/redis: delete: %w", translate(err))
	}
	return nil
}

func decodeEntry(id string, fields map[string]string) (*buffer.Entry, error) {
	var env envelope.Envelope
	if err := json.Unmarshal([]byte(fields[fieldBody]), &env); err != nil {
		return nil, fmt.Errorf("decode %s: %w", id, err)
	}
	e := &buffer.Entry{ID: id, Body: env}

	var err error
	if e.Attempts, err = strconv.Atoi(fields[fieldAttempts]); err != nil {
		return nil, fmt.Errorf("decode %s attempts: %w", id, err)
	}
	if e.LastAttempt, err = parseInt(fields[fieldLastAttempt]); err != nil {
		return nil, fmt.Errorf("decode %s last_attempt: %w", id, err)
	}
	if e.NextDue, err = parseInt(fields[fieldNextDue]); err != nil {
		return nil, fmt.Errorf("decode %s next_due: %w", id, err)
	}
	return e, nil
}

// parseInt treats a missing field as 0.
func parseInt(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

func translate(err error) error {
	if errors.Is(err, goredis.ErrClosed) {
		return relay.ErrStoreClosed
	}
	return err
}
