// Package redisbuffer is an optional, pluggable out-of-process backing
// store for the `buffer`/`buffer_access`/`listen` operations (spec.md
// §4.G), letting a concrete runtimeapi.Host implementation keep buffer
// contents alive across process restarts instead of holding them only in
// memory. The compiler itself never imports this package — it is an
// example adapter a Host implementation can compose into its own
// CreateBuffer/CreateBufferAccess/CreateListen, the same way the teacher's
// registry package composes a *redis.Client into ResultStreamManager for
// cross-node result delivery (registry/result_stream.go).
package redisbuffer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces every key this package writes, so a shared
// Redis instance can host buffers alongside unrelated data.
const DefaultKeyPrefix = "crossflow:buffer:"

// Store persists one buffer's message history (spec.md §4.G "buffer: a
// shared storage of typed messages") as a Redis list, each entry the
// message's canonical JSON encoding. KeepLast retention (the `buffer`
// operation's BufferSettings.KeepLast) is enforced with LTRIM after every
// append, mirroring how runtimeapi.BufferSettings describes the policy.
type Store struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithTTL sets an expiration refreshed on every write, letting idle buffers
// age out of Redis instead of accumulating forever. Zero (the default)
// means no expiration.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// NewStore wraps an existing *redis.Client. The caller owns the client's
// lifecycle (construction, auth, closing); Store never dials on its own,
// matching the teacher's ResultStreamManagerOptions{Redis: ...} pattern of
// accepting an already-configured client rather than a DSN.
func NewStore(rdb *redis.Client, opts ...Option) (*Store, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redisbuffer: redis client is required")
	}
	s := &Store{rdb: rdb, prefix: DefaultKeyPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

func (s *Store) key(bufferID string) string {
	return s.prefix + bufferID
}

// Append serializes value as canonical JSON and pushes it onto bufferID's
// history, trimming to the last keepLast entries when keepLast > 0 (0 means
// unbounded, matching BufferSettings.KeepLast's zero value).
func (s *Store) Append(ctx context.Context, bufferID string, keepLast int, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("redisbuffer: marshal buffer entry: %w", err)
	}

	key := s.key(bufferID)
	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, key, payload)
	if keepLast > 0 {
		pipe.LTrim(ctx, key, -int64(keepLast), -1)
	}
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisbuffer: append to buffer %q: %w", bufferID, err)
	}
	return nil
}

// Contents returns every retained entry for bufferID, oldest first, each
// still in its canonical JSON encoding (the caller deserializes using the
// registry.OperationsTable.Deserialize function for the buffer's message
// type, the same way any other JSON-boxed adapter does).
func (s *Store) Contents(ctx context.Context, bufferID string) ([]json.RawMessage, error) {
	raw, err := s.rdb.LRange(ctx, s.key(bufferID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redisbuffer: read buffer %q: %w", bufferID, err)
	}
	out := make([]json.RawMessage, len(raw))
	for i, r := range raw {
		out[i] = json.RawMessage(r)
	}
	return out, nil
}

// Latest returns the most recently appended entry, or (nil, false) if
// bufferID is empty or unknown.
func (s *Store) Latest(ctx context.Context, bufferID string) (json.RawMessage, bool, error) {
	raw, err := s.rdb.LIndex(ctx, s.key(bufferID), -1).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redisbuffer: read latest of buffer %q: %w", bufferID, err)
	}
	return json.RawMessage(raw), true, nil
}

// Clear deletes bufferID's entire history, used when a buffer's owning
// scope is despawned.
func (s *Store) Clear(ctx context.Context, bufferID string) error {
	if err := s.rdb.Del(ctx, s.key(bufferID)).Err(); err != nil {
		return fmt.Errorf("redisbuffer: clear buffer %q: %w", bufferID, err)
	}
	return nil
}
