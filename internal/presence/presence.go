// Package presence maps user identities to the connection currently representing them.
//
// Bindings live in Redis so every instance sees them. Every write is mirrored
// into a local table which serves reads whenever Redis is unreachable.
package presence

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const keyPrefix = "user:"

// unbindScript deletes the binding only when it still points at the given ref.
// ARGV[2] is "1" when ref was the local binding; a missing key then means the
// bind never reached Redis and the release still counts.
var unbindScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
if current == false and ARGV[2] == "1" then
	return 1
end
return 0
`)

// Store tracks user → connection bindings.
type Store struct {
	rdb redis.UniversalClient
	log *zerolog.Logger

	mu    sync.Mutex
	local map[string]string

	degraded atomic.Bool
}

// New builds a presence store. A nil client keeps bindings in process only.
func New(rdb redis.UniversalClient, logger *zerolog.Logger) *Store {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	s := &Store{
		rdb:   rdb,
		log:   logger,
		local: make(map[string]string),
	}
	if rdb == nil {
		s.degraded.Store(true)
	}
	return s
}

func key(userID string) string {
	return keyPrefix + userID + ":socket"
}

// Bind records ref as the current connection for userID, replacing any previous binding.
func (s *Store) Bind(ctx context.Context, userID, ref string) {
	s.mu.Lock()
	s.local[userID] = ref
	s.mu.Unlock()

	if s.rdb == nil {
		return
	}
	if err := s.rdb.Set(ctx, key(userID), ref, 0).Err(); err != nil {
		s.markDegraded(err, "bind", userID)
		return
	}
	s.markHealthy()
}

// Lookup returns the connection currently bound to userID.
func (s *Store) Lookup(ctx context.Context, userID string) (string, bool) {
	if s.rdb != nil {
		ref, err := s.rdb.Get(ctx, key(userID)).Result()
		switch {
		case err == nil:
			s.markHealthy()
			return ref, true
		case errors.Is(err, redis.Nil):
			s.markHealthy()
			return "", false
		default:
			s.markDegraded(err, "lookup", userID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.local[userID]
	return ref, ok
}

// Unbind removes the binding for userID if it still points at ref.
// It reports whether a binding was removed; a stale ref is a no-op. A binding
// recorded only locally during an outage is released even after Redis returns.
func (s *Store) Unbind(ctx context.Context, userID, ref string) bool {
	s.mu.Lock()
	localRemoved := false
	if current, ok := s.local[userID]; ok && current == ref {
		delete(s.local, userID)
		localRemoved = true
	}
	s.mu.Unlock()

	if s.rdb == nil {
		return localRemoved
	}

	ownedLocally := "0"
	if localRemoved {
		ownedLocally = "1"
	}
	n, err := unbindScript.Run(ctx, s.rdb, []string{key(userID)}, ref, ownedLocally).Int()
	if err != nil {
		s.markDegraded(err, "unbind", userID)
		return localRemoved
	}
	s.markHealthy()
	return n > 0
}

// Degraded reports whether the store is serving from the local table.
func (s *Store) Degraded() bool {
	return s.degraded.Load()
}

func (s *Store) markDegraded(err error, op, userID string) {
	if !s.degraded.Swap(true) {
		s.log.Warn().Err(err).Str("op", op).Str("user_id", userID).Msg("presence backing store unavailable, using local table")
		return
	}
	s.log.Debug().Err(err).Str("op", op).Str("user_id", userID).Msg("presence backing store still unavailable")
}

func (s *Store) markHealthy() {
	if s.degraded.Swap(false) {
		s.log.Info().Msg("presence backing store recovered")
	}
}
