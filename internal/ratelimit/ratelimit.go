// Package ratelimit implements a per-sender fixed-window limiter backed by Redis.
//
// The limiter fails open: when Redis is unreachable or not configured every
// event is allowed, so a coordination outage never drops user messages.
package ratelimit

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	// DefaultWindow is the length of one counting window.
	DefaultWindow = 60 * time.Second
	// DefaultMaxEvents is the number of events allowed per window.
	DefaultMaxEvents = 30

	keyPrefix = "ratelimit:"
)

// incrScript increments the counter and starts the window expiry on the first event.
var incrScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// Limiter is a fixed-window counter per sender identity.
type Limiter struct {
	rdb       redis.UniversalClient
	log       *zerolog.Logger
	window    time.Duration
	maxEvents int

	degraded atomic.Bool
}

// New builds a limiter. Non-positive window or maxEvents fall back to defaults.
func New(rdb redis.UniversalClient, window time.Duration, maxEvents int, logger *zerolog.Logger) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := &Limiter{
		rdb:       rdb,
		log:       logger,
		window:    window,
		maxEvents: maxEvents,
	}
	if rdb == nil {
		l.degraded.Store(true)
	}
	return l
}

// Allow reports whether userID may send another event in the current window.
func (l *Limiter) Allow(ctx context.Context, userID string) bool {
	if l.rdb == nil {
		return true
	}

	count, err := incrScript.Run(ctx, l.rdb, []string{keyPrefix + userID}, l.window.Milliseconds()).Int64()
	if err != nil {
		if !l.degraded.Swap(true) {
			l.log.Warn().Err(err).Str("user_id", userID).Msg("rate limit backing store unavailable, allowing events")
		}
		return true
	}
	if l.degraded.Swap(false) {
		l.log.Info().Msg("rate limit backing store recovered")
	}

	return count <= int64(l.maxEvents)
}

// Degraded reports whether limits are currently unenforced.
func (l *Limiter) Degraded() bool {
	return l.degraded.Load()
}
