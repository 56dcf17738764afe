// Package fanout relays accepted messages between server instances.
//
// With Redis configured, payloads travel over Redis pub/sub and reach every
// subscriber on every instance. Without it, the bus only reaches subscribers
// in this process.
package fanout

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultChannel is the channel accepted messages are published on.
const DefaultChannel = "new_message"

// Handler receives a published payload.
type Handler = func(payload []byte)

// Bus publishes payloads and dispatches them to subscribers.
type Bus struct {
	rdb redis.UniversalClient
	log *zerolog.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler
	subs     []*redis.PubSub
}

// New builds a bus. A nil client keeps delivery in process.
func New(rdb redis.UniversalClient, logger *zerolog.Logger) *Bus {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Bus{
		rdb:      rdb,
		log:      logger,
		handlers: make(map[string][]Handler),
	}
}

// Publish sends payload to every subscriber of channel. Delivery is best-effort.
func (b *Bus) Publish(ctx context.Context, channel string, payload []byte) error {
	if b.rdb != nil {
		if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
			return fmt.Errorf("publish %s: %w", channel, err)
		}
		return nil
	}

	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[channel]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(payload)
	}
	return nil
}

// Subscribe registers handler for channel until ctx is cancelled.
// With Redis the subscription is re-established automatically after outages.
func (b *Bus) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("subscribe %s: nil handler", channel)
	}

	if b.rdb == nil {
		b.mu.Lock()
		b.handlers[channel] = append(b.handlers[channel], handler)
		b.mu.Unlock()
		return nil
	}

	pubsub := b.rdb.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		// The pubsub keeps reconnecting in the background; relay resumes when Redis returns.
		b.log.Warn().Err(err).Str("channel", channel).Msg("fanout subscribe not confirmed, will retry")
	}

	b.mu.Lock()
	b.subs = append(b.subs, pubsub)
	b.mu.Unlock()

	ch := pubsub.Channel()
	go func() {
		defer b.release(pubsub)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()

	b.log.Debug().Str("channel", channel).Msg("fanout subscribed")
	return nil
}

// release closes pubsub unless Close already took it.
func (b *Bus) release(pubsub *redis.PubSub) {
	b.mu.Lock()
	owned := false
	for i, s := range b.subs {
		if s == pubsub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			owned = true
			break
		}
	}
	b.mu.Unlock()

	if !owned {
		return
	}
	if err := pubsub.Close(); err != nil {
		b.log.Debug().Err(err).Msg("close fanout subscription")
	}
}

// Close tears down every Redis subscription still open.
func (b *Bus) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	var firstErr error
	for _, s := range subs {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
