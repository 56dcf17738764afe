package fanout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu   sync.Mutex
	msgs []string
}

func (c *collector) handle(p []byte) {
	c.mu.Lock()
	c.msgs = append(c.msgs, string(p))
	c.mu.Unlock()
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.msgs...)
}

func TestLocalBusReachesEverySubscriber(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	bus := New(nil, nil)

	var a, b collector
	req.NoError(bus.Subscribe(ctx, DefaultChannel, a.handle))
	req.NoError(bus.Subscribe(ctx, DefaultChannel, b.handle))
	req.NoError(bus.Subscribe(ctx, "other", func([]byte) { t.Error("wrong channel") }))

	req.NoError(bus.Publish(ctx, DefaultChannel, []byte("one")))
	req.NoError(bus.Publish(ctx, DefaultChannel, []byte("two")))

	req.Equal([]string{"one", "two"}, a.snapshot())
	req.Equal([]string{"one", "two"}, b.snapshot())
}

func TestSubscribeRejectsNilHandler(t *testing.T) {
	require.Error(t, New(nil, nil).Subscribe(context.Background(), DefaultChannel, nil))
}

func TestRedisBusAcrossInstances(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mr := miniredis.RunT(t)
	newClient := func() *redis.Client {
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		return rdb
	}

	nodeA := New(newClient(), nil)
	nodeB := New(newClient(), nil)
	t.Cleanup(func() { _ = nodeA.Close(); _ = nodeB.Close() })

	var onA, onB collector
	req.NoError(nodeA.Subscribe(ctx, DefaultChannel, onA.handle))
	req.NoError(nodeB.Subscribe(ctx, DefaultChannel, onB.handle))

	req.NoError(nodeA.Publish(ctx, DefaultChannel, []byte("hello")))

	req.Eventually(func() bool { return len(onB.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	req.Eventually(func() bool { return len(onA.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	req.Equal("hello", onB.snapshot()[0])
}

func TestRedisPublishFailureIsReported(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	t.Cleanup(func() { _ = rdb.Close() })
	bus := New(rdb, nil)

	mr.Close()
	require.Error(t, bus.Publish(context.Background(), DefaultChannel, []byte("x")))
}

func TestCloseAfterCancelledSubscription(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	bus := New(rdb, nil)

	req.NoError(bus.Subscribe(ctx, DefaultChannel, func([]byte) {}))
	req.NoError(bus.Subscribe(context.Background(), "other", func([]byte) {}))
	cancel()

	req.Eventually(func() bool {
		bus.mu.RLock()
		defer bus.mu.RUnlock()
		return len(bus.subs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	req.NoError(bus.Close())
	req.NoError(bus.Close())
}
