package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/relaychat/internal/config"
)

func TestAppRunsAndShutsDown(t *testing.T) {
	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.DatabasePath = filepath.Join(t.TempDir(), "relay.db")
	cfg.ShutdownTimeout = time.Second

	logger := zerolog.Nop()
	application, err := New(&cfg, &logger)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("app did not shut down")
	}
}

func TestNewRedis(t *testing.T) {
	logger := zerolog.Nop()

	rdb, err := newRedis("", &logger)
	if err != nil || rdb != nil {
		t.Fatalf("empty url should disable redis, got %v %v", rdb, err)
	}

	if _, err := newRedis("://bad", &logger); err == nil {
		t.Fatal("expected parse error")
	}

	mr := miniredis.RunT(t)
	rdb, err = newRedis("redis://"+mr.Addr()+"/0", &logger)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer rdb.Close()
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
