package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/relaychat/internal/config"
	"github.com/vovakirdan/relaychat/internal/core"
	"github.com/vovakirdan/relaychat/internal/fanout"
	"github.com/vovakirdan/relaychat/internal/metrics"
	"github.com/vovakirdan/relaychat/internal/presence"
	"github.com/vovakirdan/relaychat/internal/ratelimit"
	"github.com/vovakirdan/relaychat/internal/store"
	"github.com/vovakirdan/relaychat/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/relaychat/internal/transport/http"
	"github.com/vovakirdan/relaychat/internal/utils"
)

const redisPingTimeout = 2 * time.Second

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	redis           redis.UniversalClient
	bus             *fanout.Bus
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	rdb, err := newRedis(cfg.RedisURL, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	instanceID := cfg.InstanceID
	if instanceID == "" {
		instanceID = utils.NewID()
	}

	m := metrics.New()
	pres := presence.New(rdb, logger)
	limiter := ratelimit.New(rdb, cfg.RateLimit.Window, cfg.RateLimit.MaxEvents, logger)
	bus := fanout.New(rdb, logger)
	m.WatchDegraded("presence", pres.Degraded)
	m.WatchDegraded("ratelimit", limiter.Degraded)

	hub := core.NewHub(core.Deps{
		Store:           st,
		Presence:        pres,
		Limiter:         limiter,
		Fanout:          bus,
		Metrics:         m,
		Logger:          logger,
		InstanceID:      instanceID,
		FanoutChannel:   cfg.FanoutChannel,
		MaxMessageChars: cfg.MaxMessageChars,
		SendQueueSize:   cfg.SendQueueSize,
	})
	server := transporthttp.NewServer(hub, st, m, cfg, logger)

	logger.Info().
		Str("instance_id", instanceID).
		Bool("redis", rdb != nil).
		Msg("relay initialized")

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		redis:           rdb,
		bus:             bus,
		log:             logger,
	}, nil
}

// newRedis returns nil when no URL is configured. An unreachable server is
// not fatal: components start degraded and recover once it answers.
func newRedis(url string, logger *zerolog.Logger) (redis.UniversalClient, error) {
	if url == "" {
		logger.Warn().Msg("redis_url not set; presence, rate limiting and fanout stay in process")
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = time.Second
	opts.ReadTimeout = 500 * time.Millisecond
	opts.WriteTimeout = 500 * time.Millisecond
	opts.MaxRetries = 1

	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", opts.Addr).Msg("redis unreachable; starting degraded")
	} else {
		logger.Info().Str("addr", opts.Addr).Msg("redis connected")
	}
	return rdb, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	hubDone := make(chan struct{})
	go func() {
		a.hub.Run(hubCtx)
		close(hubDone)
	}()

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		stopHub()
		<-hubDone
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		shutdownErr := a.server.Shutdown(shutdownCtx)
		<-hubDone
		a.cleanup()
		if shutdownErr != nil {
			return shutdownErr
		}
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if err := a.bus.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close fanout subscriptions")
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close redis client")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
