package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/cenkalti/backoff/v4"
	"github.com/gin-gonic/gin"
	"github.com/jessevdk/go-flags"
	"github.com/redis/go-redis/v9"

	"github.com/layer-3/didgate/adapters/events"
	"github.com/layer-3/didgate/adapters/proof"
	"github.com/layer-3/didgate/adapters/store"
	"github.com/layer-3/didgate/adapters/tokenizer"
	"github.com/layer-3/didgate/config"
	"github.com/layer-3/didgate/internal/logging"
	"github.com/layer-3/didgate/ports"
	"github.com/layer-3/didgate/service"
	transport "github.com/layer-3/didgate/transport/http"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("didgate stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	gin.SetMode(gin.ReleaseMode)
	router := transport.SetupRouter(app.authService, logger)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           transport.WithCORS(router, cfg.HTTP.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTP.Addr, "scheme", cfg.Auth.Scheme, "store", cfg.Store.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// app holds the wired service and whatever needs closing on shutdown
type app struct {
	authService *service.AuthService
	closers     []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{}
	clock := ports.SystemClock{}

	scheme, err := newScheme(cfg.Auth)
	if err != nil {
		return nil, err
	}

	tok, err := tokenizer.NewJWTTokenizer([]byte(cfg.Auth.JWTSecret),
		tokenizer.WithIssuer(cfg.Auth.Issuer),
		tokenizer.WithTTL(cfg.Auth.SessionTTL),
		tokenizer.WithClock(clock),
	)
	if err != nil {
		return nil, fmt.Errorf("session tokenizer: %w", err)
	}

	wmLogger := watermill.NewSlogLogger(logger)

	var (
		st        ports.Store
		publisher message.Publisher
	)
	switch cfg.Store.Mode {
	case config.StoreRedis:
		client, err := connectRedis(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)

		st = store.NewRedisStore(client, cfg.Redis.Prefix)
		publisher, err = redisstream.NewPublisher(redisstream.PublisherConfig{Client: client}, wmLogger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis stream publisher: %w", err)
		}
	default:
		st = store.NewMemoryStore(cfg.Store.ChallengeCapacity, clock)
		publisher = gochannel.NewGoChannel(gochannel.Config{}, wmLogger)
	}
	a.closers = append(a.closers, publisher.Close)

	a.authService = service.NewAuthService(st, scheme, tok,
		service.WithChallengeTTL(cfg.Auth.ChallengeTTL),
		service.WithClock(clock),
		service.WithLogger(logger.With("component", "auth")),
		service.WithEventPublisher(events.NewWatermillPublisher(publisher, cfg.Events.TopicPrefix)),
	)
	return a, nil
}

func newScheme(cfg config.AuthConfig) (ports.ProofScheme, error) {
	if cfg.Scheme == proof.SchemeEIP191 {
		return proof.NewEIP191(cfg.ChainID), nil
	}
	return proof.New(cfg.Scheme)
}

// connectRedis pings until redis answers or the retries run out
func connectRedis(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), cfg.ConnectRetries), ctx)
	err = backoff.RetryNotify(func() error {
		return client.Ping(ctx).Err()
	}, policy, func(err error, wait time.Duration) {
		logger.Warn("redis not ready, retrying", "addr", opts.Addr, "wait", wait, "error", err)
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}
	return client, nil
}
