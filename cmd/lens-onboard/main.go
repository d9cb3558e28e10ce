package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	slogctx "github.com/veqryn/slog-context"

	"github.com/layer-3/lens-onboard/adapters/events"
	"github.com/layer-3/lens-onboard/adapters/grove"
	"github.com/layer-3/lens-onboard/adapters/lensapi"
	"github.com/layer-3/lens-onboard/adapters/signer"
	"github.com/layer-3/lens-onboard/adapters/store"
	"github.com/layer-3/lens-onboard/config"
	"github.com/layer-3/lens-onboard/internal/logging"
	"github.com/layer-3/lens-onboard/ports"
	"github.com/layer-3/lens-onboard/service"
	transport "github.com/layer-3/lens-onboard/transport/http"
)

var (
	configPath      = flag.String("config", "", "path to the YAML configuration file")
	shutdownTimeout = flag.Duration("graceful-shutdown", 5*time.Second, "graceful shutdown timeout")
)

func run(ctx context.Context) error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return oops.In("main").Wrapf(err, "Failed to load the configuration")
	}
	logging.New(cfg.LogLevel)

	kv, storeFor, err := sessionBackend(ctx, cfg)
	if err != nil {
		return oops.In("main").Wrapf(err, "Failed to set up session storage")
	}

	eventPub, err := eventPublisher(cfg)
	if err != nil {
		return oops.In("main").Wrapf(err, "Failed to create the event publisher")
	}

	var wallet ports.Signer
	if cfg.Wallet.PrivateKeyHex != "" {
		w, err := signer.NewKeySignerFromHex(cfg.Wallet.PrivateKeyHex)
		if err != nil {
			return oops.In("main").Wrapf(err, "Failed to load the wallet key")
		}
		wallet = w
	}

	client := lensapi.New(cfg.LensEndpoint(),
		lensapi.WithTimeout(cfg.Lens.RequestTimeout),
		lensapi.WithOrigin(cfg.Lens.Origin),
	)
	apps := cfg.AppAddresses()

	var sessions *service.SessionStore
	if kv != nil {
		sessions = service.NewSessionStore(kv)
	}
	requester := service.NewChallengeRequester(client, apps)
	authenticator := service.NewAuthenticator(client, requester, cfg.Lens.ChallengeTTL)
	queries := service.NewSessionQueries(client, sessions, eventPub)
	metadata := grove.NewClient(cfg.Grove.URL, cfg.Grove.ChainID, nil, cfg.Lens.RequestTimeout)
	profiles := service.NewProfiles(client, metadata)
	onboarder := service.NewOnboarder(authenticator, requester, queries, sessions, profiles, eventPub, apps)

	gin.SetMode(gin.ReleaseMode)
	router := transport.SetupRouter(transport.NewHandlers(transport.Deps{
		Requester:     requester,
		Authenticator: authenticator,
		Queries:       queries,
		Onboarder:     onboarder,
		Apps:          service.NewApps(client, metadata),
		Wallet:        wallet,
		Store:         storeFor,
	}))

	srv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           router,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slogctx.Info(ctx, "Starting lens-onboard", "address", cfg.HTTP.Address, "endpoint", cfg.LensEndpoint(), "storage", cfg.Storage.Backend)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return oops.In("main").Wrapf(err, "Failed to start server")
		}
		return nil
	case <-ctx.Done():
	}

	slogctx.Info(ctx, "Shutting down", "timeout", *shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), *shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// sessionBackend returns the shared store for the memory and redis backends (nil for cookies)
// and the per-request store lookup used by the web backend.
func sessionBackend(ctx context.Context, cfg config.Config) (ports.KeyValueStore, transport.StoreFunc, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		kv := store.NewMemoryStore()
		return kv, transport.SharedStore(kv), nil
	case config.BackendRedis:
		opts, err := redis.ParseURL(cfg.Storage.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("connecting to redis: %w", err)
		}
		kv := store.NewRedisStore(client, cfg.Storage.Prefix, cfg.Storage.TTL)
		return kv, transport.SharedStore(kv), nil
	default:
		template := cfg.Storage.Cookie
		if template.SameSite == 0 {
			template.SameSite = http.SameSiteLaxMode
		}
		return nil, func(c *gin.Context) ports.KeyValueStore {
			return store.NewCookieStore(c, template)
		}, nil
	}
}

func eventPublisher(cfg config.Config) (ports.EventPublisher, error) {
	if cfg.Events.RedisURL == "" {
		return events.Nop{}, nil
	}
	opts, err := redis.ParseURL(cfg.Events.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: redis.NewClient(opts),
		},
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		return nil, err
	}
	return events.NewWatermillPublisher(publisher, cfg.Events.Topic), nil
}

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("%+v", err)
	}
}
