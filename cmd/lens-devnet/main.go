package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"flag"
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
	"github.com/layer-3/lens-onboard/adapters/store"
	"github.com/layer-3/lens-onboard/config"
	"github.com/layer-3/lens-onboard/internal/devnet"
	"github.com/layer-3/lens-onboard/internal/logging"
	"github.com/layer-3/lens-onboard/ports"
)

var configPath = flag.String("config", "", "path to the YAML configuration file")

func run(ctx context.Context) error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return oops.In("main").Wrapf(err, "Failed to load the configuration")
	}
	logging.New(cfg.LogLevel)

	// A fresh key per start invalidates every token issued by a previous run
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return oops.In("main").Wrapf(err, "Failed to generate the signing key")
	}

	var revoked ports.KeyValueStore = store.NewMemoryStore()
	var eventPub ports.EventPublisher = events.Nop{}
	if cfg.Devnet.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Devnet.RedisURL)
		if err != nil {
			return oops.In("main").Wrapf(err, "Failed to parse Redis URL")
		}
		redisClient := redis.NewClient(opts)
		revoked = store.NewRedisStore(redisClient, "lens-devnet:revoked:", cfg.Devnet.RefreshTTL)

		publisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{
				Client: redisClient,
			},
			watermill.NewStdLogger(false, false),
		)
		if err != nil {
			return oops.In("main").Wrapf(err, "Failed to create Redis publisher")
		}
		eventPub = events.NewWatermillPublisher(publisher, cfg.Events.Topic)
	}

	server, err := devnet.New(devnet.Config{
		ChallengeTTL: cfg.Devnet.ChallengeTTL,
		AccessTTL:    cfg.Devnet.AccessTTL,
		RefreshTTL:   cfg.Devnet.RefreshTTL,
		SigningKey:   privateKey,
	}, revoked, eventPub)
	if err != nil {
		return oops.In("main").Wrapf(err, "Failed to create devnet")
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              cfg.Devnet.Address,
		Handler:           server.SetupRouter(),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slogctx.Info(ctx, "Starting lens-devnet", "address", cfg.Devnet.Address)
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("%+v", err)
	}
}
