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

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"bizdesk/internal/ratelimit"
	"bizdesk/internal/util"
	"bizdesk/pkg/auth"
	"bizdesk/pkg/events"
	"bizdesk/pkg/storage"
	"bizdesk/pkg/store"
	"bizdesk/services/gateway/internal/app"
	"bizdesk/services/gateway/internal/config"
	"bizdesk/services/gateway/internal/realtime"
	"bizdesk/services/gateway/internal/security"
	"bizdesk/services/gateway/internal/server"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := util.InitLogger(cfg.LogLevel)
	if err := run(cfg, logger); err != nil {
		logger.Error("gateway stopped with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.FileConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessionTTL, err := config.ParseSessionTTL(cfg.SessionTTL)
	if err != nil {
		return err
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}

	st, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	var rdb redis.UniversalClient
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		defer rdb.Close()
	}

	var revoker auth.TokenRevoker = auth.NewMemoryTokenRevoker()
	if rdb != nil {
		revoker = auth.NewRedisTokenRevoker(rdb)
	}
	tokens, err := auth.NewTokenManager(cfg.JWTSecret, sessionTTL, revoker)
	if err != nil {
		return err
	}

	publisher, err := newPublisher(cfg, rdb)
	if err != nil {
		return err
	}
	defer publisher.Close()

	var objects storage.ObjectStore
	if cfg.MinioEndpoint != "" {
		minioStore, err := storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return fmt.Errorf("init object store: %w", err)
		}
		objects = minioStore
	}

	var broker realtime.Broker
	if rdb != nil {
		redisBroker, err := realtime.NewRedisBroker(rdb, "")
		if err != nil {
			return err
		}
		broker = redisBroker
	}
	hub := realtime.NewHub(broker)

	appCore, err := app.New(app.Config{
		Store:     st,
		Tokens:    tokens,
		Notifier:  hub,
		Publisher: publisher,
		Objects:   objects,
	})
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	srvCfg := server.Config{
		App:                appCore,
		Hub:                hub,
		TrustedProxies:     trusted,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		MaxUploadBytes:     cfg.MaxUploadBytes,
	}
	if rdb != nil {
		if srvCfg.SignupLimiter, err = ratelimit.New(rdb, "bizdesk:gateway:ratelimit:signup", limitOrDefault(cfg.SignupRateLimitPerMinute, 5), time.Minute); err != nil {
			return fmt.Errorf("init signup limiter: %w", err)
		}
		if srvCfg.LoginLimiter, err = ratelimit.New(rdb, "bizdesk:gateway:ratelimit:login", limitOrDefault(cfg.LoginRateLimitPerMinute, 10), time.Minute); err != nil {
			return fmt.Errorf("init login limiter: %w", err)
		}
		srvCfg.Alerter = security.NewAuditAlerter(rdb, "")
	} else {
		logger.Warn("redis not configured: rate limiting disabled, token revocation and realtime are local to this process")
	}
	httpServer, err := server.New(srvCfg)
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return hub.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		hub.CloseAll()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newPublisher prefers AMQP, then a Redis stream, then drops events.
func newPublisher(cfg config.FileConfig, rdb redis.UniversalClient) (events.Publisher, error) {
	switch {
	case cfg.AMQPURL != "":
		p, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, fmt.Errorf("init amqp publisher: %w", err)
		}
		return p, nil
	case rdb != nil:
		p, err := events.NewStreamPublisher(rdb, cfg.EventsStream, 0)
		if err != nil {
			return nil, fmt.Errorf("init stream publisher: %w", err)
		}
		return p, nil
	default:
		return events.Nop{}, nil
	}
}

func limitOrDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
