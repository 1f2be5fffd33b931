package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/aelexs/directchat/internal/auth"
	"github.com/aelexs/directchat/internal/config"
	"github.com/aelexs/directchat/internal/directchat/adapter"
	"github.com/aelexs/directchat/internal/directchat/app"
	"github.com/aelexs/directchat/internal/directchat/port"
	"github.com/aelexs/directchat/internal/domain"
	"github.com/aelexs/directchat/internal/errmap"
	"github.com/aelexs/directchat/internal/msgcrypt"
	"github.com/aelexs/directchat/internal/postgres"
	"github.com/aelexs/directchat/internal/redis"
	"github.com/aelexs/directchat/internal/registry"
	"github.com/aelexs/directchat/internal/server"
)

// Local development secrets. validateRequired rejects empty secrets outside
// the local environment, so these never reach a deployment.
const (
	devJWTSecret    domain.SecretString = "local-dev-jwt-secret"
	devCryptoSecret domain.SecretString = "local-dev-crypto-secret"
)

// setup is the direct chat composition root. It creates infrastructure
// clients, adapters, the chat service, and mounts the socket and REST handlers.
func setup(ctx context.Context, deps server.SetupDeps) (func(context.Context) error, error) {
	cfg := deps.Config
	logger := deps.Logger

	// 1. Infrastructure clients.
	pool, err := postgres.NewPool(ctx, postgres.Config{
		DSN:      cfg.Postgres.DSN,
		MaxConns: cfg.Postgres.MaxConns,
		Timeout:  cfg.Postgres.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("directchat setup: %w", err)
	}
	if cfg.Postgres.Migrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("directchat setup: %w", err)
		}
	}

	redisClient := redis.NewClient(redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Timeout:  cfg.Redis.Timeout,
	})
	if err := redisClient.Ping(ctx); err != nil {
		// Revocation and rate limit checks fail closed until Redis answers.
		logger.Warn("redis unavailable at startup", slog.String("error", err.Error()))
	}

	// 2. Adapters.
	clock := domain.RealClock{}
	chatStore := adapter.NewChatStore(pool, cfg.Postgres.Timeout)
	users := adapter.NewUserDirectory(pool, adapter.UserDirectoryConfig{
		Table:   cfg.Postgres.UsersTable,
		Timeout: cfg.Postgres.Timeout,
	})
	revocations := adapter.NewRevocationStore(redisClient.RDB)
	limiter := adapter.NewEventRateLimiter(redisClient.RDB,
		cfg.Gateway.EventRateLimit, cfg.Gateway.EventRateLimitWindow)

	codec, err := msgcrypt.NewCodec(secretOrDev(cfg, cfg.Crypto.Secret, devCryptoSecret).Expose())
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("directchat setup: create codec: %w", err)
	}

	// 3. Auth.
	verifier := auth.NewVerifier(auth.NewValidator(auth.ValidatorConfig{
		Secret:   secretOrDev(cfg, cfg.Auth.JWTSecret, devJWTSecret),
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		Clock:    clock,
	}), revocations)

	// 4. Chat core.
	chatSvc := app.NewChatService(app.ChatServiceConfig{
		Store:  chatStore,
		Users:  users,
		Codec:  codec,
		Clock:  clock,
		Logger: logger,
	})
	connections := registry.New(logger)

	// 5. Transport.
	deps.Router.Handle("/ws", port.NewSocketHandler(port.SocketConfig{
		Auth:               verifier,
		Service:            chatSvc,
		Registry:           connections,
		Limiter:            limiter,
		Logger:             logger,
		HeartbeatInterval:  cfg.Gateway.HeartbeatInterval,
		MaxFrameSize:       cfg.Gateway.MaxFrameSize,
		OutboundBufferSize: cfg.Gateway.OutboundBufferSize,
		WriteTimeout:       cfg.Gateway.WriteTimeout,
	}))
	deps.Router.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization"},
			MaxAge:         300,
		}))
		port.NewHTTPHandler(verifier, chatSvc, logger).Routes(r)
	})

	logger.Info("directchat wired",
		slog.String("users_table", cfg.Postgres.UsersTable),
		slog.Bool("migrate", cfg.Postgres.Migrate),
	)

	// Cleanup runs after the HTTP server stopped accepting requests. Hijacked
	// sockets are not tracked by http.Server, so they are closed here.
	return func(context.Context) error {
		connections.Close(errmap.CloseServerShutdown.Reason)
		pool.Close()
		return redisClient.Close()
	}, nil
}

// secretOrDev returns secret, or the development fallback when running
// locally without one configured.
func secretOrDev(cfg *config.Config, secret, dev domain.SecretString) domain.SecretString {
	if secret.IsEmpty() && cfg.IsLocal() {
		return dev
	}
	return secret
}
