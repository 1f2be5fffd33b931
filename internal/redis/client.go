// Package redis owns the go-redis dependency. Adapters accept Cmdable and
// never import go-redis themselves.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aelexs/directchat/internal/domain"
)

// Cmdable is the command surface adapters use.
type Cmdable = redis.Cmdable

// Config holds the parameters needed to connect to a Redis instance.
type Config struct {
	Addr     string
	Password domain.SecretString
	DB       int
	Timeout  time.Duration // Applied to dial, read and write
}

// Client wraps a go-redis client. RDB satisfies Cmdable.
type Client struct {
	RDB *redis.Client
}

// NewClient creates a new Redis client configured from cfg. No connection
// is made until the first command.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = domain.RedisTimeout
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password.Expose(),
		DB:           cfg.DB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})

	return &Client{RDB: rdb}
}

// Ping checks that the server answers.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.RDB.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (c *Client) Close() error {
	return c.RDB.Close()
}
