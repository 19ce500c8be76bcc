package config

import (
	"context"
	"log/slog"
	"time"

	"github.com/m-mizutani/cardsync/pkg/domain/interfaces"
	"github.com/m-mizutani/cardsync/pkg/infra/lock"
	"github.com/m-mizutani/goerr/v2"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
)

// Redis configures the cycle lock shared between replicas. Without an address the lock is
// process local.
type Redis struct {
	addr     string
	password string `masq:"secret"`
	db       int64
	key      string
	ttl      time.Duration
}

func (x *Redis) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "redis-addr",
			Usage:       "Redis address for the shared cycle lock (optional)",
			Category:    "Redis",
			Sources:     cli.EnvVars("CARDSYNC_REDIS_ADDR"),
			Destination: &x.addr,
		},
		&cli.StringFlag{
			Name:        "redis-password",
			Usage:       "Redis password",
			Category:    "Redis",
			Sources:     cli.EnvVars("CARDSYNC_REDIS_PASSWORD"),
			Destination: &x.password,
		},
		&cli.Int64Flag{
			Name:        "redis-db",
			Usage:       "Redis database number",
			Category:    "Redis",
			Sources:     cli.EnvVars("CARDSYNC_REDIS_DB"),
			Destination: &x.db,
		},
		&cli.StringFlag{
			Name:        "redis-lock-key",
			Usage:       "Redis key of the cycle lock",
			Category:    "Redis",
			Sources:     cli.EnvVars("CARDSYNC_REDIS_LOCK_KEY"),
			Value:       lock.DefaultRedisKey,
			Destination: &x.key,
		},
		&cli.DurationFlag{
			Name:        "redis-lock-ttl",
			Usage:       "Expiration of the cycle lock",
			Category:    "Redis",
			Sources:     cli.EnvVars("CARDSYNC_REDIS_LOCK_TTL"),
			Value:       lock.DefaultTTL,
			Destination: &x.ttl,
		},
	}
}

func (x *Redis) Enabled() bool {
	return x.addr != ""
}

func (x *Redis) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("Addr", x.addr),
		slog.Int("Password.len", len(x.password)),
		slog.Int64("DB", x.db),
		slog.String("Key", x.key),
		slog.Duration("TTL", x.ttl),
	)
}

func (x *Redis) NewLock(ctx context.Context) (interfaces.CycleLock, error) {
	if !x.Enabled() {
		return lock.NewMemory(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     x.addr,
		Password: x.password,
		DB:       int(x.db),
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to connect to redis", goerr.V("addr", x.addr))
	}

	return lock.NewRedis(client, lock.WithKey(x.key), lock.WithTTL(x.ttl))
}
