package lock

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/cardsync/pkg/domain/interfaces"
	"github.com/m-mizutani/cardsync/pkg/domain/types"
	"github.com/m-mizutani/cardsync/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultRedisKey = "cardsync:cycle-lock"
	DefaultTTL      = 2 * time.Hour
)

// releaseScript deletes the key only when it still holds our token, so an expired lock taken over by
// another replica is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a cycle lock shared by every replica connected to the same Redis.
type Redis struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

var _ interfaces.CycleLock = (*Redis)(nil)

type RedisOption func(*Redis)

func WithKey(key string) RedisOption {
	return func(x *Redis) {
		x.key = key
	}
}

// WithTTL bounds how long a crashed holder can keep the lock.
func WithTTL(ttl time.Duration) RedisOption {
	return func(x *Redis) {
		x.ttl = ttl
	}
}

func NewRedis(client redis.UniversalClient, options ...RedisOption) (*Redis, error) {
	if client == nil {
		return nil, goerr.Wrap(types.ErrInvalidOption, "redis client is nil")
	}

	x := &Redis{
		client: client,
		key:    DefaultRedisKey,
		ttl:    DefaultTTL,
	}
	for _, opt := range options {
		opt(x)
	}

	if x.key == "" {
		return nil, goerr.Wrap(types.ErrInvalidOption, "redis lock key is empty")
	}
	if x.ttl <= 0 {
		return nil, goerr.Wrap(types.ErrInvalidOption, "redis lock TTL must be positive", goerr.V("ttl", x.ttl))
	}

	return x, nil
}

func (x *Redis) TryAcquire(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()

	ok, err := x.client.SetNX(ctx, x.key, token, x.ttl).Result()
	if err != nil {
		return nil, false, goerr.Wrap(err, "failed to acquire cycle lock", goerr.V("key", x.key))
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// The cycle context may already be canceled when the lock is released.
		ctx := context.WithoutCancel(ctx)
		if err := releaseScript.Run(ctx, x.client, []string{x.key}, token).Err(); err != nil {
			logging.From(ctx).Warn("failed to release cycle lock",
				slog.String("key", x.key),
				slog.Any("error", err),
			)
		}
	}

	return release, true, nil
}
