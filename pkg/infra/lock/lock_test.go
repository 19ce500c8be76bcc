package lock_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/m-mizutani/cardsync/pkg/domain/interfaces"
	"github.com/m-mizutani/cardsync/pkg/infra/lock"
	"github.com/m-mizutani/gt"
	"github.com/redis/go-redis/v9"
)

func testLock(t *testing.T, newLock func(t *testing.T) interfaces.CycleLock) {
	ctx := context.Background()

	t.Run("second acquire fails while held", func(t *testing.T) {
		l := newLock(t)

		release, ok, err := l.TryAcquire(ctx)
		gt.NoError(t, err)
		gt.True(t, ok)

		_, ok, err = l.TryAcquire(ctx)
		gt.NoError(t, err)
		gt.False(t, ok)

		release()

		release, ok, err = l.TryAcquire(ctx)
		gt.NoError(t, err)
		gt.True(t, ok)
		release()
	})

	t.Run("release twice is harmless", func(t *testing.T) {
		l := newLock(t)

		release, ok, err := l.TryAcquire(ctx)
		gt.NoError(t, err)
		gt.True(t, ok)
		release()
		release()

		release, ok, err = l.TryAcquire(ctx)
		gt.NoError(t, err)
		gt.True(t, ok)
		release()
	})
}

func TestMemory(t *testing.T) {
	testLock(t, func(t *testing.T) interfaces.CycleLock {
		return lock.NewMemory()
	})
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedis(t *testing.T) {
	testLock(t, func(t *testing.T) interfaces.CycleLock {
		_, client := newRedis(t)
		return gt.R1(lock.NewRedis(client)).NoError(t)
	})

	t.Run("lock is shared between instances", func(t *testing.T) {
		ctx := context.Background()
		_, client := newRedis(t)

		a := gt.R1(lock.NewRedis(client, lock.WithKey("k"))).NoError(t)
		b := gt.R1(lock.NewRedis(client, lock.WithKey("k"))).NoError(t)

		release, ok, err := a.TryAcquire(ctx)
		gt.NoError(t, err)
		gt.True(t, ok)

		_, ok, err = b.TryAcquire(ctx)
		gt.NoError(t, err)
		gt.False(t, ok)

		release()
		_, ok, err = b.TryAcquire(ctx)
		gt.NoError(t, err)
		gt.True(t, ok)
	})

	t.Run("expired lock is not released by the old holder", func(t *testing.T) {
		ctx := context.Background()
		mr, client := newRedis(t)

		l := gt.R1(lock.NewRedis(client, lock.WithKey("k"), lock.WithTTL(time.Second))).NoError(t)
		releaseOld, ok, err := l.TryAcquire(ctx)
		gt.NoError(t, err)
		gt.True(t, ok)

		mr.FastForward(2 * time.Second)

		_, ok, err = l.TryAcquire(ctx)
		gt.NoError(t, err)
		gt.True(t, ok)

		releaseOld()
		gt.True(t, mr.Exists("k"))
	})

	t.Run("invalid options", func(t *testing.T) {
		_, client := newRedis(t)
		_, err := lock.NewRedis(client, lock.WithTTL(0))
		gt.Error(t, err)

		_, err = lock.NewRedis(nil)
		gt.Error(t, err)
	})
}
