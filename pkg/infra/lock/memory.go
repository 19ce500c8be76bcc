package lock

import (
	"context"
	"sync"

	"github.com/m-mizutani/cardsync/pkg/domain/interfaces"
)

// Memory is a cycle lock for a single process.
type Memory struct {
	mu sync.Mutex
}

var _ interfaces.CycleLock = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{}
}

func (x *Memory) TryAcquire(ctx context.Context) (func(), bool, error) {
	if !x.mu.TryLock() {
		return nil, false, nil
	}

	var once sync.Once
	return func() { once.Do(x.mu.Unlock) }, true, nil
}
