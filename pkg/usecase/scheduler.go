package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/m-mizutani/cardsync/pkg/domain/model"
	"github.com/m-mizutani/cardsync/pkg/domain/types"
	"github.com/m-mizutani/cardsync/pkg/utils/errutil"
	"github.com/m-mizutani/cardsync/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// CycleRunner is the part of UseCase the scheduler drives.
type CycleRunner interface {
	RunOneCycle(ctx context.Context, filter *model.RepoFilter) (*model.CycleReport, error)
}

// Scheduler runs a sync cycle right away and then again interval after each cycle finishes, so cycles
// never overlap.
type Scheduler struct {
	runner CycleRunner

	mu      sync.Mutex
	resetCh chan time.Duration
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewScheduler(runner CycleRunner) *Scheduler {
	return &Scheduler{
		runner:  runner,
		resetCh: make(chan time.Duration, 1),
	}
}

func (x *Scheduler) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return goerr.Wrap(types.ErrInvalidOption, "interval must be positive", goerr.V("interval", interval))
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.cancel != nil {
		return goerr.New("scheduler already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	x.cancel = cancel
	x.done = make(chan struct{})

	go x.loop(logging.WithComponent(ctx, "scheduler"), interval, x.done)
	return nil
}

// Reset changes the interval. The wait in progress restarts with the new interval; a running cycle is
// not affected.
func (x *Scheduler) Reset(interval time.Duration) {
	if interval <= 0 {
		return
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	select {
	case <-x.resetCh:
	default:
	}
	x.resetCh <- interval
}

// Stop cancels the scheduler and waits for the loop to exit.
func (x *Scheduler) Stop() {
	x.mu.Lock()
	cancel, done := x.cancel, x.done
	x.cancel, x.done = nil, nil
	x.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (x *Scheduler) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	logging.From(ctx).Info("scheduler started", slog.Duration("interval", interval))

	for {
		x.runCycle(ctx)

		timer := time.NewTimer(interval)
	wait:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				logging.From(ctx).Info("scheduler stopped")
				return

			case d := <-x.resetCh:
				interval = d
				timer.Reset(d)
				logging.From(ctx).Info("sync interval changed", slog.Duration("interval", d))

			case <-timer.C:
				break wait
			}
		}
	}
}

func (x *Scheduler) runCycle(ctx context.Context) {
	report, err := x.runner.RunOneCycle(ctx, nil)
	switch {
	case err == nil:
		logging.From(ctx).Debug("scheduled cycle done", slog.Any("cycle_id", report.ID))
	case errors.Is(err, types.ErrCycleInProgress):
		logging.From(ctx).Info("previous cycle still running, skipping")
	case errors.Is(err, types.ErrInvalidConfig):
		logging.From(ctx).Warn("no valid configuration, skipping cycle", slog.Any("error", err))
	case ctx.Err() != nil:
		return
	default:
		errutil.HandleError(ctx, "scheduled sync cycle failed", err)
	}
}
