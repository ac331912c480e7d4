package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/revenueangel/automation-engine/internal/sends"
	"github.com/revenueangel/automation-engine/pkg/logging"
)

type dueLister interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]sends.Send, error)
}

// AutoDispatcher is a backstop sweep: it periodically delivers queued
// sends whose scheduled time has passed, catching anything the
// queue-driven path missed. Safe to run alongside queue-driven
// dispatch; the sends store's queued-only status transitions make
// double delivery a no-op.
type AutoDispatcher struct {
	store      dueLister
	dispatcher *Dispatcher
	logger     *logging.Logger
	interval   time.Duration
	batchSize  int
}

// NewAutoDispatcher creates a sweep with default cadence.
func NewAutoDispatcher(store dueLister, dispatcher *Dispatcher, logger *logging.Logger) *AutoDispatcher {
	if store == nil {
		panic("dispatch: due lister required")
	}
	if dispatcher == nil {
		panic("dispatch: dispatcher required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AutoDispatcher{
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
		interval:   30 * time.Second,
		batchSize:  100,
	}
}

func (a *AutoDispatcher) WithInterval(d time.Duration) *AutoDispatcher {
	if d > 0 {
		a.interval = d
	}
	return a
}

func (a *AutoDispatcher) WithBatchSize(n int) *AutoDispatcher {
	if n > 0 {
		a.batchSize = n
	}
	return a
}

// Run sweeps immediately, then on every interval until ctx is canceled.
func (a *AutoDispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	a.drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.drain(ctx)
		}
	}
}

func (a *AutoDispatcher) drain(ctx context.Context) {
	due, err := a.store.ListDue(ctx, time.Now(), a.batchSize)
	if err != nil {
		a.logger.Error("auto-dispatch fetch failed", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}

	ids := make([]uuid.UUID, 0, len(due))
	for _, s := range due {
		ids = append(ids, s.ID)
	}
	a.logger.Debug("auto-dispatch sweep", "count", len(ids))
	if err := a.dispatcher.DispatchBatch(ctx, ids); err != nil {
		a.logger.Error("auto-dispatch batch failed", "error", err)
	}
}
