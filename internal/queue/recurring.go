package queue

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/revenueangel/automation-engine/pkg/logging"
)

// Recurring runs cron-scheduled enqueue jobs, typically the periodic
// scheduler tick for every company with enabled playbooks.
type Recurring struct {
	cron   *cron.Cron
	logger *logging.Logger
}

// NewRecurring creates an idle cron runner. Add entries, then Start.
func NewRecurring(logger *logging.Logger) *Recurring {
	if logger == nil {
		logger = logging.Default()
	}
	return &Recurring{
		cron:   cron.New(),
		logger: logger,
	}
}

// Add registers fn under a standard 5-field cron expression.
func (r *Recurring) Add(spec string, name string, fn func(ctx context.Context)) error {
	_, err := r.cron.AddFunc(spec, func() {
		r.logger.Debug("recurring job firing", "job", name)
		fn(context.Background())
	})
	return err
}

// Start launches the cron scheduler in its own goroutine.
func (r *Recurring) Start() {
	r.cron.Start()
}

// Stop halts scheduling and waits for running jobs to complete.
func (r *Recurring) Stop() {
	<-r.cron.Stop().Done()
}
