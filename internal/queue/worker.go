package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/revenueangel/automation-engine/pkg/logging"
)

const (
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	defaultMaxAttempts   = 3
	deleteTimeoutSeconds = 5
)

// Handler processes one decoded job payload. A returned error requeues
// the job until its attempt budget is spent.
type Handler func(ctx context.Context, payload json.RawMessage) error

type registration struct {
	handler     Handler
	concurrency int
}

type workerConfig struct {
	receiveWaitSecs  int
	receiveBatchSize int
	maxAttempts      int
}

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithReceiveWaitSeconds sets the long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// WithMaxAttempts sets the per-job attempt budget before a job is abandoned.
func WithMaxAttempts(n int) WorkerOption {
	return func(cfg *workerConfig) {
		if n > 0 {
			cfg.maxAttempts = n
		}
	}
}

// Worker consumes jobs from the shared transport and routes each to the
// handler registered for its type. Each job type gets its own bounded
// pool of processing goroutines; the receive loop hands messages to the
// pool and keeps polling.
type Worker struct {
	transport Transport
	client    *Client
	logger    *logging.Logger
	cfg       workerConfig

	mu       sync.Mutex
	handlers map[string]registration
	slots    map[string]chan struct{}

	wg sync.WaitGroup
}

// NewWorker creates a consumer over the shared transport.
func NewWorker(transport Transport, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if transport == nil {
		panic("queue: transport required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
		maxAttempts:      defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Worker{
		transport: transport,
		client:    NewClient(transport),
		logger:    logger,
		cfg:       cfg,
		handlers:  make(map[string]registration),
		slots:     make(map[string]chan struct{}),
	}
}

// Register binds a handler and its concurrency limit to a job type.
// Must be called before Start.
func (w *Worker) Register(jobType string, concurrency int, handler Handler) {
	if jobType == "" {
		panic("queue: jobType required")
	}
	if handler == nil {
		panic("queue: handler required")
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = registration{handler: handler, concurrency: concurrency}
	w.slots[jobType] = make(chan struct{}, concurrency)
}

// Start launches the receive loop. Call Wait after canceling ctx to
// let in-flight jobs finish.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Wait blocks until the receive loop and all in-flight jobs are done.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	w.logger.Debug("queue worker started")

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("queue worker stopping")
			return
		default:
		}

		messages, err := w.transport.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive jobs", "error", err)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.dispatch(ctx, msg)
		}
	}
}

// dispatch acquires the job type's pool slot and processes the message
// on its own goroutine. Unknown job types are logged and dropped.
func (w *Worker) dispatch(ctx context.Context, msg Message) {
	env, err := decodeEnvelope(msg.Body)
	if err != nil {
		w.logger.Error("dropping malformed job", "error", err, "message_id", msg.ID)
		w.deleteMessage(msg.ReceiptHandle)
		return
	}

	w.mu.Lock()
	reg, ok := w.handlers[env.Type]
	slot := w.slots[env.Type]
	w.mu.Unlock()
	if !ok {
		w.logger.Error("dropping job with no registered handler", "job_type", env.Type, "message_id", msg.ID)
		w.deleteMessage(msg.ReceiptHandle)
		return
	}

	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() { <-slot }()
		w.handleMessage(ctx, env, msg, reg.handler)
	}()
}

func (w *Worker) handleMessage(ctx context.Context, env *envelope, msg Message, handler Handler) {
	if err := handler(ctx, env.Payload); err != nil {
		if env.Attempt+1 >= w.cfg.maxAttempts {
			w.logger.Error("abandoning job after repeated failures",
				"job_type", env.Type,
				"attempt", env.Attempt+1,
				"error", err,
			)
		} else {
			w.logger.Warn("job failed, requeueing",
				"job_type", env.Type,
				"attempt", env.Attempt+1,
				"error", err,
			)
			if rerr := w.client.retry(ctx, env); rerr != nil {
				w.logger.Error("failed to requeue job", "job_type", env.Type, "error", rerr)
			}
		}
	}

	w.deleteMessage(msg.ReceiptHandle)
}

func (w *Worker) deleteMessage(receiptHandle string) {
	if receiptHandle == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), deleteTimeoutSeconds*time.Second)
	defer cancel()
	if err := w.transport.Delete(ctx, receiptHandle); err != nil {
		w.logger.Error("failed to delete queue message", "error", err)
	}
}
