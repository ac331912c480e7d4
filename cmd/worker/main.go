package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/revenueangel/automation-engine/cmd/mainconfig"
	"github.com/revenueangel/automation-engine/internal/api"
	"github.com/revenueangel/automation-engine/internal/attribution"
	"github.com/revenueangel/automation-engine/internal/config"
	"github.com/revenueangel/automation-engine/internal/delivery"
	"github.com/revenueangel/automation-engine/internal/dispatch"
	"github.com/revenueangel/automation-engine/internal/leads"
	"github.com/revenueangel/automation-engine/internal/members"
	"github.com/revenueangel/automation-engine/internal/observability/metrics"
	"github.com/revenueangel/automation-engine/internal/playbooks"
	"github.com/revenueangel/automation-engine/internal/queue"
	"github.com/revenueangel/automation-engine/internal/scheduler"
	"github.com/revenueangel/automation-engine/internal/segment"
	"github.com/revenueangel/automation-engine/internal/sends"
	"github.com/revenueangel/automation-engine/internal/webhooks"
	"github.com/revenueangel/automation-engine/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("engine worker exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	transport, err := buildTransport(ctx, cfg, logger)
	if err != nil {
		return err
	}

	playbookStore := playbooks.NewStore(pool)
	leadStore := leads.NewStore(pool)
	memberStore := members.NewStore(pool)
	sendStore := sends.NewStore(pool)
	eventStore := webhooks.NewStore(pool)
	conversionStore := attribution.NewStore(pool)

	engineMetrics := metrics.NewEngineMetrics(nil)

	platformClient, err := buildPlatformClient(cfg, logger)
	if err != nil {
		return err
	}

	var accessChecker segment.AccessChecker
	if platformClient != nil {
		accessChecker = platformAccess{client: platformClient}
		if cfg.RedisAddr != "" {
			rdb := redis.NewClient(&redis.Options{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
			})
			defer rdb.Close()
			accessChecker = segment.NewCachedAccessChecker(rdb, accessChecker, cfg.AccessCacheTTL, logger)
		}
	}
	evaluator := segment.NewEvaluator(accessChecker, logger)

	channels := buildChannels(cfg, platformClient, logger)

	queueClient := queue.NewClient(transport)
	tracker := attribution.NewTracker(sendStore, conversionStore, engineMetrics, logger).
		WithWindow(cfg.AttributionWindow)
	dispatcher := dispatch.New(sendStore, memberStore, leadStore, channels, engineMetrics, logger)
	sched := scheduler.New(playbookStore, leadStore, memberStore, sendStore, evaluator, queueClient, logger)
	processor := webhooks.NewProcessor(eventStore, memberStore, playbookStore, sendStore, tracker, engineMetrics, logger).
		WithRetriggerWindow(cfg.ChurnSaveRetriggerWindow)
	ingestor := webhooks.NewIngestor(eventStore, queueClient, logger)

	worker := queue.NewWorker(transport, logger)
	worker.Register(queue.JobPlaybookScheduler, cfg.SchedulerWorkers, func(ctx context.Context, payload json.RawMessage) error {
		var job queue.SchedulerJob
		if err := json.Unmarshal(payload, &job); err != nil {
			return fmt.Errorf("decode scheduler job: %w", err)
		}
		start := time.Now()
		scheduled, err := sched.RunTick(ctx, job.CompanyID)
		engineMetrics.ObserveTick(time.Since(start).Seconds(), scheduled)
		return err
	})
	worker.Register(queue.JobMessageDispatcher, cfg.DispatcherWorkers, func(ctx context.Context, payload json.RawMessage) error {
		var job queue.DispatcherJob
		if err := json.Unmarshal(payload, &job); err != nil {
			return fmt.Errorf("decode dispatcher job: %w", err)
		}
		return dispatcher.DispatchBatch(ctx, job.SendIDs)
	})
	worker.Register(queue.JobWebhookProcessor, cfg.WebhookWorkers, func(ctx context.Context, payload json.RawMessage) error {
		var job queue.WebhookJob
		if err := json.Unmarshal(payload, &job); err != nil {
			return fmt.Errorf("decode webhook job: %w", err)
		}
		return processor.Process(ctx, job.EventID)
	})
	worker.Start(ctx)

	recurring := queue.NewRecurring(logger)
	if err := recurring.Add(cfg.SchedulerCron, "playbook-scheduler", func(ctx context.Context) {
		if err := queueClient.EnqueueSchedulerRun(ctx, queue.SchedulerJob{}); err != nil {
			logger.Error("failed to enqueue scheduler run", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("register scheduler cron: %w", err)
	}
	recurring.Start()
	defer recurring.Stop()

	autoDispatch := dispatch.NewAutoDispatcher(sendStore, dispatcher, logger).
		WithInterval(cfg.AutoDispatchInterval).
		WithBatchSize(cfg.DispatchBatchSize)
	go autoDispatch.Run(ctx)

	router := api.New(&api.Config{
		Logger:         logger,
		Previewer:      sched,
		Stats:          conversionStore,
		Clicks:         tracker,
		Ingestor:       ingestor,
		Leads:          leadStore,
		Seeder:         playbookStore,
		MetricsHandler: promhttp.Handler(),
	})
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http server listening", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			cancel()
		}
	}()

	logger.Info("engine worker started",
		"scheduler_workers", cfg.SchedulerWorkers,
		"dispatcher_workers", cfg.DispatcherWorkers,
		"webhook_workers", cfg.WebhookWorkers,
		"scheduler_cron", cfg.SchedulerCron,
	)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown failed", "error", err)
	}

	done := make(chan struct{})
	go func() {
		worker.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("engine worker stopped")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, exiting with handlers still running")
	}
	return nil
}

// platformAccess adapts the delivery client's access probe to the
// segment evaluator's checker interface.
type platformAccess struct {
	client *delivery.PlatformClient
}

func (p platformAccess) HasAccess(ctx context.Context, userID, resourceID string) (bool, error) {
	return p.client.CheckAccess(ctx, userID, resourceID)
}

func buildTransport(ctx context.Context, cfg *config.Config, logger *logging.Logger) (queue.Transport, error) {
	if cfg.UseMemoryQueue {
		logger.Info("using in-memory queue")
		return queue.NewMemoryTransport(1024), nil
	}
	if cfg.EngineQueueURL == "" {
		return nil, errors.New("ENGINE_QUEUE_URL is required unless USE_MEMORY_QUEUE=true")
	}
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return queue.NewSQSTransport(awssqs.NewFromConfig(awsCfg), cfg.EngineQueueURL), nil
}

func buildPlatformClient(cfg *config.Config, logger *logging.Logger) (*delivery.PlatformClient, error) {
	if cfg.PlatformAPIKey == "" {
		logger.Warn("PLATFORM_API_KEY not set, platform delivery disabled")
		return nil, nil
	}
	client, err := delivery.NewPlatformClient(delivery.PlatformConfig{
		BaseURL: cfg.PlatformBaseURL,
		APIKey:  cfg.PlatformAPIKey,
		Logger:  logger.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build platform client: %w", err)
	}
	return client, nil
}

func buildChannels(cfg *config.Config, platformClient *delivery.PlatformClient, logger *logging.Logger) dispatch.Channels {
	channels := dispatch.Channels{}
	if platformClient != nil {
		channels.Platform = platformClient
	} else {
		channels.Platform = delivery.NewStubChannel("platform", logger)
	}
	if cfg.SendGridAPIKey != "" {
		channels.Email = delivery.NewEmailChannel(delivery.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
	} else {
		logger.Warn("SENDGRID_API_KEY not set, email delivery disabled")
		channels.Email = delivery.NewStubChannel("email", logger)
	}
	return channels
}
