// socialwatch-scheduler — запускает run'ы сбора по расписанию.
//
// Scheduler:
//   - По cron (default: каждые 30 минут) запускает run orchestrator'а
//   - Run защищён распределённой блокировкой в Redis: при нескольких
//     репликах выполняется ровно один
//   - Новые уведомления пишутся в outbox, worker будится через RabbitMQ
//   - HTTP: /healthz, /metrics, POST /api/v1/runs, GET /api/v1/runs/status
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/socialwatch/internal/api"
	"github.com/shaiso/socialwatch/internal/config"
	"github.com/shaiso/socialwatch/internal/fetch"
	"github.com/shaiso/socialwatch/internal/lock"
	"github.com/shaiso/socialwatch/internal/mq"
	"github.com/shaiso/socialwatch/internal/notify"
	"github.com/shaiso/socialwatch/internal/orchestrator"
	"github.com/shaiso/socialwatch/internal/repo"
	"github.com/shaiso/socialwatch/internal/scheduler"
	"github.com/shaiso/socialwatch/internal/telemetry"
)

func main() {
	logger := telemetry.SetupLogger("socialwatch-scheduler")
	logger.Info("starting socialwatch-scheduler")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.Database.URL, "socialwatch-scheduler", cfg.Database.MaxConns)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := repo.Migrate(ctx, pool); err != nil {
		logger.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	// Redis lock
	rdb, err := lock.NewClient(ctx, cfg.Redis.URL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()
	logger.Info("redis connected")

	// RabbitMQ (опционально)
	var (
		notifier orchestrator.Notifier
		alertPub telemetry.AlertPublisher
	)
	if cfg.RabbitMQ.URL != "" {
		conn, err := mq.NewConnection(cfg.RabbitMQ.URL, "socialwatch-scheduler", logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, worker will rely on polling", "error", err)
		} else {
			defer conn.Close()
			if err := mq.SetupTopology(ctx, conn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			}
			publisher := mq.NewPublisher(conn, logger)
			notifier = publisher
			alertPub = publisher
			logger.Info("RabbitMQ connected")
		}
	}

	alerter := telemetry.NewAlerter(logger, alertPub)

	var fetcher fetch.Fetcher = fetch.Noop{}
	if cfg.Fetch.URL != "" {
		fetcher = fetch.NewHTTPFetcher(cfg.Fetch.URL, cfg.Fetch.Token, cfg.Fetch.Timeout)
	} else {
		logger.Warn("fetch.url is empty, counts are read without triggering a scrape")
	}

	stateRepo := repo.NewStateRepo(pool)

	orch := orchestrator.New(orchestrator.Config{
		Locker:            lock.NewRedis(rdb, logger),
		Clients:           repo.NewClientRepo(pool),
		States:            stateRepo,
		Content:           repo.NewContentRepo(pool),
		Fetcher:           fetcher,
		Outbox:            repo.NewOutboxRepo(pool),
		Alerter:           alerter,
		Notifier:          notifier,
		LockKey:           cfg.Run.JobKey,
		LockTTL:           cfg.Run.LockTTL(),
		Concurrency:       cfg.Run.Concurrency,
		Budget:            cfg.Run.Budget,
		IntakeBuffer:      cfg.Run.IntakeBuffer,
		HeartbeatInterval: cfg.Notify.HeartbeatInterval,
		Window:            cfg.Window(),
		Thresholds:        cfg.Thresholds(),
		Builder: notify.Builder{
			MaxAttempts: cfg.Outbox.MaxAttempts,
			MaxItems:    cfg.Notify.MaxItems,
		},
		Logger: logger,
	})

	sched := scheduler.New(scheduler.Config{Timezone: cfg.Run.Timezone, Logger: logger})
	err = sched.Register(scheduler.Job{
		Key:     cfg.Run.JobKey,
		Spec:    cfg.Run.Schedule,
		Timeout: cfg.Run.LockTTL(),
		Run: func(ctx context.Context) error {
			_, err := orch.Run(ctx)
			if errors.Is(err, orchestrator.ErrRunInFlight) {
				return nil
			}
			return err
		},
	})
	if err != nil {
		logger.Error("failed to register run job", "error", err)
		os.Exit(1)
	}
	sched.Start(ctx)

	for _, e := range sched.Entries() {
		logger.Info("job scheduled", "job", e.Key, "spec", e.Spec, "next", e.Next)
	}

	// HTTP mux: /healthz + /metrics + API
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	api.NewHandler(api.Config{
		States: stateRepo,
		Runs:   orch,
		Logger: logger,
	}).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.SchedulerPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", "error", err)
	}

	logger.Info("socialwatch-scheduler stopped")
}
