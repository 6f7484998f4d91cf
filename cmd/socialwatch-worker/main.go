// socialwatch-worker — доставляет уведомления из outbox.
//
// Worker:
//   - Забирает строки outbox (FOR UPDATE SKIP LOCKED) по таймеру и по
//     сигналам outbox.pending из RabbitMQ
//   - Отправляет через транспорт (log, http, telegram)
//   - Повторяет с exponential backoff, исчерпавшие попытки уводит в dead_letter
//   - HTTP: /healthz, /metrics и операторский API outbox/state
//
// Worker'ы масштабируются горизонтально.
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
	"github.com/shaiso/socialwatch/internal/mq"
	"github.com/shaiso/socialwatch/internal/outbox"
	"github.com/shaiso/socialwatch/internal/repo"
	"github.com/shaiso/socialwatch/internal/telemetry"
)

func main() {
	logger := telemetry.SetupLogger("socialwatch-worker")
	logger.Info("starting socialwatch-worker")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.Database.URL, "socialwatch-worker", cfg.Database.MaxConns)
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

	// RabbitMQ (опционально)
	var (
		mqConn     *mq.Connection
		deadLetter outbox.DeadLetterPublisher
		alertPub   telemetry.AlertPublisher
	)
	if cfg.RabbitMQ.URL != "" {
		mqConn, err = mq.NewConnection(cfg.RabbitMQ.URL, "socialwatch-worker", logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
			mqConn = nil
		} else {
			defer mqConn.Close()
			if err := mq.SetupTopology(ctx, mqConn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			}
			publisher := mq.NewPublisher(mqConn, logger)
			deadLetter = publisher
			alertPub = publisher
			logger.Info("RabbitMQ connected")
		}
	}

	sender, err := newSender(cfg.Transport, logger)
	if err != nil {
		logger.Error("failed to create transport", "kind", cfg.Transport.Kind, "error", err)
		os.Exit(1)
	}
	logger.Info("transport ready", "kind", cfg.Transport.Kind, "rate_per_second", cfg.Transport.RatePerSecond)

	outboxRepo := repo.NewOutboxRepo(pool)

	w := outbox.New(outbox.Config{
		Store:        outboxRepo,
		Sender:       sender,
		Conn:         mqConn,
		DeadLetter:   deadLetter,
		Alerter:      telemetry.NewAlerter(logger, alertPub),
		PollInterval: cfg.Outbox.PollInterval,
		BatchSize:    cfg.Outbox.BatchSize,
		StaleAfter:   cfg.Outbox.StaleAfter,
		SendTimeout:  cfg.Outbox.SendTimeout,
		BackoffBase:  cfg.Outbox.BackoffBase,
		BackoffMax:   cfg.Outbox.BackoffMax,
		Logger:       logger,
	})

	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics + API
	mux := http.NewServeMux()
	// polling-режим без брокера считается здоровым, разорванное соединение тоже:
	// worker продолжает доставку по таймеру.
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		switch {
		case mqConn == nil:
			_, _ = rw.Write([]byte("ok (polling)"))
		case !mqConn.IsConnected():
			_, _ = rw.Write([]byte("ok (amqp reconnecting)"))
		default:
			_, _ = rw.Write([]byte("ok"))
		}
	})
	mux.Handle("/metrics", promhttp.Handler())

	api.NewHandler(api.Config{
		Outbox: outboxRepo,
		States: repo.NewStateRepo(pool),
		Waker:  w,
		Logger: logger,
	}).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.WorkerPort,
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

	w.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", "error", err)
	}

	logger.Info("socialwatch-worker stopped")
}
