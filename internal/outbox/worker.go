package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shaiso/socialwatch/internal/domain"
	"github.com/shaiso/socialwatch/internal/mq"
	"github.com/shaiso/socialwatch/internal/telemetry"
	"github.com/shaiso/socialwatch/internal/transport"
)

// Default configuration values.
const (
	defaultPollInterval = time.Minute
	defaultBatchSize    = 20
	defaultStaleAfter   = 15 * time.Minute
	defaultSendTimeout  = 30 * time.Second
	defaultPrefetch     = 1

	// settleTimeout ограничивает запись статуса после отправки.
	settleTimeout = 10 * time.Second

	maxErrorLength = 1000
)

// Store — хранилище outbox, с которым работает воркер.
type Store interface {
	// RecoverStale разбирает processing-строки, забранные раньше staleBefore:
	// исчерпавшие попытки уходят в dead_letter, остальные в retrying
	// с next_attempt_at = now.
	RecoverStale(ctx context.Context, staleBefore, now time.Time) (domain.RecoverResult, error)

	// ClaimBatch атомарно забирает до limit готовых строк (processing, attempt+1).
	ClaimBatch(ctx context.Context, limit int, now time.Time) ([]domain.OutboxEvent, error)

	// Переходы из processing; attempt — attempt_count, полученный при claim.
	MarkSent(ctx context.Context, id uuid.UUID, attempt int, at time.Time) error
	MarkRetrying(ctx context.Context, id uuid.UUID, attempt int, errMsg string, nextAttemptAt time.Time) error
	MarkDeadLetter(ctx context.Context, id uuid.UUID, attempt int, errMsg string) error
}

// DeadLetterPublisher публикует событие о строке, ушедшей в dead_letter.
type DeadLetterPublisher interface {
	PublishDeadLetter(ctx context.Context, event domain.OutboxEvent) error
}

// Alerter — операторские алерты.
type Alerter interface {
	Alert(ctx context.Context, scope string, err error, attrs ...any)
}

// TickReport — итог одного tick.
type TickReport struct {
	Recovered    int `json:"recovered"`
	Claimed      int `json:"claimed"`
	Sent         int `json:"sent"`
	Retrying     int `json:"retrying"`
	DeadLettered int `json:"dead_lettered"`

	// MarkFailed — строки, статус которых не удалось записать.
	// Они останутся processing и вернутся через stale recovery.
	MarkFailed int `json:"mark_failed"`
}

// Worker доставляет уведомления из outbox.
//
// Worker — stateless компонент: всё состояние доставки лежит в БД,
// поэтому экземпляров может быть несколько. Внутри процесса tick'и
// не пересекаются.
type Worker struct {
	store  Store
	sender transport.Sender

	// MQ (опционально)
	conn       *mq.Connection
	deadLetter DeadLetterPublisher
	consumer   *mq.Consumer

	alerter Alerter

	// Configuration
	pollInterval time.Duration
	batchSize    int
	staleAfter   time.Duration
	sendTimeout  time.Duration
	backoffBase  time.Duration
	backoffMax   time.Duration

	now    func() time.Time
	tickMu sync.Mutex
	wakeCh chan struct{}

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	Store  Store
	Sender transport.Sender

	// Conn — соединение с RabbitMQ для wake-up сигналов outbox.pending.
	// nil — только polling.
	Conn *mq.Connection

	// DeadLetter — публикация dead_letter событий (опционально).
	DeadLetter DeadLetterPublisher

	// Alerter (опционально)
	Alerter Alerter

	PollInterval time.Duration // интервал polling (default: 1m)
	BatchSize    int           // строк за один claim (default: 20)
	StaleAfter   time.Duration // processing дольше этого считается зависшим (default: 15m)
	SendTimeout  time.Duration // таймаут одной отправки (default: 30s)
	BackoffBase  time.Duration // default: 30s
	BackoffMax   time.Duration // default: 1h

	// Now — источник времени (для тестов).
	Now func() time.Time

	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}

	sendTimeout := cfg.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Worker{
		store:        cfg.Store,
		sender:       cfg.Sender,
		conn:         cfg.Conn,
		deadLetter:   cfg.DeadLetter,
		alerter:      cfg.Alerter,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		staleAfter:   staleAfter,
		sendTimeout:  sendTimeout,
		backoffBase:  cfg.BackoffBase,
		backoffMax:   cfg.BackoffMax,
		now:          now,
		wakeCh:       make(chan struct{}, 1),
		logger:       logger,
	}
}

// Start запускает Worker.
//
// Запускает:
//   - Polling горутину (первый tick сразу)
//   - Consumer для outbox.pending, если задано соединение с RabbitMQ
func (w *Worker) Start(ctx context.Context) error {
	if w.IsStopped() {
		return ErrWorkerStopped
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting outbox worker",
		"poll_interval", w.pollInterval,
		"batch_size", w.batchSize,
		"stale_after", w.staleAfter,
	)

	if w.conn != nil {
		w.consumer = mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
			Queue:    mq.QueueOutboxPending,
			Handler:  w.handleWakeup,
			Types:    []mq.MessageType{mq.MessageTypeOutboxPending},
			Prefetch: defaultPrefetch,
		})

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := w.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("outbox consumer error", "error", err)
			}
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.pollLoop(ctx)
	}()

	w.logger.Info("outbox worker started")
	return nil
}

// Stop останавливает Worker и ждёт завершения текущего tick.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping outbox worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}

	if w.consumer != nil {
		w.consumer.Stop()
	}

	w.wg.Wait()

	w.logger.Info("outbox worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// Wake просит воркер выполнить tick раньше следующего тика таймера.
// Не блокирует: повторные сигналы до начала tick схлопываются.
func (w *Worker) Wake() {
	select {
	case w.wakeCh <- struct{}{}:
	default:
	}
}

// handleWakeup — обработчик сообщений outbox.pending.
func (w *Worker) handleWakeup(_ context.Context, d *mq.Delivery) error {
	w.logger.Debug("outbox wake-up received", "message_id", d.Message.ID)
	w.Wake()
	return nil
}

// pollLoop — цикл tick'ов по таймеру и wake-up сигналам.
func (w *Worker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Первый tick сразу при старте (подхватываем строки, накопленные пока были выключены)
	w.runTick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runTick(ctx)
		case <-w.wakeCh:
			w.runTick(ctx)
		}
	}
}

func (w *Worker) runTick(ctx context.Context) {
	report, err := w.Tick(ctx)
	if errors.Is(err, ErrTickInProgress) {
		w.logger.Debug("outbox tick skipped: previous tick in progress")
		return
	}
	if err != nil {
		w.logger.Error("outbox tick failed", "error", err)
		return
	}
	if report.Claimed > 0 || report.Recovered > 0 {
		w.logger.Info("outbox tick completed",
			"recovered", report.Recovered,
			"claimed", report.Claimed,
			"sent", report.Sent,
			"retrying", report.Retrying,
			"dead_lettered", report.DeadLettered,
			"mark_failed", report.MarkFailed,
		)
	}
}

// Tick выполняет один цикл: stale recovery → claim → доставка.
//
// Tick'и внутри процесса не пересекаются: если предыдущий ещё идёт,
// возвращается ErrTickInProgress.
func (w *Worker) Tick(ctx context.Context) (TickReport, error) {
	var report TickReport

	if !w.tickMu.TryLock() {
		return report, ErrTickInProgress
	}
	defer w.tickMu.Unlock()

	now := w.now()

	recovered, err := w.store.RecoverStale(ctx, now.Add(-w.staleAfter), now)
	if err != nil {
		// Не блокирует доставку: зависшие строки вернутся в следующий tick
		w.logger.Warn("failed to recover stale outbox rows", "error", err)
	} else if recovered.Total() > 0 {
		report.Recovered = recovered.Total()
		telemetry.OutboxRecovered.Add(float64(recovered.Total()))
		w.logger.Warn("recovered stale outbox rows",
			"requeued", recovered.Requeued,
			"dead_lettered", len(recovered.DeadLettered),
		)
		for i := range recovered.DeadLettered {
			report.DeadLettered++
			telemetry.OutboxDeliveries.WithLabelValues(string(domain.OutboxStatusDeadLetter)).Inc()
			w.onDeadLetter(ctx, &recovered.DeadLettered[i], ErrStaleFinalAttempt)
		}
	}

	events, err := w.store.ClaimBatch(ctx, w.batchSize, now)
	if err != nil {
		return report, fmt.Errorf("claim outbox batch: %w", err)
	}
	report.Claimed = len(events)

	for i := range events {
		if ctx.Err() != nil {
			// Оставшиеся строки останутся processing и вернутся через stale recovery
			break
		}
		w.deliver(ctx, &events[i], &report)
	}

	return report, nil
}

// deliver отправляет одну строку и фиксирует результат.
func (w *Worker) deliver(ctx context.Context, e *domain.OutboxEvent, report *TickReport) {
	logger := telemetry.WithOutboxID(w.logger, e.ID.String()).With(
		"client_id", e.ClientID,
		"destination", e.Destination,
		"attempt", e.AttemptCount,
	)

	sendErr := w.send(ctx, e)
	now := w.now()

	// Отправка уже состоялась: статус пишется и после отмены ctx (Stop).
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	if sendErr == nil {
		if err := w.store.MarkSent(settleCtx, e.ID, e.AttemptCount, now); err != nil {
			report.MarkFailed++
			logger.Error("failed to mark outbox row sent", "error", err)
			return
		}
		report.Sent++
		telemetry.OutboxDeliveries.WithLabelValues(string(domain.OutboxStatusSent)).Inc()
		logger.Info("notification sent")
		return
	}

	errMsg := truncate(sendErr.Error(), maxErrorLength)
	e.ErrorMessage = errMsg

	if e.AttemptsExhausted() {
		if err := w.store.MarkDeadLetter(settleCtx, e.ID, e.AttemptCount, errMsg); err != nil {
			report.MarkFailed++
			logger.Error("failed to mark outbox row dead_letter", "error", err)
			return
		}
		report.DeadLettered++
		e.Status = domain.OutboxStatusDeadLetter
		telemetry.OutboxDeliveries.WithLabelValues(string(domain.OutboxStatusDeadLetter)).Inc()
		logger.Error("notification dead-lettered", "error", sendErr)

		w.onDeadLetter(settleCtx, e, sendErr)
		return
	}

	next := now.Add(Backoff(e.AttemptCount, w.backoffBase, w.backoffMax))
	if err := w.store.MarkRetrying(settleCtx, e.ID, e.AttemptCount, errMsg, next); err != nil {
		report.MarkFailed++
		logger.Error("failed to mark outbox row retrying", "error", err)
		return
	}
	report.Retrying++
	telemetry.OutboxDeliveries.WithLabelValues(string(domain.OutboxStatusRetrying)).Inc()
	logger.Warn("notification delivery failed, will retry",
		"error", sendErr,
		"next_attempt_at", next,
	)
}

// send вызывает транспорт; false без ошибки превращается в ErrNotDelivered.
func (w *Worker) send(ctx context.Context, e *domain.OutboxEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transport panic: %v", r)
		}
	}()

	sendCtx, cancel := context.WithTimeout(ctx, w.sendTimeout)
	defer cancel()

	ok, err := w.sender.SendMessage(sendCtx, e.Destination, e.Message)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotDelivered
	}
	return nil
}

func (w *Worker) onDeadLetter(ctx context.Context, e *domain.OutboxEvent, cause error) {
	if w.alerter != nil {
		w.alerter.Alert(ctx, "outbox.dead_letter", cause,
			"outbox_id", e.ID.String(),
			"client_id", e.ClientID,
			"destination", e.Destination,
			"attempts", e.AttemptCount,
		)
	}
	if w.deadLetter != nil {
		if err := w.deadLetter.PublishDeadLetter(ctx, *e); err != nil {
			w.logger.Warn("failed to publish dead letter event",
				"outbox_id", e.ID,
				"error", err,
			)
		}
	}
}

// truncate обрезает строку до n байт, не разрезая UTF-8 символ.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
