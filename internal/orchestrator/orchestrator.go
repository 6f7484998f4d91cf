package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/shaiso/socialwatch/internal/change"
	"github.com/shaiso/socialwatch/internal/domain"
	"github.com/shaiso/socialwatch/internal/fetch"
	"github.com/shaiso/socialwatch/internal/lock"
	"github.com/shaiso/socialwatch/internal/notify"
	"github.com/shaiso/socialwatch/internal/telemetry"
)

// Default configuration values.
const (
	DefaultLockKey      = "social-fetch"
	DefaultConcurrency  = 4
	DefaultBudget       = 25 * time.Minute
	DefaultIntakeBuffer = 20 * time.Second
	DefaultLockMargin   = 5 * time.Minute

	defaultMissingIDsLimit = 20
	releaseTimeout         = 5 * time.Second
)

// ClientSource — реестр клиентов.
type ClientSource interface {
	ListActive(ctx context.Context) ([]domain.ClientRef, error)
}

// StateStore — хранилище scheduler_state.
type StateStore interface {
	LoadStates(ctx context.Context, clientIDs []string) (map[string]domain.SchedulerState, error)
	Upsert(ctx context.Context, state domain.SchedulerState) error
}

// ContentSource — собранный контент клиентов.
type ContentSource interface {
	Counts(ctx context.Context, clientID string) (domain.Counts, error)
	RecentItems(ctx context.Context, clientID string, platform domain.Platform, limit int) ([]domain.ContentItem, error)
	MissingIDs(ctx context.Context, clientID string, platform domain.Platform, limit int) ([]string, error)
}

// Alerter — операторские алерты.
type Alerter interface {
	Alert(ctx context.Context, scope string, err error, attrs ...any)
}

// Notifier будит outbox-воркер после вставки строк.
type Notifier interface {
	PublishOutboxPending(ctx context.Context, inserted int, runID string) error
}

// Orchestrator выполняет run'ы. Один экземпляр на процесс.
type Orchestrator struct {
	locker   lock.Locker
	clients  ClientSource
	states   StateStore
	content  ContentSource
	fetcher  fetch.Fetcher
	outbox   notify.Store
	alerter  Alerter
	notifier Notifier
	builder  notify.Builder

	// Configuration
	lockKey         string
	lockTTL         time.Duration
	concurrency     int64
	budget          time.Duration
	intakeBuffer    time.Duration
	interval        time.Duration
	window          change.Window
	thresholds      change.Thresholds
	missingIDsLimit int

	now    func() time.Time
	logger *slog.Logger

	inFlight atomic.Bool
	phaseMu  sync.RWMutex
	phase    Phase
	last     *RunReport
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Collaborators
	Locker  lock.Locker
	Clients ClientSource
	States  StateStore
	Content ContentSource
	Fetcher fetch.Fetcher // default: fetch.Noop
	Outbox  notify.Store

	// Опционально
	Alerter  Alerter
	Notifier Notifier

	LockKey      string        // ключ блокировки (default: "social-fetch")
	LockTTL      time.Duration // default: Budget + 5m
	Concurrency  int           // параллельных клиентов (default: 4)
	Budget       time.Duration // бюджет run (default: 25m)
	IntakeBuffer time.Duration // запас до дедлайна для допуска клиента (default: 20s)

	// HeartbeatInterval — минимальный интервал heartbeat (default: 1h).
	HeartbeatInterval time.Duration

	// Window — окно уведомлений (zero value — всегда открыто).
	Window change.Window

	Thresholds change.Thresholds
	Builder    notify.Builder

	// MissingIDsLimit — сколько пропавших ID запрашивать для классификации (default: 20).
	MissingIDsLimit int

	// Now — источник времени решений (для тестов).
	Now func() time.Time

	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	lockKey := cfg.LockKey
	if lockKey == "" {
		lockKey = DefaultLockKey
	}

	budget := cfg.Budget
	if budget <= 0 {
		budget = DefaultBudget
	}

	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = budget + DefaultLockMargin
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	intakeBuffer := cfg.IntakeBuffer
	if intakeBuffer <= 0 {
		intakeBuffer = DefaultIntakeBuffer
	}

	interval := cfg.HeartbeatInterval
	if interval <= 0 {
		interval = change.DefaultHeartbeatInterval
	}

	missingLimit := cfg.MissingIDsLimit
	if missingLimit <= 0 {
		missingLimit = defaultMissingIDsLimit
	}

	var fetcher fetch.Fetcher = fetch.Noop{}
	if cfg.Fetcher != nil {
		fetcher = cfg.Fetcher
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		locker:          cfg.Locker,
		clients:         cfg.Clients,
		states:          cfg.States,
		content:         cfg.Content,
		fetcher:         fetcher,
		outbox:          cfg.Outbox,
		alerter:         cfg.Alerter,
		notifier:        cfg.Notifier,
		builder:         cfg.Builder,
		lockKey:         lockKey,
		lockTTL:         lockTTL,
		concurrency:     int64(concurrency),
		budget:          budget,
		intakeBuffer:    intakeBuffer,
		interval:        interval,
		window:          cfg.Window,
		thresholds:      cfg.Thresholds,
		missingIDsLimit: missingLimit,
		now:             now,
		logger:          logger,
		phase:           PhaseIdle,
	}
}

// Phase возвращает текущую фазу.
func (o *Orchestrator) Phase() Phase {
	o.phaseMu.RLock()
	defer o.phaseMu.RUnlock()
	return o.phase
}

// LastReport возвращает отчёт последнего завершённого run (nil, если его не было).
func (o *Orchestrator) LastReport() *RunReport {
	o.phaseMu.RLock()
	defer o.phaseMu.RUnlock()
	return o.last
}

func (o *Orchestrator) setPhase(p Phase) {
	o.phaseMu.Lock()
	o.phase = p
	o.phaseMu.Unlock()
}

// Run выполняет один run.
//
// Пропуск run (блокировка занята или недоступна) — не ошибка: возвращается
// отчёт со Skipped=true. Исключение — параллельный вызов в этом же процессе:
// он возвращает ErrRunInFlight, чтобы вызывающий (API) мог ответить 409.
func (o *Orchestrator) Run(ctx context.Context) (*RunReport, error) {
	runID := uuid.NewString()
	logger := telemetry.WithRunID(o.logger, runID)

	report := &RunReport{RunID: runID, StartedAt: o.now()}

	if !o.inFlight.CompareAndSwap(false, true) {
		report.Skipped = true
		report.SkipReason = SkipInFlight
		report.FinishedAt = o.now()
		telemetry.RunsTotal.WithLabelValues("skipped").Inc()
		logger.Info("run skipped: another run in flight in this process")
		return report, ErrRunInFlight
	}
	defer o.inFlight.Store(false)

	err := o.run(ctx, logger, report)

	report.FinishedAt = o.now()
	o.phaseMu.Lock()
	o.phase = PhaseIdle
	o.last = report
	o.phaseMu.Unlock()

	switch {
	case err != nil:
		telemetry.RunsTotal.WithLabelValues("failed").Inc()
	case report.Skipped:
		telemetry.RunsTotal.WithLabelValues("skipped").Inc()
	default:
		telemetry.RunsTotal.WithLabelValues("completed").Inc()
	}
	return report, err
}

func (o *Orchestrator) run(parent context.Context, logger *slog.Logger, report *RunReport) error {
	// Дедлайн ограничивает только допуск новых клиентов
	admitCtx, cancel := context.WithTimeout(parent, o.budget)
	defer cancel()
	deadline, _ := admitCtx.Deadline()

	// LOCK_WAIT
	o.setPhase(PhaseLockWait)
	lease, err := o.locker.Acquire(admitCtx, o.lockKey, o.lockTTL)
	if err != nil {
		report.Skipped = true
		report.SkipReason = SkipLockError
		logger.Warn("run skipped: lock backend error", "lock_key", o.lockKey, "error", err)
		o.alert(parent, "lock", err, "run_id", report.RunID)
		return nil
	}
	if !lease.Acquired {
		report.Skipped = true
		report.SkipReason = SkipLockHeld
		logger.Info("run skipped: lock held by another instance", "lock_key", o.lockKey)
		return nil
	}

	start := time.Now()
	logger.Info("run started", "lock_key", o.lockKey, "lock_ttl", o.lockTTL, "budget", o.budget)

	defer func() {
		relCtx, relCancel := context.WithTimeout(context.WithoutCancel(parent), releaseTimeout)
		defer relCancel()
		if err := lease.Release(relCtx); err != nil {
			logger.Warn("failed to release lock", "lock_key", o.lockKey, "error", err)
		}
		o.setPhase(PhaseReleased)
		telemetry.RunDuration.Observe(time.Since(start).Seconds())
	}()

	// LOADING
	o.setPhase(PhaseLoading)
	clients, err := o.clients.ListActive(admitCtx)
	if err != nil {
		report.Error = err.Error()
		o.alert(parent, "load_clients", err, "run_id", report.RunID)
		return fmt.Errorf("load active clients: %w", err)
	}
	report.Clients = len(clients)
	if len(clients) == 0 {
		logger.Info("no active clients")
		return nil
	}

	ids := make([]string, len(clients))
	for i, c := range clients {
		ids[i] = c.ID
	}

	states, err := o.states.LoadStates(admitCtx, ids)
	if err != nil {
		report.Conservative = true
		states = nil
		logger.Error("failed to load scheduler state, running in conservative mode", "error", err)
		o.alert(parent, "state_load", err, "run_id", report.RunID, "clients", len(ids))
	}

	rc := &runContext{
		runID:        report.RunID,
		now:          report.StartedAt,
		slot:         change.Slot(report.StartedAt, o.window.Location),
		states:       states,
		conservative: report.Conservative,
		logger:       logger,
	}

	// FANOUT
	o.setPhase(PhaseFanout)
	sem := semaphore.NewWeighted(o.concurrency)
	results := &collector{}
	var wg sync.WaitGroup

	for i, client := range clients {
		if err := sem.Acquire(admitCtx, 1); err != nil {
			report.NotAdmitted = len(clients) - i
			logger.Warn("run budget exhausted, remaining clients not admitted", "not_admitted", report.NotAdmitted)
			break
		}
		if time.Until(deadline) < o.intakeBuffer {
			sem.Release(1)
			report.NotAdmitted = len(clients) - i
			logger.Warn("run deadline near, remaining clients not admitted",
				"not_admitted", report.NotAdmitted,
				"remaining", time.Until(deadline).Round(time.Millisecond),
			)
			break
		}
		report.Admitted++

		wg.Add(1)
		go func(c domain.ClientRef) {
			defer wg.Done()
			defer sem.Release(1)
			// Допущенный клиент доводится до конца даже после дедлайна
			results.add(o.processClientSafe(parent, rc, c))
		}(client)
	}

	// DRAINING
	o.setPhase(PhaseDraining)
	wg.Wait()
	results.fill(report)

	logger.Info("run finished",
		"clients", report.Clients,
		"admitted", report.Admitted,
		"not_admitted", report.NotAdmitted,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"enqueued", report.Enqueued,
		"duplicated", report.Duplicated,
		"conservative", report.Conservative,
		"duration", time.Since(start).Round(time.Millisecond),
	)

	if report.Enqueued > 0 && o.notifier != nil {
		if err := o.notifier.PublishOutboxPending(parent, report.Enqueued, report.RunID); err != nil {
			// Воркер подхватит строки по таймеру
			logger.Warn("failed to publish outbox wake-up", "error", err)
		}
	}
	return nil
}

func (o *Orchestrator) alert(ctx context.Context, scope string, err error, attrs ...any) {
	if o.alerter != nil {
		o.alerter.Alert(ctx, scope, err, attrs...)
	}
}
