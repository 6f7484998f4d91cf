package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Ошибки планировщика.
var (
	// ErrDuplicateJob — job с таким ключом уже зарегистрирован.
	ErrDuplicateJob = errors.New("job already registered")

	// ErrInvalidJob — у job'а нет ключа или функции.
	ErrInvalidJob = errors.New("invalid job")
)

// Job — периодическая задача.
type Job struct {
	// Key — уникальное имя job'а (используется в логах и метриках).
	Key string

	// Spec — cron-выражение.
	Spec string

	// Timeout — ограничение одного запуска (0 — без ограничения).
	Timeout time.Duration

	// Run — тело job'а.
	Run func(ctx context.Context) error
}

// Entry — зарегистрированный job и время следующего запуска.
type Entry struct {
	Key  string    `json:"key"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next"`
	Prev time.Time `json:"prev"`
}

// Scheduler — cron-планировщик job'ов.
type Scheduler struct {
	logger *slog.Logger
	loc    *time.Location
	cron   *cron.Cron

	mu      sync.Mutex
	ctx     context.Context
	entries map[string]cron.EntryID
	specs   map[string]string
	started bool
}

// Config — конфигурация Scheduler.
type Config struct {
	// Timezone — IANA timezone расписания (default: UTC).
	Timezone string

	Logger *slog.Logger
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := LoadLocation(cfg.Timezone)
	if cfg.Timezone != "" && loc == time.UTC && cfg.Timezone != "UTC" {
		logger.Warn("invalid timezone, falling back to UTC", "timezone", cfg.Timezone)
	}

	cl := cronLogger{logger: logger}
	return &Scheduler{
		logger: logger,
		loc:    loc,
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ctx:     context.Background(),
		entries: make(map[string]cron.EntryID),
		specs:   make(map[string]string),
	}
}

// Location возвращает timezone расписания.
func (s *Scheduler) Location() *time.Location {
	return s.loc
}

// Register добавляет job. Можно вызывать до и после Start.
func (s *Scheduler) Register(job Job) error {
	if job.Key == "" || job.Run == nil {
		return ErrInvalidJob
	}
	if err := ValidateCronExpr(job.Spec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[job.Key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.Key)
	}

	id, err := s.cron.AddFunc(job.Spec, func() { s.runJob(job) })
	if err != nil {
		return fmt.Errorf("add job %s: %w", job.Key, err)
	}
	s.entries[job.Key] = id
	s.specs[job.Key] = job.Spec

	s.logger.Info("job registered", "job", job.Key, "spec", job.Spec, "timezone", s.loc.String())
	return nil
}

// Start запускает планировщик. ctx передаётся во все запуски job'ов.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.ctx = ctx
	s.started = true
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.entries), "timezone", s.loc.String())
}

// Stop останавливает планировщик и ждёт завершения выполняющихся job'ов.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// Entries возвращает зарегистрированные job'ы, отсортированные по ключу.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for key, id := range s.entries {
		e := s.cron.Entry(id)
		out = append(out, Entry{Key: key, Spec: s.specs[key], Next: e.Next, Prev: e.Prev})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (s *Scheduler) runJob(job Job) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	start := time.Now()
	s.logger.Debug("job started", "job", job.Key)

	if err := job.Run(ctx); err != nil {
		s.logger.Error("job failed", "job", job.Key, "duration", time.Since(start), "error", err)
		return
	}
	s.logger.Debug("job finished", "job", job.Key, "duration", time.Since(start))
}

// cronLogger адаптирует slog к cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
