package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/socialwatch/internal/domain"
	"github.com/shaiso/socialwatch/internal/orchestrator"
	"github.com/shaiso/socialwatch/internal/repo"
	"github.com/shaiso/socialwatch/internal/telemetry"
)

// OutboxStore — операции outbox, нужные API.
type OutboxStore interface {
	List(ctx context.Context, filter repo.OutboxFilter) ([]domain.OutboxEvent, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.OutboxEvent, error)
	CountByStatus(ctx context.Context) (map[domain.OutboxStatus]int, error)
	Requeue(ctx context.Context, id uuid.UUID, now time.Time) (*domain.OutboxEvent, error)
}

// StateReader читает scheduler_state.
type StateReader interface {
	Get(ctx context.Context, clientID string) (*domain.SchedulerState, error)
}

// RunTrigger запускает run вручную.
type RunTrigger interface {
	Run(ctx context.Context) (*orchestrator.RunReport, error)
	Phase() orchestrator.Phase
	LastReport() *orchestrator.RunReport
}

// Waker будит outbox-воркер после requeue.
type Waker interface {
	Wake()
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	outbox OutboxStore
	states StateReader
	runs   RunTrigger
	waker  Waker
	now    func() time.Time
	logger *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Outbox OutboxStore
	States StateReader
	Runs   RunTrigger // nil — маршруты /runs не регистрируются
	Waker  Waker
	Now    func() time.Time
	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		outbox: cfg.Outbox,
		states: cfg.States,
		runs:   cfg.Runs,
		waker:  cfg.Waker,
		now:    now,
		logger: logger,
	}
}

// log возвращает логгер запроса (с request_id), если он есть в контексте.
func (h *Handler) log(r *http.Request) *slog.Logger {
	if logger, ok := telemetry.LoggerFrom(r.Context()); ok {
		return logger
	}
	return h.logger
}
