// Package transport доставляет сообщения outbox в чат-группы.
//
// Конкретный канал (WhatsApp-шлюз по HTTP, Telegram, dry-run в лог)
// выбирается конфигурацией; outbox-воркер видит только Sender.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// Ошибки транспорта.
var (
	// ErrUnknownKind — транспорт с таким именем не зарегистрирован.
	ErrUnknownKind = errors.New("unknown transport kind")

	// ErrInvalidDestination — destination не подходит транспорту.
	ErrInvalidDestination = errors.New("invalid destination")
)

// Sender отправляет текст в чат-группу.
//
// false без ошибки означает, что транспорт отказался принять сообщение;
// воркер трактует это так же, как ошибку.
type Sender interface {
	SendMessage(ctx context.Context, destination, text string) (bool, error)
}

// Kind — тип транспорта.
type Kind string

const (
	KindHTTP     Kind = "http"
	KindTelegram Kind = "telegram"
	KindLog      Kind = "log"
)

// Factory создаёт Sender.
type Factory func() (Sender, error)

// Registry — реестр транспортов по типу.
type Registry struct {
	mu        sync.RWMutex
	factories map[Kind]Factory
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Kind]Factory)}
}

// Register регистрирует фабрику транспорта.
func (r *Registry) Register(kind Kind, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// New создаёт Sender указанного типа.
func (r *Registry) New(kind string) (Sender, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(kind)))

	r.mu.RLock()
	f, ok := r.factories[k]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	s, err := f()
	if err != nil {
		return nil, fmt.Errorf("create %s transport: %w", k, err)
	}
	return s, nil
}

// Kinds возвращает зарегистрированные типы (отсортированы).
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}

// LogSender — dry-run транспорт: пишет сообщение в лог и считает его доставленным.
type LogSender struct {
	Logger *slog.Logger
}

// SendMessage реализует Sender.
func (s LogSender) SendMessage(_ context.Context, destination, text string) (bool, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("dry-run message",
		"destination", destination,
		"length", len(text),
		"text", text,
	)
	return true, nil
}

// RateLimited ограничивает частоту отправки.
type RateLimited struct {
	next    Sender
	limiter *rate.Limiter
}

// NewRateLimited оборачивает Sender лимитом perSecond сообщений в секунду.
// perSecond <= 0 — без ограничения.
func NewRateLimited(next Sender, perSecond float64) Sender {
	if perSecond <= 0 {
		return next
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// SendMessage ждёт токен лимитера и отправляет сообщение.
func (r *RateLimited) SendMessage(ctx context.Context, destination, text string) (bool, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return false, fmt.Errorf("rate limit wait: %w", err)
	}
	return r.next.SendMessage(ctx, destination, text)
}
