package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// AlertPublisher — внешний канал доставки алертов (RabbitMQ).
type AlertPublisher interface {
	PublishAlert(ctx context.Context, scope, message string, attrs map[string]string) error
}

// Alerter — операторские алерты.
//
// Алерт всегда пишется в лог и в метрику socialwatch_alerts_total.
// Если задан publisher — дополнительно уходит в RabbitMQ.
// Alert никогда не паникует и не возвращает ошибку: сбой доставки
// алерта только логируется.
type Alerter struct {
	logger    *slog.Logger
	publisher AlertPublisher
}

// NewAlerter создаёт Alerter. publisher может быть nil.
func NewAlerter(logger *slog.Logger, publisher AlertPublisher) *Alerter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Alerter{logger: logger, publisher: publisher}
}

// Alert регистрирует алерт.
// attrs — пары ключ/значение, как у slog.
func (a *Alerter) Alert(ctx context.Context, scope string, err error, attrs ...any) {
	if a == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("alerter panic", "panic", r)
		}
	}()

	AlertsTotal.WithLabelValues(scope).Inc()

	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}

	args := append([]any{"context", scope, "error", msg}, attrs...)
	a.logger.Error("alert", args...)

	if a.publisher == nil {
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if perr := a.publisher.PublishAlert(pubCtx, scope, msg, attrMap(attrs)); perr != nil {
		a.logger.Warn("failed to publish alert", "context", scope, "error", perr)
	}
}

// attrMap превращает пары ключ/значение в map для сообщения.
func attrMap(attrs []any) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	m := make(map[string]string, len(attrs)/2)
	for i := 0; i+1 < len(attrs); i += 2 {
		key, ok := attrs[i].(string)
		if !ok {
			key = fmt.Sprint(attrs[i])
		}
		m[key] = fmt.Sprint(attrs[i+1])
	}
	return m
}
