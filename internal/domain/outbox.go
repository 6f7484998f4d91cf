package domain

import (
	"time"

	"github.com/google/uuid"
)

// DefaultMaxAttempts — количество попыток доставки по умолчанию.
const DefaultMaxAttempts = 5

// OutboxEvent — запись в durable outbox уведомлений.
//
// Создаётся Payload Builder'ом (insert-or-ignore по IdempotencyKey),
// забирается Outbox Worker'ом через claim и переводится в
// sent / retrying / dead_letter.
type OutboxEvent struct {
	// ID — уникальный идентификатор записи.
	ID uuid.UUID `json:"id"`

	// ClientID — клиент, к которому относится уведомление.
	ClientID string `json:"client_id"`

	// Destination — адрес чат-группы в транспорте.
	Destination string `json:"destination"`

	// Message — текст сообщения (непрозрачный для outbox).
	Message string `json:"message"`

	// IdempotencyKey — глобально уникальный ключ (hash содержимого).
	// Повторная вставка с тем же ключом — no-op.
	IdempotencyKey string `json:"idempotency_key"`

	// Status — текущий статус доставки.
	Status OutboxStatus `json:"status"`

	// AttemptCount — количество выполненных попыток (инкрементируется при claim).
	AttemptCount int `json:"attempt_count"`

	// MaxAttempts — лимит попыток, после которого запись уходит в dead_letter.
	MaxAttempts int `json:"max_attempts"`

	// NextAttemptAt — не раньше этого времени запись может быть забрана.
	NextAttemptAt time.Time `json:"next_attempt_at"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`

	// LastAttemptAt — время последнего claim. Nil, если попыток не было.
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`

	// SentAt — время успешной доставки.
	SentAt *time.Time `json:"sent_at,omitempty"`

	// ErrorMessage — текст последней ошибки доставки.
	ErrorMessage string `json:"error_message,omitempty"`
}

// NewOutboxEvent создаёт pending-запись, готовую к немедленной доставке.
func NewOutboxEvent(clientID, destination, message, idempotencyKey string, maxAttempts int, now time.Time) OutboxEvent {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return OutboxEvent{
		ID:             uuid.New(),
		ClientID:       clientID,
		Destination:    destination,
		Message:        message,
		IdempotencyKey: idempotencyKey,
		Status:         OutboxStatusPending,
		MaxAttempts:    maxAttempts,
		NextAttemptAt:  now,
		CreatedAt:      now,
	}
}

// AttemptsExhausted возвращает true, если после неудачной попытки
// запись должна уйти в dead_letter.
func (e *OutboxEvent) AttemptsExhausted() bool {
	return e.AttemptCount >= e.MaxAttempts
}

// EnqueueResult — результат вставки пачки записей в outbox.
// Дубликаты по IdempotencyKey не ошибка: они просто не вставляются.
type EnqueueResult struct {
	Inserted   int `json:"inserted"`
	Duplicated int `json:"duplicated"`
}

// RecoverResult — итог stale recovery.
// Строки, у которых зависла последняя разрешённая попытка, уходят
// сразу в dead_letter, остальные возвращаются в retrying.
type RecoverResult struct {
	Requeued     int
	DeadLettered []OutboxEvent
}

// Total — общее число восстановленных строк.
func (r RecoverResult) Total() int {
	return r.Requeued + len(r.DeadLettered)
}
