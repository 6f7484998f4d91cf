package domain

// OutboxStatus — статус записи в outbox.
//
// Жизненный цикл:
//
//	pending → processing → sent
//	             ↑       ↘ retrying → processing (после backoff)
//	             │       ↘ dead_letter (attempt_count ≥ max_attempts)
//	             └── stale recovery: processing → retrying
type OutboxStatus string

const (
	// OutboxStatusPending — запись создана, ещё не забиралась.
	OutboxStatusPending OutboxStatus = "pending"

	// OutboxStatusProcessing — запись забрана воркером, идёт отправка.
	OutboxStatusProcessing OutboxStatus = "processing"

	// OutboxStatusRetrying — временная ошибка, ждёт next_attempt_at.
	OutboxStatusRetrying OutboxStatus = "retrying"

	// OutboxStatusSent — успешно доставлено.
	OutboxStatusSent OutboxStatus = "sent"

	// OutboxStatusDeadLetter — попытки исчерпаны, только для оператора.
	OutboxStatusDeadLetter OutboxStatus = "dead_letter"
)

// IsTerminal возвращает true, если статус финальный.
func (s OutboxStatus) IsTerminal() bool {
	switch s {
	case OutboxStatusSent, OutboxStatusDeadLetter:
		return true
	default:
		return false
	}
}

// IsClaimable возвращает true, если запись с этим статусом может быть забрана.
func (s OutboxStatus) IsClaimable() bool {
	return s == OutboxStatusPending || s == OutboxStatusRetrying
}

// String возвращает строковое представление OutboxStatus.
func (s OutboxStatus) String() string {
	return string(s)
}

// ParseOutboxStatus парсит строку в OutboxStatus.
// Второе значение false, если статус неизвестен.
func ParseOutboxStatus(s string) (OutboxStatus, bool) {
	switch OutboxStatus(s) {
	case OutboxStatusPending, OutboxStatusProcessing, OutboxStatusRetrying,
		OutboxStatusSent, OutboxStatusDeadLetter:
		return OutboxStatus(s), true
	default:
		return "", false
	}
}

// OutboxStatuses — все статусы в порядке жизненного цикла.
var OutboxStatuses = []OutboxStatus{
	OutboxStatusPending,
	OutboxStatusProcessing,
	OutboxStatusRetrying,
	OutboxStatusSent,
	OutboxStatusDeadLetter,
}
