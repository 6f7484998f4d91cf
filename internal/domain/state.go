package domain

import "time"

// SchedulerState — состояние планировщика для одного клиента.
//
// Читается один раз за run (bulk по набору client_id) и обновляется
// не более одного раза на клиента за run. Отсутствующее состояние
// означает "неизвестно", а не ноль: иначе весь существующий контент
// был бы посчитан новым.
type SchedulerState struct {
	// ClientID — идентификатор клиента (PK).
	ClientID string `json:"client_id"`

	// LastCounts — счётчики, увиденные в предыдущем run.
	LastCounts Counts `json:"last_counts"`

	// LastNotifiedAt — время последнего решения об уведомлении.
	// Nil, если клиент ещё ни разу не уведомлялся.
	LastNotifiedAt *time.Time `json:"last_notified_at,omitempty"`

	// LastNotifiedSlot — часовой слот последнего уведомления ("2006-01-02T15").
	LastNotifiedSlot string `json:"last_notified_slot,omitempty"`

	// UpdatedAt — время последнего upsert.
	UpdatedAt time.Time `json:"updated_at"`
}

// MarkNotified фиксирует решение об уведомлении.
func (s *SchedulerState) MarkNotified(at time.Time, slot string) {
	t := at
	s.LastNotifiedAt = &t
	s.LastNotifiedSlot = slot
}
