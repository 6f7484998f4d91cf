package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/socialwatch/internal/domain"
	"github.com/shaiso/socialwatch/internal/orchestrator"
)

// OutboxResponse — строка outbox.
type OutboxResponse struct {
	ID             uuid.UUID           `json:"id"`
	ClientID       string              `json:"client_id"`
	Destination    string              `json:"destination"`
	Message        string              `json:"message"`
	IdempotencyKey string              `json:"idempotency_key"`
	Status         domain.OutboxStatus `json:"status"`
	AttemptCount   int                 `json:"attempt_count"`
	MaxAttempts    int                 `json:"max_attempts"`
	NextAttemptAt  time.Time           `json:"next_attempt_at"`
	CreatedAt      time.Time           `json:"created_at"`
	LastAttemptAt  *time.Time          `json:"last_attempt_at,omitempty"`
	SentAt         *time.Time          `json:"sent_at,omitempty"`
	ErrorMessage   string              `json:"error_message,omitempty"`
}

// OutboxFromDomain конвертирует domain.OutboxEvent в OutboxResponse.
func OutboxFromDomain(e domain.OutboxEvent) OutboxResponse {
	return OutboxResponse{
		ID:             e.ID,
		ClientID:       e.ClientID,
		Destination:    e.Destination,
		Message:        e.Message,
		IdempotencyKey: e.IdempotencyKey,
		Status:         e.Status,
		AttemptCount:   e.AttemptCount,
		MaxAttempts:    e.MaxAttempts,
		NextAttemptAt:  e.NextAttemptAt,
		CreatedAt:      e.CreatedAt,
		LastAttemptAt:  e.LastAttemptAt,
		SentAt:         e.SentAt,
		ErrorMessage:   e.ErrorMessage,
	}
}

// OutboxStatsResponse — количество строк по статусам.
type OutboxStatsResponse struct {
	Counts map[domain.OutboxStatus]int `json:"counts"`
	Total  int                         `json:"total"`
}

// StateResponse — scheduler_state клиента.
type StateResponse struct {
	ClientID         string        `json:"client_id"`
	LastCounts       domain.Counts `json:"last_counts"`
	LastNotifiedAt   *time.Time    `json:"last_notified_at,omitempty"`
	LastNotifiedSlot string        `json:"last_notified_slot,omitempty"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// StateFromDomain конвертирует domain.SchedulerState в StateResponse.
func StateFromDomain(s domain.SchedulerState) StateResponse {
	return StateResponse{
		ClientID:         s.ClientID,
		LastCounts:       s.LastCounts,
		LastNotifiedAt:   s.LastNotifiedAt,
		LastNotifiedSlot: s.LastNotifiedSlot,
		UpdatedAt:        s.UpdatedAt,
	}
}

// RunAcceptedResponse — run запущен в фоне.
type RunAcceptedResponse struct {
	Accepted bool `json:"accepted"`
}

// RunStatusResponse — текущая фаза и последний отчёт.
type RunStatusResponse struct {
	Phase      orchestrator.Phase      `json:"phase"`
	LastReport *orchestrator.RunReport `json:"last_report,omitempty"`
}
