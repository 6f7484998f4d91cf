package orchestrator

import (
	"sync"
	"time"

	"github.com/shaiso/socialwatch/internal/change"
)

// Phase — фаза run.
type Phase string

const (
	PhaseIdle     Phase = "IDLE"
	PhaseLockWait Phase = "LOCK_WAIT"
	PhaseLoading  Phase = "LOADING"
	PhaseFanout   Phase = "FANOUT"
	PhaseDraining Phase = "DRAINING"
	PhaseReleased Phase = "RELEASED"
)

// SkipReason — причина пропуска run.
type SkipReason string

const (
	SkipInFlight  SkipReason = "in_flight"
	SkipLockHeld  SkipReason = "lock_held"
	SkipLockError SkipReason = "lock_error"
)

// Outcome — итог обработки клиента.
type Outcome string

const (
	OutcomeOK     Outcome = "ok"
	OutcomeFailed Outcome = "failed"
)

// ClientResult — итог обработки одного клиента.
type ClientResult struct {
	ClientID string        `json:"client_id"`
	Outcome  Outcome       `json:"outcome"`
	Reason   change.Reason `json:"reason"`

	HasChanges  bool `json:"has_changes"`
	Anomaly     bool `json:"anomaly,omitempty"`
	FetchErrors int  `json:"fetch_errors,omitempty"`
	Enqueued    int  `json:"enqueued"`
	Duplicated  int  `json:"duplicated"`
	StateSaved  bool `json:"state_saved"`

	Error string `json:"error,omitempty"`
}

// RunReport — итог run.
type RunReport struct {
	RunID      string     `json:"run_id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Skipped    bool       `json:"skipped"`
	SkipReason SkipReason `json:"skip_reason,omitempty"`

	// Conservative — scheduler_state не загрузился, уведомления подавлены.
	Conservative bool `json:"conservative"`

	Clients     int `json:"clients"`
	Admitted    int `json:"admitted"`
	NotAdmitted int `json:"not_admitted"`
	Succeeded   int `json:"succeeded"`
	Failed      int `json:"failed"`
	Enqueued    int `json:"enqueued"`
	Duplicated  int `json:"duplicated"`

	Results []ClientResult `json:"results,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Duration возвращает длительность run.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// collector собирает результаты клиентов из параллельных горутин.
type collector struct {
	mu      sync.Mutex
	results []ClientResult
}

func (c *collector) add(r ClientResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, r)
}

// fill переносит результаты в отчёт.
func (c *collector) fill(report *RunReport) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range c.results {
		if r.Outcome == OutcomeOK {
			report.Succeeded++
		} else {
			report.Failed++
		}
		report.Enqueued += r.Enqueued
		report.Duplicated += r.Duplicated
	}
	report.Results = append(report.Results, c.results...)
}
