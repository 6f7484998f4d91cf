package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/shaiso/socialwatch/internal/orchestrator"
)

// TriggerRun запускает run вне расписания.
// POST /api/v1/runs?wait=true
//
// Без wait run выполняется в фоне и ответ — 202. С wait=true ответ
// содержит отчёт run. Пока в процессе идёт другой run — 409.
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))

	if !wait {
		if h.runs.Phase() != orchestrator.PhaseIdle {
			Conflict(w, "run already in progress")
			return
		}
		// Run не должен прерываться вместе с запросом
		ctx := context.WithoutCancel(r.Context())
		go func() {
			if _, err := h.runs.Run(ctx); err != nil && !errors.Is(err, orchestrator.ErrRunInFlight) {
				h.logger.Error("manual run failed", "error", err)
			}
		}()
		Accepted(w, RunAcceptedResponse{Accepted: true})
		return
	}

	report, err := h.runs.Run(r.Context())
	if errors.Is(err, orchestrator.ErrRunInFlight) {
		Conflict(w, "run already in progress")
		return
	}
	if err != nil {
		InternalError(w, h.log(r), err)
		return
	}
	Success(w, report)
}

// RunStatus возвращает фазу orchestrator и последний отчёт.
// GET /api/v1/runs/status
func (h *Handler) RunStatus(w http.ResponseWriter, _ *http.Request) {
	Success(w, RunStatusResponse{
		Phase:      h.runs.Phase(),
		LastReport: h.runs.LastReport(),
	})
}
