package api

import (
	"net/http"
)

// RegisterRoutes регистрирует маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		RequestID(h.logger),
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Outbox
	if h.outbox != nil {
		mux.Handle("GET /api/v1/outbox", chain(http.HandlerFunc(h.ListOutbox)))
		mux.Handle("GET /api/v1/outbox/stats", chain(http.HandlerFunc(h.OutboxStats)))
		mux.Handle("GET /api/v1/outbox/{id}", chain(http.HandlerFunc(h.GetOutbox)))
		mux.Handle("POST /api/v1/outbox/{id}/requeue", chain(http.HandlerFunc(h.RequeueOutbox)))
	}

	// Scheduler state
	if h.states != nil {
		mux.Handle("GET /api/v1/clients/{id}/state", chain(http.HandlerFunc(h.GetClientState)))
	}

	// Runs
	if h.runs != nil {
		mux.Handle("POST /api/v1/runs", chain(http.HandlerFunc(h.TriggerRun)))
		mux.Handle("GET /api/v1/runs/status", chain(http.HandlerFunc(h.RunStatus)))
	}
}
