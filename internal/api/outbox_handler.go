package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/shaiso/socialwatch/internal/domain"
	"github.com/shaiso/socialwatch/internal/repo"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// ListOutbox возвращает строки outbox с фильтрацией.
// GET /api/v1/outbox?status=...&client_id=...&limit=...&offset=...
func (h *Handler) ListOutbox(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repo.OutboxFilter{
		ClientID: domain.NormalizeClientID(q.Get("client_id")),
		Limit:    defaultListLimit,
	}

	if s := q.Get("status"); s != "" {
		status, ok := domain.ParseOutboxStatus(s)
		if !ok {
			BadRequest(w, "invalid status")
			return
		}
		filter.Status = status
	}

	var ok bool
	if filter.Limit, ok = queryInt(q.Get("limit"), defaultListLimit); !ok || filter.Limit <= 0 {
		BadRequest(w, "invalid limit")
		return
	}
	filter.Limit = min(filter.Limit, maxListLimit)

	if filter.Offset, ok = queryInt(q.Get("offset"), 0); !ok || filter.Offset < 0 {
		BadRequest(w, "invalid offset")
		return
	}

	events, err := h.outbox.List(r.Context(), filter)
	if HandleRepoError(w, h.log(r), err, "") {
		return
	}

	result := make([]OutboxResponse, len(events))
	for i, e := range events {
		result[i] = OutboxFromDomain(e)
	}
	List(w, result, len(result))
}

// OutboxStats возвращает количество строк по статусам.
// GET /api/v1/outbox/stats
func (h *Handler) OutboxStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.outbox.CountByStatus(r.Context())
	if HandleRepoError(w, h.log(r), err, "") {
		return
	}

	resp := OutboxStatsResponse{Counts: counts}
	for _, n := range counts {
		resp.Total += n
	}
	Success(w, resp)
}

// GetOutbox возвращает строку outbox по ID.
// GET /api/v1/outbox/{id}
func (h *Handler) GetOutbox(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid outbox id")
		return
	}

	event, err := h.outbox.GetByID(r.Context(), id)
	if HandleRepoError(w, h.log(r), err, "outbox event not found") {
		return
	}
	Success(w, OutboxFromDomain(*event))
}

// RequeueOutbox возвращает dead_letter строку в pending.
// POST /api/v1/outbox/{id}/requeue
func (h *Handler) RequeueOutbox(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid outbox id")
		return
	}

	event, err := h.outbox.Requeue(r.Context(), id, h.now())
	if HandleRepoError(w, h.log(r), err, "outbox event not found") {
		return
	}

	h.log(r).Info("outbox event requeued", "outbox_id", id, "client_id", event.ClientID)
	if h.waker != nil {
		h.waker.Wake()
	}
	Success(w, OutboxFromDomain(*event))
}

// queryInt разбирает необязательный целочисленный параметр.
func queryInt(s string, def int) (int, bool) {
	if s == "" {
		return def, true
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
