package api

import (
	"net/http"

	"github.com/shaiso/socialwatch/internal/domain"
)

// GetClientState возвращает scheduler_state клиента.
// GET /api/v1/clients/{id}/state
func (h *Handler) GetClientState(w http.ResponseWriter, r *http.Request) {
	clientID := domain.NormalizeClientID(r.PathValue("id"))
	if clientID == "" {
		BadRequest(w, "client id is required")
		return
	}

	state, err := h.states.Get(r.Context(), clientID)
	if HandleRepoError(w, h.log(r), err, "scheduler state not found") {
		return
	}
	Success(w, StateFromDomain(*state))
}
