package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"brokerbook/internal/middleware"
	"brokerbook/internal/models"
)

type resolveConflictRequest struct {
	Action     models.ResolveAction `json:"action"`
	EditedData json.RawMessage      `json:"edited_data"`
}

func (h *Handler) ListConflicts(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	query := r.URL.Query()
	var accountID *int64
	if raw := strings.TrimSpace(query.Get("account_id")); raw != "" {
		id, err := parseID(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid account_id")
			return
		}
		accountID = &id
	}
	conflicts, err := h.conflicts.List(r.Context(), userID, accountID, strings.TrimSpace(query.Get("status")))
	if err != nil {
		h.respondServiceError(w, r, err, "unable to load conflicts")
		return
	}
	respondJSON(w, http.StatusOK, conflicts)
}

func (h *Handler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	conflictID, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid conflict id")
		return
	}
	var req resolveConflictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	conflict, err := h.conflicts.Resolve(r.Context(), userID, conflictID, req.Action, req.EditedData)
	if err != nil {
		h.respondServiceError(w, r, err, "unable to resolve conflict")
		return
	}
	respondJSON(w, http.StatusOK, conflict)
}

func (h *Handler) DeleteConflict(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	conflictID, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid conflict id")
		return
	}
	if err := h.conflicts.Delete(r.Context(), userID, conflictID); err != nil {
		h.respondServiceError(w, r, err, "unable to delete conflict")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
