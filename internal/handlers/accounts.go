package handlers

import (
	"encoding/json"
	"net/http"

	"brokerbook/internal/middleware"
)

type createAccountRequest struct {
	Name string `json:"name"`
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	accounts, err := h.accounts.List(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, r, err, "unable to load accounts")
		return
	}
	respondJSON(w, http.StatusOK, accounts)
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	account, err := h.accounts.Create(r.Context(), userID, req.Name)
	if err != nil {
		h.respondServiceError(w, r, err, "unable to create account")
		return
	}
	respondJSON(w, http.StatusCreated, account)
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	accountID, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	account, err := h.accounts.Get(r.Context(), userID, accountID)
	if err != nil {
		h.respondServiceError(w, r, err, "unable to load account")
		return
	}
	respondJSON(w, http.StatusOK, account)
}
