package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"brokerbook/internal/middleware"
	"brokerbook/internal/services"
	"brokerbook/internal/validator"
)

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	query := r.URL.Query()
	scope, err := services.ParseScope(query.Get("account_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	includeClosed := false
	if raw := strings.TrimSpace(query.Get("include_closed")); raw != "" {
		includeClosed, err = strconv.ParseBool(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid include_closed")
			return
		}
	}
	stats, err := h.portfolio.GetStats(r.Context(), userID, scope, includeClosed)
	if err != nil {
		h.respondServiceError(w, r, err, "unable to compute stats")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (h *Handler) GetLedgerSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	query := r.URL.Query()
	scope, err := services.ParseScope(query.Get("account_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	from, err := optionalDate(query.Get("from"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid from date")
		return
	}
	to, err := optionalDate(query.Get("to"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid to date")
		return
	}
	summaries, err := h.portfolio.GetLedgerSummary(r.Context(), userID, scope, from, to)
	if err != nil {
		h.respondServiceError(w, r, err, "unable to summarize ledger")
		return
	}
	respondJSON(w, http.StatusOK, summaries)
}

func optionalDate(raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parsed, err := validator.ParseDate(raw)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
