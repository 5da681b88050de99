package handlers

import (
	"net/http"

	"brokerbook/internal/auth"
	"brokerbook/internal/middleware"
	"brokerbook/internal/websocket"
)

// WSEvents upgrades to a websocket that streams the caller's import and conflict events.
// Browsers cannot set headers on the upgrade request, so the token may also come from
// the token query parameter.
func (h *Handler) WSEvents(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r)
	if !ok {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		respondError(w, http.StatusUnauthorized, "missing token")
		return
	}
	claims, err := auth.ParseToken(h.cfg.JWTSecret, token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	websocket.ServeWS(w, r, h.hub, claims.UserID)
}
