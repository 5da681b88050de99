package handlers

import (
	"net/http"
	"strings"

	"brokerbook/internal/config"
	"brokerbook/internal/middleware"
	"brokerbook/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

type Handler struct {
	cfg       config.Config
	log       zerolog.Logger
	accounts  AccountService
	imports   ImportService
	conflicts ConflictService
	portfolio PortfolioService
	hub       *websocket.Hub
}

func New(cfg config.Config, log zerolog.Logger, accounts AccountService, imports ImportService, conflicts ConflictService, portfolio PortfolioService, hub *websocket.Hub) *Handler {
	return &Handler{
		cfg:       cfg,
		log:       log.With().Str("component", "http").Logger(),
		accounts:  accounts,
		imports:   imports,
		conflicts: conflicts,
		portfolio: portfolio,
		hub:       hub,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.RequestLogger(h.log))
	router.Use(chimiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(h.cfg.AllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Group(func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Get("/accounts", h.ListAccounts)
		r.Post("/accounts", h.CreateAccount)
		r.Get("/accounts/{id}", h.GetAccount)
		r.Post("/accounts/{id}/imports/tradebook", h.ImportTradebook)
		r.Post("/accounts/{id}/imports/ledger", h.ImportLedger)
		r.Get("/conflicts", h.ListConflicts)
		r.Post("/conflicts/{id}/resolve", h.ResolveConflict)
		r.Delete("/conflicts/{id}", h.DeleteConflict)
		r.Get("/stats", h.GetStats)
		r.Get("/ledger/summary", h.GetLedgerSummary)
	})
	router.Get("/ws/events", h.WSEvents)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}

func allowedOrigins(raw string) []string {
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
