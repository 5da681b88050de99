package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"brokerbook/internal/config"
	"brokerbook/internal/db"
	"brokerbook/internal/handlers"
	"brokerbook/internal/logging"
	"brokerbook/internal/pricing"
	"brokerbook/internal/services"
	"brokerbook/internal/store"
	"brokerbook/internal/websocket"

	"github.com/spf13/pflag"
)

func main() {
	migrateOnStart := pflag.Bool("migrate", false, "apply pending database migrations before serving")
	pflag.Parse()

	cfg := config.Load()
	log := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.Pretty()})
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}
	defer database.Close()

	if *migrateOnStart {
		if err := db.MigrateUp(database.DB, log); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
	}

	accounts := store.NewAccountStore(database)
	trades := store.NewTradeStore(database)
	ledger := store.NewLedgerStore(database)
	conflicts := store.NewConflictStore(database)
	audit := store.NewAuditStore(database)
	txRunner := db.NewTxRunner(database, log)
	hub := websocket.NewHub(log)

	quoter := pricing.NewCachedQuoter(pricing.NewHTTPQuoter(pricing.HTTPConfig{
		BaseURL:       cfg.QuoteAPIURL,
		RatePerSecond: cfg.QuoteRatePerSec,
		Burst:         cfg.QuoteConcurrency,
		Timeout:       cfg.QuoteTimeout,
	}, pricing.StaticSession(cfg.QuoteAPIToken), log), cfg.QuoteCacheTTL)

	accountService := services.NewAccountService(txRunner, accounts, audit)
	importService := services.NewImportService(txRunner, accounts, trades, ledger, conflicts, audit, hub, log)
	conflictService := services.NewConflictService(txRunner, accounts, trades, ledger, conflicts, audit, hub, log)
	portfolioService := services.NewPortfolioService(accounts, trades, ledger, quoter, services.PortfolioOptions{
		Fetch:   pricing.FetchOptions{Concurrency: cfg.QuoteConcurrency, Timeout: cfg.QuoteTimeout},
		Timeout: cfg.ValuationTimeout,
	}, log)

	handler := handlers.New(cfg, log, accountService, importService, conflictService, portfolioService, hub)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.ValuationTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("brokerbook API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("shutdown error")
	}
	log.Info().Msg("server stopped")
}
