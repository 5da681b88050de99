package handlers

import (
	"context"
	"encoding/json"
	"time"

	"brokerbook/internal/csvimport"
	"brokerbook/internal/models"
	"brokerbook/internal/portfolio"
	"brokerbook/internal/services"
)

type AccountService interface {
	Create(ctx context.Context, userID, name string) (models.Account, error)
	List(ctx context.Context, userID string) ([]models.Account, error)
	Get(ctx context.Context, userID string, accountID int64) (models.Account, error)
}

type ImportService interface {
	ImportTrades(ctx context.Context, userID string, accountID int64, rows []csvimport.Row) (services.ImportResult, error)
	ImportLedger(ctx context.Context, userID string, accountID int64, rows []csvimport.Row) (services.ImportResult, error)
}

type ConflictService interface {
	List(ctx context.Context, userID string, accountID *int64, status string) ([]models.ImportConflict, error)
	Resolve(ctx context.Context, userID string, conflictID int64, action models.ResolveAction, edited json.RawMessage) (models.ImportConflict, error)
	Delete(ctx context.Context, userID string, conflictID int64) error
}

type PortfolioService interface {
	GetStats(ctx context.Context, userID string, scope services.Scope, includeClosed bool) (portfolio.Stats, error)
	GetLedgerSummary(ctx context.Context, userID string, scope services.Scope, from, to *time.Time) ([]portfolio.LedgerSummary, error)
}
