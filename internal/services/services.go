package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"brokerbook/internal/models"
	"brokerbook/internal/store"
	"brokerbook/internal/websocket"
)

var (
	ErrAccountNotFound         = errors.New("account not found")
	ErrForbidden               = errors.New("account does not belong to user")
	ErrInvalidAccountName      = errors.New("account name is required")
	ErrInvalidAction           = errors.New("action must be one of keep_existing, use_new, manual_edit, ignore")
	ErrEditPayloadRequired     = errors.New("edited_data is required for manual_edit")
	ErrInvalidStatus           = errors.New("invalid conflict status")
	ErrConflictNotFound        = errors.New("conflict not found")
	ErrConflictAlreadyResolved = errors.New("conflict already resolved")
	ErrConflictTargetMissing   = errors.New("conflict target row no longer exists")
	ErrInvalidScope            = errors.New("account_id must be a positive id or consolidated")
)

type AccountStore interface {
	Create(ctx context.Context, tx store.Getter, userID *string, name string) (int64, error)
	GetByID(ctx context.Context, accountID int64) (models.Account, error)
	ListByUser(ctx context.Context, userID string) ([]models.Account, error)
	Lock(ctx context.Context, tx store.Execer, accountID int64) error
	RecordSync(ctx context.Context, tx store.Execer, accountID, imported int64) (int64, error)
}

type TradeStore interface {
	GetByTradeID(ctx context.Context, tx store.Getter, accountID int64, tradeID string) (models.Trade, error)
	Insert(ctx context.Context, tx store.Getter, accountID int64, batchID string, trade models.TradeSnapshot) (int64, error)
	ApplySnapshot(ctx context.Context, tx store.Execer, id int64, trade models.TradeSnapshot) (int64, error)
	ListByAccounts(ctx context.Context, accountIDs []int64) ([]models.Trade, error)
}

type LedgerStore interface {
	FindExact(ctx context.Context, tx store.Getter, accountID int64, entry models.LedgerSnapshot) (models.LedgerEntry, error)
	FindByKey(ctx context.Context, tx store.Getter, accountID int64, entry models.LedgerSnapshot) (models.LedgerEntry, error)
	Insert(ctx context.Context, tx store.Getter, accountID int64, batchID string, entry models.LedgerSnapshot) (int64, error)
	ApplySnapshot(ctx context.Context, tx store.Execer, id int64, entry models.LedgerSnapshot) (int64, error)
	ListByAccounts(ctx context.Context, accountIDs []int64, from, to *time.Time) ([]models.LedgerEntry, error)
}

type ConflictStore interface {
	Create(ctx context.Context, tx store.Getter, conflict models.ImportConflict) (int64, error)
	HasPending(ctx context.Context, tx store.Getter, conflict models.ImportConflict) (bool, error)
	GetForUpdate(ctx context.Context, tx store.Getter, conflictID int64) (models.ImportConflict, error)
	List(ctx context.Context, filter store.ConflictFilter) ([]models.ImportConflict, error)
	MarkResolved(ctx context.Context, tx store.Execer, conflictID int64, status models.ConflictStatus, resolvedBy string) (int64, error)
	Delete(ctx context.Context, tx store.Execer, conflictID int64) (int64, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID string, data any) error
}

type EventHub interface {
	Publish(userID string, event websocket.Event)
}

// authorizeAccount loads accountID and checks that userID owns it.
func authorizeAccount(ctx context.Context, accounts AccountStore, userID string, accountID int64) (models.Account, error) {
	account, err := accounts.GetByID(ctx, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, ErrAccountNotFound
	}
	if err != nil {
		return models.Account{}, err
	}
	if !account.OwnedBy(userID) {
		return models.Account{}, ErrForbidden
	}
	return account, nil
}

func accountIDs(accounts []models.Account) []int64 {
	ids := make([]int64, 0, len(accounts))
	for _, account := range accounts {
		ids = append(ids, account.ID)
	}
	return ids
}
