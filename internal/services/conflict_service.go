package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"brokerbook/internal/db"
	"brokerbook/internal/models"
	"brokerbook/internal/store"
	"brokerbook/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

// StatusAll lists conflicts in every status.
const StatusAll = "all"

type ConflictService struct {
	txRunner  db.TxRunner
	accounts  AccountStore
	trades    TradeStore
	ledger    LedgerStore
	conflicts ConflictStore
	audit     AuditStore
	hub       EventHub
	log       zerolog.Logger
	now       func() time.Time
}

func NewConflictService(txRunner db.TxRunner, accounts AccountStore, trades TradeStore, ledger LedgerStore, conflicts ConflictStore, audit AuditStore, hub EventHub, log zerolog.Logger) *ConflictService {
	return &ConflictService{
		txRunner:  txRunner,
		accounts:  accounts,
		trades:    trades,
		ledger:    ledger,
		conflicts: conflicts,
		audit:     audit,
		hub:       hub,
		log:       log.With().Str("service", "conflicts").Logger(),
		now:       time.Now,
	}
}

// List returns the user's conflicts, optionally narrowed to one account. An empty
// status means pending; StatusAll disables the status filter.
func (s *ConflictService) List(ctx context.Context, userID string, accountID *int64, status string) ([]models.ImportConflict, error) {
	filter := store.ConflictFilter{}
	switch status {
	case "":
		filter.Status = models.StatusPending
	case StatusAll:
	default:
		filter.Status = models.ConflictStatus(status)
		if !filter.Status.Valid() {
			return nil, ErrInvalidStatus
		}
	}
	if accountID != nil {
		if _, err := authorizeAccount(ctx, s.accounts, userID, *accountID); err != nil {
			return nil, err
		}
		filter.AccountIDs = []int64{*accountID}
	} else {
		accounts, err := s.accounts.ListByUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		filter.AccountIDs = accountIDs(accounts)
	}
	return s.conflicts.List(ctx, filter)
}

// Resolve moves a pending conflict to the terminal status of action. use_new and
// manual_edit rewrite the target row by primary key inside the same transaction.
func (s *ConflictService) Resolve(ctx context.Context, userID string, conflictID int64, action models.ResolveAction, edited json.RawMessage) (models.ImportConflict, error) {
	status, ok := action.Status()
	if !ok {
		return models.ImportConflict{}, ErrInvalidAction
	}
	if action == models.ActionManualEdit && isBlankPayload(edited) {
		return models.ImportConflict{}, ErrEditPayloadRequired
	}

	var conflict models.ImportConflict
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		conflict, err = s.loadOwned(ctx, tx, userID, conflictID)
		if err != nil {
			return err
		}
		if conflict.Status != models.StatusPending {
			return ErrConflictAlreadyResolved
		}
		if action.Mutates() {
			replacement := conflict.NewData
			if action == models.ActionManualEdit {
				replacement, err = models.DecodeSnapshot(conflict.ImportType, edited)
				if err != nil {
					return err
				}
			}
			if err := s.applyReplacement(ctx, tx, conflict, replacement); err != nil {
				return err
			}
		}
		updated, err := s.conflicts.MarkResolved(ctx, tx, conflict.ID, status, userID)
		if err != nil {
			return err
		}
		if updated == 0 {
			return ErrConflictAlreadyResolved
		}
		return s.audit.Log(ctx, tx, userID, "conflict."+string(action), "import_conflict", strconv.FormatInt(conflict.ID, 10), map[string]any{
			"account_id":  conflict.AccountID,
			"import_type": conflict.ImportType,
			"status":      status,
		})
	})
	if err != nil {
		return models.ImportConflict{}, err
	}

	resolvedAt := s.now().UTC()
	conflict.Status = status
	conflict.ResolvedAt = &resolvedAt
	conflict.ResolvedBy = &userID
	s.log.Info().Int64("conflict_id", conflict.ID).Str("action", string(action)).Msg("conflict resolved")
	s.hub.Publish(userID, websocket.Event{
		Type:      websocket.EventConflictResolved,
		AccountID: conflict.AccountID,
		Payload:   map[string]any{"conflict_id": conflict.ID, "status": status},
	})
	return conflict, nil
}

// Delete removes a conflict in any status without touching the target row.
func (s *ConflictService) Delete(ctx context.Context, userID string, conflictID int64) error {
	var accountID int64
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		conflict, err := s.loadOwned(ctx, tx, userID, conflictID)
		if err != nil {
			return err
		}
		accountID = conflict.AccountID
		deleted, err := s.conflicts.Delete(ctx, tx, conflictID)
		if err != nil {
			return err
		}
		if deleted == 0 {
			return ErrConflictNotFound
		}
		return s.audit.Log(ctx, tx, userID, "conflict.delete", "import_conflict", strconv.FormatInt(conflictID, 10), map[string]any{
			"account_id": conflict.AccountID,
			"status":     conflict.Status,
		})
	})
	if err != nil {
		return err
	}
	s.hub.Publish(userID, websocket.Event{
		Type:      websocket.EventConflictDeleted,
		AccountID: accountID,
		Payload:   map[string]any{"conflict_id": conflictID},
	})
	return nil
}

func (s *ConflictService) loadOwned(ctx context.Context, tx *sqlx.Tx, userID string, conflictID int64) (models.ImportConflict, error) {
	conflict, err := s.conflicts.GetForUpdate(ctx, tx, conflictID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ImportConflict{}, ErrConflictNotFound
	}
	if err != nil {
		return models.ImportConflict{}, err
	}
	if _, err := authorizeAccount(ctx, s.accounts, userID, conflict.AccountID); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return models.ImportConflict{}, ErrConflictNotFound
		}
		return models.ImportConflict{}, err
	}
	return conflict, nil
}

func (s *ConflictService) applyReplacement(ctx context.Context, tx *sqlx.Tx, conflict models.ImportConflict, replacement models.Snapshot) error {
	if replacement.Kind != conflict.ImportType {
		return models.ErrSnapshotKind
	}
	if err := replacement.Validate(); err != nil {
		return err
	}
	var (
		updated int64
		err     error
	)
	switch conflict.ImportType {
	case models.ImportTypeTradebook:
		if conflict.TargetTradeID == nil {
			return ErrConflictTargetMissing
		}
		updated, err = s.trades.ApplySnapshot(ctx, tx, *conflict.TargetTradeID, *replacement.Trade)
	case models.ImportTypeLedger:
		if conflict.TargetLedgerID == nil {
			return ErrConflictTargetMissing
		}
		updated, err = s.ledger.ApplySnapshot(ctx, tx, *conflict.TargetLedgerID, *replacement.Ledger)
	default:
		return models.ErrSnapshotKind
	}
	if err != nil {
		return err
	}
	if updated == 0 {
		return ErrConflictTargetMissing
	}
	return nil
}

func isBlankPayload(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}"))
}
