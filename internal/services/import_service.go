package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"brokerbook/internal/csvimport"
	"brokerbook/internal/db"
	"brokerbook/internal/models"
	"brokerbook/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

var ErrDuplicateTradeID = errors.New("trade_id already imported for this account")

type ImportService struct {
	txRunner  db.TxRunner
	accounts  AccountStore
	trades    TradeStore
	ledger    LedgerStore
	conflicts ConflictStore
	audit     AuditStore
	hub       EventHub
	log       zerolog.Logger
}

func NewImportService(txRunner db.TxRunner, accounts AccountStore, trades TradeStore, ledger LedgerStore, conflicts ConflictStore, audit AuditStore, hub EventHub, log zerolog.Logger) *ImportService {
	return &ImportService{
		txRunner:  txRunner,
		accounts:  accounts,
		trades:    trades,
		ledger:    ledger,
		conflicts: conflicts,
		audit:     audit,
		hub:       hub,
		log:       log.With().Str("service", "import").Logger(),
	}
}

type ImportResult struct {
	BatchID   string   `json:"batch_id"`
	Imported  int      `json:"imported"`
	Skipped   int      `json:"skipped"`
	Conflicts int      `json:"conflicts"`
	Total     int      `json:"total"`
	Errors    []string `json:"errors"`
}

type rowOutcome int

const (
	rowInserted rowOutcome = iota
	rowSkipped
	rowConflict
)

func (r *ImportResult) record(outcome rowOutcome) {
	switch outcome {
	case rowInserted:
		r.Imported++
	case rowSkipped:
		r.Skipped++
	case rowConflict:
		r.Conflicts++
	}
}

// ImportTrades reconciles tradebook rows against the account's stored trades. Every row
// ends up inserted, skipped as an exact duplicate, queued as a conflict, or reported in
// Errors; a bad row never aborts the batch.
func (s *ImportService) ImportTrades(ctx context.Context, userID string, accountID int64, rows []csvimport.Row) (ImportResult, error) {
	return s.run(ctx, userID, accountID, models.ImportTypeTradebook, rows, func(batchID string, row csvimport.Row) (rowOutcome, error) {
		trade, err := csvimport.ParseTrade(row)
		if err != nil {
			return 0, err
		}
		return s.importTrade(ctx, accountID, batchID, trade)
	})
}

// ImportLedger reconciles ledger rows the same way, keyed by posting date and particular.
func (s *ImportService) ImportLedger(ctx context.Context, userID string, accountID int64, rows []csvimport.Row) (ImportResult, error) {
	return s.run(ctx, userID, accountID, models.ImportTypeLedger, rows, func(batchID string, row csvimport.Row) (rowOutcome, error) {
		entry, err := csvimport.ParseLedger(row)
		if err != nil {
			return 0, err
		}
		return s.importLedgerEntry(ctx, accountID, batchID, entry)
	})
}

func (s *ImportService) run(ctx context.Context, userID string, accountID int64, kind models.ImportType, rows []csvimport.Row, handle func(batchID string, row csvimport.Row) (rowOutcome, error)) (ImportResult, error) {
	if len(rows) == 0 {
		return ImportResult{}, csvimport.ErrEmptyFile
	}
	if _, err := authorizeAccount(ctx, s.accounts, userID, accountID); err != nil {
		return ImportResult{}, err
	}
	result := ImportResult{
		BatchID: uuid.NewString(),
		Total:   len(rows),
		Errors:  []string{},
	}
	log := s.log.With().Str("batch_id", result.BatchID).Int64("account_id", accountID).Str("kind", string(kind)).Logger()

	// Rows run one after another so each lookup sees the rows committed before it.
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		outcome, err := handle(result.BatchID, row)
		if err != nil {
			var rowErr *csvimport.RowError
			if !errors.As(err, &rowErr) {
				err = &csvimport.RowError{Line: row.Line, Err: err}
				log.Error().Err(err).Msg("row import failed")
			}
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.record(outcome)
	}

	if err := s.finish(ctx, userID, accountID, kind, result); err != nil {
		return result, err
	}
	log.Info().
		Int("total", result.Total).
		Int("imported", result.Imported).
		Int("skipped", result.Skipped).
		Int("conflicts", result.Conflicts).
		Int("errors", len(result.Errors)).
		Msg("import completed")
	return result, nil
}

func (s *ImportService) importTrade(ctx context.Context, accountID int64, batchID string, incoming models.TradeSnapshot) (rowOutcome, error) {
	var outcome rowOutcome
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.accounts.Lock(ctx, tx, accountID); err != nil {
			return err
		}
		if incoming.TradeID != nil {
			existing, err := s.trades.GetByTradeID(ctx, tx, accountID, *incoming.TradeID)
			switch {
			case err == nil:
				fields := existing.Snapshot().Diff(incoming)
				if len(fields) == 0 {
					outcome = rowSkipped
					return nil
				}
				outcome = rowConflict
				targetID := existing.ID
				return s.queueConflict(ctx, tx, models.ImportConflict{
					AccountID:     accountID,
					ImportType:    models.ImportTypeTradebook,
					ConflictType:  models.ConflictDuplicateTradeID,
					ExistingData:  models.TradeData(existing.Snapshot()),
					NewData:       models.TradeData(incoming),
					ConflictField: strings.Join(fields, ","),
					TargetTradeID: &targetID,
				})
			case !errors.Is(err, sql.ErrNoRows):
				return err
			}
		}
		outcome = rowInserted
		_, err := s.trades.Insert(ctx, tx, accountID, batchID, incoming)
		if db.IsUniqueViolation(err) {
			return ErrDuplicateTradeID
		}
		return err
	})
	return outcome, err
}

func (s *ImportService) importLedgerEntry(ctx context.Context, accountID int64, batchID string, incoming models.LedgerSnapshot) (rowOutcome, error) {
	var outcome rowOutcome
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.accounts.Lock(ctx, tx, accountID); err != nil {
			return err
		}
		_, err := s.ledger.FindExact(ctx, tx, accountID, incoming)
		if err == nil {
			outcome = rowSkipped
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		existing, err := s.ledger.FindByKey(ctx, tx, accountID, incoming)
		if err == nil {
			outcome = rowConflict
			targetID := existing.ID
			return s.queueConflict(ctx, tx, models.ImportConflict{
				AccountID:      accountID,
				ImportType:     models.ImportTypeLedger,
				ConflictType:   models.ConflictDuplicateDifferentAmount,
				ExistingData:   models.LedgerData(existing.Snapshot()),
				NewData:        models.LedgerData(incoming),
				ConflictField:  "debit,credit",
				TargetLedgerID: &targetID,
			})
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		outcome = rowInserted
		_, err = s.ledger.Insert(ctx, tx, accountID, batchID, incoming)
		return err
	})
	return outcome, err
}

// queueConflict stores conflict unless an identical one is already pending for the
// same target row.
func (s *ImportService) queueConflict(ctx context.Context, tx *sqlx.Tx, conflict models.ImportConflict) error {
	exists, err := s.conflicts.HasPending(ctx, tx, conflict)
	if err != nil || exists {
		return err
	}
	_, err = s.conflicts.Create(ctx, tx, conflict)
	return err
}

func (s *ImportService) finish(ctx context.Context, userID string, accountID int64, kind models.ImportType, result ImportResult) error {
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if result.Imported > 0 {
			if _, err := s.accounts.RecordSync(ctx, tx, accountID, int64(result.Imported)); err != nil {
				return err
			}
		}
		return s.audit.Log(ctx, tx, userID, "import."+string(kind), "import_batch", result.BatchID, map[string]any{
			"account_id": accountID,
			"total":      result.Total,
			"imported":   result.Imported,
			"skipped":    result.Skipped,
			"conflicts":  result.Conflicts,
			"errors":     len(result.Errors),
		})
	})
	if err != nil {
		return err
	}
	s.hub.Publish(userID, websocket.Event{
		Type:      websocket.EventImportCompleted,
		AccountID: accountID,
		Payload: map[string]any{
			"kind":      kind,
			"batch_id":  result.BatchID,
			"imported":  result.Imported,
			"conflicts": result.Conflicts,
		},
	})
	return nil
}
