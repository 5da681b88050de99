package store

import (
	"context"

	"brokerbook/internal/models"

	"github.com/lib/pq"
)

type ConflictStore struct {
	db DB
}

func NewConflictStore(db DB) *ConflictStore {
	return &ConflictStore{db: db}
}

const conflictColumns = `id, account_id, import_type, conflict_type, existing_data, new_data, conflict_field,
		       target_trade_id, target_ledger_id, status, resolved_at, resolved_by, created_at`

type ConflictFilter struct {
	AccountIDs []int64
	// Status restricts the listing; empty means every status.
	Status models.ConflictStatus
}

func (s *ConflictStore) Create(ctx context.Context, tx Getter, c models.ImportConflict) (int64, error) {
	var id int64
	err := tx.GetContext(ctx, &id, `
		INSERT INTO import_conflicts (account_id, import_type, conflict_type, existing_data, new_data,
		                              conflict_field, target_trade_id, target_ledger_id, status)
		VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6, $7, $8, 'pending')
		RETURNING id
	`, c.AccountID, string(c.ImportType), c.ConflictType, c.ExistingData, c.NewData,
		c.ConflictField, c.TargetTradeID, c.TargetLedgerID)
	return id, err
}

// HasPending reports whether an identical pending conflict already targets the same row.
func (s *ConflictStore) HasPending(ctx context.Context, tx Getter, c models.ImportConflict) (bool, error) {
	var exists bool
	err := tx.GetContext(ctx, &exists, `
		SELECT EXISTS(
			SELECT 1
			FROM import_conflicts
			WHERE account_id = $1 AND import_type = $2 AND status = 'pending'
			  AND target_trade_id IS NOT DISTINCT FROM $3
			  AND target_ledger_id IS NOT DISTINCT FROM $4
			  AND new_data = $5::jsonb
		)
	`, c.AccountID, string(c.ImportType), c.TargetTradeID, c.TargetLedgerID, c.NewData)
	return exists, err
}

func (s *ConflictStore) GetByID(ctx context.Context, conflictID int64) (models.ImportConflict, error) {
	var row models.ImportConflict
	err := s.db.GetContext(ctx, &row, `
		SELECT `+conflictColumns+`
		FROM import_conflicts
		WHERE id = $1
	`, conflictID)
	if err != nil {
		return models.ImportConflict{}, err
	}
	return row, nil
}

func (s *ConflictStore) GetForUpdate(ctx context.Context, tx Getter, conflictID int64) (models.ImportConflict, error) {
	var row models.ImportConflict
	err := tx.GetContext(ctx, &row, `
		SELECT `+conflictColumns+`
		FROM import_conflicts
		WHERE id = $1
		FOR UPDATE
	`, conflictID)
	if err != nil {
		return models.ImportConflict{}, err
	}
	return row, nil
}

func (s *ConflictStore) List(ctx context.Context, filter ConflictFilter) ([]models.ImportConflict, error) {
	rows := []models.ImportConflict{}
	if len(filter.AccountIDs) == 0 {
		return rows, nil
	}
	query := `
		SELECT ` + conflictColumns + `
		FROM import_conflicts
		WHERE account_id = ANY($1)
	`
	args := []any{pq.Array(filter.AccountIDs)}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += " AND status = $" + itoa(len(args))
	}
	query += " ORDER BY created_at DESC, id DESC"
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkResolved moves a pending conflict to status. Zero rows affected means the conflict
// was no longer pending.
func (s *ConflictStore) MarkResolved(ctx context.Context, tx Execer, conflictID int64, status models.ConflictStatus, resolvedBy string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE import_conflicts
		SET status = $1, resolved_at = NOW(), resolved_by = $2
		WHERE id = $3 AND status = 'pending'
	`, string(status), resolvedBy, conflictID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *ConflictStore) Delete(ctx context.Context, tx Execer, conflictID int64) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM import_conflicts WHERE id = $1`, conflictID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
