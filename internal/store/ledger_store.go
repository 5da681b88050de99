package store

import (
	"context"
	"time"

	"brokerbook/internal/models"

	"github.com/lib/pq"
)

type LedgerStore struct {
	db DB
}

func NewLedgerStore(db DB) *LedgerStore {
	return &LedgerStore{db: db}
}

const ledgerColumns = `id, account_id, particular, posting_date, cost_center, voucher_type, debit, credit,
		       net_balance, import_batch_id, created_at`

// FindExact matches the full natural key (posting date, particular, debit, credit).
func (s *LedgerStore) FindExact(ctx context.Context, tx Getter, accountID int64, e models.LedgerSnapshot) (models.LedgerEntry, error) {
	var row models.LedgerEntry
	err := tx.GetContext(ctx, &row, `
		SELECT `+ledgerColumns+`
		FROM ledger_entries
		WHERE account_id = $1 AND posting_date = $2::date AND particular IS NOT DISTINCT FROM $3
		  AND debit = $4 AND credit = $5
		ORDER BY id
		LIMIT 1
	`, accountID, dateArg(e.PostingDate), e.Particular, e.Debit, e.Credit)
	if err != nil {
		return models.LedgerEntry{}, err
	}
	return row, nil
}

// FindByKey matches posting date and particular only.
func (s *LedgerStore) FindByKey(ctx context.Context, tx Getter, accountID int64, e models.LedgerSnapshot) (models.LedgerEntry, error) {
	var row models.LedgerEntry
	err := tx.GetContext(ctx, &row, `
		SELECT `+ledgerColumns+`
		FROM ledger_entries
		WHERE account_id = $1 AND posting_date = $2::date AND particular IS NOT DISTINCT FROM $3
		ORDER BY id
		LIMIT 1
	`, accountID, dateArg(e.PostingDate), e.Particular)
	if err != nil {
		return models.LedgerEntry{}, err
	}
	return row, nil
}

func (s *LedgerStore) Insert(ctx context.Context, tx Getter, accountID int64, batchID string, e models.LedgerSnapshot) (int64, error) {
	var id int64
	err := tx.GetContext(ctx, &id, `
		INSERT INTO ledger_entries (account_id, particular, posting_date, cost_center, voucher_type,
		                            debit, credit, net_balance, import_batch_id)
		VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, accountID, e.Particular, dateArg(e.PostingDate), e.CostCenter, e.VoucherType,
		e.Debit, e.Credit, e.NetBalance, batchID)
	return id, err
}

// ApplySnapshot overwrites the mutable columns of one entry and reports the rows touched.
func (s *LedgerStore) ApplySnapshot(ctx context.Context, tx Execer, id int64, e models.LedgerSnapshot) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE ledger_entries
		SET particular = $1, debit = $2, credit = $3, net_balance = $4, updated_at = NOW()
		WHERE id = $5
	`, e.Particular, e.Debit, e.Credit, e.NetBalance, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListByAccounts returns entries in posting order, optionally bounded by an inclusive
// date range.
func (s *LedgerStore) ListByAccounts(ctx context.Context, accountIDs []int64, from, to *time.Time) ([]models.LedgerEntry, error) {
	var rows []models.LedgerEntry
	if len(accountIDs) == 0 {
		return rows, nil
	}
	query := `
		SELECT ` + ledgerColumns + `
		FROM ledger_entries
		WHERE account_id = ANY($1)
	`
	args := []any{pq.Array(accountIDs)}
	if from != nil {
		args = append(args, dateArg(*from))
		query += " AND posting_date >= $" + itoa(len(args)) + "::date"
	}
	if to != nil {
		args = append(args, dateArg(*to))
		query += " AND posting_date <= $" + itoa(len(args)) + "::date"
	}
	query += " ORDER BY posting_date, id"
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
