package store

import (
	"context"

	"brokerbook/internal/db"
	"brokerbook/internal/models"
)

type AccountStore struct {
	db DB
}

func NewAccountStore(db DB) *AccountStore {
	return &AccountStore{db: db}
}

const accountColumns = `id, user_id, name, last_synced_at, imported_records, created_at`

func (s *AccountStore) Create(ctx context.Context, tx Getter, userID *string, name string) (int64, error) {
	var id int64
	err := tx.GetContext(ctx, &id, `
		INSERT INTO accounts (user_id, name)
		VALUES ($1, $2)
		RETURNING id
	`, userID, name)
	return id, err
}

func (s *AccountStore) GetByID(ctx context.Context, accountID int64) (models.Account, error) {
	var row models.Account
	err := s.db.GetContext(ctx, &row, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
	`, accountID)
	if err != nil {
		return models.Account{}, err
	}
	return row, nil
}

func (s *AccountStore) ListByUser(ctx context.Context, userID string) ([]models.Account, error) {
	var rows []models.Account
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE user_id = $1
		ORDER BY id
	`, userID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// RecordSync stamps the account's last sync time and adds imported to its running
// record counter.
func (s *AccountStore) RecordSync(ctx context.Context, tx Execer, accountID, imported int64) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET last_synced_at = NOW(), imported_records = imported_records + $1
		WHERE id = $2
	`, imported, accountID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Lock serializes writers to one account until tx ends.
func (s *AccountStore) Lock(ctx context.Context, tx Execer, accountID int64) error {
	return db.LockAccount(ctx, tx, accountID)
}
