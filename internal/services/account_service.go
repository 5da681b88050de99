package services

import (
	"context"
	"strconv"
	"strings"

	"brokerbook/internal/db"
	"brokerbook/internal/models"

	"github.com/jmoiron/sqlx"
)

type AccountService struct {
	txRunner db.TxRunner
	accounts AccountStore
	audit    AuditStore
}

func NewAccountService(txRunner db.TxRunner, accounts AccountStore, audit AuditStore) *AccountService {
	return &AccountService{txRunner: txRunner, accounts: accounts, audit: audit}
}

func (s *AccountService) Create(ctx context.Context, userID, name string) (models.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 120 {
		return models.Account{}, ErrInvalidAccountName
	}
	var accountID int64
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		accountID, err = s.accounts.Create(ctx, tx, &userID, name)
		if err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, userID, "account.create", "account", strconv.FormatInt(accountID, 10), map[string]string{"name": name})
	})
	if err != nil {
		return models.Account{}, err
	}
	return s.accounts.GetByID(ctx, accountID)
}

func (s *AccountService) List(ctx context.Context, userID string) ([]models.Account, error) {
	accounts, err := s.accounts.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if accounts == nil {
		accounts = []models.Account{}
	}
	return accounts, nil
}

// Get returns accountID when userID owns it.
func (s *AccountService) Get(ctx context.Context, userID string, accountID int64) (models.Account, error) {
	return authorizeAccount(ctx, s.accounts, userID, accountID)
}
