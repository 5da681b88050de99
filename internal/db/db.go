package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

const maxAttempts = 5

var ErrRetryLimit = errors.New("transaction retry limit exceeded")

type TxRunner interface {
	WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error
}

type SQLXTxRunner struct {
	db  *sqlx.DB
	log zerolog.Logger
}

func NewTxRunner(db *sqlx.DB, log zerolog.Logger) SQLXTxRunner {
	return SQLXTxRunner{db: db, log: log.With().Str("component", "tx").Logger()}
}

func (r SQLXTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	return withTx(ctx, r.db, r.log, fn)
}

func Connect(databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetMaxIdleConns(5)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// WithTx runs fn in a serializable transaction, retrying serialization failures and
// deadlocks with backoff.
func WithTx(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	return withTx(ctx, db, zerolog.Nop(), fn)
}

func withTx(ctx context.Context, db *sqlx.DB, log zerolog.Logger, fn func(*sqlx.Tx) error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			if !isRetryablePGError(err) {
				return err
			}
			lastErr = err
		} else if err := tx.Commit(); err != nil {
			if !isRetryablePGError(err) {
				return err
			}
			lastErr = err
		} else {
			return nil
		}
		if attempt < maxAttempts {
			log.Debug().Err(lastErr).Int("attempt", attempt).Msg("retrying transaction")
			sleepWithBackoff(attempt)
		}
	}
	log.Warn().Err(lastErr).Int("attempts", maxAttempts).Msg("transaction retry limit exceeded")
	return fmt.Errorf("%w: %v", ErrRetryLimit, lastErr)
}

// LockAccount takes a transaction-scoped advisory lock keyed by the account id, so
// imports into one account run one row at a time across connections.
func LockAccount(ctx context.Context, tx sqlx.ExecerContext, accountID int64) error {
	_, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, accountID)
	return err
}

func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isRetryablePGError(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}

func sleepWithBackoff(attempt int) {
	base := 20 * time.Millisecond
	backoff := time.Duration(attempt*attempt) * base
	jitter := time.Duration(rand.Int63n(int64(10 * time.Millisecond)))
	time.Sleep(backoff + jitter)
}
