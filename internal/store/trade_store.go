package store

import (
	"context"

	"brokerbook/internal/models"

	"github.com/lib/pq"
)

type TradeStore struct {
	db DB
}

func NewTradeStore(db DB) *TradeStore {
	return &TradeStore{db: db}
}

const tradeColumns = `id, account_id, symbol, isin, trade_date, exchange, segment, series, trade_type,
		       auction, quantity, price, trade_id, order_id, order_execution_time, import_batch_id, created_at`

func (s *TradeStore) GetByTradeID(ctx context.Context, tx Getter, accountID int64, tradeID string) (models.Trade, error) {
	var row models.Trade
	err := tx.GetContext(ctx, &row, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE account_id = $1 AND trade_id = $2
	`, accountID, tradeID)
	if err != nil {
		return models.Trade{}, err
	}
	return row, nil
}

func (s *TradeStore) Insert(ctx context.Context, tx Getter, accountID int64, batchID string, t models.TradeSnapshot) (int64, error) {
	var id int64
	err := tx.GetContext(ctx, &id, `
		INSERT INTO trades (account_id, symbol, isin, trade_date, exchange, segment, series, trade_type,
		                    auction, quantity, price, trade_id, order_id, order_execution_time, import_batch_id)
		VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id
	`, accountID, t.Symbol, t.ISIN, dateArg(t.TradeDate), t.Exchange, t.Segment, t.Series, string(t.TradeType),
		t.Auction, t.Quantity, t.Price, t.TradeID, t.OrderID, t.OrderExecutionTime, batchID)
	return id, err
}

// ApplySnapshot overwrites the mutable columns of one trade and reports the rows touched.
func (s *TradeStore) ApplySnapshot(ctx context.Context, tx Execer, id int64, t models.TradeSnapshot) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE trades
		SET symbol = $1, isin = $2, exchange = $3, segment = $4, series = $5, trade_type = $6,
		    auction = $7, quantity = $8, price = $9, updated_at = NOW()
		WHERE id = $10
	`, t.Symbol, t.ISIN, t.Exchange, t.Segment, t.Series, string(t.TradeType), t.Auction, t.Quantity, t.Price, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListByAccounts returns trades in execution order.
func (s *TradeStore) ListByAccounts(ctx context.Context, accountIDs []int64) ([]models.Trade, error) {
	var rows []models.Trade
	if len(accountIDs) == 0 {
		return rows, nil
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE account_id = ANY($1)
		ORDER BY trade_date, order_execution_time NULLS LAST, id
	`, pq.Array(accountIDs))
	if err != nil {
		return nil, err
	}
	return rows, nil
}
