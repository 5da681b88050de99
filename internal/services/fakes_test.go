package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"brokerbook/internal/models"
	"brokerbook/internal/store"
	"brokerbook/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type fakeTxRunner struct {
	err   error
	calls int
}

func (f *fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

type memAccounts struct {
	rows   map[int64]models.Account
	locks  []int64
	nextID int64
}

func newMemAccounts(accounts ...models.Account) *memAccounts {
	m := &memAccounts{rows: map[int64]models.Account{}}
	for _, account := range accounts {
		m.rows[account.ID] = account
		if account.ID > m.nextID {
			m.nextID = account.ID
		}
	}
	return m
}

func ownedAccount(id int64, userID string) models.Account {
	return models.Account{ID: id, UserID: &userID, Name: "account"}
}

func (m *memAccounts) Create(_ context.Context, _ store.Getter, userID *string, name string) (int64, error) {
	m.nextID++
	m.rows[m.nextID] = models.Account{ID: m.nextID, UserID: userID, Name: name}
	return m.nextID, nil
}

func (m *memAccounts) GetByID(_ context.Context, accountID int64) (models.Account, error) {
	account, ok := m.rows[accountID]
	if !ok {
		return models.Account{}, sql.ErrNoRows
	}
	return account, nil
}

func (m *memAccounts) ListByUser(_ context.Context, userID string) ([]models.Account, error) {
	var rows []models.Account
	for _, account := range m.rows {
		if account.OwnedBy(userID) {
			rows = append(rows, account)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows, nil
}

func (m *memAccounts) Lock(_ context.Context, _ store.Execer, accountID int64) error {
	m.locks = append(m.locks, accountID)
	return nil
}

func (m *memAccounts) RecordSync(_ context.Context, _ store.Execer, accountID, imported int64) (int64, error) {
	account, ok := m.rows[accountID]
	if !ok {
		return 0, nil
	}
	now := time.Now()
	account.LastSyncedAt = &now
	account.ImportedRecords += imported
	m.rows[accountID] = account
	return 1, nil
}

type memTrades struct {
	rows   []models.Trade
	nextID int64
}

func (m *memTrades) GetByTradeID(_ context.Context, _ store.Getter, accountID int64, tradeID string) (models.Trade, error) {
	for _, row := range m.rows {
		if row.AccountID == accountID && row.TradeID != nil && *row.TradeID == tradeID {
			return row, nil
		}
	}
	return models.Trade{}, sql.ErrNoRows
}

func (m *memTrades) Insert(_ context.Context, _ store.Getter, accountID int64, batchID string, t models.TradeSnapshot) (int64, error) {
	m.nextID++
	m.rows = append(m.rows, models.Trade{
		ID:                 m.nextID,
		AccountID:          accountID,
		Symbol:             t.Symbol,
		ISIN:               t.ISIN,
		TradeDate:          t.TradeDate,
		Exchange:           t.Exchange,
		Segment:            t.Segment,
		Series:             t.Series,
		TradeType:          t.TradeType,
		Auction:            t.Auction,
		Quantity:           t.Quantity,
		Price:              t.Price,
		TradeID:            t.TradeID,
		OrderID:            t.OrderID,
		OrderExecutionTime: t.OrderExecutionTime,
		ImportBatchID:      batchID,
	})
	return m.nextID, nil
}

func (m *memTrades) ApplySnapshot(_ context.Context, _ store.Execer, id int64, t models.TradeSnapshot) (int64, error) {
	for i := range m.rows {
		if m.rows[i].ID != id {
			continue
		}
		row := &m.rows[i]
		row.Symbol, row.ISIN, row.Exchange, row.Segment, row.Series = t.Symbol, t.ISIN, t.Exchange, t.Segment, t.Series
		row.TradeType, row.Auction, row.Quantity, row.Price = t.TradeType, t.Auction, t.Quantity, t.Price
		return 1, nil
	}
	return 0, nil
}

func (m *memTrades) ListByAccounts(_ context.Context, accountIDs []int64) ([]models.Trade, error) {
	var rows []models.Trade
	for _, row := range m.rows {
		if containsID(accountIDs, row.AccountID) {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (m *memTrades) byID(id int64) models.Trade {
	for _, row := range m.rows {
		if row.ID == id {
			return row
		}
	}
	return models.Trade{}
}

func (m *memTrades) delete(id int64) {
	for i, row := range m.rows {
		if row.ID == id {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return
		}
	}
}

type memLedger struct {
	rows   []models.LedgerEntry
	nextID int64
}

func sameParticular(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (m *memLedger) FindExact(_ context.Context, _ store.Getter, accountID int64, e models.LedgerSnapshot) (models.LedgerEntry, error) {
	for _, row := range m.rows {
		if row.AccountID == accountID && row.PostingDate.Equal(e.PostingDate) && sameParticular(row.Particular, e.Particular) &&
			row.Debit.Equal(e.Debit) && row.Credit.Equal(e.Credit) {
			return row, nil
		}
	}
	return models.LedgerEntry{}, sql.ErrNoRows
}

func (m *memLedger) FindByKey(_ context.Context, _ store.Getter, accountID int64, e models.LedgerSnapshot) (models.LedgerEntry, error) {
	for _, row := range m.rows {
		if row.AccountID == accountID && row.PostingDate.Equal(e.PostingDate) && sameParticular(row.Particular, e.Particular) {
			return row, nil
		}
	}
	return models.LedgerEntry{}, sql.ErrNoRows
}

func (m *memLedger) Insert(_ context.Context, _ store.Getter, accountID int64, batchID string, e models.LedgerSnapshot) (int64, error) {
	m.nextID++
	m.rows = append(m.rows, models.LedgerEntry{
		ID:            m.nextID,
		AccountID:     accountID,
		Particular:    e.Particular,
		PostingDate:   e.PostingDate,
		CostCenter:    e.CostCenter,
		VoucherType:   e.VoucherType,
		Debit:         e.Debit,
		Credit:        e.Credit,
		NetBalance:    e.NetBalance,
		ImportBatchID: batchID,
	})
	return m.nextID, nil
}

func (m *memLedger) ApplySnapshot(_ context.Context, _ store.Execer, id int64, e models.LedgerSnapshot) (int64, error) {
	for i := range m.rows {
		if m.rows[i].ID == id {
			m.rows[i].Particular, m.rows[i].Debit, m.rows[i].Credit, m.rows[i].NetBalance = e.Particular, e.Debit, e.Credit, e.NetBalance
			return 1, nil
		}
	}
	return 0, nil
}

func (m *memLedger) ListByAccounts(_ context.Context, accountIDs []int64, from, to *time.Time) ([]models.LedgerEntry, error) {
	var rows []models.LedgerEntry
	for _, row := range m.rows {
		if !containsID(accountIDs, row.AccountID) {
			continue
		}
		if from != nil && row.PostingDate.Before(*from) {
			continue
		}
		if to != nil && row.PostingDate.After(*to) {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

type memConflicts struct {
	rows   []models.ImportConflict
	nextID int64
}

func sameTarget(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameSnapshot(a, b models.Snapshot) bool {
	left, _ := json.Marshal(a)
	right, _ := json.Marshal(b)
	return bytes.Equal(left, right)
}

func (m *memConflicts) Create(_ context.Context, _ store.Getter, c models.ImportConflict) (int64, error) {
	m.nextID++
	c.ID = m.nextID
	c.Status = models.StatusPending
	m.rows = append(m.rows, c)
	return c.ID, nil
}

func (m *memConflicts) HasPending(_ context.Context, _ store.Getter, c models.ImportConflict) (bool, error) {
	for _, row := range m.rows {
		if row.AccountID == c.AccountID && row.ImportType == c.ImportType && row.Status == models.StatusPending &&
			sameTarget(row.TargetTradeID, c.TargetTradeID) && sameTarget(row.TargetLedgerID, c.TargetLedgerID) &&
			sameSnapshot(row.NewData, c.NewData) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memConflicts) GetForUpdate(_ context.Context, _ store.Getter, conflictID int64) (models.ImportConflict, error) {
	for _, row := range m.rows {
		if row.ID == conflictID {
			return row, nil
		}
	}
	return models.ImportConflict{}, sql.ErrNoRows
}

func (m *memConflicts) List(_ context.Context, filter store.ConflictFilter) ([]models.ImportConflict, error) {
	rows := []models.ImportConflict{}
	for _, row := range m.rows {
		if containsID(filter.AccountIDs, row.AccountID) && (filter.Status == "" || row.Status == filter.Status) {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (m *memConflicts) MarkResolved(_ context.Context, _ store.Execer, conflictID int64, status models.ConflictStatus, resolvedBy string) (int64, error) {
	for i := range m.rows {
		if m.rows[i].ID == conflictID && m.rows[i].Status == models.StatusPending {
			m.rows[i].Status = status
			m.rows[i].ResolvedBy = &resolvedBy
			return 1, nil
		}
	}
	return 0, nil
}

func (m *memConflicts) Delete(_ context.Context, _ store.Execer, conflictID int64) (int64, error) {
	for i, row := range m.rows {
		if row.ID == conflictID {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

func (m *memConflicts) pending() []models.ImportConflict {
	var rows []models.ImportConflict
	for _, row := range m.rows {
		if row.Status == models.StatusPending {
			rows = append(rows, row)
		}
	}
	return rows
}

type auditEntry struct {
	actorID    string
	action     string
	entityType string
	entityID   string
	data       any
}

type memAudit struct {
	entries []auditEntry
}

func (m *memAudit) Log(_ context.Context, _ store.Execer, actorID, action, entityType, entityID string, data any) error {
	m.entries = append(m.entries, auditEntry{actorID: actorID, action: action, entityType: entityType, entityID: entityID, data: data})
	return nil
}

type recordingHub struct {
	users  []string
	events []websocket.Event
}

func (h *recordingHub) Publish(userID string, event websocket.Event) {
	h.users = append(h.users, userID)
	h.events = append(h.events, event)
}

var errQuoteDown = errors.New("quote service unavailable")

type stubQuoter map[string]decimal.Decimal

func (q stubQuoter) Quote(_ context.Context, symbol string) (decimal.Decimal, error) {
	price, ok := q[symbol]
	if !ok {
		return decimal.Zero, errQuoteDown
	}
	return price, nil
}

func containsID(ids []int64, id int64) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
