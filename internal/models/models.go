package models

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type TradeType string

const (
	TradeTypeBuy  TradeType = "buy"
	TradeTypeSell TradeType = "sell"
)

func ParseTradeType(raw string) (TradeType, error) {
	switch TradeType(strings.ToLower(strings.TrimSpace(raw))) {
	case TradeTypeBuy:
		return TradeTypeBuy, nil
	case TradeTypeSell:
		return TradeTypeSell, nil
	}
	return "", errors.New("trade_type must be buy or sell")
}

type ImportType string

const (
	ImportTypeTradebook ImportType = "tradebook"
	ImportTypeLedger    ImportType = "ledger"
)

const (
	ConflictDuplicateTradeID         = "duplicate_trade_id"
	ConflictDuplicateDifferentAmount = "duplicate_entry_different_amount"
)

type ConflictStatus string

const (
	StatusPending              ConflictStatus = "pending"
	StatusResolvedKeepExisting ConflictStatus = "resolved_keep_existing"
	StatusResolvedUseNew       ConflictStatus = "resolved_use_new"
	StatusResolvedManual       ConflictStatus = "resolved_manual"
	StatusIgnored              ConflictStatus = "ignored"
)

func (s ConflictStatus) Valid() bool {
	switch s {
	case StatusPending, StatusResolvedKeepExisting, StatusResolvedUseNew, StatusResolvedManual, StatusIgnored:
		return true
	}
	return false
}

func (s ConflictStatus) Terminal() bool {
	return s.Valid() && s != StatusPending
}

type ResolveAction string

const (
	ActionKeepExisting ResolveAction = "keep_existing"
	ActionUseNew       ResolveAction = "use_new"
	ActionManualEdit   ResolveAction = "manual_edit"
	ActionIgnore       ResolveAction = "ignore"
)

// Status is the terminal status a pending conflict moves to under the action.
func (a ResolveAction) Status() (ConflictStatus, bool) {
	switch a {
	case ActionKeepExisting:
		return StatusResolvedKeepExisting, true
	case ActionUseNew:
		return StatusResolvedUseNew, true
	case ActionManualEdit:
		return StatusResolvedManual, true
	case ActionIgnore:
		return StatusIgnored, true
	}
	return "", false
}

// Mutates reports whether the action rewrites the conflicting row.
func (a ResolveAction) Mutates() bool {
	return a == ActionUseNew || a == ActionManualEdit
}

type Account struct {
	ID              int64      `db:"id" json:"id"`
	UserID          *string    `db:"user_id" json:"user_id,omitempty"`
	Name            string     `db:"name" json:"name"`
	LastSyncedAt    *time.Time `db:"last_synced_at" json:"last_synced_at,omitempty"`
	ImportedRecords int64      `db:"imported_records" json:"imported_records"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// OwnedBy reports whether userID may operate on the account.
func (a Account) OwnedBy(userID string) bool {
	return a.UserID != nil && *a.UserID == userID
}

type Trade struct {
	ID                 int64           `db:"id" json:"id"`
	AccountID          int64           `db:"account_id" json:"account_id"`
	Symbol             string          `db:"symbol" json:"symbol"`
	ISIN               string          `db:"isin" json:"isin"`
	TradeDate          time.Time       `db:"trade_date" json:"trade_date"`
	Exchange           string          `db:"exchange" json:"exchange"`
	Segment            string          `db:"segment" json:"segment"`
	Series             string          `db:"series" json:"series"`
	TradeType          TradeType       `db:"trade_type" json:"trade_type"`
	Auction            bool            `db:"auction" json:"auction"`
	Quantity           decimal.Decimal `db:"quantity" json:"quantity"`
	Price              decimal.Decimal `db:"price" json:"price"`
	TradeID            *string         `db:"trade_id" json:"trade_id,omitempty"`
	OrderID            string          `db:"order_id" json:"order_id"`
	OrderExecutionTime *time.Time      `db:"order_execution_time" json:"order_execution_time,omitempty"`
	ImportBatchID      string          `db:"import_batch_id" json:"import_batch_id"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
}

func (t Trade) Value() decimal.Decimal {
	return t.Quantity.Mul(t.Price)
}

func (t Trade) Snapshot() TradeSnapshot {
	return TradeSnapshot{
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
	}
}

type LedgerEntry struct {
	ID            int64               `db:"id" json:"id"`
	AccountID     int64               `db:"account_id" json:"account_id"`
	Particular    *string             `db:"particular" json:"particular,omitempty"`
	PostingDate   time.Time           `db:"posting_date" json:"posting_date"`
	CostCenter    *string             `db:"cost_center" json:"cost_center,omitempty"`
	VoucherType   string              `db:"voucher_type" json:"voucher_type"`
	Debit         decimal.Decimal     `db:"debit" json:"debit"`
	Credit        decimal.Decimal     `db:"credit" json:"credit"`
	NetBalance    decimal.NullDecimal `db:"net_balance" json:"net_balance"`
	ImportBatchID string              `db:"import_batch_id" json:"import_batch_id"`
	CreatedAt     time.Time           `db:"created_at" json:"created_at"`
}

func (e LedgerEntry) Snapshot() LedgerSnapshot {
	return LedgerSnapshot{
		Particular:  e.Particular,
		PostingDate: e.PostingDate,
		CostCenter:  e.CostCenter,
		VoucherType: e.VoucherType,
		Debit:       e.Debit,
		Credit:      e.Credit,
		NetBalance:  e.NetBalance,
	}
}

type ImportConflict struct {
	ID             int64          `db:"id" json:"id"`
	AccountID      int64          `db:"account_id" json:"account_id"`
	ImportType     ImportType     `db:"import_type" json:"import_type"`
	ConflictType   string         `db:"conflict_type" json:"conflict_type"`
	ExistingData   Snapshot       `db:"existing_data" json:"existing_data"`
	NewData        Snapshot       `db:"new_data" json:"new_data"`
	ConflictField  string         `db:"conflict_field" json:"conflict_field"`
	TargetTradeID  *int64         `db:"target_trade_id" json:"target_trade_id,omitempty"`
	TargetLedgerID *int64         `db:"target_ledger_id" json:"target_ledger_id,omitempty"`
	Status         ConflictStatus `db:"status" json:"status"`
	ResolvedAt     *time.Time     `db:"resolved_at" json:"resolved_at,omitempty"`
	ResolvedBy     *string        `db:"resolved_by" json:"resolved_by,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}
