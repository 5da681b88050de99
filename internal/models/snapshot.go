package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrSnapshotKind    = errors.New("snapshot kind does not match its payload")
	ErrInvalidSnapshot = errors.New("invalid snapshot")
)

// TradeSnapshot is the full set of mutable trade columns captured at conflict time.
type TradeSnapshot struct {
	Symbol             string          `json:"symbol"`
	ISIN               string          `json:"isin"`
	TradeDate          time.Time       `json:"trade_date"`
	Exchange           string          `json:"exchange"`
	Segment            string          `json:"segment"`
	Series             string          `json:"series"`
	TradeType          TradeType       `json:"trade_type"`
	Auction            bool            `json:"auction"`
	Quantity           decimal.Decimal `json:"quantity"`
	Price              decimal.Decimal `json:"price"`
	TradeID            *string         `json:"trade_id,omitempty"`
	OrderID            string          `json:"order_id"`
	OrderExecutionTime *time.Time      `json:"order_execution_time,omitempty"`
}

func (t TradeSnapshot) Validate() error {
	if strings.TrimSpace(t.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidSnapshot)
	}
	if t.TradeType != TradeTypeBuy && t.TradeType != TradeTypeSell {
		return fmt.Errorf("%w: trade_type must be buy or sell", ErrInvalidSnapshot)
	}
	if !t.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be greater than zero", ErrInvalidSnapshot)
	}
	if !t.Price.IsPositive() {
		return fmt.Errorf("%w: price must be greater than zero", ErrInvalidSnapshot)
	}
	if t.TradeDate.IsZero() {
		return fmt.Errorf("%w: trade_date is required", ErrInvalidSnapshot)
	}
	return nil
}

// Diff lists the compared columns (quantity, price, symbol) that differ.
func (t TradeSnapshot) Diff(other TradeSnapshot) []string {
	var fields []string
	if !t.Quantity.Equal(other.Quantity) {
		fields = append(fields, "quantity")
	}
	if !t.Price.Equal(other.Price) {
		fields = append(fields, "price")
	}
	if t.Symbol != other.Symbol {
		fields = append(fields, "symbol")
	}
	return fields
}

// LedgerSnapshot is the full set of mutable ledger columns captured at conflict time.
type LedgerSnapshot struct {
	Particular  *string             `json:"particular"`
	PostingDate time.Time           `json:"posting_date"`
	CostCenter  *string             `json:"cost_center,omitempty"`
	VoucherType string              `json:"voucher_type"`
	Debit       decimal.Decimal     `json:"debit"`
	Credit      decimal.Decimal     `json:"credit"`
	NetBalance  decimal.NullDecimal `json:"net_balance"`
}

func (l LedgerSnapshot) Validate() error {
	if l.PostingDate.IsZero() {
		return fmt.Errorf("%w: posting_date is required", ErrInvalidSnapshot)
	}
	if l.Debit.IsNegative() {
		return fmt.Errorf("%w: debit must not be negative", ErrInvalidSnapshot)
	}
	if l.Credit.IsNegative() {
		return fmt.Errorf("%w: credit must not be negative", ErrInvalidSnapshot)
	}
	return nil
}

// Snapshot is a tagged union over the two importable row kinds.
type Snapshot struct {
	Kind   ImportType      `json:"kind"`
	Trade  *TradeSnapshot  `json:"trade,omitempty"`
	Ledger *LedgerSnapshot `json:"ledger,omitempty"`
}

func TradeData(t TradeSnapshot) Snapshot {
	return Snapshot{Kind: ImportTypeTradebook, Trade: &t}
}

func LedgerData(l LedgerSnapshot) Snapshot {
	return Snapshot{Kind: ImportTypeLedger, Ledger: &l}
}

func (s Snapshot) Validate() error {
	switch s.Kind {
	case ImportTypeTradebook:
		if s.Trade == nil || s.Ledger != nil {
			return ErrSnapshotKind
		}
		return s.Trade.Validate()
	case ImportTypeLedger:
		if s.Ledger == nil || s.Trade != nil {
			return ErrSnapshotKind
		}
		return s.Ledger.Validate()
	}
	return fmt.Errorf("%w: unknown kind %q", ErrSnapshotKind, s.Kind)
}

// DecodeSnapshot reads a caller-supplied row payload as the given kind.
func DecodeSnapshot(kind ImportType, raw json.RawMessage) (Snapshot, error) {
	switch kind {
	case ImportTypeTradebook:
		var trade TradeSnapshot
		if err := json.Unmarshal(raw, &trade); err != nil {
			return Snapshot{}, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
		}
		trade.Symbol = strings.ToUpper(strings.TrimSpace(trade.Symbol))
		trade.TradeType = TradeType(strings.ToLower(string(trade.TradeType)))
		snapshot := TradeData(trade)
		return snapshot, snapshot.Validate()
	case ImportTypeLedger:
		var entry LedgerSnapshot
		if err := json.Unmarshal(raw, &entry); err != nil {
			return Snapshot{}, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
		}
		snapshot := LedgerData(entry)
		return snapshot, snapshot.Validate()
	}
	return Snapshot{}, fmt.Errorf("%w: unknown kind %q", ErrSnapshotKind, kind)
}

func (s Snapshot) Value() (driver.Value, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (s *Snapshot) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = Snapshot{}
		return nil
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	}
	return fmt.Errorf("unsupported snapshot source %T", src)
}
