package csvimport

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"unicode"

	"brokerbook/internal/models"
	"brokerbook/internal/money"
	"brokerbook/internal/validator"

	"github.com/microcosm-cc/bluemonday"
)

var ErrInvalidRow = errors.New("invalid row")

var strictPolicy = bluemonday.StrictPolicy()

// RowError ties a validation failure to its line in the file.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

func rowError(row Row, format string, args ...any) error {
	return &RowError{Line: row.Line, Err: fmt.Errorf("%w: "+format, append([]any{ErrInvalidRow}, args...)...)}
}

// ParseTrade validates one tradebook row.
func ParseTrade(row Row) (models.TradeSnapshot, error) {
	symbol := strings.ToUpper(sanitize(row.Get("symbol")))
	if symbol == "" {
		return models.TradeSnapshot{}, rowError(row, "symbol is required")
	}
	if err := validator.ValidateSymbol(symbol); err != nil {
		return models.TradeSnapshot{}, rowError(row, "symbol %q: %v", symbol, err)
	}
	isin := strings.ToUpper(sanitize(row.Get("isin")))
	if err := validator.ValidateISIN(isin); err != nil {
		return models.TradeSnapshot{}, rowError(row, "isin %q: %v", isin, err)
	}
	tradeDate, err := validator.ParseDate(row.Get("trade_date"))
	if err != nil {
		return models.TradeSnapshot{}, rowError(row, "trade_date %q: %v", row.Get("trade_date"), err)
	}
	tradeType, err := models.ParseTradeType(row.Get("trade_type"))
	if err != nil {
		return models.TradeSnapshot{}, rowError(row, "%v", err)
	}
	auction, err := parseBool(row.Get("auction"))
	if err != nil {
		return models.TradeSnapshot{}, rowError(row, "auction %q: %v", row.Get("auction"), err)
	}
	quantity, err := money.ParsePositive(row.Get("quantity"))
	if err != nil {
		return models.TradeSnapshot{}, rowError(row, "quantity %q: %v", row.Get("quantity"), err)
	}
	price, err := money.ParsePositive(row.Get("price"))
	if err != nil {
		return models.TradeSnapshot{}, rowError(row, "price %q: %v", row.Get("price"), err)
	}

	trade := models.TradeSnapshot{
		Symbol:    symbol,
		ISIN:      isin,
		TradeDate: tradeDate,
		Exchange:  strings.ToUpper(sanitize(row.Get("exchange"))),
		Segment:   strings.ToUpper(sanitize(row.Get("segment"))),
		Series:    strings.ToUpper(sanitize(row.Get("series"))),
		TradeType: tradeType,
		Auction:   auction,
		Quantity:  quantity,
		Price:     price,
		TradeID:   optional(sanitize(row.Get("trade_id"))),
		OrderID:   sanitize(row.Get("order_id")),
	}
	if raw := row.Get("order_execution_time"); raw != "" {
		executed, err := validator.ParseTimestamp(raw)
		if err != nil {
			return models.TradeSnapshot{}, rowError(row, "order_execution_time %q: %v", raw, err)
		}
		trade.OrderExecutionTime = &executed
	}
	return trade, nil
}

// ParseLedger validates one ledger row. Blank debit or credit is zero.
func ParseLedger(row Row) (models.LedgerSnapshot, error) {
	postingDate, err := validator.ParseDate(row.Get("posting_date"))
	if err != nil {
		return models.LedgerSnapshot{}, rowError(row, "posting_date %q: %v", row.Get("posting_date"), err)
	}
	debit, err := money.ParseNonNegative(row.Get("debit"))
	if err != nil {
		return models.LedgerSnapshot{}, rowError(row, "debit %q: %v", row.Get("debit"), err)
	}
	credit, err := money.ParseNonNegative(row.Get("credit"))
	if err != nil {
		return models.LedgerSnapshot{}, rowError(row, "credit %q: %v", row.Get("credit"), err)
	}
	netBalance, err := money.ParseOptional(row.Get("net_balance"))
	if err != nil {
		return models.LedgerSnapshot{}, rowError(row, "net_balance %q: %v", row.Get("net_balance"), err)
	}
	return models.LedgerSnapshot{
		Particular:  optional(sanitize(row.Get("particular"))),
		PostingDate: postingDate,
		CostCenter:  optional(sanitize(row.Get("cost_center"))),
		VoucherType: sanitize(row.Get("voucher_type")),
		Debit:       debit,
		Credit:      credit,
		NetBalance:  netBalance,
	}, nil
}

// sanitize strips markup and unprintable characters from free text. The policy escapes
// entities on output; stored text is kept unescaped so "M&M" survives.
func sanitize(raw string) string {
	cleaned := html.UnescapeString(strictPolicy.Sanitize(raw))
	cleaned = strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) {
			return r
		}
		return -1
	}, cleaned)
	return strings.TrimSpace(cleaned)
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "false", "f", "no", "n", "0":
		return false, nil
	case "true", "t", "yes", "y", "1":
		return true, nil
	}
	return false, errors.New("expected true or false")
}
