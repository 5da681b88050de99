package portfolio

import (
	"time"

	"brokerbook/internal/models"
	"brokerbook/internal/xirr"

	"github.com/shopspring/decimal"
)

// LedgerCashFlows maps each entry to credit − debit on its posting date and appends
// currentValue at now as a final liquidation flow when it is positive.
func LedgerCashFlows(entries []models.LedgerEntry, currentValue decimal.Decimal, now time.Time) []xirr.CashFlow {
	flows := make([]xirr.CashFlow, 0, len(entries)+1)
	for _, entry := range entries {
		amount := entry.Credit.Sub(entry.Debit)
		if amount.IsZero() {
			continue
		}
		flows = append(flows, xirr.CashFlow{Date: entry.PostingDate, Amount: amount.InexactFloat64()})
	}
	if currentValue.IsPositive() {
		flows = append(flows, xirr.CashFlow{Date: now, Amount: currentValue.InexactFloat64()})
	}
	return flows
}

// TradeCashFlows maps buys to −quantity×price and sells to +quantity×price, then
// appends currentValue at now while the trades leave a positive remaining quantity.
func TradeCashFlows(trades []models.Trade, currentValue decimal.Decimal, now time.Time) []xirr.CashFlow {
	flows := make([]xirr.CashFlow, 0, len(trades)+1)
	remaining := decimal.Zero
	for _, trade := range trades {
		value := trade.Value()
		switch trade.TradeType {
		case models.TradeTypeBuy:
			remaining = remaining.Add(trade.Quantity)
			flows = append(flows, xirr.CashFlow{Date: trade.TradeDate, Amount: value.Neg().InexactFloat64()})
		case models.TradeTypeSell:
			remaining = remaining.Sub(trade.Quantity)
			flows = append(flows, xirr.CashFlow{Date: trade.TradeDate, Amount: value.InexactFloat64()})
		}
	}
	if remaining.IsPositive() && currentValue.IsPositive() {
		flows = append(flows, xirr.CashFlow{Date: now, Amount: currentValue.InexactFloat64()})
	}
	return flows
}

// HoldingXIRR is the money-weighted return of one holding marked at v.CurrentValue.
func HoldingXIRR(v Valuation, now time.Time) *float64 {
	rate, ok := xirr.Compute(TradeCashFlows(v.Trades, v.CurrentValue, now))
	if !ok {
		return nil
	}
	return &rate
}
