package portfolio

import (
	"github.com/shopspring/decimal"
)

type Stats struct {
	TotalInvestment  decimal.Decimal `json:"total_investment"`
	CurrentValue     decimal.Decimal `json:"current_value"`
	TotalPnL         decimal.Decimal `json:"total_pnl"`
	TotalPnLPercent  decimal.Decimal `json:"total_pnl_percent"`
	RealizedPnL      decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL    decimal.Decimal `json:"unrealized_pnl"`
	XIRR             *float64        `json:"xirr"`
	Holdings         []Valuation     `json:"holdings"`
	ZeroPriceSymbols []string        `json:"zero_price_symbols"`
}

// Totals sums valuations. XIRR is left for the caller, which owns the cash-flow history.
func Totals(valuations []Valuation) Stats {
	stats := Stats{Holdings: valuations, ZeroPriceSymbols: []string{}}
	if stats.Holdings == nil {
		stats.Holdings = []Valuation{}
	}
	seen := map[string]bool{}
	for _, v := range valuations {
		stats.TotalInvestment = stats.TotalInvestment.Add(v.Investment)
		stats.CurrentValue = stats.CurrentValue.Add(v.CurrentValue)
		stats.RealizedPnL = stats.RealizedPnL.Add(v.RealizedPnL)
		stats.UnrealizedPnL = stats.UnrealizedPnL.Add(v.UnrealizedPnL)
		if v.PriceMissing && !v.Closed() && !seen[v.Symbol] {
			seen[v.Symbol] = true
			stats.ZeroPriceSymbols = append(stats.ZeroPriceSymbols, v.Symbol)
		}
	}
	stats.TotalPnL = stats.RealizedPnL.Add(stats.UnrealizedPnL)
	stats.TotalPnLPercent = Percent(stats.TotalPnL, stats.TotalInvestment)
	return stats
}
