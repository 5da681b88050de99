// Package portfolio derives positions, profit and loss, cash-flow series and ledger
// roll-ups from stored trades and ledger entries. Nothing here touches storage.
package portfolio

import (
	"sort"

	"brokerbook/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type Options struct {
	// IncludeClosed keeps symbols whose net quantity is zero or negative.
	IncludeClosed bool
	// ByAccount keys holdings by (account, symbol) instead of symbol alone.
	ByAccount bool
}

// Holding is the folded trade history of one symbol.
type Holding struct {
	AccountID      int64           `json:"account_id,omitempty"`
	Symbol         string          `json:"symbol"`
	ISIN           string          `json:"isin,omitempty"`
	Quantity       decimal.Decimal `json:"quantity"`
	AverageCost    decimal.Decimal `json:"average_cost"`
	CostBasis      decimal.Decimal `json:"cost_basis"`
	BoughtQuantity decimal.Decimal `json:"bought_quantity"`
	SoldQuantity   decimal.Decimal `json:"sold_quantity"`
	BuyValue       decimal.Decimal `json:"buy_value"`
	SellProceeds   decimal.Decimal `json:"sell_proceeds"`
	RealizedPnL    decimal.Decimal `json:"realized_pnl"`

	Trades []models.Trade `json:"-"`
}

func (h Holding) Closed() bool {
	return !h.Quantity.IsPositive()
}

type holdingKey struct {
	accountID int64
	symbol    string
}

// Aggregate folds trades into holdings using a running average cost. A sale removes
// quantity × the average cost at the time of sale from the cost basis, so the average
// cost of the remaining units is unchanged by sales.
func Aggregate(trades []models.Trade, opts Options) []Holding {
	ordered := make([]models.Trade, len(trades))
	copy(ordered, trades)
	sort.SliceStable(ordered, func(i, j int) bool {
		return tradeBefore(ordered[i], ordered[j])
	})

	byKey := map[holdingKey]*Holding{}
	var keys []holdingKey
	for _, trade := range ordered {
		key := holdingKey{symbol: trade.Symbol}
		if opts.ByAccount {
			key.accountID = trade.AccountID
		}
		holding, ok := byKey[key]
		if !ok {
			holding = &Holding{AccountID: key.accountID, Symbol: trade.Symbol}
			byKey[key] = holding
			keys = append(keys, key)
		}
		apply(holding, trade)
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].symbol != keys[j].symbol {
			return keys[i].symbol < keys[j].symbol
		}
		return keys[i].accountID < keys[j].accountID
	})
	holdings := make([]Holding, 0, len(keys))
	for _, key := range keys {
		holding := byKey[key]
		if holding.Closed() && !opts.IncludeClosed {
			continue
		}
		holdings = append(holdings, *holding)
	}
	return holdings
}

func apply(h *Holding, trade models.Trade) {
	if h.ISIN == "" {
		h.ISIN = trade.ISIN
	}
	h.Trades = append(h.Trades, trade)
	value := trade.Value()
	switch trade.TradeType {
	case models.TradeTypeBuy:
		h.BoughtQuantity = h.BoughtQuantity.Add(trade.Quantity)
		h.BuyValue = h.BuyValue.Add(value)
		h.Quantity = h.Quantity.Add(trade.Quantity)
		h.CostBasis = h.CostBasis.Add(value)
	case models.TradeTypeSell:
		h.SoldQuantity = h.SoldQuantity.Add(trade.Quantity)
		h.SellProceeds = h.SellProceeds.Add(value)
		held := decimal.Max(h.Quantity, decimal.Zero)
		matched := decimal.Min(trade.Quantity, held)
		costOfSold := h.AverageCost.Mul(matched)
		h.RealizedPnL = h.RealizedPnL.Add(value.Sub(costOfSold))
		h.Quantity = h.Quantity.Sub(trade.Quantity)
		h.CostBasis = h.CostBasis.Sub(costOfSold)
	}
	if !h.Quantity.IsPositive() {
		h.CostBasis = decimal.Zero
		h.AverageCost = decimal.Zero
		return
	}
	h.AverageCost = h.CostBasis.Div(h.Quantity)
}

func tradeBefore(a, b models.Trade) bool {
	if !a.TradeDate.Equal(b.TradeDate) {
		return a.TradeDate.Before(b.TradeDate)
	}
	if a.OrderExecutionTime != nil && b.OrderExecutionTime != nil && !a.OrderExecutionTime.Equal(*b.OrderExecutionTime) {
		return a.OrderExecutionTime.Before(*b.OrderExecutionTime)
	}
	return a.ID < b.ID
}

// Valuation is a holding marked to a market price.
type Valuation struct {
	Holding
	Price           decimal.Decimal `json:"price"`
	PriceMissing    bool            `json:"price_missing"`
	Investment      decimal.Decimal `json:"investment"`
	CurrentValue    decimal.Decimal `json:"current_value"`
	UnrealizedPnL   decimal.Decimal `json:"unrealized_pnl"`
	TotalPnL        decimal.Decimal `json:"total_pnl"`
	TotalPnLPercent decimal.Decimal `json:"total_pnl_percent"`
	XIRR            *float64        `json:"xirr"`
}

// Value marks h to price. A zero or negative price is treated as 0 and flagged.
func Value(h Holding, price decimal.Decimal) Valuation {
	v := Valuation{Holding: h, Price: price}
	if !price.IsPositive() {
		v.Price = decimal.Zero
		v.PriceMissing = true
	}
	if !h.Closed() {
		v.Investment = h.Quantity.Mul(h.AverageCost)
		v.CurrentValue = h.Quantity.Mul(v.Price)
		v.UnrealizedPnL = v.CurrentValue.Sub(v.Investment)
	}
	v.TotalPnL = h.RealizedPnL.Add(v.UnrealizedPnL)
	v.TotalPnLPercent = Percent(v.TotalPnL, v.Investment)
	return v
}

// Percent returns part/whole × 100, or 0 when whole is zero.
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred).Round(4)
}
