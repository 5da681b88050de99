package services

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"brokerbook/internal/models"
	"brokerbook/internal/pricing"
	"brokerbook/internal/validator"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func trade(id, accountID int64, symbol string, kind models.TradeType, qty, price int64, date time.Time) models.Trade {
	return models.Trade{
		ID:        id,
		AccountID: accountID,
		Symbol:    symbol,
		TradeType: kind,
		Quantity:  decimal.NewFromInt(qty),
		Price:     decimal.NewFromInt(price),
		TradeDate: date,
	}
}

func newPortfolioService(accounts *memAccounts, trades *memTrades, ledger *memLedger, quoter pricing.Quoter, now time.Time) *PortfolioService {
	service := NewPortfolioService(accounts, trades, ledger, quoter, PortfolioOptions{
		Fetch:   pricing.FetchOptions{Concurrency: 2, Timeout: time.Second},
		Timeout: 5 * time.Second,
	}, zerolog.Nop())
	service.now = func() time.Time { return now }
	return service
}

func TestGetStatsScenario(t *testing.T) {
	accounts := newMemAccounts(ownedAccount(1, "user-1"))
	trades := &memTrades{rows: []models.Trade{
		trade(1, 1, "INFY", models.TradeTypeBuy, 100, 10, day(2024, 1, 1)),
		trade(2, 1, "INFY", models.TradeTypeSell, 40, 15, day(2024, 1, 31)),
	}}
	service := newPortfolioService(accounts, trades, &memLedger{}, stubQuoter{"INFY": decimal.NewFromInt(12)}, day(2024, 6, 1))

	stats, err := service.GetStats(context.Background(), "user-1", Scope{AccountID: 1}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stats.Holdings) != 1 {
		t.Fatalf("expected one holding, got %d", len(stats.Holdings))
	}
	holding := stats.Holdings[0]
	checks := map[string][2]decimal.Decimal{
		"quantity":     {holding.Quantity, decimal.NewFromInt(60)},
		"average cost": {holding.AverageCost, decimal.NewFromInt(10)},
		"unrealized":   {stats.UnrealizedPnL, decimal.NewFromInt(120)},
		"realized":     {stats.RealizedPnL, decimal.NewFromInt(200)},
		"total":        {stats.TotalPnL, decimal.NewFromInt(320)},
		"investment":   {stats.TotalInvestment, decimal.NewFromInt(600)},
		"value":        {stats.CurrentValue, decimal.NewFromInt(720)},
	}
	for name, pair := range checks {
		if !pair[0].Equal(pair[1]) {
			t.Fatalf("%s = %s, want %s", name, pair[0], pair[1])
		}
	}
	if holding.XIRR == nil {
		t.Fatal("expected a holding xirr")
	}
	if stats.XIRR != nil {
		t.Fatalf("expected no portfolio xirr without ledger history, got %v", *stats.XIRR)
	}
	if len(stats.ZeroPriceSymbols) != 0 {
		t.Fatalf("unexpected zero price symbols: %v", stats.ZeroPriceSymbols)
	}
}

func TestGetStatsPortfolioXIRR(t *testing.T) {
	accounts := newMemAccounts(ownedAccount(1, "user-1"))
	trades := &memTrades{rows: []models.Trade{
		trade(1, 1, "INFY", models.TradeTypeBuy, 100, 10, day(2023, 1, 1)),
	}}
	ledger := &memLedger{rows: []models.LedgerEntry{
		{ID: 1, AccountID: 1, PostingDate: day(2023, 1, 1), VoucherType: "Bank Receipt", Debit: decimal.NewFromInt(1000)},
	}}
	service := newPortfolioService(accounts, trades, ledger, stubQuoter{"INFY": decimal.NewFromInt(11)}, day(2024, 1, 1))

	stats, err := service.GetStats(context.Background(), "user-1", Scope{Consolidated: true}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.XIRR == nil || math.Abs(*stats.XIRR-10) > 0.01 {
		t.Fatalf("expected portfolio xirr of 10%%, got %v", stats.XIRR)
	}
	if rate := stats.Holdings[0].XIRR; rate == nil || math.Abs(*rate-10) > 0.01 {
		t.Fatalf("expected holding xirr of 10%%, got %v", rate)
	}
}

func TestGetStatsDegradesMissingPrices(t *testing.T) {
	accounts := newMemAccounts(ownedAccount(1, "user-1"))
	trades := &memTrades{rows: []models.Trade{
		trade(1, 1, "INFY", models.TradeTypeBuy, 10, 100, day(2024, 1, 1)),
		trade(2, 1, "TCS", models.TradeTypeBuy, 5, 300, day(2024, 1, 2)),
	}}
	service := newPortfolioService(accounts, trades, &memLedger{}, stubQuoter{"INFY": decimal.NewFromInt(110)}, day(2024, 6, 1))

	stats, err := service.GetStats(context.Background(), "user-1", Scope{AccountID: 1}, false)
	if err != nil {
		t.Fatalf("a missing price must not fail the valuation: %v", err)
	}
	if len(stats.ZeroPriceSymbols) != 1 || stats.ZeroPriceSymbols[0] != "TCS" {
		t.Fatalf("unexpected zero price symbols: %v", stats.ZeroPriceSymbols)
	}
	if !stats.CurrentValue.Equal(decimal.NewFromInt(1100)) {
		t.Fatalf("unexpected current value %s", stats.CurrentValue)
	}
}

func TestGetStatsConsolidatedKeepsAccountsApart(t *testing.T) {
	accounts := newMemAccounts(ownedAccount(1, "user-1"), ownedAccount(3, "user-1"), ownedAccount(2, "user-2"))
	trades := &memTrades{rows: []models.Trade{
		trade(1, 1, "INFY", models.TradeTypeBuy, 10, 100, day(2024, 1, 1)),
		trade(2, 3, "INFY", models.TradeTypeBuy, 5, 120, day(2024, 1, 2)),
		trade(3, 2, "INFY", models.TradeTypeBuy, 7, 90, day(2024, 1, 2)),
		trade(4, 3, "TCS", models.TradeTypeBuy, 1, 300, day(2024, 1, 2)),
		trade(5, 3, "TCS", models.TradeTypeSell, 1, 320, day(2024, 1, 3)),
	}}
	service := newPortfolioService(accounts, trades, &memLedger{}, stubQuoter{"INFY": decimal.NewFromInt(110), "TCS": decimal.NewFromInt(310)}, day(2024, 6, 1))

	stats, err := service.GetStats(context.Background(), "user-1", Scope{Consolidated: true}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stats.Holdings) != 2 {
		t.Fatalf("expected one INFY holding per account, got %d", len(stats.Holdings))
	}
	for _, holding := range stats.Holdings {
		if holding.AccountID == 2 || holding.Symbol != "INFY" {
			t.Fatalf("unexpected holding: %#v", holding.Holding)
		}
	}

	withClosed, err := service.GetStats(context.Background(), "user-1", Scope{Consolidated: true}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(withClosed.Holdings) != 3 {
		t.Fatalf("expected the closed TCS position too, got %d", len(withClosed.Holdings))
	}
	if !withClosed.RealizedPnL.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("unexpected realized pnl %s", withClosed.RealizedPnL)
	}
}

func TestGetStatsChecksOwnership(t *testing.T) {
	accounts := newMemAccounts(ownedAccount(1, "user-1"), models.Account{ID: 5})
	service := newPortfolioService(accounts, &memTrades{}, &memLedger{}, stubQuoter{}, day(2024, 6, 1))
	cases := map[int64]error{1: ErrForbidden, 5: ErrForbidden, 9: ErrAccountNotFound}
	for accountID, want := range cases {
		if _, err := service.GetStats(context.Background(), "user-2", Scope{AccountID: accountID}, false); !errors.Is(err, want) {
			t.Fatalf("account %d: expected %v, got %v", accountID, want, err)
		}
	}
}

func TestGetLedgerSummary(t *testing.T) {
	accounts := newMemAccounts(ownedAccount(1, "user-1"), ownedAccount(3, "user-1"))
	ledger := &memLedger{rows: []models.LedgerEntry{
		{ID: 1, AccountID: 1, PostingDate: day(2024, 1, 1), VoucherType: "Bank Receipt - NEFT", Debit: decimal.NewFromInt(10000)},
		{ID: 2, AccountID: 1, PostingDate: day(2024, 2, 1), VoucherType: "Book Voucher", Debit: decimal.NewFromInt(20)},
		{ID: 3, AccountID: 1, PostingDate: day(2024, 3, 1), VoucherType: "Contract Note", Credit: decimal.NewFromInt(5)},
		{ID: 4, AccountID: 1, PostingDate: day(2024, 5, 1), VoucherType: "Bank Payment", Credit: decimal.NewFromInt(1000)},
	}}
	service := newPortfolioService(accounts, &memTrades{}, ledger, stubQuoter{}, day(2024, 6, 1))

	from, to := day(2024, 1, 1), day(2024, 3, 31)
	summaries, err := service.GetLedgerSummary(context.Background(), "user-1", Scope{Consolidated: true}, &from, &to)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summaries) != 2 || summaries[0].AccountID != 1 || summaries[1].AccountID != 3 {
		t.Fatalf("expected a summary for both accounts, got %#v", summaries)
	}
	first := summaries[0]
	if first.Entries != 3 || first.FundsAdded.Count != 1 || first.Uncategorized != 1 {
		t.Fatalf("unexpected summary: %#v", first)
	}
	if !first.InvestedValue.Equal(decimal.NewFromInt(9980)) {
		t.Fatalf("unexpected invested value %s", first.InvestedValue)
	}
	if summaries[1].Entries != 0 {
		t.Fatalf("expected an empty summary, got %#v", summaries[1])
	}

	if _, err := service.GetLedgerSummary(context.Background(), "user-1", Scope{AccountID: 1}, &to, &from); !errors.Is(err, validator.ErrInvalidDateRange) {
		t.Fatalf("expected ErrInvalidDateRange, got %v", err)
	}
}

func TestParseScope(t *testing.T) {
	for _, raw := range []string{"", "consolidated", " Consolidated "} {
		scope, err := ParseScope(raw)
		if err != nil || !scope.Consolidated {
			t.Fatalf("%q: unexpected scope %#v %v", raw, scope, err)
		}
	}
	scope, err := ParseScope("42")
	if err != nil || scope.Consolidated || scope.AccountID != 42 {
		t.Fatalf("unexpected scope %#v %v", scope, err)
	}
	for _, raw := range []string{"0", "-3", "abc"} {
		if _, err := ParseScope(raw); !errors.Is(err, ErrInvalidScope) {
			t.Fatalf("%q: expected ErrInvalidScope, got %v", raw, err)
		}
	}
}
