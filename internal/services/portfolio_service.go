package services

import (
	"context"
	"strconv"
	"strings"
	"time"

	"brokerbook/internal/portfolio"
	"brokerbook/internal/pricing"
	"brokerbook/internal/validator"
	"brokerbook/internal/xirr"

	"github.com/rs/zerolog"
)

const scopeConsolidated = "consolidated"

// Scope selects one account or every account of the user.
type Scope struct {
	AccountID    int64
	Consolidated bool
}

// ParseScope accepts a positive account id, "consolidated", or an empty string, which
// also means consolidated.
func ParseScope(raw string) (Scope, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, scopeConsolidated) {
		return Scope{Consolidated: true}, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return Scope{}, ErrInvalidScope
	}
	return Scope{AccountID: id}, nil
}

type PortfolioOptions struct {
	Fetch pricing.FetchOptions
	// Timeout bounds a whole valuation, price lookups included.
	Timeout time.Duration
}

type PortfolioService struct {
	accounts AccountStore
	trades   TradeStore
	ledger   LedgerStore
	quoter   pricing.Quoter
	opts     PortfolioOptions
	log      zerolog.Logger
	now      func() time.Time
}

func NewPortfolioService(accounts AccountStore, trades TradeStore, ledger LedgerStore, quoter pricing.Quoter, opts PortfolioOptions, log zerolog.Logger) *PortfolioService {
	return &PortfolioService{
		accounts: accounts,
		trades:   trades,
		ledger:   ledger,
		quoter:   quoter,
		opts:     opts,
		log:      log.With().Str("service", "portfolio").Logger(),
		now:      time.Now,
	}
}

// GetStats values every holding in scope at current market prices. Holdings are keyed
// by (account, symbol) in consolidated scope. Symbols without a price are valued at 0
// and listed in ZeroPriceSymbols.
func (s *PortfolioService) GetStats(ctx context.Context, userID string, scope Scope, includeClosed bool) (portfolio.Stats, error) {
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}
	ids, err := s.scopeAccounts(ctx, userID, scope)
	if err != nil {
		return portfolio.Stats{}, err
	}
	trades, err := s.trades.ListByAccounts(ctx, ids)
	if err != nil {
		return portfolio.Stats{}, err
	}
	holdings := portfolio.Aggregate(trades, portfolio.Options{
		IncludeClosed: includeClosed,
		ByAccount:     scope.Consolidated,
	})

	var symbols []string
	for _, h := range holdings {
		if !h.Closed() {
			symbols = append(symbols, h.Symbol)
		}
	}
	prices, missing := pricing.FetchAll(ctx, s.quoter, symbols, s.opts.Fetch, s.log)
	if len(missing) > 0 {
		s.log.Warn().Str("user_id", userID).Strs("symbols", missing).Msg("no market price, valuing at zero")
	}

	now := s.now()
	valuations := make([]portfolio.Valuation, 0, len(holdings))
	for _, h := range holdings {
		v := portfolio.Value(h, prices[h.Symbol])
		v.XIRR = portfolio.HoldingXIRR(v, now)
		valuations = append(valuations, v)
	}
	stats := portfolio.Totals(valuations)

	entries, err := s.ledger.ListByAccounts(ctx, ids, nil, nil)
	if err != nil {
		return portfolio.Stats{}, err
	}
	if rate, ok := xirr.Compute(portfolio.LedgerCashFlows(entries, stats.CurrentValue, now)); ok {
		stats.XIRR = &rate
	}
	return stats, nil
}

// GetLedgerSummary rolls up ledger entries per account within an optional inclusive
// date range. Every account in scope gets a summary, empty or not.
func (s *PortfolioService) GetLedgerSummary(ctx context.Context, userID string, scope Scope, from, to *time.Time) ([]portfolio.LedgerSummary, error) {
	if err := validator.ValidateDateRange(from, to); err != nil {
		return nil, err
	}
	ids, err := s.scopeAccounts(ctx, userID, scope)
	if err != nil {
		return nil, err
	}
	entries, err := s.ledger.ListByAccounts(ctx, ids, from, to)
	if err != nil {
		return nil, err
	}
	byAccount := map[int64]portfolio.LedgerSummary{}
	for _, summary := range portfolio.SummarizeByAccount(entries) {
		byAccount[summary.AccountID] = summary
	}
	summaries := make([]portfolio.LedgerSummary, 0, len(ids))
	for _, id := range ids {
		summary, ok := byAccount[id]
		if !ok {
			summary = portfolio.Summarize(id, nil)
		}
		if summary.Uncategorized > 0 {
			s.log.Warn().
				Int64("account_id", id).
				Int("entries", summary.Uncategorized).
				Strs("voucher_types", summary.UncategorizedVoucherTypes).
				Msg("ledger entries matched no category")
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (s *PortfolioService) scopeAccounts(ctx context.Context, userID string, scope Scope) ([]int64, error) {
	if !scope.Consolidated {
		if _, err := authorizeAccount(ctx, s.accounts, userID, scope.AccountID); err != nil {
			return nil, err
		}
		return []int64{scope.AccountID}, nil
	}
	accounts, err := s.accounts.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return accountIDs(accounts), nil
}
