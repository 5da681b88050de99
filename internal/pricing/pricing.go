// Package pricing looks up last traded prices from an external quote service.
package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var (
	ErrUnauthorized     = errors.New("quote service rejected credentials")
	ErrQuoteUnavailable = errors.New("quote unavailable")
)

// Quoter returns the last traded price of symbol. Unknown symbols yield zero, not an error.
type Quoter interface {
	Quote(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// SessionProvider supplies the credential for quote requests. Implementations own the
// session lifecycle; an empty token sends no Authorization header.
type SessionProvider interface {
	Token(ctx context.Context) (string, error)
}

type StaticSession string

func (s StaticSession) Token(context.Context) (string, error) {
	return string(s), nil
}

type HTTPConfig struct {
	BaseURL       string
	RatePerSecond float64
	Burst         int
	Timeout       time.Duration
}

type HTTPQuoter struct {
	baseURL string
	client  *http.Client
	session SessionProvider
	limiter *rate.Limiter
	log     zerolog.Logger
}

func NewHTTPQuoter(cfg HTTPConfig, session SessionProvider, log zerolog.Logger) *HTTPQuoter {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPQuoter{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		session: session,
		limiter: rate.NewLimiter(limit, burst),
		log:     log.With().Str("component", "quoter").Logger(),
	}
}

type quoteResponse struct {
	Data map[string]struct {
		LastPrice decimal.Decimal `json:"last_price"`
	} `json:"data"`
}

func (q *HTTPQuoter) Quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := q.limiter.Wait(ctx); err != nil {
		return decimal.Zero, err
	}
	token, err := q.session.Token(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("quote session: %w", err)
	}

	endpoint := q.baseURL + "/quote?" + url.Values{"i": {symbol}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrQuoteUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return decimal.Zero, ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return decimal.Zero, nil
	case resp.StatusCode != http.StatusOK:
		return decimal.Zero, fmt.Errorf("%w: status %d", ErrQuoteUnavailable, resp.StatusCode)
	}

	var body quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("%w: decode: %v", ErrQuoteUnavailable, err)
	}
	quote, ok := body.Data[symbol]
	if !ok {
		q.log.Debug().Str("symbol", symbol).Msg("symbol not known to quote service")
		return decimal.Zero, nil
	}
	return quote.LastPrice, nil
}

// CachedQuoter keeps successful lookups for a fixed TTL.
type CachedQuoter struct {
	next  Quoter
	cache *cache.Cache
}

func NewCachedQuoter(next Quoter, ttl time.Duration) *CachedQuoter {
	return &CachedQuoter{next: next, cache: cache.New(ttl, 2*ttl)}
}

func (c *CachedQuoter) Quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if cached, found := c.cache.Get(symbol); found {
		return cached.(decimal.Decimal), nil
	}
	price, err := c.next.Quote(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	c.cache.SetDefault(symbol, price)
	return price, nil
}

type FetchOptions struct {
	Concurrency int
	// Timeout bounds each symbol's lookup.
	Timeout time.Duration
}

// FetchAll looks up symbols concurrently. A failed or timed out lookup degrades that
// symbol to zero; every symbol without a positive price is listed in missing.
func FetchAll(ctx context.Context, quoter Quoter, symbols []string, opts FetchOptions, log zerolog.Logger) (map[string]decimal.Decimal, []string) {
	prices := make(map[string]decimal.Decimal, len(symbols))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	if opts.Concurrency > 0 {
		g.SetLimit(opts.Concurrency)
	}
	seen := map[string]bool{}
	for _, symbol := range symbols {
		if seen[symbol] {
			continue
		}
		seen[symbol] = true
		symbol := symbol
		g.Go(func() error {
			lookupCtx := gctx
			if opts.Timeout > 0 {
				var cancel context.CancelFunc
				lookupCtx, cancel = context.WithTimeout(gctx, opts.Timeout)
				defer cancel()
			}
			price, err := quoter.Quote(lookupCtx, symbol)
			if err != nil {
				log.Warn().Err(err).Str("symbol", symbol).Msg("price lookup failed")
				price = decimal.Zero
			}
			mu.Lock()
			prices[symbol] = price
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	missing := []string{}
	for symbol := range seen {
		if !prices[symbol].IsPositive() {
			missing = append(missing, symbol)
		}
	}
	sort.Strings(missing)
	return prices, missing
}
