package portfolio

import (
	"sort"
	"strings"

	"brokerbook/internal/models"

	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryFeesAndCharges     Category = "fees_and_charges"
	CategoryFundsAdded         Category = "funds_added"
	CategoryInternalAdjustment Category = "internal_adjustment"
	CategoryFundsWithdrawn     Category = "funds_withdrawn"
	CategorySecurityMovement   Category = "security_movement"
)

// Order matters: a voucher type matching several needles takes the first.
var categoryRules = []struct {
	needle   string
	category Category
}{
	{"book", CategoryFeesAndCharges},
	{"bank receipt", CategoryFundsAdded},
	{"journal", CategoryInternalAdjustment},
	{"bank payment", CategoryFundsWithdrawn},
	{"delivery", CategorySecurityMovement},
}

func Categorize(voucherType string) (Category, bool) {
	normalized := strings.ToLower(voucherType)
	for _, rule := range categoryRules {
		if strings.Contains(normalized, rule.needle) {
			return rule.category, true
		}
	}
	return "", false
}

type Bucket struct {
	Debit  decimal.Decimal `json:"debit"`
	Credit decimal.Decimal `json:"credit"`
	Count  int             `json:"count"`
}

// Net is debit − credit.
func (b Bucket) Net() decimal.Decimal {
	return b.Debit.Sub(b.Credit)
}

func (b *Bucket) add(entry models.LedgerEntry) {
	b.Debit = b.Debit.Add(entry.Debit)
	b.Credit = b.Credit.Add(entry.Credit)
	b.Count++
}

type LedgerSummary struct {
	AccountID          int64           `json:"account_id"`
	Entries            int             `json:"entries"`
	TotalDebit         decimal.Decimal `json:"total_debit"`
	TotalCredit        decimal.Decimal `json:"total_credit"`
	NetCashFlow        decimal.Decimal `json:"net_cash_flow"`
	FeesAndCharges     Bucket          `json:"fees_and_charges"`
	FundsAdded         Bucket          `json:"funds_added"`
	InternalAdjustment Bucket          `json:"internal_adjustment"`
	FundsWithdrawn     Bucket          `json:"funds_withdrawn"`
	SecurityMovement   Bucket          `json:"security_movement"`
	InvestedValue      decimal.Decimal `json:"invested_value"`
	Uncategorized      int             `json:"uncategorized"`
	// UncategorizedVoucherTypes lists the distinct voucher types that matched no rule.
	UncategorizedVoucherTypes []string `json:"uncategorized_voucher_types,omitempty"`
}

func (s *LedgerSummary) bucket(category Category) *Bucket {
	switch category {
	case CategoryFeesAndCharges:
		return &s.FeesAndCharges
	case CategoryFundsAdded:
		return &s.FundsAdded
	case CategoryInternalAdjustment:
		return &s.InternalAdjustment
	case CategoryFundsWithdrawn:
		return &s.FundsWithdrawn
	case CategorySecurityMovement:
		return &s.SecurityMovement
	}
	return nil
}

// Summarize rolls up the entries of one account. Uncategorized entries count towards
// the totals but no bucket.
func Summarize(accountID int64, entries []models.LedgerEntry) LedgerSummary {
	summary := LedgerSummary{AccountID: accountID}
	unknown := map[string]struct{}{}
	for _, entry := range entries {
		summary.Entries++
		summary.TotalDebit = summary.TotalDebit.Add(entry.Debit)
		summary.TotalCredit = summary.TotalCredit.Add(entry.Credit)
		category, ok := Categorize(entry.VoucherType)
		if !ok {
			summary.Uncategorized++
			unknown[entry.VoucherType] = struct{}{}
			continue
		}
		summary.bucket(category).add(entry)
	}
	summary.NetCashFlow = summary.TotalCredit.Sub(summary.TotalDebit)
	summary.InvestedValue = summary.FundsAdded.Debit.
		Sub(summary.FundsWithdrawn.Credit).
		Sub(summary.FeesAndCharges.Net()).
		Sub(summary.InternalAdjustment.Net())
	for voucherType := range unknown {
		summary.UncategorizedVoucherTypes = append(summary.UncategorizedVoucherTypes, voucherType)
	}
	sort.Strings(summary.UncategorizedVoucherTypes)
	return summary
}

// SummarizeByAccount groups entries by account and summarizes each, ordered by account id.
func SummarizeByAccount(entries []models.LedgerEntry) []LedgerSummary {
	grouped := map[int64][]models.LedgerEntry{}
	var ids []int64
	for _, entry := range entries {
		if _, ok := grouped[entry.AccountID]; !ok {
			ids = append(ids, entry.AccountID)
		}
		grouped[entry.AccountID] = append(grouped[entry.AccountID], entry)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	summaries := make([]LedgerSummary, 0, len(ids))
	for _, id := range ids {
		summaries = append(summaries, Summarize(id, grouped[id]))
	}
	return summaries
}
