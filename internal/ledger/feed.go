package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// FeedCategory is the high-level bucket of a combined feed entry.
type FeedCategory string

const (
	FeedRevenue    FeedCategory = "Revenue"
	FeedAdjustment FeedCategory = "Adjustment"
	FeedCollection FeedCategory = "Collection"
	FeedHeld       FeedCategory = "Held"
	FeedExpense    FeedCategory = "Expense"
)

func (c FeedCategory) rank() int {
	switch c {
	case FeedRevenue:
		return 0
	case FeedAdjustment:
		return 1
	case FeedCollection:
		return 2
	case FeedHeld:
		return 3
	default:
		return 4
	}
}

// feedCategory classifies a transaction by its kind. Charges are revenue,
// payments are collections, and discounts, returns and cancellations reduce
// revenue.
func feedCategory(k Kind) (FeedCategory, bool) {
	switch k {
	case KindInvoice, KindGovernmentFee, KindTrustFee:
		return FeedRevenue, true
	case KindPayment, KindTrustFeeLog:
		return FeedCollection, true
	case KindDiscount, KindReturn, KindCancelDue:
		return FeedAdjustment, true
	case KindExpense:
		return FeedExpense, true
	}
	return "", false
}

// FeedBasis selects how entries move the net position.
type FeedBasis string

const (
	// Accrual: revenue adds when invoiced, adjustments and expenses subtract,
	// collections are neutral.
	Accrual FeedBasis = "accrual"
	// Cash: collections add, expenses subtract, invoicing is neutral.
	Cash FeedBasis = "cash"
)

// ParseFeedBasis maps text to a basis, defaulting to Accrual.
func ParseFeedBasis(s string) FeedBasis {
	if FeedBasis(s) == Cash {
		return Cash
	}
	return Accrual
}

// FeedOption tunes BuildCombinedFeed.
type FeedOption func(*feedConfig)

type feedConfig struct {
	held map[Category]bool
}

// WithHeldFunds marks categories whose lines are funds held for or by the
// party. Their entries appear as Held with no impact and stay out of the
// summary totals.
func WithHeldFunds(categories ...Category) FeedOption {
	return func(c *feedConfig) {
		for _, category := range categories {
			c.held[category.Pass()] = true
		}
	}
}

// CombinedLedgerEntry is one row of the unified revenue/collection/expense feed.
type CombinedLedgerEntry struct {
	Transaction
	Category        FeedCategory    `json:"category"`
	SourceCategory  Category        `json:"source_category"`
	Amount          decimal.Decimal `json:"amount"`
	BalanceImpact   decimal.Decimal `json:"balance_impact"`
	RunningPosition decimal.Decimal `json:"running_position"`
}

// BuildCombinedFeed flattens the statement's revenue, adjustment and
// collection lines and the given expenses into a single feed ordered most
// recent first. When expenses is nil the statement's own expense groups are
// used. RunningPosition is accumulated in chronological order before the
// reversal.
func BuildCombinedFeed(st Statement, expenses []Transaction, basis FeedBasis, opts ...FeedOption) []CombinedLedgerEntry {
	if basis != Cash {
		basis = Accrual
	}
	cfg := feedConfig{held: make(map[Category]bool)}
	for _, opt := range opts {
		opt(&cfg)
	}
	feed := make([]CombinedLedgerEntry, 0)
	useStatementExpenses := expenses == nil
	for _, g := range st.Regular {
		if g.Category == CategoryExpenses {
			if useStatementExpenses {
				for _, e := range g.Entries {
					feed = appendExpense(feed, e.Transaction, basis)
				}
			}
			continue
		}
		for _, e := range g.Entries {
			amount := e.Due
			if amount.IsZero() {
				amount = e.Paid
			}
			if !amount.IsPositive() {
				continue
			}
			category, ok := feedCategory(e.Kind)
			if !ok {
				continue
			}
			if cfg.held[g.Category.Pass()] {
				category = FeedHeld
			}
			feed = append(feed, CombinedLedgerEntry{
				Transaction:    e.Transaction,
				Category:       category,
				SourceCategory: g.Category,
				Amount:         amount,
				BalanceImpact:  impact(category, amount, basis),
			})
		}
	}
	for _, t := range expenses {
		feed = appendExpense(feed, t, basis)
	}

	sort.SliceStable(feed, func(i, j int) bool {
		a, b := feed[i], feed[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.Category.rank() < b.Category.rank()
	})
	running := decimal.Zero
	for i := range feed {
		running = running.Add(feed[i].BalanceImpact)
		feed[i].RunningPosition = running
	}
	for i, j := 0, len(feed)-1; i < j; i, j = i+1, j-1 {
		feed[i], feed[j] = feed[j], feed[i]
	}
	return feed
}

func appendExpense(feed []CombinedLedgerEntry, t Transaction, basis FeedBasis) []CombinedLedgerEntry {
	if !t.Due.IsPositive() {
		return feed
	}
	return append(feed, CombinedLedgerEntry{
		Transaction:    t,
		Category:       FeedExpense,
		SourceCategory: CategoryExpenses,
		Amount:         t.Due,
		BalanceImpact:  impact(FeedExpense, t.Due, basis),
	})
}

func impact(c FeedCategory, amount decimal.Decimal, basis FeedBasis) decimal.Decimal {
	switch c {
	case FeedExpense:
		return amount.Neg()
	case FeedRevenue:
		if basis == Accrual {
			return amount
		}
	case FeedAdjustment:
		if basis == Accrual {
			return amount.Neg()
		}
	case FeedCollection:
		if basis == Cash {
			return amount
		}
	}
	return decimal.Zero
}

// Summary aggregates a combined feed.
type Summary struct {
	Revenue        decimal.Decimal `json:"revenue"`
	Adjustments    decimal.Decimal `json:"adjustments"`
	NetRevenue     decimal.Decimal `json:"net_revenue"`
	Collected      decimal.Decimal `json:"collected"`
	Expenses       decimal.Decimal `json:"expenses"`
	NetProfit      decimal.Decimal `json:"net_profit"`
	Outstanding    decimal.Decimal `json:"outstanding"`
	NetPosition    decimal.Decimal `json:"net_position"`
	CollectionRate Ratio           `json:"collection_rate"`
	ProfitMargin   Ratio           `json:"profit_margin"`
}

// Summarize computes revenue, collection and expense aggregates with guarded
// ratios. Ratios are taken against revenue net of adjustments; held funds are
// excluded.
func Summarize(feed []CombinedLedgerEntry) Summary {
	s := Summary{
		Revenue:     decimal.Zero,
		Adjustments: decimal.Zero,
		Collected:   decimal.Zero,
		Expenses:    decimal.Zero,
		NetPosition: decimal.Zero,
	}
	for _, e := range feed {
		switch e.Category {
		case FeedRevenue:
			s.Revenue = s.Revenue.Add(e.Amount)
		case FeedAdjustment:
			s.Adjustments = s.Adjustments.Add(e.Amount)
		case FeedCollection:
			s.Collected = s.Collected.Add(e.Amount)
		case FeedExpense:
			s.Expenses = s.Expenses.Add(e.Amount)
		}
		s.NetPosition = s.NetPosition.Add(e.BalanceImpact)
	}
	s.NetRevenue = s.Revenue.Sub(s.Adjustments)
	s.NetProfit = s.NetRevenue.Sub(s.Expenses)
	s.Outstanding = s.NetRevenue.Sub(s.Collected)
	s.CollectionRate = NewRatio(s.Collected, s.NetRevenue)
	s.ProfitMargin = NewRatio(s.NetProfit, s.NetRevenue)
	return s
}
