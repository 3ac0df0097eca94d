package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func feedStatement(t *testing.T) Statement {
	t.Helper()
	services := mustLedger(t, CategoryServices, []Transaction{
		invoice("2024-01-01", "ItemA", "1000"),
		payment("2024-01-15", "ItemA", "400"),
		invoice("2024-02-01", "ItemB", "500"),
	}, Receivable)
	return Compose([]CategoryLedger{services}, Party{Type: PartyCustomer, ID: "CUST-1"}, Period{})
}

func TestBuildCombinedFeedOrdersMostRecentFirst(t *testing.T) {
	st := feedStatement(t)
	expenses := []Transaction{
		{Date: day("2024-01-10"), GroupKey: "Fuel", Kind: KindExpense, Due: dec("200")},
	}
	feed := BuildCombinedFeed(st, expenses, Accrual)
	require.Len(t, feed, 4)

	for i := 1; i < len(feed); i++ {
		require.False(t, feed[i].Date.After(feed[i-1].Date), "feed must be date descending")
	}
	require.Equal(t, FeedRevenue, feed[0].Category)
	require.Equal(t, "500", feed[0].Amount.String())
	require.Equal(t, FeedExpense, feed[2].Category)
	require.Equal(t, "-200", feed[2].BalanceImpact.String())
	require.Equal(t, FeedRevenue, feed[3].Category)

	// accrual: 1000 - 200 + 0 + 500
	require.Equal(t, "1300", feed[0].RunningPosition.String())
	require.Equal(t, "1000", feed[3].RunningPosition.String())
}

func TestBuildCombinedFeedCashBasis(t *testing.T) {
	st := feedStatement(t)
	feed := BuildCombinedFeed(st, []Transaction{
		{Date: day("2024-01-10"), GroupKey: "Fuel", Kind: KindExpense, Due: dec("200")},
	}, Cash)

	var collection CombinedLedgerEntry
	for _, e := range feed {
		if e.Category == FeedRevenue {
			require.True(t, e.BalanceImpact.IsZero())
		}
		if e.Category == FeedCollection {
			collection = e
		}
	}
	require.Equal(t, "400", collection.BalanceImpact.String())
	require.Equal(t, "200", feed[0].RunningPosition.String())
}

func TestBuildCombinedFeedFallsBackToStatementExpenses(t *testing.T) {
	services := mustLedger(t, CategoryServices, []Transaction{invoice("2024-01-01", "ItemA", "100")}, Receivable)
	expenses := mustLedger(t, CategoryExpenses, []Transaction{
		{Date: day("2024-01-02"), GroupKey: "Fuel", Kind: KindExpense, Due: dec("30")},
	}, Payable)
	st := Compose([]CategoryLedger{services, expenses}, Party{}, Period{})

	feed := BuildCombinedFeed(st, nil, Accrual)
	require.Len(t, feed, 2)
	require.Equal(t, FeedExpense, feed[0].Category)
	require.Equal(t, CategoryExpenses, feed[0].SourceCategory)

	withExplicit := BuildCombinedFeed(st, []Transaction{}, Accrual)
	require.Len(t, withExplicit, 1, "explicit expenses replace statement expense groups")
}

func TestBuildCombinedFeedSameDayOrder(t *testing.T) {
	services := mustLedger(t, CategoryServices, []Transaction{
		invoice("2024-01-01", "ItemA", "100"),
		payment("2024-01-01", "ItemA", "40"),
	}, Receivable)
	st := Compose([]CategoryLedger{services}, Party{}, Period{})
	feed := BuildCombinedFeed(st, []Transaction{{Date: day("2024-01-01"), GroupKey: "Fuel", Kind: KindExpense, Due: dec("10")}}, Accrual)
	require.Len(t, feed, 3)
	require.Equal(t, FeedExpense, feed[0].Category)
	require.Equal(t, FeedCollection, feed[1].Category)
	require.Equal(t, FeedRevenue, feed[2].Category)
}

func TestSummarize(t *testing.T) {
	st := feedStatement(t)
	feed := BuildCombinedFeed(st, []Transaction{
		{Date: day("2024-01-10"), GroupKey: "Fuel", Kind: KindExpense, Due: dec("300")},
	}, Accrual)
	s := Summarize(feed)
	require.Equal(t, "1500", s.Revenue.String())
	require.Equal(t, "400", s.Collected.String())
	require.Equal(t, "300", s.Expenses.String())
	require.Equal(t, "1200", s.NetProfit.String())
	require.Equal(t, "1100", s.Outstanding.String())
	require.Equal(t, "1200", s.NetPosition.String())
	require.Equal(t, "80.0%", s.ProfitMargin.String())
	require.Equal(t, "26.7%", s.CollectionRate.String())
}

func TestSummarizeWithoutRevenue(t *testing.T) {
	s := Summarize(BuildCombinedFeed(Compose(nil, Party{}, Period{}), []Transaction{
		{Date: day("2024-01-10"), GroupKey: "Fuel", Kind: KindExpense, Due: dec("50")},
	}, Accrual))
	require.Equal(t, "-50", s.NetProfit.String())
	require.Equal(t, NotApplicable, s.ProfitMargin.String())
	require.Equal(t, NotApplicable, s.CollectionRate.String())
}

func creditNotesAndTrustFees(t *testing.T) Statement {
	t.Helper()
	services := mustLedger(t, CategoryServices, []Transaction{
		invoice("2024-01-01", "ItemA", "1000"),
		{Date: day("2024-01-05"), GroupKey: "ItemA", Kind: KindDiscount, Paid: dec("100")},
		{Date: day("2024-01-06"), GroupKey: "ItemA", Kind: KindReturn, Paid: dec("200")},
	}, Receivable)
	trust := mustLedger(t, CategoryTrustFees, []Transaction{
		{Date: day("2024-01-02"), GroupKey: "Permit deposit", Kind: KindTrustFee, Due: dec("500")},
		{Date: day("2024-01-08"), GroupKey: "Permit deposit", Kind: KindTrustFeeLog, Paid: dec("500")},
	}, Payable)
	return Compose([]CategoryLedger{services, trust}, Party{Type: PartyCustomer, ID: "CUST-1"}, Period{})
}

func TestBuildCombinedFeedClassifiesByKind(t *testing.T) {
	feed := BuildCombinedFeed(creditNotesAndTrustFees(t), []Transaction{}, Accrual, WithHeldFunds(CategoryTrustFees))
	require.Len(t, feed, 5)

	byKind := make(map[Kind]CombinedLedgerEntry)
	for _, e := range feed {
		byKind[e.Kind] = e
	}
	require.Equal(t, FeedRevenue, byKind[KindInvoice].Category)
	require.Equal(t, FeedAdjustment, byKind[KindDiscount].Category)
	require.Equal(t, FeedAdjustment, byKind[KindReturn].Category)
	require.Equal(t, "-200", byKind[KindReturn].BalanceImpact.String())
	require.Equal(t, FeedHeld, byKind[KindTrustFee].Category)
	require.Equal(t, FeedHeld, byKind[KindTrustFeeLog].Category)
	require.True(t, byKind[KindTrustFeeLog].BalanceImpact.IsZero())
	require.Equal(t, "700", feed[0].RunningPosition.String())

	s := Summarize(feed)
	require.Equal(t, "1000", s.Revenue.String())
	require.Equal(t, "300", s.Adjustments.String())
	require.Equal(t, "700", s.NetRevenue.String())
	require.True(t, s.Collected.IsZero(), "credits and returned deposits are not collections")
	require.Equal(t, "700", s.Outstanding.String())
	require.Equal(t, "0.0%", s.CollectionRate.String())
	require.Equal(t, "100.0%", s.ProfitMargin.String())
	require.Equal(t, "700", s.NetPosition.String())
}

func TestBuildCombinedFeedTrustFeesWithoutHeldFunds(t *testing.T) {
	s := Summarize(BuildCombinedFeed(creditNotesAndTrustFees(t), []Transaction{}, Accrual))
	require.Equal(t, "1500", s.Revenue.String())
	require.Equal(t, "500", s.Collected.String())
	require.Equal(t, "1200", s.NetRevenue.String())
	require.Equal(t, "41.7%", s.CollectionRate.String())
}
