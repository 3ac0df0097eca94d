package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func invoice(date, key, amount string) Transaction {
	return Transaction{Date: day(date), GroupKey: key, Kind: KindInvoice, Due: dec(amount)}
}

func payment(date, key, amount string) Transaction {
	return Transaction{Date: day(date), GroupKey: key, Kind: KindPayment, Paid: dec(amount)}
}

func balances(g Group) []string {
	out := make([]string, len(g.Entries))
	for i, e := range g.Entries {
		out[i] = e.Balance.String()
	}
	return out
}

func TestReconcileRunningBalance(t *testing.T) {
	txns := []Transaction{
		invoice("2024-01-01", "ItemA", "1000"),
		payment("2024-01-15", "ItemA", "400"),
		payment("2024-02-01", "ItemA", "600"),
	}
	l, err := Reconcile(txns, Receivable)
	require.NoError(t, err)
	require.Len(t, l.Groups, 1)

	g := l.Groups[0]
	require.Equal(t, "ItemA", g.Key)
	require.Equal(t, []string{"1000", "600", "0"}, balances(g))
	require.True(t, g.FinalBalance.IsZero())
	require.True(t, g.TotalDue.Equal(dec("1000")))
	require.True(t, g.TotalPaid.Equal(dec("1000")))
}

func TestReconcileSameDayInvoiceBeforePayment(t *testing.T) {
	txns := []Transaction{
		payment("2024-01-01", "ItemA", "200"),
		invoice("2024-01-01", "ItemA", "500"),
	}
	l, err := Reconcile(txns, Receivable)
	require.NoError(t, err)

	g := l.Groups[0]
	require.Equal(t, KindInvoice, g.Entries[0].Kind)
	require.Equal(t, KindPayment, g.Entries[1].Kind)
	require.Equal(t, []string{"500", "300"}, balances(g))
}

func TestReconcileStableForEqualRank(t *testing.T) {
	txns := []Transaction{
		{Date: day("2024-03-01"), GroupKey: "A", Kind: KindPayment, Paid: dec("1"), SourceReference: "first"},
		{Date: day("2024-03-01"), GroupKey: "A", Kind: KindDiscount, Paid: dec("2"), SourceReference: "second"},
		{Date: day("2024-03-01"), GroupKey: "A", Kind: KindGovernmentFee, Due: dec("5"), SourceReference: "fee"},
	}
	l, err := Reconcile(txns, Receivable)
	require.NoError(t, err)

	refs := []string{}
	for _, e := range l.Groups[0].Entries {
		refs = append(refs, e.SourceReference)
	}
	require.Equal(t, []string{"fee", "first", "second"}, refs)
}

func TestReconcilePayableConvention(t *testing.T) {
	txns := []Transaction{
		{Date: day("2024-01-01"), GroupKey: "Trust", Kind: KindTrustFee, Due: dec("300")},
		{Date: day("2024-01-10"), GroupKey: "Trust", Kind: KindTrustFeeLog, Paid: dec("500")},
	}
	l, err := Reconcile(txns, Payable)
	require.NoError(t, err)

	g := l.Groups[0]
	require.Equal(t, Payable, g.Convention)
	require.Equal(t, []string{"-300", "200"}, balances(g))
	require.True(t, g.FinalBalance.Equal(g.TotalPaid.Sub(g.TotalDue)))
}

func TestReconcileKeepsFirstSeenGroupOrder(t *testing.T) {
	txns := []Transaction{
		invoice("2024-05-01", "Zeta", "1"),
		invoice("2024-01-01", "Alpha", "1"),
		invoice("2024-02-01", "Zeta", "1"),
		invoice("2024-03-01", "Mid", "1"),
	}
	l, err := Reconcile(txns, Receivable)
	require.NoError(t, err)
	require.Equal(t, []string{"Zeta", "Alpha", "Mid"}, l.Keys())

	g, ok := l.Group("Zeta")
	require.True(t, ok)
	require.Len(t, g.Entries, 2)
	require.True(t, g.Entries[0].Date.Equal(day("2024-02-01")))
}

func TestReconcileUnassignedAndConservation(t *testing.T) {
	txns := []Transaction{
		invoice("2024-01-01", "ItemA", "100.10"),
		invoice("2024-01-02", "", "40"),
		payment("2024-01-03", "   ", "15.5"),
		payment("2024-01-04", "ItemA", "0.10"),
	}
	l, err := Reconcile(txns, Receivable)
	require.NoError(t, err)
	require.Equal(t, []string{"ItemA", UnassignedKey}, l.Keys())

	inDue, inPaid := decimal.Zero, decimal.Zero
	for _, tx := range txns {
		inDue = inDue.Add(tx.Due)
		inPaid = inPaid.Add(tx.Paid)
	}
	outDue, outPaid := decimal.Zero, decimal.Zero
	for _, g := range l.Groups {
		outDue = outDue.Add(g.TotalDue)
		outPaid = outPaid.Add(g.TotalPaid)
	}
	require.True(t, inDue.Equal(outDue))
	require.True(t, inPaid.Equal(outPaid))

	unassigned, _ := l.Group(UnassignedKey)
	require.Equal(t, "24.5", unassigned.FinalBalance.String())
}

func TestReconcileBalanceClosure(t *testing.T) {
	txns := []Transaction{
		invoice("2024-01-01", "A", "10.25"),
		payment("2024-01-01", "A", "3.10"),
		{Date: day("2024-01-05"), GroupKey: "A", Kind: KindReturn, Paid: dec("1.15")},
		invoice("2024-01-06", "B", "7"),
		{Date: day("2024-01-07"), GroupKey: "B", Kind: KindCancelDue, Paid: dec("7")},
	}
	for _, conv := range []Convention{Receivable, Payable} {
		l, err := Reconcile(txns, conv)
		require.NoError(t, err)
		for _, g := range l.Groups {
			want := g.TotalDue.Sub(g.TotalPaid)
			if conv == Payable {
				want = want.Neg()
			}
			require.True(t, g.FinalBalance.Equal(want), "group %s under %s", g.Key, conv)
		}
	}
}

func TestReconcileEmptyInput(t *testing.T) {
	l, err := Reconcile(nil, Receivable)
	require.NoError(t, err)
	require.Empty(t, l.Groups)
	require.NotNil(t, l.Groups)
}

func TestReconcileIsIdempotent(t *testing.T) {
	txns := []Transaction{
		payment("2024-01-03", "B", "5"),
		invoice("2024-01-01", "A", "10"),
		invoice("2024-01-03", "B", "20"),
		{Date: day("2024-01-02"), GroupKey: "", Kind: KindDiscount, Paid: dec("1")},
	}
	first, err := Reconcile(txns, Receivable)
	require.NoError(t, err)
	second, err := Reconcile(txns, Receivable)
	require.NoError(t, err)
	require.Equal(t, first, second)

	require.Equal(t, KindPayment, txns[0].Kind, "input order must not change")
	require.Equal(t, "", txns[3].GroupKey, "input keys must not change")
}

func TestReconcileRoundsOnlyAtPresentation(t *testing.T) {
	txns := []Transaction{
		invoice("2024-01-01", "A", "10.005"),
		invoice("2024-01-02", "A", "10.005"),
	}
	l, err := Reconcile(txns, Receivable)
	require.NoError(t, err)
	g := l.Groups[0]

	require.Equal(t, "20.01", g.TotalDue.Round(2).String())
	require.Equal(t, "20.01", g.Rounded(2).TotalDue.String())

	perEntry := decimal.Zero
	for _, e := range g.Entries {
		perEntry = perEntry.Add(e.Due.Round(2))
	}
	require.Equal(t, "20.02", perEntry.String())
	require.False(t, perEntry.Equal(g.TotalDue.Round(2)))
	require.Equal(t, "20.01", g.Entries[1].Balance.String())
}

func TestReconcileTaxPassIsSeparate(t *testing.T) {
	tax := []Transaction{
		{Date: day("2024-01-01"), GroupKey: "VAT 15%", Kind: KindInvoice, Due: dec("150")},
		{Date: day("2024-01-20"), GroupKey: "VAT 15%", Kind: KindPayment, Paid: dec("60")},
	}
	l, err := ReconcileTax(tax, Receivable)
	require.NoError(t, err)
	require.True(t, l.Tax)
	require.Equal(t, CategoryTaxes, l.Category)
	require.True(t, l.Groups[0].Tax)
	require.Equal(t, "90", l.Groups[0].FinalBalance.String())
}

func TestReconcileCategoryStampsGroups(t *testing.T) {
	l, err := ReconcileCategory(CategoryGovernmentFees, []Transaction{invoice("2024-01-01", "Permit", "50")}, Receivable)
	require.NoError(t, err)
	require.Equal(t, CategoryGovernmentFees, l.Groups[0].Category)
	require.False(t, l.Tax)
}

func TestMismatchErrorIsDetectable(t *testing.T) {
	err := error(&ReconciliationMismatchError{Category: CategoryServices, Field: "due", Discrepancy: dec("1.5")})
	require.True(t, IsMismatch(err))
	require.Contains(t, err.Error(), "services")
	require.Contains(t, err.Error(), "1.5")
}
