package ledger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustLedger(t *testing.T, category Category, txns []Transaction, conv Convention) CategoryLedger {
	t.Helper()
	l, err := ReconcileCategory(category, txns, conv)
	require.NoError(t, err)
	return CategoryLedger{Category: category, Ledger: l}
}

func TestComposeGrandTotals(t *testing.T) {
	services := mustLedger(t, CategoryServices, []Transaction{
		invoice("2024-01-01", "ItemA", "100"),
		invoice("2024-01-01", "ItemB", "50"),
		payment("2024-01-02", "ItemB", "50"),
	}, Receivable)

	st := Compose([]CategoryLedger{services}, Party{Type: PartyCustomer, ID: "CUST-1"}, Period{From: day("2024-01-01"), To: day("2024-01-31")})
	require.Len(t, st.Regular, 2)
	require.Empty(t, st.Tax)
	require.Equal(t, "150", st.Totals.Invoiced.String())
	require.Equal(t, "50", st.Totals.Collected.String())
	require.Equal(t, "100", st.Totals.Outstanding.String())
	require.True(t, st.CollectionRate.Valid)
	require.Equal(t, "33.3%", st.CollectionRate.String())
	require.Equal(t, PartyCustomer, st.Party.Type)
}

func TestComposeEmptyInput(t *testing.T) {
	st := Compose(nil, Party{Type: PartyContractor, ID: "C-9"}, Period{})
	require.True(t, st.Empty())
	require.False(t, st.Failed())
	require.NotNil(t, st.Regular)
	require.NotNil(t, st.Tax)
	require.True(t, st.Totals.Invoiced.IsZero())
	require.True(t, st.Totals.Collected.IsZero())
	require.True(t, st.Totals.Outstanding.IsZero())
	require.True(t, st.Totals.TaxDue.IsZero())
	require.True(t, st.Totals.TaxPaid.IsZero())
	require.Equal(t, NotApplicable, st.CollectionRate.String())
}

func TestComposeZeroInvoicedReportsNotApplicable(t *testing.T) {
	claims := mustLedger(t, CategoryClaims, []Transaction{payment("2024-01-05", "ItemA", "20")}, Receivable)
	st := Compose([]CategoryLedger{claims}, Party{}, Period{})
	require.True(t, st.Totals.Invoiced.IsZero())
	require.False(t, st.CollectionRate.Valid)
	require.Equal(t, "N/A", st.CollectionRate.String())

	raw, err := json.Marshal(st.CollectionRate)
	require.NoError(t, err)
	require.JSONEq(t, `"N/A"`, string(raw))
}

func TestComposeSplitsTaxGroups(t *testing.T) {
	services := mustLedger(t, CategoryServices, []Transaction{invoice("2024-01-01", "ItemA", "1000")}, Receivable)
	taxLedger, err := ReconcileTax([]Transaction{
		{Date: day("2024-01-01"), GroupKey: "VAT", Kind: KindInvoice, Due: dec("150")},
		{Date: day("2024-01-09"), GroupKey: "VAT", Kind: KindPayment, Paid: dec("150")},
	}, Receivable)
	require.NoError(t, err)

	st := Compose([]CategoryLedger{services, {Category: CategoryTaxes, Ledger: taxLedger}}, Party{}, Period{})
	require.Len(t, st.Regular, 1)
	require.Len(t, st.Tax, 1)
	require.Equal(t, "1000", st.Totals.Invoiced.String())
	require.Equal(t, "1000", st.Totals.Outstanding.String())
	require.Equal(t, "150", st.Totals.TaxDue.String())
	require.Equal(t, "150", st.Totals.TaxPaid.String())
	require.True(t, st.Totals.TaxOutstanding.IsZero())
}

func TestComposeKeepsSucceededCategoriesOnFailure(t *testing.T) {
	services := mustLedger(t, CategoryServices, []Transaction{invoice("2024-01-01", "ItemA", "10")}, Receivable)
	failed := CategoryLedger{
		Category: CategoryTrustFees,
		Err:      &ReconciliationMismatchError{Category: CategoryTrustFees, Field: "paid", Discrepancy: dec("2.5")},
	}
	st := Compose([]CategoryLedger{services, failed}, Party{}, Period{})
	require.True(t, st.Failed())
	require.Len(t, st.Failures, 1)
	require.Equal(t, CategoryTrustFees, st.Failures[0].Category)
	require.Equal(t, "2.5", st.Failures[0].Discrepancy.String())
	require.Len(t, st.Regular, 1)
	require.Equal(t, "10", st.Totals.Invoiced.String())
}

func TestStatementRoundedLeavesSourceUntouched(t *testing.T) {
	services := mustLedger(t, CategoryServices, []Transaction{
		invoice("2024-01-01", "A", "10.005"),
		invoice("2024-01-02", "A", "10.005"),
	}, Receivable)
	st := Compose([]CategoryLedger{services}, Party{}, Period{})
	view := st.Rounded(2)
	require.Equal(t, "20.01", view.Totals.Invoiced.String())
	require.Equal(t, "10.01", view.Regular[0].Entries[0].Due.String())
	require.Equal(t, "20.01", st.Totals.Invoiced.String())
	require.Equal(t, "10.005", st.Regular[0].Entries[0].Due.String())
}

func TestStatementGroupsFor(t *testing.T) {
	services := mustLedger(t, CategoryServices, []Transaction{invoice("2024-01-01", "A", "1")}, Receivable)
	fees := mustLedger(t, CategoryGovernmentFees, []Transaction{invoice("2024-01-01", "Permit", "2")}, Receivable)
	st := Compose([]CategoryLedger{services, fees}, Party{}, Period{})
	require.Len(t, st.GroupsFor(CategoryGovernmentFees), 1)
	require.Equal(t, "Permit", st.GroupsFor(CategoryGovernmentFees)[0].Key)
}

func TestRatioJSONRoundTrip(t *testing.T) {
	r := NewRatio(dec("1"), dec("4"))
	raw, err := json.Marshal(r)
	require.NoError(t, err)
	require.Equal(t, "25", string(raw))

	var back Ratio
	require.NoError(t, json.Unmarshal(raw, &back))
	require.True(t, back.Valid)
	require.Equal(t, "25.0%", back.String())

	require.NoError(t, json.Unmarshal([]byte(`"N/A"`), &back))
	require.False(t, back.Valid)
}
