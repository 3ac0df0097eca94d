package ledger

import (
	"errors"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Reconcile groups transactions by key, orders each group chronologically and
// accumulates running balances under conv. The input slice is not modified.
func Reconcile(txns []Transaction, conv Convention) (Ledger, error) {
	return reconcile("", txns, conv, false)
}

// ReconcileCategory is Reconcile with the category stamped on groups and errors.
func ReconcileCategory(category Category, txns []Transaction, conv Convention) (Ledger, error) {
	return reconcile(category, txns, conv, category == CategoryTaxes)
}

// ReconcileTax runs the independent tax pass; its groups never net against
// principal balances.
func ReconcileTax(txns []Transaction, conv Convention) (Ledger, error) {
	return reconcile(CategoryTaxes, txns, conv, true)
}

func reconcile(category Category, txns []Transaction, conv Convention, tax bool) (Ledger, error) {
	if conv != Payable {
		conv = Receivable
	}
	out := Ledger{Category: category, Convention: conv, Tax: tax, Groups: []Group{}}

	index := make(map[string]int)
	buckets := make([][]Entry, 0)
	inputDue, inputPaid := decimal.Zero, decimal.Zero
	for _, t := range txns {
		inputDue = inputDue.Add(t.Due)
		inputPaid = inputPaid.Add(t.Paid)
		key := strings.TrimSpace(t.GroupKey)
		if key == "" {
			key = UnassignedKey
		}
		t.GroupKey = key
		pos, ok := index[key]
		if !ok {
			pos = len(buckets)
			index[key] = pos
			buckets = append(buckets, nil)
		}
		buckets[pos] = append(buckets[pos], Entry{Transaction: t})
	}

	totalDue, totalPaid := decimal.Zero, decimal.Zero
	for _, entries := range buckets {
		g := buildGroup(entries, conv)
		g.Category = category
		g.Tax = tax
		totalDue = totalDue.Add(g.TotalDue)
		totalPaid = totalPaid.Add(g.TotalPaid)
		out.Groups = append(out.Groups, g)
	}

	if diff := inputDue.Sub(totalDue); !diff.IsZero() {
		return out, &ReconciliationMismatchError{Category: category, Field: "due", Discrepancy: diff}
	}
	if diff := inputPaid.Sub(totalPaid); !diff.IsZero() {
		return out, &ReconciliationMismatchError{Category: category, Field: "paid", Discrepancy: diff}
	}
	return out, nil
}

func buildGroup(entries []Entry, conv Convention) Group {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.Kind.sortRank() < b.Kind.sortRank()
	})
	g := Group{
		Key:          entries[0].GroupKey,
		Convention:   conv,
		Entries:      entries,
		TotalDue:     decimal.Zero,
		TotalPaid:    decimal.Zero,
		FinalBalance: decimal.Zero,
	}
	running := decimal.Zero
	for i := range g.Entries {
		running = running.Add(g.Entries[i].Delta(conv))
		g.Entries[i].Balance = running
		g.TotalDue = g.TotalDue.Add(g.Entries[i].Due)
		g.TotalPaid = g.TotalPaid.Add(g.Entries[i].Paid)
	}
	g.FinalBalance = running
	return g
}

// IsMismatch reports whether err is a ReconciliationMismatchError.
func IsMismatch(err error) bool {
	var mismatch *ReconciliationMismatchError
	return errors.As(err, &mismatch)
}
