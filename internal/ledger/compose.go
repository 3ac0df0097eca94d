package ledger

import (
	"encoding/json"
	"errors"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// NotApplicable is the textual form of a ratio with a zero denominator.
const NotApplicable = "N/A"

// Ratio is a percentage that may be undefined.
type Ratio struct {
	Percent decimal.Decimal
	Valid   bool
}

// NewRatio returns num/den as a percentage, or an invalid Ratio when den is zero.
func NewRatio(num, den decimal.Decimal) Ratio {
	if den.IsZero() {
		return Ratio{}
	}
	return Ratio{Percent: num.Div(den).Mul(hundred), Valid: true}
}

// String renders the ratio with one decimal place, e.g. "33.3%" or "N/A".
func (r Ratio) String() string {
	if !r.Valid {
		return NotApplicable
	}
	return r.Percent.StringFixed(1) + "%"
}

// MarshalJSON encodes the ratio as a number or the N/A sentinel string.
func (r Ratio) MarshalJSON() ([]byte, error) {
	if !r.Valid {
		return json.Marshal(NotApplicable)
	}
	return []byte(r.Percent.Round(4).String()), nil
}

// UnmarshalJSON accepts the forms produced by MarshalJSON.
func (r *Ratio) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil && s == NotApplicable {
		*r = Ratio{}
		return nil
	}
	d, err := decimal.NewFromString(string(data))
	if err != nil {
		return err
	}
	*r = Ratio{Percent: d, Valid: true}
	return nil
}

// CategoryLedger is one category's reconciliation outcome handed to Compose.
type CategoryLedger struct {
	Category Category
	Ledger   Ledger
	Err      error
}

// Totals are grand aggregates across statement groups.
type Totals struct {
	Invoiced       decimal.Decimal `json:"total_invoiced"`
	Collected      decimal.Decimal `json:"total_collected"`
	Outstanding    decimal.Decimal `json:"total_outstanding"`
	TaxDue         decimal.Decimal `json:"total_tax_due"`
	TaxPaid        decimal.Decimal `json:"total_tax_paid"`
	TaxOutstanding decimal.Decimal `json:"total_tax_outstanding"`
}

// Round returns the totals rounded for display.
func (t Totals) Round(places int32) Totals {
	return Totals{
		Invoiced:       t.Invoiced.Round(places),
		Collected:      t.Collected.Round(places),
		Outstanding:    t.Outstanding.Round(places),
		TaxDue:         t.TaxDue.Round(places),
		TaxPaid:        t.TaxPaid.Round(places),
		TaxOutstanding: t.TaxOutstanding.Round(places),
	}
}

// CategoryFailure flags a category left out of a statement.
type CategoryFailure struct {
	Category    Category        `json:"category"`
	Message     string          `json:"message"`
	Discrepancy decimal.Decimal `json:"discrepancy"`
}

// Statement is the composed report for one party and period.
type Statement struct {
	Party          Party             `json:"party"`
	Period         Period            `json:"period"`
	Regular        []Group           `json:"groups"`
	Tax            []Group           `json:"tax_groups"`
	Totals         Totals            `json:"totals"`
	CollectionRate Ratio             `json:"collection_rate"`
	Failures       []CategoryFailure `json:"failures,omitempty"`
	Warnings       []Warning         `json:"warnings,omitempty"`
}

// Empty reports whether the statement holds no groups.
func (s Statement) Empty() bool {
	return len(s.Regular) == 0 && len(s.Tax) == 0
}

// Failed reports whether any category failed to reconcile.
func (s Statement) Failed() bool {
	return len(s.Failures) > 0
}

// GroupsFor returns the regular groups of one category in order.
func (s Statement) GroupsFor(category Category) []Group {
	var out []Group
	for _, g := range s.Regular {
		if g.Category == category {
			out = append(out, g)
		}
	}
	return out
}

// Rounded returns a display copy with all amounts rounded to places.
func (s Statement) Rounded(places int32) Statement {
	out := s
	out.Regular = roundGroups(s.Regular, places)
	out.Tax = roundGroups(s.Tax, places)
	out.Totals = s.Totals.Round(places)
	return out
}

func roundGroups(groups []Group, places int32) []Group {
	out := make([]Group, len(groups))
	for i, g := range groups {
		out[i] = g.Rounded(places)
	}
	return out
}

// Compose assembles category ledgers into a Statement. Categories whose
// reconciliation failed are reported in Failures and skipped; the rest are kept.
func Compose(ledgers []CategoryLedger, party Party, period Period) Statement {
	st := Statement{
		Party:   party,
		Period:  period,
		Regular: []Group{},
		Tax:     []Group{},
		Totals: Totals{
			Invoiced:       decimal.Zero,
			Collected:      decimal.Zero,
			Outstanding:    decimal.Zero,
			TaxDue:         decimal.Zero,
			TaxPaid:        decimal.Zero,
			TaxOutstanding: decimal.Zero,
		},
	}
	for _, cl := range ledgers {
		if cl.Err != nil {
			failure := CategoryFailure{Category: cl.Category, Message: cl.Err.Error(), Discrepancy: decimal.Zero}
			var mismatch *ReconciliationMismatchError
			if errors.As(cl.Err, &mismatch) {
				failure.Discrepancy = mismatch.Discrepancy
			}
			st.Failures = append(st.Failures, failure)
			continue
		}
		for _, g := range cl.Ledger.Groups {
			if g.Category == "" {
				g.Category = cl.Category
			}
			if g.Tax || cl.Ledger.Tax {
				g.Tax = true
				st.Tax = append(st.Tax, g)
				st.Totals.TaxDue = st.Totals.TaxDue.Add(g.TotalDue)
				st.Totals.TaxPaid = st.Totals.TaxPaid.Add(g.TotalPaid)
				st.Totals.TaxOutstanding = st.Totals.TaxOutstanding.Add(g.FinalBalance)
				continue
			}
			st.Regular = append(st.Regular, g)
			st.Totals.Invoiced = st.Totals.Invoiced.Add(g.TotalDue)
			st.Totals.Collected = st.Totals.Collected.Add(g.TotalPaid)
			st.Totals.Outstanding = st.Totals.Outstanding.Add(g.FinalBalance)
		}
	}
	st.CollectionRate = NewRatio(st.Totals.Collected, st.Totals.Invoiced)
	return st
}
