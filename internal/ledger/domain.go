package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind tags the business meaning of a transaction.
type Kind string

const (
	KindInvoice       Kind = "INVOICE"
	KindPayment       Kind = "PAYMENT"
	KindDiscount      Kind = "DISCOUNT"
	KindCancelDue     Kind = "CANCEL_DUE"
	KindReturn        Kind = "RETURN"
	KindExpense       Kind = "EXPENSE"
	KindGovernmentFee Kind = "GOVERNMENT_FEE"
	KindTrustFee      Kind = "TRUST_FEE"
	KindTrustFeeLog   Kind = "TRUST_FEE_LOG"
)

// Debit reports whether the kind establishes an amount owed.
func (k Kind) Debit() bool {
	switch k {
	case KindInvoice, KindExpense, KindGovernmentFee, KindTrustFee:
		return true
	}
	return false
}

// sortRank orders same-day transactions: debits first, then credits.
func (k Kind) sortRank() int {
	if k.Debit() {
		return 0
	}
	return 1
}

// Category names a source stream of records.
type Category string

const (
	CategoryServices       Category = "services"
	CategoryClaims         Category = "claims"
	CategoryTaxes          Category = "taxes"
	CategoryExpenses       Category = "expenses"
	CategoryGovernmentFees Category = "government_fees"
	CategoryTrustFees      Category = "trust_fees"
)

// Categories lists every supported category in statement order.
var Categories = []Category{
	CategoryServices,
	CategoryClaims,
	CategoryGovernmentFees,
	CategoryTrustFees,
	CategoryExpenses,
	CategoryTaxes,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Pass returns the reconciliation pass a source category feeds. Claims settle
// service lines, so both share one pass and one set of groups.
func (c Category) Pass() Category {
	if c == CategoryClaims {
		return CategoryServices
	}
	return c
}

// Passes lists reconciliation passes in statement order.
var Passes = []Category{
	CategoryServices,
	CategoryGovernmentFees,
	CategoryTrustFees,
	CategoryExpenses,
	CategoryTaxes,
}

// Convention selects the sign used to accumulate balances.
type Convention string

const (
	// Receivable accumulates due - paid: positive means the party owes us.
	Receivable Convention = "RECEIVABLE"
	// Payable accumulates paid - due: positive means we hold funds for the party.
	Payable Convention = "PAYABLE"
)

// ParseConvention maps a textual convention, defaulting to Receivable.
func ParseConvention(s string) Convention {
	if strings.EqualFold(strings.TrimSpace(s), string(Payable)) {
		return Payable
	}
	return Receivable
}

// UnassignedKey collects transactions whose group key is blank.
const UnassignedKey = "Unassigned"

// Transaction is one normalized financial movement.
type Transaction struct {
	Date            time.Time       `json:"date"`
	GroupKey        string          `json:"group_key"`
	Kind            Kind            `json:"kind"`
	Due             decimal.Decimal `json:"due"`
	Paid            decimal.Decimal `json:"paid"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	Remark          string          `json:"remark,omitempty"`
	SourceReference string          `json:"source_reference,omitempty"`
}

// Delta returns the signed balance movement under the convention.
func (t Transaction) Delta(conv Convention) decimal.Decimal {
	if conv == Payable {
		return t.Paid.Sub(t.Due)
	}
	return t.Due.Sub(t.Paid)
}

// Entry is a transaction positioned in its group with the running balance after it.
type Entry struct {
	Transaction
	Balance decimal.Decimal `json:"balance"`
}

// Group is the ordered ledger of one group key.
type Group struct {
	Key          string          `json:"key"`
	Category     Category        `json:"category"`
	Convention   Convention      `json:"convention"`
	Tax          bool            `json:"tax"`
	Entries      []Entry         `json:"entries"`
	TotalDue     decimal.Decimal `json:"total_due"`
	TotalPaid    decimal.Decimal `json:"total_paid"`
	FinalBalance decimal.Decimal `json:"final_balance"`
}

// Rounded returns a copy with every amount rounded for display.
func (g Group) Rounded(places int32) Group {
	out := g
	out.Entries = make([]Entry, len(g.Entries))
	for i, e := range g.Entries {
		e.Due = e.Due.Round(places)
		e.Paid = e.Paid.Round(places)
		e.TaxAmount = e.TaxAmount.Round(places)
		e.Balance = e.Balance.Round(places)
		out.Entries[i] = e
	}
	out.TotalDue = g.TotalDue.Round(places)
	out.TotalPaid = g.TotalPaid.Round(places)
	out.FinalBalance = g.FinalBalance.Round(places)
	return out
}

// Ledger holds the groups of one reconciliation pass in first-seen key order.
type Ledger struct {
	Category   Category   `json:"category"`
	Convention Convention `json:"convention"`
	Tax        bool       `json:"tax"`
	Groups     []Group    `json:"groups"`
}

// Group looks up a group by key.
func (l Ledger) Group(key string) (Group, bool) {
	for _, g := range l.Groups {
		if g.Key == key {
			return g, true
		}
	}
	return Group{}, false
}

// Keys lists group keys in order.
func (l Ledger) Keys() []string {
	keys := make([]string, len(l.Groups))
	for i, g := range l.Groups {
		keys[i] = g.Key
	}
	return keys
}

// PartyType identifies whose statement is being produced.
type PartyType string

const (
	PartyCustomer   PartyType = "customer"
	PartyContractor PartyType = "contractor"
	PartyEngineer   PartyType = "engineer"
)

// Valid reports whether p is a known party type.
func (p PartyType) Valid() bool {
	switch p {
	case PartyCustomer, PartyContractor, PartyEngineer:
		return true
	}
	return false
}

// Party identifies the statement subject.
type Party struct {
	Type PartyType `json:"type"`
	ID   string    `json:"id"`
	Name string    `json:"name,omitempty"`
}

// Period bounds a statement by calendar day, inclusive on both ends.
type Period struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether d falls inside the period. Zero bounds are open.
func (p Period) Contains(d time.Time) bool {
	day := truncateDay(d)
	if !p.From.IsZero() && day.Before(truncateDay(p.From)) {
		return false
	}
	if !p.To.IsZero() && day.After(truncateDay(p.To)) {
		return false
	}
	return true
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
