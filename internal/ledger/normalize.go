package ledger

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Record is one raw row as fetched from the document store.
type Record map[string]any

// FieldMap lists, per source category, the candidate field names for each
// Transaction attribute in priority order.
type FieldMap struct {
	Date      []string
	Key       []string
	Due       []string
	Paid      []string
	Tax       []string
	Remark    []string
	Reference []string
	// DueKind tags transactions built from a due amount.
	DueKind Kind
	// PaidKind tags transactions built from a paid amount.
	PaidKind Kind
}

// FieldMaps is the alternate-field-name table for every category.
var FieldMaps = map[Category]FieldMap{
	CategoryServices: {
		Date:      []string{"posting_date", "invoice_date", "date"},
		Key:       []string{"item_code", "item_name", "service", "item"},
		Due:       []string{"amount", "base_amount", "net_amount"},
		Tax:       []string{"tax_amount", "total_taxes"},
		Remark:    []string{"description", "remarks"},
		Reference: []string{"parent", "sales_invoice", "invoice", "name"},
		DueKind:   KindInvoice,
		PaidKind:  KindReturn,
	},
	CategoryClaims: {
		Date:      []string{"claim_date", "payment_date", "posting_date", "date"},
		Key:       []string{"item", "item_code", "service", "invoice_item"},
		Paid:      []string{"claim_amount", "payment_amount", "paid_amount", "amount"},
		Tax:       []string{"tax_amount"},
		Remark:    []string{"remarks", "description"},
		Reference: []string{"parent", "project_claim", "claim", "name"},
		DueKind:   KindInvoice,
		PaidKind:  KindPayment,
	},
	CategoryTaxes: {
		Date:      []string{"posting_date", "invoice_date", "date"},
		Key:       []string{"account_head", "tax_account", "rate", "description"},
		Due:       []string{"tax_amount", "tax_due"},
		Paid:      []string{"tax_paid", "paid_tax_amount"},
		Remark:    []string{"description", "remarks"},
		Reference: []string{"parent", "name"},
		DueKind:   KindInvoice,
		PaidKind:  KindPayment,
	},
	CategoryExpenses: {
		Date:      []string{"expense_date", "posting_date", "date"},
		Key:       []string{"expense_type", "expense_account", "service", "description"},
		Due:       []string{"amount", "total_amount", "expense_amount"},
		Paid:      []string{"paid_amount", "reimbursed_amount"},
		Tax:       []string{"tax_amount"},
		Remark:    []string{"remarks", "description"},
		Reference: []string{"parent", "expense_claim", "name"},
		DueKind:   KindExpense,
		PaidKind:  KindPayment,
	},
	CategoryGovernmentFees: {
		Date:      []string{"fee_date", "posting_date", "date"},
		Key:       []string{"fee_type", "service", "item"},
		Due:       []string{"amount", "fee_amount"},
		Paid:      []string{"paid_amount"},
		Remark:    []string{"remarks", "description"},
		Reference: []string{"parent", "name"},
		DueKind:   KindGovernmentFee,
		PaidKind:  KindPayment,
	},
	CategoryTrustFees: {
		Date:      []string{"log_date", "posting_date", "date"},
		Key:       []string{"service", "trust_fee_type", "item"},
		Due:       []string{"trust_fee", "amount"},
		Paid:      []string{"returned_amount", "paid_amount"},
		Remark:    []string{"remarks", "description"},
		Reference: []string{"parent", "name"},
		DueKind:   KindTrustFee,
		PaidKind:  KindTrustFeeLog,
	},
}

var entryTypeKinds = map[string]Kind{
	"discount":   KindDiscount,
	"cancel due": KindCancelDue,
	"cancel_due": KindCancelDue,
	"canceldue":  KindCancelDue,
	"return":     KindReturn,
	"payment":    KindPayment,
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999",
	time.RFC3339,
	time.RFC3339Nano,
	"02-01-2006",
	"2006/01/02",
}

// Normalizer converts raw records into transactions.
type Normalizer struct {
	logger *slog.Logger
	maps   map[Category]FieldMap
}

// Option customises a Normalizer.
type Option func(*Normalizer)

// WithLogger routes coercion warnings to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Normalizer) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithFieldMap overrides the field map of one category.
func WithFieldMap(category Category, fm FieldMap) Option {
	return func(n *Normalizer) {
		n.maps[category] = fm
	}
}

// NewNormalizer builds a Normalizer seeded with FieldMaps.
func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{logger: slog.Default(), maps: make(map[Category]FieldMap, len(FieldMaps))}
	for c, fm := range FieldMaps {
		n.maps[c] = fm
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize uses a default Normalizer.
func Normalize(records []Record, category Category) ([]Transaction, []Warning) {
	return NewNormalizer().Normalize(records, category)
}

// Normalize maps records of one category into transactions, preserving input
// order. Records without a usable date are dropped and reported as warnings.
func (n *Normalizer) Normalize(records []Record, category Category) ([]Transaction, []Warning) {
	fm, ok := n.maps[category]
	if !ok {
		return nil, []Warning{newWarning(category, fmt.Errorf("ledger: unknown category %q", category))}
	}
	out := make([]Transaction, 0, len(records))
	var warnings []Warning
	for i, rec := range records {
		ref := n.text(rec, fm.Reference)
		date, ok := n.date(rec, fm.Date)
		if !ok {
			var raw any
			if _, v, found := lookup(rec, fm.Date); found {
				raw = v
			}
			warnings = append(warnings, newWarning(category, &MissingDateError{Category: category, Index: i, Reference: ref, Value: raw}))
			continue
		}
		base := Transaction{
			Date:            date,
			GroupKey:        n.text(rec, fm.Key),
			TaxAmount:       n.amount(rec, fm.Tax, category, ref).Abs(),
			Remark:          n.text(rec, fm.Remark),
			SourceReference: ref,
		}
		due := n.amount(rec, fm.Due, category, ref)
		paid := n.amount(rec, fm.Paid, category, ref)

		if override, ok := entryKind(rec); ok {
			amt := due
			if amt.IsZero() {
				amt = paid
			}
			if amt.IsZero() {
				n.logger.Debug("ledger: skipping zero-amount record",
					slog.String("category", string(category)),
					slog.String("reference", ref),
					slog.String("entry_type", string(override)))
				continue
			}
			t := base
			t.Kind = override
			if override.Debit() {
				t.Due = amt.Abs()
			} else {
				t.Paid = amt.Abs()
			}
			out = append(out, t)
			continue
		}

		dueKind := fm.DueKind
		if truthy(rec["is_return"]) && category == CategoryServices {
			due = due.Neg()
		}
		// Negative amounts move to the opposite side.
		if due.IsNegative() {
			paid = paid.Add(due.Abs())
			due = decimal.Zero
		}
		if paid.IsNegative() {
			due = due.Add(paid.Abs())
			paid = decimal.Zero
		}
		if due.IsZero() && paid.IsZero() {
			n.logger.Debug("ledger: skipping zero-amount record",
				slog.String("category", string(category)),
				slog.String("reference", ref))
			continue
		}
		if !due.IsZero() {
			t := base
			t.Kind = dueKind
			t.Due = due
			out = append(out, t)
		}
		if !paid.IsZero() {
			t := base
			t.Kind = fm.PaidKind
			t.Paid = paid
			if !due.IsZero() {
				t.TaxAmount = decimal.Zero
			}
			out = append(out, t)
		}
	}
	return out, warnings
}

func lookup(rec Record, fields []string) (string, any, bool) {
	for _, f := range fields {
		v, ok := rec[f]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		return f, v, true
	}
	return "", nil, false
}

func (n *Normalizer) text(rec Record, fields []string) string {
	_, v, ok := lookup(rec, fields)
	if !ok {
		return ""
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case decimal.Decimal:
		return val.String()
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

// amount returns the first non-zero candidate, mirroring `a || b || 0`.
func (n *Normalizer) amount(rec Record, fields []string, category Category, ref string) decimal.Decimal {
	for _, f := range fields {
		v, ok := rec[f]
		if !ok || v == nil {
			continue
		}
		d, err := parseDecimal(v)
		if err != nil {
			n.logger.Warn("ledger: coercing unparseable amount to zero",
				slog.String("category", string(category)),
				slog.String("field", f),
				slog.String("reference", ref),
				slog.Any("value", v),
				slog.Any("error", err))
			continue
		}
		if !d.IsZero() {
			return d
		}
	}
	return decimal.Zero
}

func (n *Normalizer) date(rec Record, fields []string) (time.Time, bool) {
	for _, f := range fields {
		v, ok := rec[f]
		if !ok || v == nil {
			continue
		}
		if t, ok := parseDate(v); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseDecimal(v any) (decimal.Decimal, error) {
	switch val := v.(type) {
	case decimal.Decimal:
		return val, nil
	case *decimal.Decimal:
		if val == nil {
			return decimal.Zero, nil
		}
		return *val, nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return decimal.Zero, fmt.Errorf("non-finite number")
		}
		return decimal.NewFromFloat(val), nil
	case float32:
		if math.IsNaN(float64(val)) || math.IsInf(float64(val), 0) {
			return decimal.Zero, fmt.Errorf("non-finite number")
		}
		return decimal.NewFromFloat32(val), nil
	case int:
		return decimal.NewFromInt(int64(val)), nil
	case int32:
		return decimal.NewFromInt32(val), nil
	case int64:
		return decimal.NewFromInt(val), nil
	case uint32:
		return decimal.NewFromInt(int64(val)), nil
	case json.Number:
		return decimal.NewFromString(val.String())
	case string:
		clean := strings.ReplaceAll(strings.TrimSpace(val), ",", "")
		if clean == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(clean)
	default:
		return decimal.Zero, fmt.Errorf("unsupported type %T", v)
	}
}

func parseDate(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		if val.IsZero() {
			return time.Time{}, false
		}
		return truncateDay(val), true
	case *time.Time:
		if val == nil || val.IsZero() {
			return time.Time{}, false
		}
		return truncateDay(*val), true
	case string:
		s := strings.TrimSpace(val)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return truncateDay(t), true
			}
		}
	}
	return time.Time{}, false
}

func entryKind(rec Record) (Kind, bool) {
	raw, ok := rec["entry_type"].(string)
	if !ok {
		return "", false
	}
	kind, ok := entryTypeKinds[strings.ToLower(strings.TrimSpace(raw))]
	return kind, ok
}

func truthy(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case float64:
		return val != 0
	case int:
		return val != 0
	case int64:
		return val != 0
	case json.Number:
		d, err := decimal.NewFromString(val.String())
		return err == nil && !d.IsZero()
	case string:
		s := strings.TrimSpace(strings.ToLower(val))
		return s == "1" || s == "true" || s == "yes"
	}
	return false
}
