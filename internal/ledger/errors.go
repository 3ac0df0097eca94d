package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrEmptyCategory is returned when a category is required but missing.
var ErrEmptyCategory = errors.New("ledger: category required")

// MissingDateError reports a record dropped because it cannot be ordered.
type MissingDateError struct {
	Category  Category
	Index     int
	Reference string
	Value     any
}

func (e *MissingDateError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("ledger: %s record %d (%s): unusable date %v", e.Category, e.Index, e.Reference, e.Value)
	}
	return fmt.Sprintf("ledger: %s record %d (%s): missing date", e.Category, e.Index, e.Reference)
}

// ReconciliationMismatchError reports that bucketed totals diverged from input totals.
type ReconciliationMismatchError struct {
	Category    Category
	Field       string
	Discrepancy decimal.Decimal
}

func (e *ReconciliationMismatchError) Error() string {
	return fmt.Sprintf("ledger: %s reconciliation mismatch on %s: discrepancy %s", e.Category, e.Field, e.Discrepancy.String())
}

// Warning is a non-fatal issue surfaced alongside a successful result.
type Warning struct {
	Category Category `json:"category"`
	Message  string   `json:"message"`
	Err      error    `json:"-"`
}

func newWarning(category Category, err error) Warning {
	return Warning{Category: category, Message: err.Error(), Err: err}
}

// Unwrap exposes the underlying error for errors.As.
func (w Warning) Unwrap() error { return w.Err }

func (w Warning) Error() string { return w.Message }
