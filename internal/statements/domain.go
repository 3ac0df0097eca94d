package statements

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/buildledger/statements/internal/ledger"
)

const dateLayout = "2006-01-02"

var (
	// ErrInvalidRequest wraps request validation failures.
	ErrInvalidRequest = errors.New("statements: invalid request")
	// ErrPartyNotFound occurs when the party does not exist in the source.
	ErrPartyNotFound = errors.New("statements: party not found")
	// ErrReconciliation marks a statement where at least one category failed its self-check.
	ErrReconciliation = errors.New("statements: reconciliation mismatch")
)

var validate = validator.New()

// Request selects one party's statement.
type Request struct {
	PartyType string    `json:"party_type" validate:"required,oneof=customer contractor engineer"`
	PartyID   string    `json:"party_id" validate:"required,max=140"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
}

// Validate checks required fields and the date range.
func (r Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("%w: %s failed %s", ErrInvalidRequest, strings.ToLower(fe.Field()), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
		return fmt.Errorf("%w: to must not be before from", ErrInvalidRequest)
	}
	return nil
}

// Party returns the ledger party of the request.
func (r Request) Party() ledger.Party {
	return ledger.Party{Type: ledger.PartyType(r.PartyType), ID: strings.TrimSpace(r.PartyID)}
}

// Period returns the ledger period of the request.
func (r Request) Period() ledger.Period {
	return ledger.Period{From: r.From, To: r.To}
}

// CacheKey identifies the request in caches and singleflight.
func (r Request) CacheKey(kind string) string {
	return strings.Join([]string{"statements", kind, r.PartyType, strings.TrimSpace(r.PartyID), formatDate(r.From), formatDate(r.To)}, ":")
}

// ParseDate parses YYYY-MM-DD, returning the zero time for an empty string.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidRequest, s)
	}
	return t, nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(dateLayout)
}

// Bundle holds raw records per source category for one report run.
type Bundle map[ledger.Category][]ledger.Record

// Count returns the number of records across categories.
func (b Bundle) Count() int {
	n := 0
	for _, recs := range b {
		n += len(recs)
	}
	return n
}

// Report is a generated statement with its run metadata.
type Report struct {
	RunID       string           `json:"run_id"`
	GeneratedAt time.Time        `json:"generated_at"`
	Statement   ledger.Statement `json:"statement"`
}

// Feed is the unified revenue/collection/expense view.
type Feed struct {
	RunID       string                       `json:"run_id"`
	GeneratedAt time.Time                    `json:"generated_at"`
	Party       ledger.Party                 `json:"party"`
	Period      ledger.Period                `json:"period"`
	Basis       ledger.FeedBasis             `json:"basis"`
	Entries     []ledger.CombinedLedgerEntry `json:"entries"`
	Summary     ledger.Summary               `json:"summary"`
}
