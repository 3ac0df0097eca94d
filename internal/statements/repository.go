package statements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/buildledger/statements/internal/ledger"
	"github.com/buildledger/statements/internal/platform/db"
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Source provides raw records for the report controller.
type Source interface {
	PartyName(ctx context.Context, party ledger.Party) (string, error)
	FetchRecords(ctx context.Context, category ledger.Category, req Request) ([]ledger.Record, error)
	ActiveParties(ctx context.Context, since time.Time) ([]ledger.Party, error)
}

// BundleSource is implemented by sources that can load every category from a
// single consistent snapshot.
type BundleSource interface {
	FetchBundle(ctx context.Context, req Request) (Bundle, error)
}

// Repository reads ledger source documents from PostgreSQL.
type Repository struct {
	db   dbtx
	txer db.Beginner
}

// NewRepository constructs a repository backed by the pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool, txer: pool}
}

var partyTables = map[ledger.PartyType]string{
	ledger.PartyCustomer:   "customers",
	ledger.PartyContractor: "contractors",
	ledger.PartyEngineer:   "engineers",
}

// Party columns are whitelisted; the value is interpolated into SQL.
var partyColumns = map[ledger.PartyType]string{
	ledger.PartyCustomer:   "customer",
	ledger.PartyContractor: "contractor",
	ledger.PartyEngineer:   "engineer",
}

// Numeric columns are cast to text so amounts keep their exact decimal form.
var categoryQueries = map[ledger.Category]string{
	ledger.CategoryServices: `
		SELECT si.name AS parent, si.posting_date, sii.item_code, sii.item_name, sii.description,
			sii.amount::text AS amount, sii.base_amount::text AS base_amount,
			sii.tax_amount::text AS tax_amount, si.is_return
		FROM sales_invoice_items sii
		JOIN sales_invoices si ON si.name = sii.parent
		WHERE si.docstatus = 1 AND si.%[1]s = $1
			AND ($2::date IS NULL OR si.posting_date >= $2)
			AND ($3::date IS NULL OR si.posting_date <= $3)
		ORDER BY si.posting_date, si.name, sii.idx`,
	ledger.CategoryClaims: `
		SELECT pc.name AS parent, pc.claim_date, pci.item, pci.remarks,
			pci.claim_amount::text AS claim_amount, pci.tax_amount::text AS tax_amount
		FROM project_claim_items pci
		JOIN project_claims pc ON pc.name = pci.parent
		WHERE pc.docstatus = 1 AND pc.%[1]s = $1
			AND ($2::date IS NULL OR pc.claim_date >= $2)
			AND ($3::date IS NULL OR pc.claim_date <= $3)
		ORDER BY pc.claim_date, pc.name, pci.idx`,
	ledger.CategoryTaxes: `
		SELECT si.name AS parent, si.posting_date, stc.account_head, stc.description,
			stc.tax_amount::text AS tax_amount, NULL::text AS tax_paid
		FROM sales_taxes_and_charges stc
		JOIN sales_invoices si ON si.name = stc.parent
		WHERE si.docstatus = 1 AND si.%[1]s = $1
			AND ($2::date IS NULL OR si.posting_date >= $2)
			AND ($3::date IS NULL OR si.posting_date <= $3)
		UNION ALL
		SELECT pc.name AS parent, pc.claim_date AS posting_date, pci.tax_account AS account_head, pci.remarks AS description,
			NULL::text AS tax_amount, pci.tax_amount::text AS tax_paid
		FROM project_claim_items pci
		JOIN project_claims pc ON pc.name = pci.parent
		WHERE pc.docstatus = 1 AND pc.%[1]s = $1 AND pci.tax_amount <> 0
			AND ($2::date IS NULL OR pc.claim_date >= $2)
			AND ($3::date IS NULL OR pc.claim_date <= $3)
		ORDER BY posting_date, parent`,
	ledger.CategoryExpenses: `
		SELECT pe.name, pe.expense_date, pe.expense_type, pe.remarks,
			pe.amount::text AS amount, pe.paid_amount::text AS paid_amount
		FROM project_expenses pe
		WHERE pe.docstatus = 1 AND pe.%[1]s = $1
			AND ($2::date IS NULL OR pe.expense_date >= $2)
			AND ($3::date IS NULL OR pe.expense_date <= $3)
		ORDER BY pe.expense_date, pe.name`,
	ledger.CategoryGovernmentFees: `
		SELECT gf.name, gf.fee_date, gf.fee_type, gf.remarks,
			gf.amount::text AS amount, gf.paid_amount::text AS paid_amount
		FROM government_fees gf
		WHERE gf.docstatus = 1 AND gf.%[1]s = $1
			AND ($2::date IS NULL OR gf.fee_date >= $2)
			AND ($3::date IS NULL OR gf.fee_date <= $3)
		ORDER BY gf.fee_date, gf.name`,
	ledger.CategoryTrustFees: `
		SELECT tf.name, tf.log_date, tf.service, tf.remarks,
			tf.trust_fee::text AS trust_fee, tf.returned_amount::text AS returned_amount
		FROM trust_fee_logs tf
		WHERE tf.docstatus = 1 AND tf.%[1]s = $1
			AND ($2::date IS NULL OR tf.log_date >= $2)
			AND ($3::date IS NULL OR tf.log_date <= $3)
		ORDER BY tf.log_date, tf.name`,
}

// PartyName returns the display name of the party.
func (r *Repository) PartyName(ctx context.Context, party ledger.Party) (string, error) {
	table, ok := partyTables[party.Type]
	if !ok {
		return "", fmt.Errorf("%w: party type %q", ErrInvalidRequest, party.Type)
	}
	var name string
	query := fmt.Sprintf("SELECT display_name FROM %s WHERE name = $1", table)
	if err := r.db.QueryRow(ctx, query, party.ID).Scan(&name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrPartyNotFound
		}
		return "", fmt.Errorf("statements: load party: %w", err)
	}
	return name, nil
}

// FetchRecords loads one category's raw records for the request as column maps.
func (r *Repository) FetchRecords(ctx context.Context, category ledger.Category, req Request) ([]ledger.Record, error) {
	return fetchRecords(ctx, r.db, category, req)
}

// FetchBundle loads every category inside one read-only snapshot so that an
// invoice and the claim settling it are never split across commits.
func (r *Repository) FetchBundle(ctx context.Context, req Request) (Bundle, error) {
	if r.txer == nil {
		return fetchBundle(ctx, r.db, req)
	}
	var bundle Bundle
	err := db.ReadSnapshot(ctx, r.txer, func(tx pgx.Tx) error {
		var err error
		bundle, err = fetchBundle(ctx, tx, req)
		return err
	})
	return bundle, err
}

func fetchBundle(ctx context.Context, q dbtx, req Request) (Bundle, error) {
	bundle := make(Bundle, len(ledger.Categories))
	for _, category := range ledger.Categories {
		records, err := fetchRecords(ctx, q, category, req)
		if err != nil {
			return nil, err
		}
		bundle[category] = records
	}
	return bundle, nil
}

func fetchRecords(ctx context.Context, q dbtx, category ledger.Category, req Request) ([]ledger.Record, error) {
	tmpl, ok := categoryQueries[category]
	if !ok {
		return nil, fmt.Errorf("statements: no query for category %q", category)
	}
	column, ok := partyColumns[ledger.PartyType(req.PartyType)]
	if !ok {
		return nil, fmt.Errorf("%w: party type %q", ErrInvalidRequest, req.PartyType)
	}
	rows, err := q.Query(ctx, fmt.Sprintf(tmpl, column), req.PartyID, dateParam(req.From), dateParam(req.To))
	if err != nil {
		return nil, fmt.Errorf("statements: query %s: %w", category, err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("statements: collect %s: %w", category, err)
	}
	out := make([]ledger.Record, len(maps))
	for i, m := range maps {
		out[i] = ledger.Record(m)
	}
	return out, nil
}

// ActiveParties lists parties with posted invoices or claims since the given day.
func (r *Repository) ActiveParties(ctx context.Context, since time.Time) ([]ledger.Party, error) {
	const query = `
		SELECT 'customer' AS party_type, customer AS party_id FROM sales_invoices
			WHERE docstatus = 1 AND customer IS NOT NULL AND ($1::date IS NULL OR posting_date >= $1)
		UNION
		SELECT 'contractor', contractor FROM project_claims
			WHERE docstatus = 1 AND contractor IS NOT NULL AND ($1::date IS NULL OR claim_date >= $1)
		UNION
		SELECT 'engineer', engineer FROM project_claims
			WHERE docstatus = 1 AND engineer IS NOT NULL AND ($1::date IS NULL OR claim_date >= $1)
		ORDER BY 1, 2`
	rows, err := r.db.Query(ctx, query, dateParam(since))
	if err != nil {
		return nil, fmt.Errorf("statements: active parties: %w", err)
	}
	defer rows.Close()
	var parties []ledger.Party
	for rows.Next() {
		var partyType, id string
		if err := rows.Scan(&partyType, &id); err != nil {
			return nil, err
		}
		parties = append(parties, ledger.Party{Type: ledger.PartyType(partyType), ID: id})
	}
	return parties, rows.Err()
}

func dateParam(t time.Time) pgtype.Date {
	if t.IsZero() {
		return pgtype.Date{Valid: false}
	}
	return pgtype.Date{Time: t, Valid: true}
}
