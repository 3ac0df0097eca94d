package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/buildledger/statements/internal/ledger"
)

const (
	summarySheet = "Summary"
	ledgerSheet  = "Ledger"
	taxSheet     = "Tax"
)

// BuildStatementXLSX renders a workbook with summary, ledger and tax sheets.
func BuildStatementXLSX(st ledger.Statement, opts Options) ([]byte, error) {
	f := NewFormatter(opts)
	book := excelize.NewFile()
	defer func() { _ = book.Close() }()

	if err := book.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	for _, name := range []string{ledgerSheet, taxSheet} {
		if _, err := book.NewSheet(name); err != nil {
			return nil, err
		}
	}
	numFmt := "#,##0." + strings.Repeat("0", int(f.Places()))
	amountStyle, err := book.NewStyle(&excelize.Style{CustomNumFmt: &numFmt})
	if err != nil {
		return nil, err
	}
	boldStyle, err := book.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	summary := [][]interface{}{
		{"Statement of Account"},
		{},
		{"Party", partyLabel(st.Party)},
		{"Period", periodLabel(st.Period)},
		{"Total invoiced", amount(st.Totals.Invoiced, f)},
		{"Total collected", amount(st.Totals.Collected, f)},
		{"Total outstanding", amount(st.Totals.Outstanding, f)},
		{"Collection rate", st.CollectionRate.String()},
		{"Tax due", amount(st.Totals.TaxDue, f)},
		{"Tax paid", amount(st.Totals.TaxPaid, f)},
		{"Tax outstanding", amount(st.Totals.TaxOutstanding, f)},
	}
	for _, failure := range st.Failures {
		summary = append(summary, []interface{}{"Failed category", fmt.Sprintf("%s: %s", failure.Category, failure.Message)})
	}
	for _, w := range st.Warnings {
		summary = append(summary, []interface{}{"Warning", w.Message})
	}
	if err := writeSheet(book, summarySheet, summary); err != nil {
		return nil, err
	}
	_ = book.SetCellStyle(summarySheet, "A1", "A1", boldStyle)
	_ = book.SetCellStyle(summarySheet, "B5", "B11", amountStyle)

	if err := writeGroupSheet(book, ledgerSheet, st.Regular, f, amountStyle, boldStyle); err != nil {
		return nil, err
	}
	if err := writeGroupSheet(book, taxSheet, st.Tax, f, amountStyle, boldStyle); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := book.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeGroupSheet(book *excelize.File, sheet string, groups []ledger.Group, f Formatter, amountStyle, boldStyle int) error {
	rows := [][]interface{}{{"Category", "Group", "Date", "Type", "Reference", "Remark", "Due", "Paid", "Balance"}}
	var totalRows []int
	for _, g := range groups {
		for _, e := range g.Entries {
			rows = append(rows, []interface{}{string(g.Category), g.Key, formatDate(e), string(e.Kind),
				e.SourceReference, e.Remark, amount(e.Due, f), amount(e.Paid, f), amount(e.Balance, f)})
		}
		rows = append(rows, []interface{}{string(g.Category), g.Key, "", "TOTAL", "", "",
			amount(g.TotalDue, f), amount(g.TotalPaid, f), amount(g.FinalBalance, f)})
		totalRows = append(totalRows, len(rows))
	}
	if err := writeSheet(book, sheet, rows); err != nil {
		return err
	}
	_ = book.SetCellStyle(sheet, "A1", "I1", boldStyle)
	if len(rows) > 1 {
		_ = book.SetCellStyle(sheet, "G2", fmt.Sprintf("I%d", len(rows)), amountStyle)
	}
	for _, r := range totalRows {
		_ = book.SetCellStyle(sheet, fmt.Sprintf("A%d", r), fmt.Sprintf("F%d", r), boldStyle)
	}
	return nil
}

func writeSheet(book *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := row
		if err := book.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}
	return nil
}

func amount(d decimal.Decimal, f Formatter) float64 {
	return d.Round(f.Places()).InexactFloat64()
}
