package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"github.com/buildledger/statements/internal/ledger"
)

var pdfColumns = []struct {
	title string
	width float64
	align string
}{
	{"Date", 24, "C"},
	{"Type", 30, "L"},
	{"Reference", 36, "L"},
	{"Due", 32, "R"},
	{"Paid", 32, "R"},
	{"Balance", 32, "R"},
}

// BuildStatementPDF renders the statement as an A4 PDF, one table per group.
func BuildStatementPDF(st ledger.Statement, opts Options) ([]byte, error) {
	f := NewFormatter(opts)
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Statement of Account", true)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.Cell(0, 8, "Statement of Account")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, tr("Party: "+partyLabel(st.Party)))
	pdf.Ln(5)
	pdf.Cell(0, 6, "Period: "+periodLabel(st.Period))
	pdf.Ln(8)

	summary := [][2]string{
		{"Total invoiced", f.Amount(st.Totals.Invoiced)},
		{"Total collected", f.Amount(st.Totals.Collected)},
		{"Total outstanding", f.Amount(st.Totals.Outstanding)},
		{"Collection rate", st.CollectionRate.String()},
	}
	if len(st.Tax) > 0 {
		summary = append(summary,
			[2]string{"Tax due", f.Amount(st.Totals.TaxDue)},
			[2]string{"Tax paid", f.Amount(st.Totals.TaxPaid)},
			[2]string{"Tax outstanding", f.Amount(st.Totals.TaxOutstanding)},
		)
	}
	for _, row := range summary {
		pdf.CellFormat(50, 6, row[0], "", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, row[1], "", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	for _, failure := range st.Failures {
		pdf.SetTextColor(180, 0, 0)
		pdf.MultiCell(0, 5, tr(fmt.Sprintf("%s could not be reconciled: %s", categoryTitle(failure.Category), failure.Message)), "", "L", false)
		pdf.SetTextColor(0, 0, 0)
	}
	pdf.Ln(4)

	writePDFGroups(pdf, tr, f, st.Regular)
	if len(st.Tax) > 0 {
		pdf.SetFont("Arial", "B", 12)
		pdf.Cell(0, 8, "Tax")
		pdf.Ln(9)
		writePDFGroups(pdf, tr, f, st.Tax)
	}
	if len(st.Warnings) > 0 {
		pdf.SetFont("Arial", "I", 8)
		pdf.Cell(0, 5, fmt.Sprintf("%d source record(s) were skipped:", len(st.Warnings)))
		pdf.Ln(5)
		for _, w := range st.Warnings {
			pdf.MultiCell(0, 4, tr(w.Message), "", "L", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writePDFGroups(pdf *gofpdf.Fpdf, tr func(string) string, f Formatter, groups []ledger.Group) {
	for _, g := range groups {
		pdf.SetFont("Arial", "B", 10)
		pdf.Cell(0, 6, tr(fmt.Sprintf("%s: %s", categoryTitle(g.Category), g.Key)))
		pdf.Ln(7)
		for _, col := range pdfColumns {
			pdf.CellFormat(col.width, 6, col.title, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 9)
		for _, e := range g.Entries {
			cells := []string{formatDate(e), string(e.Kind), tr(e.SourceReference), f.Amount(e.Due), f.Amount(e.Paid), f.Amount(e.Balance)}
			for i, col := range pdfColumns {
				pdf.CellFormat(col.width, 6, cells[i], "1", 0, col.align, false, 0, "")
			}
			pdf.Ln(-1)
		}
		pdf.SetFont("Arial", "B", 9)
		totals := []string{"", "Total", "", f.Amount(g.TotalDue), f.Amount(g.TotalPaid), f.Amount(g.FinalBalance)}
		for i, col := range pdfColumns {
			pdf.CellFormat(col.width, 6, totals[i], "1", 0, col.align, false, 0, "")
		}
		pdf.Ln(9)
	}
}
