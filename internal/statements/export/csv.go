package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/buildledger/statements/internal/ledger"
)

const (
	csvFlushEvery = 200
	csvBufferSize = 32 * 1024
)

type csvStreamer struct {
	buf          *bufio.Writer
	csv          *csv.Writer
	flushEvery   int
	pendingLines int
}

func newCSVStreamer(w io.Writer) *csvStreamer {
	buf := bufio.NewWriterSize(w, csvBufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true
	return &csvStreamer{buf: buf, csv: writer, flushEvery: csvFlushEvery}
}

func (s *csvStreamer) writeComment(line string) error {
	// Comments go straight to the buffer; flush pending rows first to keep order.
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	line = strings.TrimRight(line, "\r\n") + "\r\n"
	_, err := s.buf.WriteString(line)
	return err
}

func (s *csvStreamer) writeRow(row ...string) error {
	if err := s.csv.Write(row); err != nil {
		return err
	}
	s.pendingLines++
	if s.flushEvery > 0 && s.pendingLines >= s.flushEvery {
		return s.Flush()
	}
	return nil
}

func (s *csvStreamer) Flush() error {
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	s.pendingLines = 0
	return nil
}

// WriteStatementCSV streams the statement as CSV with one row per ledger entry,
// a subtotal row per group, and the grand totals.
func WriteStatementCSV(w io.Writer, st ledger.Statement, opts Options) error {
	f := NewFormatter(opts)
	s := newCSVStreamer(w)
	if err := writeHeader(s, "Statement of Account", st); err != nil {
		return err
	}
	if err := s.writeRow("Section", "Category", "Group", "Date", "Type", "Reference", "Remark", "Due", "Paid", "Balance"); err != nil {
		return err
	}
	if err := writeGroups(s, f, "Regular", st.Regular); err != nil {
		return err
	}
	if err := writeGroups(s, f, "Tax", st.Tax); err != nil {
		return err
	}
	totals := [][]string{
		{"Totals", "", "Invoiced", "", "", "", "", f.Plain(st.Totals.Invoiced), "", ""},
		{"Totals", "", "Collected", "", "", "", "", "", f.Plain(st.Totals.Collected), ""},
		{"Totals", "", "Outstanding", "", "", "", "", "", "", f.Plain(st.Totals.Outstanding)},
		{"Totals", "", "Collection rate", "", "", "", "", "", "", st.CollectionRate.String()},
		{"Totals", "", "Tax due", "", "", "", "", f.Plain(st.Totals.TaxDue), "", ""},
		{"Totals", "", "Tax paid", "", "", "", "", "", f.Plain(st.Totals.TaxPaid), ""},
		{"Totals", "", "Tax outstanding", "", "", "", "", "", "", f.Plain(st.Totals.TaxOutstanding)},
	}
	for _, row := range totals {
		if err := s.writeRow(row...); err != nil {
			return err
		}
	}
	return s.Flush()
}

func writeHeader(s *csvStreamer, title string, st ledger.Statement) error {
	lines := []string{
		"# Report: " + title,
		"# Party: " + partyLabel(st.Party) + " | Period: " + periodLabel(st.Period),
	}
	for _, failure := range st.Failures {
		lines = append(lines, fmt.Sprintf("# Failed: %s (%s)", failure.Category, failure.Message))
	}
	if len(st.Warnings) == 0 {
		lines = append(lines, "# Warnings: none")
	} else {
		msgs := make([]string, len(st.Warnings))
		for i, w := range st.Warnings {
			msgs[i] = strings.TrimSpace(w.Message)
		}
		lines = append(lines, "# Warnings: "+strings.Join(msgs, "; "))
	}
	for _, line := range lines {
		if err := s.writeComment(line); err != nil {
			return err
		}
	}
	return nil
}

func writeGroups(s *csvStreamer, f Formatter, section string, groups []ledger.Group) error {
	for _, g := range groups {
		for _, e := range g.Entries {
			if err := s.writeRow(section, string(g.Category), g.Key, formatDate(e), string(e.Kind),
				e.SourceReference, e.Remark, f.Plain(e.Due), f.Plain(e.Paid), f.Plain(e.Balance)); err != nil {
				return err
			}
		}
		if err := s.writeRow(section, string(g.Category), g.Key, "", "TOTAL", "", "",
			f.Plain(g.TotalDue), f.Plain(g.TotalPaid), f.Plain(g.FinalBalance)); err != nil {
			return err
		}
	}
	return nil
}

// WriteFeedCSV streams the combined feed, most recent first.
func WriteFeedCSV(w io.Writer, entries []ledger.CombinedLedgerEntry, summary ledger.Summary, opts Options) error {
	f := NewFormatter(opts)
	s := newCSVStreamer(w)
	if err := s.writeComment("# Report: Combined Ledger"); err != nil {
		return err
	}
	if err := s.writeRow("Date", "Category", "Source", "Group", "Reference", "Amount", "Impact", "Running Position"); err != nil {
		return err
	}
	for _, e := range entries {
		if err := s.writeRow(e.Date.Format(dateLayout), string(e.Category), string(e.SourceCategory), e.GroupKey,
			e.SourceReference, f.Plain(e.Amount), f.Plain(e.BalanceImpact), f.Plain(e.RunningPosition)); err != nil {
			return err
		}
	}
	summaryRows := [][]string{
		{"Summary", "Revenue", "", "", "", f.Plain(summary.Revenue), "", ""},
		{"Summary", "Adjustments", "", "", "", f.Plain(summary.Adjustments), "", ""},
		{"Summary", "Net revenue", "", "", "", f.Plain(summary.NetRevenue), "", ""},
		{"Summary", "Collected", "", "", "", f.Plain(summary.Collected), "", ""},
		{"Summary", "Expenses", "", "", "", f.Plain(summary.Expenses), "", ""},
		{"Summary", "Net profit", "", "", "", f.Plain(summary.NetProfit), "", ""},
		{"Summary", "Profit margin", "", "", "", summary.ProfitMargin.String(), "", ""},
		{"Summary", "Collection rate", "", "", "", summary.CollectionRate.String(), "", ""},
	}
	for _, row := range summaryRows {
		if err := s.writeRow(row...); err != nil {
			return err
		}
	}
	return s.Flush()
}
