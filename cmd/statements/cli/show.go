package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/buildledger/statements/internal/statements"
	"github.com/buildledger/statements/internal/statements/export"
)

// Exit codes returned by commands.
const (
	ExitOK       = 0
	ExitError    = 1
	ExitDegraded = 10
)

// Generator produces statements; *statements.Service satisfies it.
type Generator interface {
	Generate(ctx context.Context, req statements.Request) (statements.Report, error)
}

// StatementCLI prints statements from the terminal.
type StatementCLI struct {
	generator Generator
	export    export.Options
}

// NewStatementCLI wires the statement commands.
func NewStatementCLI(generator Generator, opts export.Options) (*StatementCLI, error) {
	if generator == nil {
		return nil, errors.New("statements cli: generator required")
	}
	return &StatementCLI{generator: generator, export: opts}, nil
}

// ShowOptions defines available flags for the show command.
type ShowOptions struct {
	PartyType string
	PartyID   string
	From      string
	To        string
	Format    string
	Stdout    io.Writer
	Stderr    io.Writer
}

// ShowCommand prints one party statement as JSON or CSV. It exits with
// ExitDegraded when any category failed to reconcile.
func (c *StatementCLI) ShowCommand(ctx context.Context, opts ShowOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	from, err := statements.ParseDate(opts.From)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "show: invalid --from %q (expected YYYY-MM-DD)\n", opts.From)
		return ExitError
	}
	to, err := statements.ParseDate(opts.To)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "show: invalid --to %q (expected YYYY-MM-DD)\n", opts.To)
		return ExitError
	}
	req := statements.Request{
		PartyType: strings.ToLower(strings.TrimSpace(opts.PartyType)),
		PartyID:   strings.TrimSpace(opts.PartyID),
		From:      from,
		To:        to,
	}
	report, err := c.generator.Generate(ctx, req)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "show: %v\n", err)
		return ExitError
	}

	switch strings.ToLower(opts.Format) {
	case "", "json":
		places := c.export.Places
		if places <= 0 {
			places = export.DefaultPlaces
		}
		report.Statement = report.Statement.Rounded(places)
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "show: encode json: %v\n", err)
			return ExitError
		}
	case "csv":
		if err := export.WriteStatementCSV(opts.Stdout, report.Statement, c.export); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "show: write csv: %v\n", err)
			return ExitError
		}
	default:
		_, _ = fmt.Fprintf(opts.Stderr, "show: unsupported format %q\n", opts.Format)
		return ExitError
	}

	if report.Statement.Failed() {
		_, _ = fmt.Fprintf(opts.Stderr, "show: %d categories failed reconciliation\n", len(report.Statement.Failures))
		return ExitDegraded
	}
	return ExitOK
}
