package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/buildledger/statements/internal/ledger"
	"github.com/buildledger/statements/internal/statements"
	"github.com/buildledger/statements/internal/statements/export"
	"github.com/buildledger/statements/jobs"
)

type stubGenerator struct {
	report statements.Report
	err    error
	got    statements.Request
}

func (s *stubGenerator) Generate(_ context.Context, req statements.Request) (statements.Report, error) {
	s.got = req
	return s.report, s.err
}

func sampleReport(t *testing.T, failed bool) statements.Report {
	t.Helper()
	services, err := ledger.ReconcileCategory(ledger.CategoryServices, []ledger.Transaction{
		{Date: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), GroupKey: "Rebar", Kind: ledger.KindInvoice, Due: decimal.RequireFromString("250.125"), SourceReference: "SINV-7"},
	}, ledger.Receivable)
	require.NoError(t, err)
	ledgers := []ledger.CategoryLedger{{Category: ledger.CategoryServices, Ledger: services}}
	if failed {
		ledgers = append(ledgers, ledger.CategoryLedger{
			Category: ledger.CategoryTaxes,
			Err:      &ledger.ReconciliationMismatchError{Category: ledger.CategoryTaxes, Field: "paid", Discrepancy: decimal.NewFromInt(1)},
		})
	}
	st := ledger.Compose(ledgers, ledger.Party{Type: ledger.PartyCustomer, ID: "CUST-9", Name: "Gulf Towers"}, ledger.Period{})
	return statements.Report{RunID: "run-1", Statement: st}
}

func TestShowCommandJSON(t *testing.T) {
	gen := &stubGenerator{report: sampleReport(t, false)}
	cli, err := NewStatementCLI(gen, export.Options{})
	require.NoError(t, err)

	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := cli.ShowCommand(context.Background(), ShowOptions{
		PartyType: " Customer ",
		PartyID:   "CUST-9",
		From:      "2024-01-01",
		Stdout:    stdout,
		Stderr:    stderr,
	})
	require.Equal(t, ExitOK, code, stderr.String())
	require.Equal(t, "customer", gen.got.PartyType)
	require.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), gen.got.From)
	require.True(t, gen.got.To.IsZero())

	var report statements.Report
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &report))
	require.Equal(t, "run-1", report.RunID)
	require.True(t, report.Statement.Totals.Invoiced.Equal(decimal.RequireFromString("250.13")))
}

func TestShowCommandCSVDegraded(t *testing.T) {
	cli, err := NewStatementCLI(&stubGenerator{report: sampleReport(t, true)}, export.Options{})
	require.NoError(t, err)

	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := cli.ShowCommand(context.Background(), ShowOptions{PartyType: "customer", PartyID: "CUST-9", Format: "csv", Stdout: stdout, Stderr: stderr})
	require.Equal(t, ExitDegraded, code)
	require.Contains(t, stdout.String(), "# Failed: taxes")
	require.Contains(t, stdout.String(), "SINV-7")
	require.Contains(t, stderr.String(), "1 categories failed")
}

func TestShowCommandErrors(t *testing.T) {
	gen := &stubGenerator{err: statements.ErrPartyNotFound}
	cli, err := NewStatementCLI(gen, export.Options{})
	require.NoError(t, err)

	stderr := new(bytes.Buffer)
	require.Equal(t, ExitError, cli.ShowCommand(context.Background(), ShowOptions{From: "01/02/2024", Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Contains(t, stderr.String(), "invalid --from")

	stderr.Reset()
	require.Equal(t, ExitError, cli.ShowCommand(context.Background(), ShowOptions{PartyType: "customer", PartyID: "X", Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Contains(t, stderr.String(), "party not found")

	gen.err = nil
	gen.report = sampleReport(t, false)
	stderr.Reset()
	require.Equal(t, ExitError, cli.ShowCommand(context.Background(), ShowOptions{PartyType: "customer", PartyID: "X", Format: "xml", Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Contains(t, stderr.String(), "unsupported format")

	_, err = NewStatementCLI(nil, export.Options{})
	require.Error(t, err)
}

type stubEnqueuer struct {
	task     string
	lookback time.Duration
}

func (s *stubEnqueuer) Enqueue(_ context.Context, taskType string, lookback time.Duration) (*asynq.TaskInfo, error) {
	s.task = taskType
	s.lookback = lookback
	return &asynq.TaskInfo{ID: "task-1", Type: taskType, Queue: jobs.QueueDefault}, nil
}

type stubInspector struct {
	info      *asynq.QueueInfo
	scheduled []*asynq.TaskInfo
	err       error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func (s stubInspector) ListScheduledTasks(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return s.scheduled, s.err
}

func TestJobsCLITrigger(t *testing.T) {
	enq := &stubEnqueuer{}
	cli := NewJobsCLI(enq, nil)

	info, err := cli.Trigger(context.Background(), jobs.TaskStatementsIntegrity, 48*time.Hour)
	require.NoError(t, err)
	require.Equal(t, "task-1", info.ID)
	require.Equal(t, 48*time.Hour, enq.lookback)

	_, err = cli.Trigger(context.Background(), "mail:send", 0)
	require.ErrorContains(t, err, "unsupported job")

	_, err = NewJobsCLI(nil, nil).Trigger(context.Background(), jobs.TaskStatementsWarmup, 0)
	require.Error(t, err)
}

func TestJobsCLIStatsCommand(t *testing.T) {
	next := time.Date(2024, 4, 1, 2, 0, 0, 0, time.UTC)
	cli := NewJobsCLI(nil, stubInspector{
		info:      &asynq.QueueInfo{Queue: jobs.QueueDefault, Pending: 2, Scheduled: 1},
		scheduled: []*asynq.TaskInfo{{ID: "abc", Type: jobs.TaskStatementsIntegrity, NextProcessAt: next}},
	})
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	require.Equal(t, ExitOK, cli.StatsCommand(context.Background(), stdout, stderr))
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Equal(t, "queue=default pending=2 active=0 scheduled=1 retry=0 archived=0", lines[0])
	require.Equal(t, "  abc statements:integrity at 2024-04-01T02:00:00Z", lines[1])

	failing := NewJobsCLI(nil, stubInspector{err: errors.New("redis down")})
	require.Equal(t, ExitError, failing.StatsCommand(context.Background(), new(bytes.Buffer), stderr))
	require.Contains(t, stderr.String(), "redis down")
}
