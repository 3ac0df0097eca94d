package perf

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/buildledger/statements/internal/ledger"
	"github.com/buildledger/statements/internal/statements"
	statementshttp "github.com/buildledger/statements/internal/statements/http"
)

type fixtureSource struct {
	services []ledger.Record
	claims   []ledger.Record
}

func (f fixtureSource) PartyName(context.Context, ledger.Party) (string, error) {
	return "Perf Contracting", nil
}

func (f fixtureSource) FetchRecords(_ context.Context, category ledger.Category, _ statements.Request) ([]ledger.Record, error) {
	switch category {
	case ledger.CategoryServices:
		return f.services, nil
	case ledger.CategoryClaims:
		return f.claims, nil
	}
	return nil, nil
}

func (f fixtureSource) ActiveParties(context.Context, time.Time) ([]ledger.Party, error) {
	return nil, nil
}

func statementRouter(tb testing.TB) http.Handler {
	tb.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := statements.NewService(statements.ServiceConfig{
		Source: fixtureSource{services: serviceRecords(2000, 25), claims: claimRecords(1500, 25)},
		Logger: logger,
	})
	h, err := statementshttp.NewHandler(logger, svc, statementshttp.Options{ExportsPerMinute: 1 << 20})
	require.NoError(tb, err)
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func TestStatementLatencyTarget(t *testing.T) {
	if testing.Short() {
		t.Skip("latency sampling skipped in short mode")
	}
	router := statementRouter(t)
	samples := make([]time.Duration, 0, 20)
	for i := 0; i < 20; i++ {
		start := time.Now()
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/statements/customer/CUST-PERF", nil))
		samples = append(samples, time.Since(start))
		require.Equal(t, http.StatusOK, rr.Code)
	}
	p95 := percentile95(samples)
	require.Less(t, p95, 2*time.Second, "uncached statement p95=%s", p95)
}

func BenchmarkStatementEndpoint(b *testing.B) {
	router := statementRouter(b)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/statements/customer/CUST-PERF", nil))
		if rr.Code != http.StatusOK {
			b.Fatalf("unexpected status %d", rr.Code)
		}
	}
}

func BenchmarkStatementExportXLSX(b *testing.B) {
	router := statementRouter(b)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/statements/customer/CUST-PERF/export.xlsx", nil))
		if rr.Code != http.StatusOK {
			b.Fatalf("unexpected status %d", rr.Code)
		}
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
