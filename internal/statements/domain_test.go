package statements

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/buildledger/statements/internal/ledger"
)

func TestRequestValidate(t *testing.T) {
	cases := []struct {
		name string
		req  Request
		ok   bool
	}{
		{name: "customer", req: Request{PartyType: "customer", PartyID: "C1"}, ok: true},
		{name: "engineer with range", req: Request{PartyType: "engineer", PartyID: "E1",
			From: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), To: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}, ok: true},
		{name: "missing id", req: Request{PartyType: "customer"}},
		{name: "unknown party", req: Request{PartyType: "supplier", PartyID: "S1"}},
		{name: "inverted range", req: Request{PartyType: "contractor", PartyID: "K1",
			From: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), To: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestRequestCacheKey(t *testing.T) {
	req := Request{PartyType: "customer", PartyID: " C1 ", From: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	require.Equal(t, "statements:statement:customer:C1:2024-01-01:-", req.CacheKey("statement"))
	require.Equal(t, ledger.Party{Type: ledger.PartyCustomer, ID: "C1"}, req.Party())
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("")
	require.NoError(t, err)
	require.True(t, d.IsZero())

	d, err = ParseDate("2024-02-29")
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseDate("29/02/2024")
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestBundleCount(t *testing.T) {
	b := Bundle{
		ledger.CategoryServices: {{}, {}},
		ledger.CategoryClaims:   {{}},
	}
	require.Equal(t, 3, b.Count())
}
