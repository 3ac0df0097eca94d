package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/buildledger/statements/internal/ledger"
)

func TestDefaultPolicy(t *testing.T) {
	p := Default()
	require.Equal(t, ledger.Receivable, p.Convention(ledger.PartyCustomer, ledger.CategoryServices))
	require.Equal(t, ledger.Receivable, p.Convention(ledger.PartyCustomer, ledger.CategoryClaims))
	require.Equal(t, ledger.Payable, p.Convention(ledger.PartyCustomer, ledger.CategoryTrustFees))
	require.Equal(t, ledger.Receivable, p.Convention(ledger.PartyCustomer, ledger.CategoryGovernmentFees))
	require.Equal(t, ledger.Payable, p.Convention(ledger.PartyContractor, ledger.CategoryServices))
	require.Equal(t, ledger.Payable, p.Convention(ledger.PartyEngineer, ledger.CategoryClaims))
}

func TestParseOverlaysDefaults(t *testing.T) {
	p, err := Parse([]byte(`
default: payable
parties:
  customer:
    trust_fees: receivable
  engineer:
    claims: receivable
`))
	require.NoError(t, err)
	require.Equal(t, ledger.Receivable, p.Convention(ledger.PartyCustomer, ledger.CategoryTrustFees))
	require.Equal(t, ledger.Receivable, p.Convention(ledger.PartyCustomer, ledger.CategoryServices))
	require.Equal(t, ledger.Receivable, p.Convention(ledger.PartyEngineer, ledger.CategoryServices))
	require.Equal(t, ledger.Payable, p.Convention(ledger.PartyType("supplier"), ledger.CategoryServices))
}

func TestParseRejectsUnknownValues(t *testing.T) {
	_, err := Parse([]byte("parties:\n  customer:\n    services: sideways\n"))
	require.ErrorIs(t, err, errBadConvention)

	_, err = Parse([]byte("parties:\n  landlord:\n    services: payable\n"))
	require.Error(t, err)

	_, err = Parse([]byte("parties:\n  customer:\n    payroll: payable\n"))
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	p, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ledger.Receivable, p.Default)

	path := filepath.Join(t.TempDir(), "ledger_roles.yaml")
	require.NoError(t, os.WriteFile(path, []byte("parties:\n  customer:\n    government_fees: payable\n"), 0o600))
	p, err = Load(path)
	require.NoError(t, err)
	require.Equal(t, ledger.Payable, p.Convention(ledger.PartyCustomer, ledger.CategoryGovernmentFees))

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestNilPolicy(t *testing.T) {
	var p *Policy
	require.Equal(t, ledger.Receivable, p.Convention(ledger.PartyContractor, ledger.CategoryServices))
}

func TestHeldFunds(t *testing.T) {
	p := Default()
	require.Equal(t, []ledger.Category{ledger.CategoryTrustFees}, p.HeldFunds(ledger.PartyCustomer))

	p, err := Parse([]byte(`
held_funds:
  customer: []
  contractor: [trust_fees, government_fees]
`))
	require.NoError(t, err)
	require.Empty(t, p.HeldFunds(ledger.PartyCustomer))
	require.Equal(t, []ledger.Category{ledger.CategoryTrustFees, ledger.CategoryGovernmentFees}, p.HeldFunds(ledger.PartyContractor))
	require.Equal(t, []ledger.Category{ledger.CategoryTrustFees}, p.HeldFunds(ledger.PartyEngineer))

	_, err = Parse([]byte("held_funds:\n  customer: [payroll]\n"))
	require.Error(t, err)

	var none *Policy
	require.Nil(t, none.HeldFunds(ledger.PartyCustomer))
}
