// Package policy decides which sign convention each ledger category follows
// for a given party type, and which categories hold funds rather than earn
// revenue.
package policy

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/buildledger/statements/internal/ledger"
)

// Policy maps party type and category to a ledger convention.
type Policy struct {
	Default ledger.Convention
	Parties map[ledger.PartyType]map[ledger.Category]ledger.Convention
	// Held lists, per party type, the categories whose lines are funds held
	// for or by the party. They are kept out of revenue and collections.
	Held map[ledger.PartyType][]ledger.Category
}

type document struct {
	Default   string                       `yaml:"default"`
	Parties   map[string]map[string]string `yaml:"parties"`
	HeldFunds map[string][]string          `yaml:"held_funds"`
}

// Default returns the built-in policy: customer ledgers are receivable except
// trust fees, which are held for the customer; contractor and engineer ledgers
// are payable except government fees, which they owe.
func Default() *Policy {
	return &Policy{
		Default: ledger.Receivable,
		Parties: map[ledger.PartyType]map[ledger.Category]ledger.Convention{
			ledger.PartyCustomer: {
				ledger.CategoryServices:       ledger.Receivable,
				ledger.CategoryGovernmentFees: ledger.Receivable,
				ledger.CategoryTrustFees:      ledger.Payable,
				ledger.CategoryExpenses:       ledger.Receivable,
				ledger.CategoryTaxes:          ledger.Receivable,
			},
			ledger.PartyContractor: {
				ledger.CategoryServices:       ledger.Payable,
				ledger.CategoryGovernmentFees: ledger.Receivable,
				ledger.CategoryTrustFees:      ledger.Payable,
				ledger.CategoryExpenses:       ledger.Payable,
				ledger.CategoryTaxes:          ledger.Payable,
			},
			ledger.PartyEngineer: {
				ledger.CategoryServices:       ledger.Payable,
				ledger.CategoryGovernmentFees: ledger.Receivable,
				ledger.CategoryTrustFees:      ledger.Payable,
				ledger.CategoryExpenses:       ledger.Payable,
				ledger.CategoryTaxes:          ledger.Payable,
			},
		},
		Held: map[ledger.PartyType][]ledger.Category{
			ledger.PartyCustomer:   {ledger.CategoryTrustFees},
			ledger.PartyContractor: {ledger.CategoryTrustFees},
			ledger.PartyEngineer:   {ledger.CategoryTrustFees},
		},
	}
}

// Load reads a YAML policy file and overlays it on Default. An empty path
// returns Default.
func Load(path string) (*Policy, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML policy overlaid on Default.
func Parse(data []byte) (*Policy, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("policy: decode: %w", err)
	}
	p := Default()
	if doc.Default != "" {
		conv, err := parseConvention(doc.Default)
		if err != nil {
			return nil, err
		}
		p.Default = conv
	}
	for partyName, categories := range doc.Parties {
		party := ledger.PartyType(strings.ToLower(strings.TrimSpace(partyName)))
		if !party.Valid() {
			return nil, fmt.Errorf("policy: unknown party type %q", partyName)
		}
		if p.Parties[party] == nil {
			p.Parties[party] = make(map[ledger.Category]ledger.Convention)
		}
		for categoryName, value := range categories {
			category := ledger.Category(strings.ToLower(strings.TrimSpace(categoryName)))
			if !category.Valid() {
				return nil, fmt.Errorf("policy: unknown category %q", categoryName)
			}
			conv, err := parseConvention(value)
			if err != nil {
				return nil, err
			}
			p.Parties[party][category.Pass()] = conv
		}
	}
	for partyName, categoryNames := range doc.HeldFunds {
		party := ledger.PartyType(strings.ToLower(strings.TrimSpace(partyName)))
		if !party.Valid() {
			return nil, fmt.Errorf("policy: unknown party type %q", partyName)
		}
		held := make([]ledger.Category, 0, len(categoryNames))
		for _, categoryName := range categoryNames {
			category := ledger.Category(strings.ToLower(strings.TrimSpace(categoryName)))
			if !category.Valid() {
				return nil, fmt.Errorf("policy: unknown category %q", categoryName)
			}
			held = append(held, category.Pass())
		}
		p.Held[party] = held
	}
	return p, nil
}

// HeldFunds returns the categories treated as held funds for a party type.
func (p *Policy) HeldFunds(party ledger.PartyType) []ledger.Category {
	if p == nil {
		return nil
	}
	return p.Held[party]
}

// Convention resolves the convention for a party's category.
func (p *Policy) Convention(party ledger.PartyType, category ledger.Category) ledger.Convention {
	if p == nil {
		return ledger.Receivable
	}
	if byCategory, ok := p.Parties[party]; ok {
		if conv, ok := byCategory[category.Pass()]; ok {
			return conv
		}
	}
	if p.Default == "" {
		return ledger.Receivable
	}
	return p.Default
}

var errBadConvention = errors.New("policy: convention must be receivable or payable")

func parseConvention(s string) (ledger.Convention, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "receivable":
		return ledger.Receivable, nil
	case "payable":
		return ledger.Payable, nil
	}
	return "", fmt.Errorf("%w: got %q", errBadConvention, s)
}
