package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidInput = errors.New("invalid taxpayer input")

// ValidationError lists every shape problem found in a TaxpayerInput.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Problems) == 0 {
		return ErrInvalidInput.Error()
	}
	return fmt.Sprintf("%s: %s", ErrInvalidInput.Error(), strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

type problems []string

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

func (p *problems) nonNegative(field string, v decimal.Decimal) {
	if v.IsNegative() {
		p.addf("%s must not be negative", field)
	}
}

// Validate checks the input shape. Business conditions that are legal zero or
// absent cases are never reported here.
func (in TaxpayerInput) Validate() error {
	var p problems
	if strings.TrimSpace(in.FirstName) == "" {
		p.addf("first_name is required")
	}
	if strings.TrimSpace(in.LastName) == "" {
		p.addf("last_name is required")
	}
	if strings.TrimSpace(in.SSN) == "" {
		p.addf("ssn is required")
	}
	if in.HSACoverage != "" && in.HSACoverage != CoverageSelf && in.HSACoverage != CoverageFamily {
		p.addf("hsa_coverage must be %q or %q", CoverageSelf, CoverageFamily)
	}
	p.nonNegative("hsa_contributions", in.HSAContributions)
	p.nonNegative("hsa_employer_contributions", in.HSAEmployerContributions)
	p.nonNegative("hsa_distributions", in.HSADistributions)
	p.nonNegative("medical_expenses", in.MedicalExpenses)
	p.nonNegative("deduct_sales_tax_amount", in.SalesTaxAmount)

	for i, w := range in.Wages {
		prefix := fmt.Sprintf("w2[%d]", i)
		p.nonNegative(prefix+".wages", w.Wages)
		p.nonNegative(prefix+".federal_tax", w.FederalTax)
		p.nonNegative(prefix+".state_tax", w.StateTax)
		p.nonNegative(prefix+".local_tax", w.LocalTax)
		p.nonNegative(prefix+".social_security_wages", w.SocialSecurityWages)
		p.nonNegative(prefix+".social_security_tax", w.SocialSecurityTax)
		p.nonNegative(prefix+".medicare_wages", w.MedicareWages)
		p.nonNegative(prefix+".medicare_tax", w.MedicareTax)
	}
	for i, inv := range in.Investments {
		prefix := fmt.Sprintf("1099[%d]", i)
		if strings.TrimSpace(inv.Institution) == "" {
			p.addf("%s.institution is required", prefix)
		}
		p.nonNegative(prefix+".interest", inv.Interest)
		p.nonNegative(prefix+".ordinary_dividends", inv.OrdinaryDividends)
		p.nonNegative(prefix+".qualified_dividends", inv.QualifiedDividends)
		p.nonNegative(prefix+".foreign_tax", inv.ForeignTax)
		if inv.QualifiedDividends.GreaterThan(inv.OrdinaryDividends) {
			p.addf("%s.qualified_dividends exceeds ordinary_dividends", prefix)
		}
		for j, t := range inv.Trades {
			tp := fmt.Sprintf("%s.trades[%d]", prefix, j)
			if t.Term != TermShort && t.Term != TermLong {
				p.addf("%s.term must be %s or %s", tp, TermShort, TermLong)
			}
			if !validCoverageCode(t.CoverageCode()) {
				p.addf("%s.form_code %q is not one of %s", tp, t.FormCode, strings.Join(CoverageCodes, ","))
			}
			p.nonNegative(tp+".proceeds", t.Proceeds)
			p.nonNegative(tp+".cost", t.Cost)
			if t.WashSale != nil && t.WashSaleCode == "" {
				p.addf("%s.wash_sale_code is required with a wash sale adjustment", tp)
			}
		}
	}
	if len(p) > 0 {
		return &ValidationError{Problems: p}
	}
	return nil
}

func validCoverageCode(code string) bool {
	for _, c := range CoverageCodes {
		if c == code {
			return true
		}
	}
	return false
}
