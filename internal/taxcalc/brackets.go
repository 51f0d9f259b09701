// Package taxcalc computes income tax from marginal-rate bracket tables.
package taxcalc

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrNegativeIncome = errors.New("taxable income must not be negative")

// Bracket taxes income above Floor at Rate, up to the next bracket's floor.
type Bracket struct {
	Floor decimal.Decimal `json:"floor"`
	Rate  decimal.Decimal `json:"rate"`
}

// Schedule is an ascending bracket table. The first bracket starts at zero.
type Schedule []Bracket

// Validate rejects tables that cannot produce a monotonic tax.
func (s Schedule) Validate() error {
	if len(s) == 0 {
		return errors.New("bracket schedule is empty")
	}
	if !s[0].Floor.IsZero() {
		return fmt.Errorf("first bracket must start at 0, got %s", s[0].Floor)
	}
	for i, b := range s {
		if b.Rate.IsNegative() || b.Rate.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("bracket %d rate %s out of range", i, b.Rate)
		}
		if i > 0 && !b.Floor.GreaterThan(s[i-1].Floor) {
			return fmt.Errorf("bracket %d floor %s is not above %s", i, b.Floor, s[i-1].Floor)
		}
	}
	return nil
}

// Tax returns the tax owed on income, rounded to the cent:
// the full width of every bracket below income at its rate, plus the part of
// income above the current bracket's floor at the current rate.
func (s Schedule) Tax(income decimal.Decimal) (decimal.Decimal, error) {
	if income.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNegativeIncome, income)
	}
	tax := decimal.Zero
	for i, b := range s {
		if income.LessThanOrEqual(b.Floor) {
			break
		}
		top := income
		if i+1 < len(s) && s[i+1].Floor.LessThan(income) {
			top = s[i+1].Floor
		}
		tax = tax.Add(top.Sub(b.Floor).Mul(b.Rate))
	}
	return tax.Round(2), nil
}

// MustTax is Tax for callers that already clamp income at zero.
func (s Schedule) MustTax(income decimal.Decimal) decimal.Decimal {
	tax, err := s.Tax(decimal.Max(decimal.Zero, income))
	if err != nil {
		panic(err)
	}
	return tax
}
