package forms

import (
	"fmt"

	"github.com/shopspring/decimal"

	"taxline/internal/domain"
)

const (
	sbTotalInterest     = "2_value"
	sbExcludedInterest  = "3_value"
	sbTaxableInterest   = "4_value"
	sbOrdinaryDividends = "6_value"
)

// BuildScheduleB lists interest and dividend payers and their totals. Payers
// beyond the printed rows are still written and totalled, with a warning.
// The schedule is dropped when both totals are zero and no foreign account
// needs to be disclosed.
func BuildScheduleB(r *Run) error {
	in := r.Input
	s := r.newForm(ScheduleB)
	s.identity("")

	interestRows := s.payerRows("1", r.Config.Forms.ScheduleBInterestRows, "interest",
		func(i domain.InvestmentRecord) decimal.Decimal { return i.Interest })
	dividendRows := s.payerRows("5", r.Config.Forms.ScheduleBDividendRows, "ordinary dividend",
		func(i domain.InvestmentRecord) decimal.Decimal { return i.OrdinaryDividends })

	s.sum(sbTotalInterest, rowKeys("1_%d_value", interestRows)...)
	s.put(sbTaxableInterest, s.get(sbTotalInterest).Sub(s.get(sbExcludedInterest)))
	s.sum(sbOrdinaryDividends, rowKeys("5_%d_value", dividendRows)...)

	// Part III
	if in.ForeignAccount != nil {
		s.check("7a_y")
		s.check("7a_yes_y")
		s.text("7b", *in.ForeignAccount)
	} else {
		s.check("7a_n")
	}
	s.check("8_n")

	if s.get(sbTaxableInterest).IsZero() && s.get(sbOrdinaryDividends).IsZero() && in.ForeignAccount == nil {
		delete(r.Forms, ScheduleB)
	}
	return nil
}

// payerRows writes one row per payer with a non-zero amount and returns the
// number of rows written.
func (s *sheet) payerRows(part string, capacity int, label string, amount func(domain.InvestmentRecord) decimal.Decimal) int {
	row := 0
	for _, inv := range s.run.Input.Investments {
		v := amount(inv)
		if v.IsZero() {
			continue
		}
		row++
		s.text(fmt.Sprintf("%s_%d_payer", part, row), inv.Institution)
		s.put(fmt.Sprintf("%s_%d_value", part, row), v)
	}
	if row > capacity {
		s.run.Warnf("schedule B: %d %s payers exceed the %d rows on the form", row, label, capacity)
	}
	return row
}
