package forms

import "github.com/shopspring/decimal"

const (
	sdShortTermNet  = "7"
	sdLongTermNet   = "15"
	sdNetGain       = "16"
	sdLossDeduction = "21"
)

// Form 4952 (investment interest election) is not supported, so line 20 is
// answered as if no election were made.
const electsForm4952 = false

// BuildScheduleD nets the Form 8949 totals and the prior-year carryover into
// short-term, long-term and combined results.
func BuildScheduleD(r *Run) error {
	s := r.newForm(ScheduleD)
	s.identity("")
	s.check("dispose_opportunity_n")

	for _, row := range []string{"1b", "2", "3", "8b", "9", "10"} {
		t := r.rowTotals[row]
		s.put(row+"_proceeds", t.Proceeds)
		s.put(row+"_cost", t.Cost)
		s.put(row+"_adjustments", t.Adjustment)
		s.put(row+"_gain", t.Gain)
	}

	// carryovers enter the sums as losses and are shown as positive amounts
	carryover := r.Worksheets[WCapitalLossCarryover]
	s.put("6", carryover.Line(8).Neg())
	s.put("14", carryover.Line(13).Neg())

	s.sum(sdShortTermNet, "1a_gain", "1b_gain", "2_gain", "3_gain", "4", "5", "6")
	s.sum(sdLongTermNet, "8a_gain", "8b_gain", "9_gain", "10_gain", "11", "12", "13", "14")
	s.sum(sdNetGain, sdShortTermNet, sdLongTermNet)

	s.negate("6")
	s.negate("14")

	net := s.get(sdNetGain)
	switch {
	case net.IsPositive():
		if !s.get(sdLongTermNet).IsPositive() {
			s.check("17_n")
			break
		}
		s.check("17_y")
		// 18: 28% rate gain worksheet, 19: unrecaptured section 1250 gain
		// worksheet; neither applies to brokerage trades.
		if s.get("18").IsZero() && s.get("19").IsZero() && !electsForm4952 {
			s.check("20_y")
		} else {
			s.check("20_n")
		}
		return nil
	case net.IsNegative():
		s.put(sdLossDeduction, decimal.Min(r.Status.CapitalLossLimit, net.Neg()))
	}

	if r.Input.QualifiedDividends().IsPositive() {
		s.check("22_y")
	} else {
		s.check("22_n")
	}
	return nil
}
