package forms

import (
	"github.com/shopspring/decimal"

	"taxline/internal/domain"
)

const (
	f6251AMTI      = "4"
	f6251Exemption = "5"
	f6251AMT       = "11"
)

// BuildForm6251 computes the alternative minimum tax for filers the AMT test
// selected. When the qualified dividends worksheet ran, Part III taxes the
// preferential income at the capital gains rates and line 7 takes the
// smaller result.
func BuildForm6251(r *Run) error {
	amt := r.Status.AMT
	rates := r.Config.Rates
	f1040 := r.Forms.Fields(F1040)
	s := r.newForm(F6251)
	s.identity("")

	s.put("1", f1040.Decimal(l1040TaxableIncome))
	if r.Forms.Has(ScheduleA) {
		s.put("2_a", r.Forms.Fields(ScheduleA).Decimal(saTotalTaxes))
	} else {
		s.put("2_a", f1040.Decimal(l1040Deduction))
	}
	s.put("2_b", r.Forms.Fields(Schedule1).Decimal(s1TaxRefunds).Neg())
	s.sum(f6251AMTI, "1", "2_a", "2_b", "3")

	// Part II
	amti := s.get(f6251AMTI)
	reduction := decimal.Max(decimal.Zero, amti.Sub(amt.PhaseoutStart)).Mul(rates.AMTPhaseout)
	s.put(f6251Exemption, decimal.Max(decimal.Zero, amt.Exemption.Sub(reduction)))
	s.put("6", decimal.Max(decimal.Zero, amti.Sub(s.get(f6251Exemption))))

	if ws, ok := r.Worksheets[WQualifiedDividends]; ok {
		s.capitalGainsPart(ws)
		s.put("7", s.get("40"))
	} else {
		s.put("7", r.amtRateTax(s.get("6")))
	}
	// 8 is the AMT foreign tax credit
	s.put("9", s.get("7").Sub(s.get("8")))
	s.put("10", f1040.Decimal(l1040Tax).
		Add(r.Forms.Fields(Schedule2).Decimal(s2ExcessPremiumCredit)).
		Sub(r.Forms.Fields(Schedule3).Decimal(s3ForeignTaxCredit)))
	s.put(f6251AMT, decimal.Max(decimal.Zero, s.get("9").Sub(s.get("10"))))
	return nil
}

// amtRateTax is the 26% rate below the break and 28% less the adjustment above.
func (r *Run) amtRateTax(base decimal.Decimal) decimal.Decimal {
	amt := r.Status.AMT
	if base.LessThanOrEqual(amt.RateBreak) {
		return base.Mul(r.Config.Rates.AMTLow)
	}
	return base.Mul(r.Config.Rates.AMTHigh).Sub(amt.RateBreakAdjustment)
}

// capitalGainsPart fills Part III (lines 12-40) from the qualified dividends
// worksheet. Unrecaptured section 1250 gain (line 14) is always zero for
// brokerage trades, so lines 35-37 stay empty.
func (s *sheet) capitalGainsPart(ws domain.Worksheet) {
	r := s.run
	qd := r.Status.QualifiedDividends
	rates := r.Config.Rates

	s.put("12", s.get("6"))
	s.put("13", ws.Line(4))
	s.put("15", s.get("13").Add(s.get("14")))
	s.put("16", decimal.Min(s.get("12"), s.get("15")))
	s.put("17", s.get("12").Sub(s.get("16")))
	s.put("18", r.amtRateTax(s.get("17")))

	s.put("19", qd.ZeroRateMax)
	s.put("20", max0(ws.Line(5)))
	s.put("21", max0(s.get("19").Sub(s.get("20"))))
	s.put("22", decimal.Min(s.get("12"), s.get("13")))
	s.put("23", decimal.Min(s.get("21"), s.get("22"))) // taxed at 0%
	s.put("24", s.get("22").Sub(s.get("23")))
	s.put("25", qd.FifteenRateMax)
	s.put("26", s.get("21"))
	s.put("27", max0(ws.Line(5)))
	s.sum("28", "26", "27")
	s.put("29", max0(s.get("25").Sub(s.get("28"))))
	s.put("30", decimal.Min(s.get("24"), s.get("29")))
	s.put("31", s.get("30").Mul(rates.Fifteen))
	s.sum("32", "23", "30")
	if !s.get("32").Equal(s.get("12")) {
		s.put("33", s.get("22").Sub(s.get("32")))
		s.put("34", s.get("33").Mul(rates.Twenty))
	}
	s.sum("38", "18", "31", "34", "37")
	s.put("39", r.amtRateTax(s.get("12")))
	s.put("40", decimal.Min(s.get("38"), s.get("39")))
}
