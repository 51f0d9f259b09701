package forms

import (
	"github.com/shopspring/decimal"

	"taxline/internal/domain"
)

var zero = decimal.Zero

func max0(v decimal.Decimal) decimal.Decimal { return decimal.Max(zero, v) }

// BuildCapitalLossCarryover computes the loss carried in from the prior
// year's Schedule D. Without a prior return, or when the prior return had no
// Schedule D, every line stays zero. Lines 9-13 only apply when the prior
// long-term result was a loss.
func BuildCapitalLossCarryover(r *Run) error {
	w := domain.NewWorksheet(capitalLossCarryoverLines)
	r.Worksheets[WCapitalLossCarryover] = w
	if r.Prior == nil || !r.Prior.Forms.Has(ScheduleD) {
		return nil
	}
	fields := r.Config.Carryover
	prior1040 := r.Prior.Forms.Fields(F1040)
	priorSD := r.Prior.Forms.Fields(ScheduleD)

	w[1] = prior1040.Decimal(fields.TaxableIncome)
	w[2] = max0(priorSD.Decimal(fields.LossDeduction))
	w[3] = max0(w[1].Add(w[2]))
	w[4] = decimal.Min(w[2], w[3])
	w[5] = max0(priorSD.Decimal(fields.ShortTermNet).Neg())
	w[6] = max0(priorSD.Decimal(fields.LongTermNet))
	w[7] = w[4].Add(w[6])
	w[8] = max0(w[5].Sub(w[7]))
	if !w[6].IsZero() {
		return nil
	}
	w[9] = max0(priorSD.Decimal(fields.LongTermNet).Neg())
	w[10] = max0(priorSD.Decimal(fields.ShortTermNet))
	w[11] = max0(w[4].Sub(w[5]))
	w[12] = w[10].Add(w[11])
	w[13] = max0(w[9].Sub(w[12]))
	return nil
}

// BuildQualifiedDividendsWorksheet computes the tax when qualified dividends
// and net capital gain are taxed at the 0/15/20% rates. Products are kept
// unrounded; Form 1040 rounds line 25 when it copies it.
func BuildQualifiedDividendsWorksheet(r *Run) error {
	f1040 := r.Forms.Fields(F1040)
	qd := r.Status.QualifiedDividends
	rates := r.Config.Rates
	w := domain.NewWorksheet(qualifiedDividendsLines)
	r.Worksheets[WQualifiedDividends] = w

	w[1] = f1040.Decimal(l1040TaxableIncome)
	w[2] = f1040.Decimal(l1040QualifiedDividends)
	if r.Forms.Has(ScheduleD) {
		sd := r.Forms.Fields(ScheduleD)
		w[3] = max0(decimal.Min(sd.Decimal(sdLongTermNet), sd.Decimal(sdNetGain)))
	} else {
		// capital gain distributions reported directly on line 7
		w[3] = f1040.Decimal(l1040CapitalGain)
	}
	w[4] = w[2].Add(w[3])
	w[5] = max0(w[1].Sub(w[4]))
	w[6] = qd.ZeroRateMax
	w[7] = decimal.Min(w[1], w[6])
	w[8] = decimal.Min(w[5], w[7])
	w[9] = w[7].Sub(w[8]) // taxed at 0%
	w[10] = decimal.Min(w[1], w[4])
	w[11] = w[9]
	w[12] = w[10].Sub(w[11])
	w[13] = qd.FifteenRateMax
	w[14] = decimal.Min(w[1], w[13])
	w[15] = w[5].Add(w[9])
	w[16] = max0(w[14].Sub(w[15]))
	w[17] = decimal.Min(w[12], w[16])
	w[18] = w[17].Mul(rates.Fifteen)
	w[19] = w[9].Add(w[17])
	w[20] = w[10].Sub(w[19])
	w[21] = w[20].Mul(rates.Twenty)
	w[22] = r.Status.Brackets.MustTax(w[5])
	w[23] = w[18].Add(w[21]).Add(w[22])
	w[24] = r.Status.Brackets.MustTax(w[1])
	w[25] = decimal.Min(w[23], w[24])
	return nil
}

// AMTTest is the outcome of the worksheet that decides whether Form 6251
// must be filled. When the worksheet stops early the remaining lines are zero.
type AMTTest struct {
	Fill  bool
	Lines domain.Worksheet
}

// TestAMT runs the "should you fill in Form 6251" worksheet.
func TestAMT(r *Run) AMTTest {
	f1040 := r.Forms.Fields(F1040)
	amt := r.Status.AMT
	w := domain.NewWorksheet(amtTestLines)

	w[1] = f1040.Decimal(l1040TaxableIncome)
	if r.Forms.Has(ScheduleA) {
		w[2] = r.Forms.Fields(ScheduleA).Decimal(saTotalTaxes)
	} else {
		w[2] = f1040.Decimal(l1040Deduction)
	}
	w[3] = w[1].Add(w[2])
	w[4] = r.Forms.Fields(Schedule1).Decimal(s1TaxRefunds)
	w[5] = w[3].Sub(w[4])
	w[6] = amt.Exemption
	if w[5].LessThanOrEqual(w[6]) {
		return AMTTest{Fill: false, Lines: w}
	}
	w[7] = w[5].Sub(w[6])
	w[8] = amt.PhaseoutStart
	if w[5].LessThanOrEqual(w[8]) {
		w[9] = zero
		w[11] = w[7]
	} else {
		w[9] = w[5].Sub(w[8])
		w[10] = decimal.Min(w[9].Mul(r.Config.Rates.AMTPhaseout), w[6])
		w[11] = w[7].Add(w[10])
	}
	if w[11].GreaterThan(amt.RateBreak) {
		return AMTTest{Fill: true, Lines: w}
	}
	w[12] = w[11].Mul(r.Config.Rates.AMTLow)
	w[13] = f1040.Decimal(l1040Tax).
		Add(r.Forms.Fields(Schedule2).Decimal(s2ExcessPremiumCredit)).
		Sub(r.Forms.Fields(Schedule3).Decimal(s3ForeignTaxCredit))
	return AMTTest{Fill: w[13].LessThan(w[12]), Lines: w}
}

// BuildAMTTest records the AMT test worksheet and its decision on the run.
func BuildAMTTest(r *Run) error {
	res := TestAMT(r)
	r.Worksheets[WAMTTest] = res.Lines
	r.amt = &res
	return nil
}
