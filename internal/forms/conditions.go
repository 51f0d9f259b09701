package forms

import "taxline/internal/domain"

// FilesScheduleD reports whether the return needs Schedule D.
func FilesScheduleD(in domain.TaxpayerInput) bool {
	return in.ScheduleD || in.HasTrades()
}

// NeedsSchedule1 reports whether Form 8889 produced a deduction or taxable
// distribution to carry to Schedule 1.
func NeedsSchedule1(r *Run) bool {
	f := r.Forms.Fields(F8889)
	return f.Decimal(f8889Deduction).IsPositive() || f.Decimal(f8889TaxableDistribution).IsPositive()
}

// UsesQualifiedDividendsWorksheet reports whether line 16 is computed with
// the preferential rates: qualified dividends, or a net gain on Schedule D
// with a long-term gain.
func UsesQualifiedDividendsWorksheet(r *Run) bool {
	if r.Input.QualifiedDividends().IsPositive() {
		return true
	}
	sd := r.Forms.Fields(ScheduleD)
	return sd.Decimal(sdLongTermNet).IsPositive() && sd.Decimal(sdNetGain).IsPositive()
}

// OwesAMT reports whether Form 6251 shows a positive alternative minimum tax.
func OwesAMT(r *Run) bool {
	return r.Forms.Fields(F6251).Decimal(f6251AMT).IsPositive()
}
