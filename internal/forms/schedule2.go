package forms

const (
	s2AMT                 = "1"
	s2ExcessPremiumCredit = "2"
	s2TotalAMT            = "3"
	s2OtherTaxes          = "10"
)

// BuildSchedule2 reports the alternative minimum tax from Form 6251.
func BuildSchedule2(r *Run) error {
	s := r.newForm(Schedule2)
	s.identity("")
	s.put(s2AMT, r.Forms.Fields(F6251).Decimal(f6251AMT))
	s.sum(s2TotalAMT, s2AMT, s2ExcessPremiumCredit)
	return nil
}
