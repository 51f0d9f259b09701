package forms

const (
	s1TaxRefunds       = "1"
	s1OtherIncome      = "8_amount"
	s1TotalIncome      = "9"
	s1HSADeduction     = "12"
	s1TotalAdjustments = "22"
)

// BuildSchedule1 carries the HSA deduction and any taxable HSA distribution
// from Form 8889 into additional income and adjustments.
func BuildSchedule1(r *Run) error {
	s := r.newForm(Schedule1)
	s.identity("")

	f8889 := r.Forms.Fields(F8889)
	if taxable := f8889.Decimal(f8889TaxableDistribution); taxable.IsPositive() {
		s.put(s1OtherIncome, taxable)
		s.text("8_type1", "HSA")
	}
	if deduction := f8889.Decimal(f8889Deduction); deduction.IsPositive() {
		s.put(s1HSADeduction, deduction)
	}

	// Part I, to Form 1040 line 8
	s.sum(s1TotalIncome, s1TaxRefunds, "2_a", "3", "4", "5", "6", "7", s1OtherIncome)
	// Part II, to Form 1040 line 10a
	s.sum(s1TotalAdjustments, "10", "11", s1HSADeduction, "13", "14", "15", "16", "17",
		"18_a", "19", "20", "21")
	return nil
}
