package forms

const (
	s3ForeignTaxCredit     = "1"
	s3NonrefundableCredits = "7"
	s3OtherPayments        = "13"
)

// BuildSchedule3 claims the foreign tax paid on 1099s as a credit without
// Form 1116. Above the direct election limit Form 1116 would be required; it
// is not supported, so the credit is still claimed and a warning recorded.
func BuildSchedule3(r *Run) error {
	s := r.newForm(Schedule3)
	s.identity("")

	foreign := r.Input.ForeignTaxPaid()
	if foreign.GreaterThan(r.Status.ForeignTaxDirectLimit) {
		r.Warnf("schedule 3: foreign tax %s exceeds the %s limit for claiming without Form 1116",
			foreign.StringFixed(2), r.Status.ForeignTaxDirectLimit.StringFixed(0))
	}
	s.put(s3ForeignTaxCredit, foreign)
	s.sum(s3NonrefundableCredits, s3ForeignTaxCredit, "2", "3", "4", "5", "6")
	s.sum(s3OtherPayments, "8", "9", "10", "11", "12")
	return nil
}
