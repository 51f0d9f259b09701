package forms

import "github.com/shopspring/decimal"

const (
	saMedicalDeduction = "4"
	saTotalTaxes       = "7"
	saTotal            = "17"
)

// BuildScheduleA computes itemized deductions: medical expenses above the
// AGI floor and state and local taxes up to the cap.
func BuildScheduleA(r *Run) error {
	in := r.Input
	s := r.newForm(ScheduleA)
	s.identity("")

	s.put("1", in.MedicalExpenses)
	s.put("2", r.Forms.Fields(F1040).Decimal(l1040AGI))
	s.put("3", s.get("2").Mul(r.Config.MedicalFloorRate))
	s.put(saMedicalDeduction, decimal.Max(decimal.Zero, s.get("1").Sub(s.get("3"))))

	if in.DeductSalesTax {
		s.check("5_a_y")
		s.put("5_a", in.SalesTaxAmount)
	} else {
		s.put("5_a", in.StateAndLocalTax())
	}
	s.sum("5_d", "5_a", "5_b", "5_c")
	s.put("5_e", decimal.Min(s.get("5_d"), r.Status.SALTCap))
	s.sum(saTotalTaxes, "5_e", "6")

	// 10 interest, 14 gifts to charity, 15 casualty losses, 16 other
	s.sum(saTotal, saMedicalDeduction, saTotalTaxes, "10", "14", "15", "16")
	return nil
}
