package forms

import "github.com/shopspring/decimal"

// The 1040 is built in stages; the dependent schedules run between them.

// Build1040Identity writes the header: filing status, names, address and
// the virtual currency question.
func Build1040Identity(r *Run) error {
	in := r.Input
	s := r.newForm(F1040)
	if in.Single {
		s.check("single")
	} else {
		s.check("married_filing_separately")
	}
	s.text("self_first_name_initial", in.FirstNameAndInitial())
	s.text("self_last_name", in.LastName)
	s.text("self_ssn", in.SSN)
	s.text("address", in.Street)
	s.text("apt", in.Apt)
	s.text("city", in.City)
	s.text("state", in.State)
	s.text("zip", in.Zip)
	s.text("self_occupation", in.Occupation)
	s.text("phone", in.Phone)
	s.text("email", in.Email)
	if in.PresidentialElection {
		s.check("presidential_election_self")
	}
	if in.VirtualCurrency {
		s.check("virtual_currency_y")
	} else {
		s.check("virtual_currency_n")
	}
	if in.Dependents {
		r.Warnf("dependents are not supported; dependent credits are not computed")
	}
	s.put(l1040Wages, in.TotalWages())
	return nil
}

// Build1040InvestmentIncome copies Schedule B totals and qualified dividends.
func Build1040InvestmentIncome(r *Run) error {
	s := r.form(F1040)
	sb := r.Forms.Fields(ScheduleB)
	s.put(l1040TaxableInterest, sb.Decimal(sbTaxableInterest))
	s.put(l1040OrdinaryDividends, sb.Decimal(sbOrdinaryDividends))
	s.put(l1040QualifiedDividends, r.Input.QualifiedDividends())
	return nil
}

// Build1040CapitalGain writes line 7 from Schedule D, or ticks the box for
// filers who do not need it.
func Build1040CapitalGain(r *Run) error {
	s := r.form(F1040)
	if !r.Forms.Has(ScheduleD) {
		s.check("7_n")
		return nil
	}
	sd := r.Forms.Fields(ScheduleD)
	if sd.Has(sdLossDeduction) {
		s.put(l1040CapitalGain, sd.Decimal(sdLossDeduction).Neg())
	} else {
		s.put(l1040CapitalGain, sd.Decimal(sdNetGain))
	}
	return nil
}

// Build1040Income writes total income, adjustments and adjusted gross income.
func Build1040Income(r *Run) error {
	s := r.form(F1040)
	s1 := r.Forms.Fields(Schedule1)
	s.put(l1040OtherIncome, s1.Decimal(s1TotalIncome))
	s.put(l1040Adjustments, s1.Decimal(s1TotalAdjustments))
	s.sum(l1040TotalIncome, l1040Wages, l1040TaxableInterest, l1040OrdinaryDividends,
		"4_b", "5_b", "6_b", l1040CapitalGain, l1040OtherIncome)
	// 10_b is the charitable contribution deduction for non-itemizers
	s.sum(l1040TotalAdjustments, l1040Adjustments, "10_b")
	s.put(l1040AGI, s.get(l1040TotalIncome).Sub(s.get(l1040TotalAdjustments)))
	return nil
}

// Build1040Deduction takes the larger of the standard deduction and
// Schedule A, and drops Schedule A when it is not used.
func Build1040Deduction(r *Run) error {
	s := r.form(F1040)
	itemized := r.Forms.Fields(ScheduleA).Decimal(saTotal)
	if itemized.GreaterThan(r.Status.StandardDeduction) {
		s.put(l1040Deduction, itemized)
	} else {
		s.put(l1040Deduction, r.Status.StandardDeduction)
		delete(r.Forms, ScheduleA)
	}
	s.put(l1040QBI, decimal.Zero)
	s.sum(l1040TotalDeductions, l1040Deduction, l1040QBI)
	s.put(l1040TaxableIncome, decimal.Max(decimal.Zero, s.get(l1040AGI).Sub(s.get(l1040TotalDeductions))))
	return nil
}

// Build1040Tax writes line 16 from the qualified dividends worksheet when it
// ran, otherwise from the bracket table.
func Build1040Tax(r *Run) error {
	s := r.form(F1040)
	if ws, ok := r.Worksheets[WQualifiedDividends]; ok {
		s.put(l1040Tax, ws.Line(25))
		return nil
	}
	tax, err := r.Status.Brackets.Tax(s.get(l1040TaxableIncome))
	if err != nil {
		return err
	}
	s.put(l1040Tax, tax)
	return nil
}

// Build1040Credits nets the tax against Schedule 2 taxes and Schedule 3 credits.
func Build1040Credits(r *Run) error {
	s := r.form(F1040)
	s2 := r.Forms.Fields(Schedule2)
	s3 := r.Forms.Fields(Schedule3)
	s.put(l1040Schedule2Tax, s2.Decimal(s2TotalAMT))
	s.sum(l1040TaxBeforeCredits, l1040Tax, l1040Schedule2Tax)
	s.put(l1040ChildCredit, decimal.Zero)
	s.put(l1040Schedule3Credits, s3.Decimal(s3NonrefundableCredits))
	s.sum(l1040TotalCredits, l1040ChildCredit, l1040Schedule3Credits)
	s.put(l1040TaxAfterCredits, decimal.Max(decimal.Zero, s.get(l1040TaxBeforeCredits).Sub(s.get(l1040TotalCredits))))
	s.put(l1040OtherTaxes, s2.Decimal(s2OtherTaxes))
	s.sum(l1040TotalTax, l1040TaxAfterCredits, l1040OtherTaxes)
	return nil
}

// Build1040Payments totals payments and writes either the refund with
// direct deposit details or the amount owed.
func Build1040Payments(r *Run) error {
	in := r.Input
	s := r.form(F1040)
	s3 := r.Forms.Fields(Schedule3)

	s.put(l1040WithholdingW2, in.FederalWithholding())
	s.put(l1040Withholding1099, decimal.Zero)
	s.put(l1040WithholdingOther, decimal.Zero)
	s.sum(l1040Withholding, l1040WithholdingW2, l1040Withholding1099, l1040WithholdingOther)
	s.put(l1040EstimatedPayments, decimal.Zero)

	// 27 earned income credit, 28 additional child tax credit,
	// 29 American opportunity credit, 30 recovery rebate credit
	s.put("31", s3.Decimal(s3OtherPayments))
	s.sum(l1040RefundableCredits, "27", "28", "29", "30", "31")
	s.sum(l1040TotalPayments, l1040Withholding, l1040EstimatedPayments, l1040RefundableCredits)

	overpaid := s.get(l1040TotalPayments).Sub(s.get(l1040TotalTax))
	if overpaid.IsPositive() {
		s.put(l1040Overpaid, overpaid)
		s.put(l1040Refund, overpaid)
		s.text(l1040RoutingNumber, in.RoutingNumber)
		if in.Checking {
			s.check(l1040Checking)
		} else {
			s.check(l1040Savings)
		}
		s.text(l1040AccountNumber, in.AccountNumber)
		s.text(l1040AppliedToEstimate, "-0-")
		return nil
	}
	s.put(l1040AmountOwed, overpaid.Neg())
	s.put(l1040EstimatedPenalty, decimal.Zero)
	return nil
}
