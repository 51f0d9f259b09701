package forms

// Form identifiers in FormState.
const (
	F1040     = "f1040"
	Schedule1 = "f1040s1"
	Schedule2 = "f1040s2"
	Schedule3 = "f1040s3"
	ScheduleA = "f1040sa"
	ScheduleB = "f1040sb"
	ScheduleD = "f1040sd"
	F6251     = "f6251"
	F8889     = "f8889"
	F8949     = "f8949"
)

// Worksheet identifiers in WorksheetState.
const (
	WCapitalLossCarryover = "capital_loss_carryover"
	WQualifiedDividends   = "qualified_dividends_and_capital_gains"
	WAMTTest              = "should_fill_6251"
)

// Worksheet lengths.
const (
	capitalLossCarryoverLines = 13
	qualifiedDividendsLines   = 25
	amtTestLines              = 13
)

// Form 1040 lines read by other builders.
const (
	l1040Wages              = "1"
	l1040TaxableInterest    = "2_b"
	l1040QualifiedDividends = "3_a"
	l1040OrdinaryDividends  = "3_b"
	l1040CapitalGain        = "7_value"
	l1040OtherIncome        = "8"
	l1040TotalIncome        = "9"
	l1040Adjustments        = "10_a"
	l1040TotalAdjustments   = "10_c"
	l1040AGI                = "11"
	l1040Deduction          = "12"
	l1040QBI                = "13"
	l1040TotalDeductions    = "14"
	l1040TaxableIncome      = "15"
	l1040Tax                = "16"
	l1040Schedule2Tax       = "17"
	l1040TaxBeforeCredits   = "18"
	l1040ChildCredit        = "19"
	l1040Schedule3Credits   = "20"
	l1040TotalCredits       = "21"
	l1040TaxAfterCredits    = "22"
	l1040OtherTaxes         = "23"
	l1040TotalTax           = "24"
	l1040WithholdingW2      = "25_a"
	l1040Withholding1099    = "25_b"
	l1040WithholdingOther   = "25_c"
	l1040Withholding        = "25_d"
	l1040EstimatedPayments  = "26"
	l1040RefundableCredits  = "32"
	l1040TotalPayments      = "33"
	l1040Overpaid           = "34"
	l1040Refund             = "35a_value"
	l1040RoutingNumber      = "35b"
	l1040Checking           = "35c_checking"
	l1040Savings            = "35c_savings"
	l1040AccountNumber      = "35d"
	l1040AppliedToEstimate  = "36"
	l1040AmountOwed         = "37"
	l1040EstimatedPenalty   = "38"
)
