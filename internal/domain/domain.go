package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

type Term string

const (
	TermShort Term = "SHORT"
	TermLong  Term = "LONG"
)

type FilingStatus string

const (
	StatusSingle          FilingStatus = "single"
	StatusMarriedSeparate FilingStatus = "married_separate"
)

const (
	CoverageSelf   = "self"
	CoverageFamily = "family"
)

// CoverageCodes lists the Form 8949 check-box codes in page order.
var CoverageCodes = []string{"A", "B", "C", "D", "E", "F"}

type Address struct {
	Street string `json:"address_street_and_number"`
	Apt    string `json:"address_apt,omitempty"`
	City   string `json:"address_city"`
	State  string `json:"address_state"`
	Zip    string `json:"address_zip"`
}

type Identity struct {
	FirstName  string `json:"first_name"`
	Initial    string `json:"initial,omitempty"`
	LastName   string `json:"last_name"`
	SSN        string `json:"ssn"`
	Occupation string `json:"occupation,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
	Address
}

// FirstNameAndInitial is the 1040 "first name and middle initial" box.
func (id Identity) FirstNameAndInitial() string {
	if id.Initial == "" {
		return id.FirstName
	}
	return id.FirstName + " " + id.Initial
}

// FullName is the name printed on schedules: first name, initial, last name.
func (id Identity) FullName() string {
	return strings.TrimSpace(id.FirstNameAndInitial() + " " + id.LastName)
}

type WageRecord struct {
	Employer            string          `json:"employer,omitempty"`
	Wages               decimal.Decimal `json:"wages"`
	FederalTax          decimal.Decimal `json:"federal_tax"`
	StateTax            decimal.Decimal `json:"state_tax"`
	LocalTax            decimal.Decimal `json:"local_tax"`
	SocialSecurityWages decimal.Decimal `json:"social_security_wages"`
	SocialSecurityTax   decimal.Decimal `json:"social_security_tax"`
	MedicareWages       decimal.Decimal `json:"medicare_wages"`
	MedicareTax         decimal.Decimal `json:"medicare_tax"`
}

type TradeRecord struct {
	Description  string           `json:"description"`
	Quantity     decimal.Decimal  `json:"quantity"`
	DateAcquired string           `json:"date_acquired"`
	DateSold     string           `json:"date_sold"`
	Proceeds     decimal.Decimal  `json:"proceeds"`
	Cost         decimal.Decimal  `json:"cost"`
	Term         Term             `json:"term"`
	WashSale     *decimal.Decimal `json:"wash_sale_adjustment,omitempty"`
	WashSaleCode string           `json:"wash_sale_code,omitempty"`
	FormCode     string           `json:"form_code,omitempty"`
}

// Adjustment is the wash-sale adjustment, zero when none was reported.
func (t TradeRecord) Adjustment() decimal.Decimal {
	if t.WashSale == nil {
		return decimal.Zero
	}
	return *t.WashSale
}

// Gain is proceeds minus cost plus the wash-sale adjustment.
func (t TradeRecord) Gain() decimal.Decimal {
	return t.Proceeds.Sub(t.Cost).Add(t.Adjustment())
}

// CoverageCode returns the Form 8949 box for the trade. Trades without a code
// are treated as covered: box A when short term, box D when long term.
func (t TradeRecord) CoverageCode() string {
	if code := strings.ToUpper(strings.TrimSpace(t.FormCode)); code != "" {
		return code
	}
	if t.Term == TermLong {
		return "D"
	}
	return "A"
}

type InvestmentRecord struct {
	Institution        string          `json:"institution"`
	Interest           decimal.Decimal `json:"interest"`
	OrdinaryDividends  decimal.Decimal `json:"ordinary_dividends"`
	QualifiedDividends decimal.Decimal `json:"qualified_dividends"`
	ForeignTax         decimal.Decimal `json:"foreign_tax"`
	Trades             []TradeRecord   `json:"trades,omitempty"`
}

// TaxpayerInput is the normalized data for one filing run. It is never
// mutated by the engine.
type TaxpayerInput struct {
	Identity

	Single               bool `json:"single"`
	Dependents           bool `json:"dependents"`
	Resident             bool `json:"resident"`
	ScheduleD            bool `json:"schedule_d"`
	PresidentialElection bool `json:"presidential_election_self"`
	VirtualCurrency      bool `json:"virtual_currency"`

	HealthSavingsAccount     bool            `json:"health_savings_account"`
	HSACoverage              string          `json:"hsa_coverage,omitempty"`
	HSAContributions         decimal.Decimal `json:"hsa_contributions"`
	HSAEmployerContributions decimal.Decimal `json:"hsa_employer_contributions"`
	HSADistributions         decimal.Decimal `json:"hsa_distributions"`

	MedicalExpenses decimal.Decimal `json:"medical_expenses"`
	DeductSalesTax  bool            `json:"deduct_sales_tax"`
	SalesTaxAmount  decimal.Decimal `json:"deduct_sales_tax_amount"`

	Checking       bool    `json:"checking"`
	RoutingNumber  string  `json:"routing_number,omitempty"`
	AccountNumber  string  `json:"account_number,omitempty"`
	ForeignAccount *string `json:"foreign_account,omitempty"`

	Wages       []WageRecord       `json:"w2"`
	Investments []InvestmentRecord `json:"1099,omitempty"`
}

func (in TaxpayerInput) FilingStatus() FilingStatus {
	if in.Single {
		return StatusSingle
	}
	return StatusMarriedSeparate
}

func (in TaxpayerInput) HasInvestments() bool { return len(in.Investments) > 0 }

func (in TaxpayerInput) HasTrades() bool {
	for _, inv := range in.Investments {
		if len(inv.Trades) > 0 {
			return true
		}
	}
	return false
}

// Trades returns every trade in issuer order.
func (in TaxpayerInput) Trades() []TradeRecord {
	var out []TradeRecord
	for _, inv := range in.Investments {
		out = append(out, inv.Trades...)
	}
	return out
}

func (in TaxpayerInput) sumWages(pick func(WageRecord) decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, w := range in.Wages {
		total = total.Add(pick(w))
	}
	return total
}

func (in TaxpayerInput) sumInvestments(pick func(InvestmentRecord) decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, inv := range in.Investments {
		total = total.Add(pick(inv))
	}
	return total
}

func (in TaxpayerInput) TotalWages() decimal.Decimal {
	return in.sumWages(func(w WageRecord) decimal.Decimal { return w.Wages })
}

func (in TaxpayerInput) FederalWithholding() decimal.Decimal {
	return in.sumWages(func(w WageRecord) decimal.Decimal { return w.FederalTax })
}

// StateAndLocalTax is the withheld state plus local income tax across all W-2s.
func (in TaxpayerInput) StateAndLocalTax() decimal.Decimal {
	return in.sumWages(func(w WageRecord) decimal.Decimal { return w.StateTax.Add(w.LocalTax) })
}

func (in TaxpayerInput) QualifiedDividends() decimal.Decimal {
	return in.sumInvestments(func(i InvestmentRecord) decimal.Decimal { return i.QualifiedDividends })
}

func (in TaxpayerInput) ForeignTaxPaid() decimal.Decimal {
	return in.sumInvestments(func(i InvestmentRecord) decimal.Decimal { return i.ForeignTax })
}
