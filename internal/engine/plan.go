package engine

import (
	"errors"
	"fmt"
	"strings"

	"taxline/internal/forms"
)

var ErrInvalidPlan = errors.New("invalid plan")

// PlanError reports why a plan cannot be run.
type PlanError struct {
	Step string
	Msg  string
}

func (e *PlanError) Error() string {
	if e == nil {
		return ""
	}
	if e.Step == "" {
		return fmt.Sprintf("%s: %s", ErrInvalidPlan.Error(), e.Msg)
	}
	return fmt.Sprintf("%s: step %q: %s", ErrInvalidPlan.Error(), e.Step, e.Msg)
}

func (e *PlanError) Unwrap() error { return ErrInvalidPlan }

func invalidf(step, format string, args ...any) error {
	return &PlanError{Step: step, Msg: fmt.Sprintf(format, args...)}
}

// Builder fills one form or worksheet slot of a run.
type Builder func(*forms.Run) error

// Condition decides at run time whether a step applies. The zero Condition
// always holds.
type Condition struct {
	Name  string
	Holds func(*forms.Run) bool
}

func (c Condition) holds(r *forms.Run) bool {
	return c.Holds == nil || c.Holds(r)
}

func (c Condition) String() string {
	if c.Name == "" {
		return "always"
	}
	return c.Name
}

// Step is one builder of the plan with the steps it reads from.
type Step struct {
	Name  string
	After []string
	When  Condition
	Build Builder
}

// Plan is an ordered list of steps. The order is the execution order and must
// place every step after the steps it reads from.
type Plan []Step

// Validate checks that every step is named once, has a builder and only
// depends on steps listed before it.
func (p Plan) Validate() error {
	if len(p) == 0 {
		return invalidf("", "no steps")
	}
	seen := make(map[string]bool, len(p))
	names := make(map[string]bool, len(p))
	for _, s := range p {
		names[s.Name] = true
	}
	for i, s := range p {
		if strings.TrimSpace(s.Name) == "" {
			return invalidf("", "step %d has no name", i)
		}
		if seen[s.Name] {
			return invalidf(s.Name, "duplicate step")
		}
		if s.Build == nil {
			return invalidf(s.Name, "no builder")
		}
		for _, dep := range s.After {
			switch {
			case dep == s.Name:
				return invalidf(s.Name, "depends on itself")
			case !names[dep]:
				return invalidf(s.Name, "unknown dependency %q", dep)
			case !seen[dep]:
				return invalidf(s.Name, "dependency %q runs later", dep)
			}
		}
		seen[s.Name] = true
	}
	return nil
}

// Decision is one row of the plan as shown to users.
type Decision struct {
	Step      string   `json:"step"`
	Condition string   `json:"condition"`
	After     []string `json:"after,omitempty"`
}

// DecisionTable lists the steps in order with their conditions.
func (p Plan) DecisionTable() []Decision {
	out := make([]Decision, 0, len(p))
	for _, s := range p {
		out = append(out, Decision{Step: s.Name, Condition: s.When.String(), After: append([]string(nil), s.After...)})
	}
	return out
}

// Conditions used by DefaultPlan.
var (
	HasInvestments = Condition{"has investment records", func(r *forms.Run) bool {
		return r.Input.HasInvestments()
	}}
	HasTrades = Condition{"has trades", func(r *forms.Run) bool {
		return r.Input.HasTrades()
	}}
	FilesScheduleD = Condition{"files schedule D", func(r *forms.Run) bool {
		return forms.FilesScheduleD(r.Input)
	}}
	HasHSA = Condition{"has health savings account", func(r *forms.Run) bool {
		return r.Input.HealthSavingsAccount
	}}
	NeedsSchedule1 = Condition{"has HSA deduction or taxable distribution", func(r *forms.Run) bool {
		return forms.NeedsSchedule1(r)
	}}
	UsesQualifiedDividendsWorksheet = Condition{"has qualified dividends or net long-term gain", func(r *forms.Run) bool {
		return forms.UsesQualifiedDividendsWorksheet(r)
	}}
	HasForeignTax = Condition{"paid foreign tax", func(r *forms.Run) bool {
		return r.Input.ForeignTaxPaid().IsPositive()
	}}
	AMTTestFills = Condition{"AMT test requires form 6251", func(r *forms.Run) bool {
		return r.AMT() != nil && r.AMT().Fill
	}}
	OwesAMT = Condition{"form 6251 shows AMT", func(r *forms.Run) bool {
		return forms.OwesAMT(r)
	}}
)

// Step names of DefaultPlan.
const (
	StepCarryover         = "capital_loss_carryover"
	Step1040Identity      = "f1040_identity"
	StepScheduleB         = "f1040sb"
	StepForm8949          = "f8949"
	StepScheduleD         = "f1040sd"
	Step1040Investments   = "f1040_investment_income"
	Step1040CapitalGain   = "f1040_capital_gain"
	StepForm8889          = "f8889"
	StepSchedule1         = "f1040s1"
	Step1040Income        = "f1040_income"
	StepScheduleA         = "f1040sa"
	Step1040Deduction     = "f1040_deduction"
	StepQualifiedDividend = "qualified_dividends_worksheet"
	Step1040Tax           = "f1040_tax"
	StepSchedule3         = "f1040s3"
	StepAMTTest           = "amt_test"
	StepForm6251          = "f6251"
	StepSchedule2         = "f1040s2"
	Step1040Credits       = "f1040_credits"
	Step1040Payments      = "f1040_payments"
)

// DefaultPlan is the federal return for one resident filer.
func DefaultPlan() Plan {
	return Plan{
		{Name: StepCarryover, When: FilesScheduleD, Build: forms.BuildCapitalLossCarryover},
		{Name: Step1040Identity, Build: forms.Build1040Identity},
		{Name: StepScheduleB, When: HasInvestments, Build: forms.BuildScheduleB},
		{Name: StepForm8949, When: HasTrades, Build: forms.BuildForm8949},
		{Name: StepScheduleD, After: []string{StepCarryover, StepForm8949}, When: FilesScheduleD, Build: forms.BuildScheduleD},
		{Name: Step1040Investments, After: []string{Step1040Identity, StepScheduleB}, Build: forms.Build1040InvestmentIncome},
		{Name: Step1040CapitalGain, After: []string{Step1040Identity, StepScheduleD}, Build: forms.Build1040CapitalGain},
		{Name: StepForm8889, When: HasHSA, Build: forms.BuildForm8889},
		{Name: StepSchedule1, After: []string{StepForm8889}, When: NeedsSchedule1, Build: forms.BuildSchedule1},
		{Name: Step1040Income, After: []string{Step1040Investments, Step1040CapitalGain, StepSchedule1}, Build: forms.Build1040Income},
		{Name: StepScheduleA, After: []string{Step1040Income}, Build: forms.BuildScheduleA},
		{Name: Step1040Deduction, After: []string{StepScheduleA}, Build: forms.Build1040Deduction},
		{Name: StepQualifiedDividend, After: []string{Step1040Deduction, StepScheduleD}, When: UsesQualifiedDividendsWorksheet, Build: forms.BuildQualifiedDividendsWorksheet},
		{Name: Step1040Tax, After: []string{StepQualifiedDividend}, Build: forms.Build1040Tax},
		{Name: StepSchedule3, After: []string{Step1040Identity}, When: HasForeignTax, Build: forms.BuildSchedule3},
		{Name: StepAMTTest, After: []string{Step1040Tax, StepSchedule1, StepSchedule3}, Build: forms.BuildAMTTest},
		{Name: StepForm6251, After: []string{StepAMTTest}, When: AMTTestFills, Build: forms.BuildForm6251},
		{Name: StepSchedule2, After: []string{StepForm6251}, When: OwesAMT, Build: forms.BuildSchedule2},
		{Name: Step1040Credits, After: []string{Step1040Tax, StepSchedule2, StepSchedule3}, Build: forms.Build1040Credits},
		{Name: Step1040Payments, After: []string{Step1040Credits}, Build: forms.Build1040Payments},
	}
}
