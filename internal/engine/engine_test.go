package engine_test

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxline/internal/config"
	"taxline/internal/domain"
	"taxline/internal/engine"
	"taxline/internal/forms"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	cfg, err := config.ForYear(2020)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return testEnv{Engine: engine.New(cfg, log.New(io.Discard, "", 0)), Ctx: context.Background()}
}

func wageEarner() domain.TaxpayerInput {
	return domain.TaxpayerInput{
		Identity: domain.Identity{
			FirstName: "Jane",
			LastName:  "Doe",
			SSN:       "123-45-6789",
			Address:   domain.Address{Street: "1 Main St", City: "Springfield", State: "IL", Zip: "62701"},
		},
		Single:        true,
		Resident:      true,
		Checking:      true,
		RoutingNumber: "111000025",
		AccountNumber: "000123456",
		Wages: []domain.WageRecord{{
			Employer:   "Acme",
			Wages:      d("50000"),
			FederalTax: d("5000"),
			StateTax:   d("2000"),
		}},
	}
}

// returnsEqual compares returns field by field, decimals by value.
var returnsEqual = []cmp.Option{
	cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) }),
	cmp.AllowUnexported(domain.Form{}),
}

func ran(trace []engine.StepTrace) map[string]bool {
	out := map[string]bool{}
	for _, s := range trace {
		out[s.Step] = s.Ran
	}
	return out
}

func TestComputeWageEarner(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.Compute(env.Ctx, engine.Request{Input: wageEarner()})
	require.NoError(t, err)

	ret := res.Return
	assert.Equal(t, 2020, ret.TaxYear)
	assert.Equal(t, []string{forms.F1040}, ret.Forms.Keys())
	f := ret.Forms.Fields(forms.F1040)
	assert.True(t, f.Bool("single"))
	assert.True(t, f.Bool("virtual_currency_n"))
	assert.True(t, f.Bool("7_n"))
	assert.True(t, f.Decimal("11").Equal(d("50000")))
	assert.True(t, f.Decimal("12").Equal(d("12400")))
	assert.True(t, f.Decimal("15").Equal(d("37600")))
	assert.True(t, f.Decimal("16").Equal(d("4314.5")))
	assert.True(t, f.Decimal("24").Equal(d("4314.5")))
	assert.True(t, f.Decimal("34").Equal(d("685.5")))
	assert.True(t, f.Bool("35c_checking"))
	assert.False(t, f.Has("37"))
	assert.False(t, f.Has("2_b"))

	steps := ran(res.Trace)
	assert.Len(t, res.Trace, len(engine.DefaultPlan()))
	assert.False(t, steps[engine.StepScheduleB])
	assert.False(t, steps[engine.StepForm8949])
	assert.False(t, steps[engine.StepScheduleD])
	assert.True(t, steps[engine.StepAMTTest])
	assert.False(t, steps[engine.StepForm6251])
}

func TestComputeCapitalLoss(t *testing.T) {
	env := newTestEnv(t)
	in := wageEarner()
	in.Investments = []domain.InvestmentRecord{{
		Institution: "Broker",
		Trades: []domain.TradeRecord{{
			Description: "100 XYZ", DateAcquired: "01/02/2020", DateSold: "03/04/2020",
			Proceeds: d("5000"), Cost: d("15000"), Term: domain.TermShort,
		}},
	}}
	res, err := env.Engine.Compute(env.Ctx, engine.Request{Input: in})
	require.NoError(t, err)

	ret := res.Return
	assert.True(t, ret.Forms.Has(forms.F8949))
	assert.True(t, ret.Forms.Has(forms.ScheduleD))
	assert.False(t, ret.Forms.Has(forms.ScheduleB))
	assert.True(t, ret.Forms.Fields(forms.ScheduleD).Decimal("21").Equal(d("3000")))
	f := ret.Forms.Fields(forms.F1040)
	assert.True(t, f.Decimal("7_value").Equal(d("-3000")))
	assert.True(t, f.Decimal("9").Equal(d("47000")))
	assert.Contains(t, ret.Worksheets, forms.WCapitalLossCarryover)
	assert.NotContains(t, ret.Worksheets, forms.WQualifiedDividends)
}

func TestComputeHighIncomeRunsForm6251(t *testing.T) {
	env := newTestEnv(t)
	in := wageEarner()
	in.Wages[0].Wages = d("300000")
	in.Wages[0].FederalTax = d("80000")
	res, err := env.Engine.Compute(env.Ctx, engine.Request{Input: in})
	require.NoError(t, err)

	steps := ran(res.Trace)
	assert.True(t, steps[engine.StepForm6251])
	assert.False(t, steps[engine.StepSchedule2])
	f6251 := res.Return.Forms.Fields(forms.F6251)
	assert.True(t, f6251.Decimal("7").Equal(d("59630")))
	f := res.Return.Forms.Fields(forms.F1040)
	assert.True(t, f.Decimal("16").Equal(d("75455")))
	assert.True(t, f.Decimal("34").Equal(d("4545")))
}

func TestComputeDividendIncomeUsesCapitalGainsRatesUnderAMT(t *testing.T) {
	env := newTestEnv(t)
	in := wageEarner()
	in.Wages = nil
	in.Investments = []domain.InvestmentRecord{{
		Institution:        "Fund",
		OrdinaryDividends:  d("150000"),
		QualifiedDividends: d("150000"),
	}}
	res, err := env.Engine.Compute(env.Ctx, engine.Request{Input: in})
	require.NoError(t, err)

	steps := ran(res.Trace)
	assert.True(t, steps[engine.StepForm6251])
	assert.False(t, steps[engine.StepSchedule2])
	assert.False(t, res.Return.Forms.Has(forms.Schedule2))

	f6251 := res.Return.Forms.Fields(forms.F6251)
	assert.True(t, f6251.Decimal("6").Equal(d("77100")))
	assert.True(t, f6251.Decimal("23").Equal(d("40000")))
	assert.True(t, f6251.Decimal("31").Equal(d("5565")))
	assert.True(t, f6251.Decimal("39").Equal(d("20046")))
	assert.True(t, f6251.Decimal("7").Equal(d("5565")))
	assert.False(t, f6251.Has("11"))

	f := res.Return.Forms.Fields(forms.F1040)
	assert.True(t, f.Decimal("15").Equal(d("137600")))
	assert.True(t, f.Decimal("16").Equal(d("14640")))
	assert.False(t, f.Has("17"))
	assert.True(t, f.Decimal("24").Equal(d("14640")))
	assert.True(t, f.Decimal("37").Equal(d("14640")))
	assert.Empty(t, res.Return.Warnings)
}

func TestComputeLongTermGainAloneUsesWorksheet(t *testing.T) {
	env := newTestEnv(t)
	in := wageEarner()
	in.Investments = []domain.InvestmentRecord{{
		Institution: "Broker",
		Trades: []domain.TradeRecord{{
			Description: "100 XYZ", DateAcquired: "01/02/2015", DateSold: "03/04/2020",
			Proceeds: d("58000"), Cost: d("10000"), Term: domain.TermLong,
		}},
	}}
	res, err := env.Engine.Compute(env.Ctx, engine.Request{Input: in})
	require.NoError(t, err)

	assert.True(t, ran(res.Trace)[engine.StepQualifiedDividend])
	w := res.Return.Worksheets[forms.WQualifiedDividends]
	require.NotNil(t, w)
	assert.True(t, w.Line(2).IsZero())
	assert.True(t, w.Line(3).Equal(d("48000")))
	assert.True(t, w.Line(5).Equal(d("37600")))
	assert.True(t, w.Line(9).Equal(d("2400")))
	assert.True(t, w.Line(25).Equal(d("11154.5")))

	f := res.Return.Forms.Fields(forms.F1040)
	assert.True(t, f.Decimal("7_value").Equal(d("48000")))
	assert.True(t, f.Decimal("15").Equal(d("85600")))
	assert.True(t, f.Decimal("16").Equal(d("11154.5")))
}

func TestComputeOwedAMTFlowsToSchedule2(t *testing.T) {
	cfg, err := config.ForYear(2020)
	require.NoError(t, err)
	single := cfg.FilingStatus[domain.StatusSingle]
	single.AMT.Exemption = d("5000")
	cfg.FilingStatus[domain.StatusSingle] = single
	eng := engine.New(cfg, log.New(io.Discard, "", 0))

	in := wageEarner()
	in.Wages[0].Wages = d("100000")
	in.Wages[0].FederalTax = d("30000")
	res, err := eng.Compute(context.Background(), engine.Request{Input: in})
	require.NoError(t, err)

	steps := ran(res.Trace)
	assert.True(t, steps[engine.StepForm6251])
	assert.True(t, steps[engine.StepSchedule2])
	assert.True(t, res.Return.Forms.Fields(forms.F6251).Decimal("11").Equal(d("9596.5")))
	s2 := res.Return.Forms.Fields(forms.Schedule2)
	assert.True(t, s2.Decimal("1").Equal(d("9596.5")))
	assert.True(t, s2.Decimal("3").Equal(d("9596.5")))

	f := res.Return.Forms.Fields(forms.F1040)
	assert.True(t, f.Decimal("16").Equal(d("15103.5")))
	assert.True(t, f.Decimal("17").Equal(d("9596.5")))
	assert.True(t, f.Decimal("18").Equal(d("24700")))
	assert.True(t, f.Decimal("24").Equal(d("24700")))
	assert.True(t, f.Decimal("34").Equal(d("5300")))
}

func TestComputeHSADeductionFlowsThroughSchedule1(t *testing.T) {
	env := newTestEnv(t)
	in := wageEarner()
	in.HealthSavingsAccount = true
	in.HSACoverage = domain.CoverageSelf
	in.HSAContributions = d("2000")
	in.HSAEmployerContributions = d("500")
	res, err := env.Engine.Compute(env.Ctx, engine.Request{Input: in})
	require.NoError(t, err)

	assert.True(t, ran(res.Trace)[engine.StepSchedule1])
	s1 := res.Return.Forms.Fields(forms.Schedule1)
	assert.True(t, s1.Decimal("12").Equal(d("2000")))
	assert.True(t, s1.Decimal("22").Equal(d("2000")))
	assert.False(t, s1.Has("9"))

	f := res.Return.Forms.Fields(forms.F1040)
	assert.False(t, f.Has("8"))
	assert.True(t, f.Decimal("9").Equal(d("50000")))
	assert.True(t, f.Decimal("10_a").Equal(d("2000")))
	assert.True(t, f.Decimal("10_c").Equal(d("2000")))
	assert.True(t, f.Decimal("11").Equal(d("48000")))
	assert.True(t, f.Decimal("15").Equal(d("35600")))
	assert.True(t, f.Decimal("16").Equal(d("4074.5")))
}

func TestComputeIsDeterministic(t *testing.T) {
	env := newTestEnv(t)
	in := wageEarner()
	in.Investments = []domain.InvestmentRecord{{
		Institution:        "Broker",
		Interest:           d("120.50"),
		OrdinaryDividends:  d("900"),
		QualifiedDividends: d("600"),
		Trades: []domain.TradeRecord{
			{Description: "A", Proceeds: d("1200"), Cost: d("1000"), Term: domain.TermLong},
			{Description: "B", Proceeds: d("300"), Cost: d("500"), Term: domain.TermShort, FormCode: "B"},
		},
	}}
	first, err := env.Engine.Compute(env.Ctx, engine.Request{Input: in})
	require.NoError(t, err)
	second, err := env.Engine.Compute(env.Ctx, engine.Request{Input: in})
	require.NoError(t, err)
	if diff := cmp.Diff(first, second, returnsEqual...); diff != "" {
		t.Fatalf("runs differ (-first +second):\n%s", diff)
	}
	assert.Contains(t, first.Return.Worksheets, forms.WQualifiedDividends)
}

func TestComputeNonResident(t *testing.T) {
	env := newTestEnv(t)
	in := wageEarner()
	in.Resident = false
	res, err := env.Engine.Compute(env.Ctx, engine.Request{Input: in})
	require.NoError(t, err)
	assert.True(t, res.Return.Unsupported)
	assert.Empty(t, res.Return.Forms)
	assert.Empty(t, res.Return.Worksheets)
	assert.Empty(t, res.Trace)
}

func TestComputeRejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t)
	in := wageEarner()
	in.SSN = ""
	in.Wages[0].Wages = d("-1")
	_, err := env.Engine.Compute(env.Ctx, engine.Request{Input: in})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Problems, 2)
}

func TestComputeHonorsCancellation(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(env.Ctx)
	cancel()
	_, err := env.Engine.Compute(ctx, engine.Request{Input: wageEarner()})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestComputeWarnsOnPriorYearMismatch(t *testing.T) {
	env := newTestEnv(t)
	prior := &domain.Return{TaxYear: 2017, Forms: domain.FormState{}}
	res, err := env.Engine.Compute(env.Ctx, engine.Request{Input: wageEarner(), Prior: prior})
	require.NoError(t, err)
	require.Len(t, res.Return.Warnings, 1)
	assert.Contains(t, res.Return.Warnings[0], "2017")
}

func TestComputeWithoutConfig(t *testing.T) {
	_, err := engine.Engine{}.Compute(context.Background(), engine.Request{Input: wageEarner()})
	assert.Error(t, err)
}

func TestPlanValidate(t *testing.T) {
	noop := func(*forms.Run) error { return nil }
	cases := []struct {
		name string
		plan engine.Plan
	}{
		{"empty", engine.Plan{}},
		{"unnamed", engine.Plan{{Build: noop}}},
		{"duplicate", engine.Plan{{Name: "a", Build: noop}, {Name: "a", Build: noop}}},
		{"no builder", engine.Plan{{Name: "a"}}},
		{"self", engine.Plan{{Name: "a", After: []string{"a"}, Build: noop}}},
		{"unknown", engine.Plan{{Name: "a", After: []string{"z"}, Build: noop}}},
		{"forward", engine.Plan{{Name: "a", After: []string{"b"}, Build: noop}, {Name: "b", Build: noop}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.plan.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, engine.ErrInvalidPlan))
		})
	}
	assert.NoError(t, engine.DefaultPlan().Validate())
}

func TestComputeRejectsInvalidPlan(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Plan = engine.Plan{{Name: "a", After: []string{"b"}, Build: func(*forms.Run) error { return nil }}}
	_, err := env.Engine.Compute(env.Ctx, engine.Request{Input: wageEarner()})
	var perr *engine.PlanError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "a", perr.Step)
}

func TestDecisionTable(t *testing.T) {
	table := engine.DefaultPlan().DecisionTable()
	require.Len(t, table, len(engine.DefaultPlan()))
	assert.Equal(t, engine.StepCarryover, table[0].Step)
	assert.Equal(t, "files schedule D", table[0].Condition)
	assert.Equal(t, "always", table[1].Condition)
	assert.Equal(t, engine.Step1040Payments, table[len(table)-1].Step)
}
