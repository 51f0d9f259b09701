package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validInput() TaxpayerInput {
	return TaxpayerInput{
		Identity: Identity{FirstName: "Ada", LastName: "Lovelace", SSN: "123-45-6789"},
		Single:   true,
		Resident: true,
		Wages:    []WageRecord{{Wages: decimal.NewFromInt(50000)}},
	}
}

func TestValidateAcceptsMinimalInput(t *testing.T) {
	assert.NoError(t, validInput().Validate())
}

func TestValidateCollectsProblems(t *testing.T) {
	in := validInput()
	in.SSN = " "
	in.HSACoverage = "both"
	in.Wages[0].FederalTax = decimal.NewFromInt(-1)
	wash := decimal.NewFromInt(5)
	in.Investments = []InvestmentRecord{{
		OrdinaryDividends:  decimal.NewFromInt(10),
		QualifiedDividends: decimal.NewFromInt(20),
		Trades: []TradeRecord{{Term: "MID", FormCode: "Z", WashSale: &wash}},
	}}

	err := in.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{
		"ssn is required",
		`hsa_coverage must be "self" or "family"`,
		"w2[0].federal_tax must not be negative",
		"1099[0].institution is required",
		"1099[0].qualified_dividends exceeds ordinary_dividends",
		"1099[0].trades[0].term must be SHORT or LONG",
		`1099[0].trades[0].form_code "Z" is not one of A,B,C,D,E,F`,
		"1099[0].trades[0].wash_sale_code is required with a wash sale adjustment",
	}, verr.Problems)
}

func TestTradeDefaults(t *testing.T) {
	short := TradeRecord{Term: TermShort, Proceeds: decimal.NewFromInt(100), Cost: decimal.NewFromInt(150)}
	assert.Equal(t, "A", short.CoverageCode())
	assert.True(t, short.Gain().Equal(decimal.NewFromInt(-50)))

	wash := decimal.NewFromInt(20)
	long := TradeRecord{Term: TermLong, FormCode: " e ", Proceeds: decimal.NewFromInt(100), Cost: decimal.NewFromInt(150), WashSale: &wash}
	assert.Equal(t, "E", long.CoverageCode())
	assert.True(t, long.Gain().Equal(decimal.NewFromInt(-30)))
}

func TestIdentityNames(t *testing.T) {
	id := Identity{FirstName: "Ada", Initial: "B", LastName: "Lovelace"}
	assert.Equal(t, "Ada B", id.FirstNameAndInitial())
	assert.Equal(t, "Ada B Lovelace", id.FullName())
}

func TestFieldsJSONKeepsNumbersExact(t *testing.T) {
	f := Fields{"16": decimal.RequireFromString("4314.50"), "single": true, "name": "Ada"}
	b, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{"16":4314.5,"single":true,"name":"Ada"}`, string(b))

	var back Fields
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, back.Decimal("16").Equal(decimal.RequireFromString("4314.5")))
	assert.True(t, back.Bool("single"))
	assert.Equal(t, "Ada", back.Text("name"))
	assert.True(t, back.Decimal("missing").IsZero())

	assert.Error(t, json.Unmarshal([]byte(`{"x":[1]}`), &back))
}

func TestFormPagesJSON(t *testing.T) {
	single := SinglePage(Fields{"1": decimal.NewFromInt(1)})
	b, err := json.Marshal(single)
	require.NoError(t, err)
	assert.JSONEq(t, `{"1":1}`, string(b))

	paged := Paginated([]Fields{{"a": "x"}, {"a": "y"}})
	b, err = json.Marshal(paged)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"a":"x"},{"a":"y"}]`, string(b))

	var back Form
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, back.Paginated())
	assert.Equal(t, "x", back.Fields().Text("a"))

	var none *Form
	assert.Nil(t, none.Fields())
	assert.True(t, FormState{}.Fields("f1040").Decimal("1").IsZero())
}

func TestWorksheetLineBounds(t *testing.T) {
	w := NewWorksheet(3)
	w[3] = decimal.NewFromInt(7)
	assert.True(t, w.Line(3).Equal(decimal.NewFromInt(7)))
	assert.True(t, w.Line(0).IsZero())
	assert.True(t, w.Line(4).IsZero())
}
