package config

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"taxline/internal/domain"
	"taxline/internal/taxcalc"
)

//go:embed years/*.yaml
var yearsFS embed.FS

var ErrUnknownYear = errors.New("unknown tax year")

// Config holds the numeric constants of one tax year.
type Config struct {
	Year         int                                     `json:"year"`
	FilingStatus map[domain.FilingStatus]StatusConstants `json:"filing_status"`

	MedicalFloorRate decimal.Decimal `json:"medical_floor_rate"`
	Rates            struct {
		Fifteen     decimal.Decimal `json:"fifteen"`
		Twenty      decimal.Decimal `json:"twenty"`
		AMTLow      decimal.Decimal `json:"amt_low"`
		AMTHigh     decimal.Decimal `json:"amt_high"`
		AMTPhaseout decimal.Decimal `json:"amt_phaseout"`
	} `json:"rates"`
	HSA struct {
		SelfOnlyLimit decimal.Decimal `json:"self_only_limit"`
		FamilyLimit   decimal.Decimal `json:"family_limit"`
	} `json:"hsa"`
	Forms struct {
		ScheduleBInterestRows int `json:"schedule_b_interest_rows"`
		ScheduleBDividendRows int `json:"schedule_b_dividend_rows"`
		Form8949PageCapacity  int `json:"f8949_page_capacity"`
	} `json:"forms"`
	Carryover CarryoverFields `json:"carryover"`
}

// StatusConstants are the constants that depend on filing status.
type StatusConstants struct {
	StandardDeduction  decimal.Decimal  `json:"standard_deduction"`
	Brackets           taxcalc.Schedule `json:"brackets"`
	QualifiedDividends struct {
		ZeroRateMax    decimal.Decimal `json:"zero_rate_max"`
		FifteenRateMax decimal.Decimal `json:"fifteen_rate_max"`
	} `json:"qualified_dividends"`
	CapitalLossLimit      decimal.Decimal `json:"capital_loss_limit"`
	SALTCap               decimal.Decimal `json:"salt_cap"`
	ForeignTaxDirectLimit decimal.Decimal `json:"foreign_tax_direct_limit"`
	AMT                   struct {
		Exemption           decimal.Decimal `json:"exemption"`
		PhaseoutStart       decimal.Decimal `json:"phaseout_start"`
		RateBreak           decimal.Decimal `json:"rate_break"`
		RateBreakAdjustment decimal.Decimal `json:"rate_break_adjustment"`
	} `json:"amt"`
}

// CarryoverFields names the prior-year return lines read by the capital loss
// carryover worksheet.
type CarryoverFields struct {
	TaxableIncome string `json:"taxable_income"`
	LossDeduction string `json:"loss_deduction"`
	ShortTermNet  string `json:"short_term_net"`
	LongTermNet   string `json:"long_term_net"`
}

// Status returns the constants for a filing status.
func (c *Config) Status(fs domain.FilingStatus) (StatusConstants, error) {
	sc, ok := c.FilingStatus[fs]
	if !ok {
		return StatusConstants{}, fmt.Errorf("tax year %d has no constants for filing status %s", c.Year, fs)
	}
	return sc, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Year < 2018 {
		return fmt.Errorf("config.year %d is not supported", c.Year)
	}
	if len(c.FilingStatus) == 0 {
		return fmt.Errorf("config.filing_status is required")
	}
	for _, fs := range []domain.FilingStatus{domain.StatusSingle, domain.StatusMarriedSeparate} {
		sc, ok := c.FilingStatus[fs]
		if !ok {
			return fmt.Errorf("config.filing_status.%s is required", fs)
		}
		if err := sc.Brackets.Validate(); err != nil {
			return fmt.Errorf("config.filing_status.%s.brackets: %w", fs, err)
		}
		if !sc.StandardDeduction.IsPositive() {
			return fmt.Errorf("config.filing_status.%s.standard_deduction must be positive", fs)
		}
		if sc.QualifiedDividends.FifteenRateMax.LessThan(sc.QualifiedDividends.ZeroRateMax) {
			return fmt.Errorf("config.filing_status.%s.qualified_dividends thresholds are out of order", fs)
		}
		if !sc.CapitalLossLimit.IsPositive() {
			return fmt.Errorf("config.filing_status.%s.capital_loss_limit must be positive", fs)
		}
		if !sc.AMT.Exemption.IsPositive() || !sc.AMT.RateBreak.IsPositive() {
			return fmt.Errorf("config.filing_status.%s.amt exemption and rate_break are required", fs)
		}
	}
	if c.MedicalFloorRate.IsNegative() || c.MedicalFloorRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("config.medical_floor_rate must be in [0,1)")
	}
	if c.Forms.ScheduleBInterestRows <= 0 || c.Forms.ScheduleBDividendRows <= 0 {
		return fmt.Errorf("config.forms schedule B row counts must be positive")
	}
	if c.Forms.Form8949PageCapacity <= 0 {
		return fmt.Errorf("config.forms.f8949_page_capacity must be positive")
	}
	if c.Carryover.TaxableIncome == "" || c.Carryover.LossDeduction == "" ||
		c.Carryover.ShortTermNet == "" || c.Carryover.LongTermNet == "" {
		return fmt.Errorf("config.carryover field names are required")
	}
	return nil
}

// ForYear returns the built-in constants for a tax year.
func ForYear(year int) (*Config, error) {
	data, err := yearsFS.ReadFile(fmt.Sprintf("years/%d.yaml", year))
	if err != nil {
		return nil, fmt.Errorf("%w: no built-in constants for %d (have %v)", ErrUnknownYear, year, Years())
	}
	return FromYAML(data)
}

// Years lists the tax years with built-in constants.
func Years() []int {
	entries, err := fs.ReadDir(yearsFS, "years")
	if err != nil {
		return nil
	}
	var years []int
	for _, e := range entries {
		y, err := strconv.Atoi(strings.TrimSuffix(e.Name(), ".yaml"))
		if err != nil {
			continue
		}
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := DecodeYAML(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// DecodeYAML decodes a YAML (or JSON) document into v through its JSON tags.
// Number scalars keep their literal text, so decimal amounts decode exactly.
func DecodeYAML(data []byte, v any) error {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	raw, err := nodeValue(&doc)
	if err != nil {
		return err
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// nodeValue converts a YAML node to JSON-encodable values. Mapping keys are
// taken as written, so an unquoted 1099 stays the key "1099".
func nodeValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case 0:
		return nil, nil
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return nodeValue(n.Content[0])
	case yaml.AliasNode:
		return nodeValue(n.Alias)
	case yaml.MappingNode:
		out := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			val, err := nodeValue(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			out[n.Content[i].Value] = val
		}
		return out, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			val, err := nodeValue(c)
			if err != nil {
				return nil, err
			}
			out = append(out, val)
		}
		return out, nil
	}
	switch n.ShortTag() {
	case "!!int", "!!float":
		if isJSONNumber(n.Value) {
			return json.Number(n.Value), nil
		}
	case "!!str", "!!timestamp":
		return n.Value, nil
	}
	var val any
	if err := n.Decode(&val); err != nil {
		return nil, fmt.Errorf("line %d: %w", n.Line, err)
	}
	return val, nil
}

func isJSONNumber(lit string) bool {
	if lit == "" || !(lit[0] == '-' || (lit[0] >= '0' && lit[0] <= '9')) {
		return false
	}
	if len(lit) > 1 && lit[0] == '0' && lit[1] >= '0' && lit[1] <= '9' {
		return false
	}
	return json.Valid([]byte(lit))
}

// ToYAML renders the config as YAML.
func (c *Config) ToYAML() ([]byte, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var raw any
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	return yaml.Marshal(raw)
}
