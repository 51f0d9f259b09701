// Package forms builds federal form and worksheet values for one filing run.
//
// Every builder reads the run's input, the forms and worksheets built before
// it, and the year constants, then writes its own slot. Builders never read a
// value before the builder producing it has run; absent fields read as zero.
package forms

import (
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"

	"taxline/internal/config"
	"taxline/internal/domain"
)

// TradeTotals accumulates Form 8949 columns.
type TradeTotals struct {
	Proceeds   decimal.Decimal
	Cost       decimal.Decimal
	Adjustment decimal.Decimal
	Gain       decimal.Decimal
}

func (t TradeTotals) add(o TradeTotals) TradeTotals {
	return TradeTotals{
		Proceeds:   t.Proceeds.Add(o.Proceeds),
		Cost:       t.Cost.Add(o.Cost),
		Adjustment: t.Adjustment.Add(o.Adjustment),
		Gain:       t.Gain.Add(o.Gain),
	}
}

// Run is the shared context of one filing run. A Run must not be reused for
// another filer or year.
type Run struct {
	Input      domain.TaxpayerInput
	Config     *config.Config
	Status     config.StatusConstants
	Prior      *domain.Return
	Forms      domain.FormState
	Worksheets domain.WorksheetState
	Logger     *log.Logger

	warnings   []string
	termTotals map[domain.Term]TradeTotals
	rowTotals  map[string]TradeTotals
	amt        *AMTTest
}

// NewRun creates a run with empty form and worksheet state.
func NewRun(in domain.TaxpayerInput, cfg *config.Config, prior *domain.Return, logger *log.Logger) (*Run, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}
	status, err := cfg.Status(in.FilingStatus())
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Run{
		Input:      in,
		Config:     cfg,
		Status:     status,
		Prior:      prior,
		Forms:      domain.FormState{},
		Worksheets: domain.WorksheetState{},
		Logger:     logger,
		termTotals: map[domain.Term]TradeTotals{},
		rowTotals:  map[string]TradeTotals{},
	}, nil
}

// Warnf logs a recoverable problem and records it on the return.
func (r *Run) Warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.warnings = append(r.warnings, msg)
	r.Logger.Printf("WARNING: %s", msg)
}

func (r *Run) Warnings() []string { return append([]string(nil), r.warnings...) }

// TermTotals returns the Form 8949 totals accumulated for a holding term.
func (r *Run) TermTotals(term domain.Term) TradeTotals { return r.termTotals[term] }

// AMT returns the result of the AMT applicability test, nil before it ran.
func (r *Run) AMT() *AMTTest { return r.amt }

// Return snapshots the run output.
func (r *Run) Return() domain.Return {
	return domain.Return{
		TaxYear:    r.Config.Year,
		Forms:      r.Forms,
		Worksheets: r.Worksheets,
		Warnings:   r.Warnings(),
	}
}

// sheet writes the fields of one form page.
type sheet struct {
	run *Run
	f   domain.Fields
}

// newForm registers an empty single-page form under key.
func (r *Run) newForm(key string) *sheet {
	f := domain.Fields{}
	r.Forms[key] = domain.SinglePage(f)
	return &sheet{run: r, f: f}
}

// form reopens the first page of an already registered form.
func (r *Run) form(key string) *sheet {
	f := r.Forms.Fields(key)
	if f == nil {
		return r.newForm(key)
	}
	return &sheet{run: r, f: f}
}

func (r *Run) newPage() *sheet {
	return &sheet{run: r, f: domain.Fields{}}
}

func (s *sheet) get(key string) decimal.Decimal { return s.f.Decimal(key) }

// put writes v rounded to cents, omitting the field when v is zero.
func (s *sheet) put(key string, v decimal.Decimal) {
	v = v.Round(2)
	if v.IsZero() {
		delete(s.f, key)
		return
	}
	s.f[key] = v
}

// sum writes the total of sibling fields; absent fields count as zero.
func (s *sheet) sum(key string, keys ...string) {
	total := decimal.Zero
	for _, k := range keys {
		total = total.Add(s.get(k))
	}
	s.put(key, total)
}

// negate flips the sign of an already written field.
func (s *sheet) negate(key string) {
	if s.f.Has(key) {
		s.f[key] = s.get(key).Neg()
	}
}

// check ticks a check box. Unticked boxes are not written.
func (s *sheet) check(key string) { s.f[key] = true }

func (s *sheet) text(key, v string) {
	if strings.TrimSpace(v) == "" {
		return
	}
	s.f[key] = v
}

// identity writes the filer name and SSN block, prefixed for forms that
// repeat it per part.
func (s *sheet) identity(prefix string) {
	s.text(prefix+"name", s.run.Input.FullName())
	s.text(prefix+"ssn", s.run.Input.SSN)
}

// rowKeys expands a per-row field pattern for rows 1..n.
func rowKeys(format string, n int) []string {
	keys := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		keys = append(keys, fmt.Sprintf(format, i))
	}
	return keys
}
