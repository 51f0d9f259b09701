package engine

import (
	"context"
	"errors"
	"fmt"
	"log"

	"taxline/internal/config"
	"taxline/internal/domain"
	"taxline/internal/forms"
)

// Engine computes returns for one tax year. It holds no run state and can be
// shared between goroutines.
type Engine struct {
	Config *config.Config
	Plan   Plan
	Logger *log.Logger
}

func New(cfg *config.Config, logger *log.Logger) Engine {
	if logger == nil {
		logger = log.Default()
	}
	return Engine{Config: cfg, Plan: DefaultPlan(), Logger: logger}
}

// Request is the input of one filing run. Prior is the previous year's
// return, used for the capital loss carryover.
type Request struct {
	Input domain.TaxpayerInput
	Prior *domain.Return
}

// StepTrace records whether a step ran.
type StepTrace struct {
	Step string `json:"step"`
	Ran  bool   `json:"ran"`
}

type Result struct {
	Return domain.Return `json:"return"`
	Trace  []StepTrace   `json:"trace"`
}

func (e Engine) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

// Compute runs the plan for one filer. Input shape problems abort the run
// with a *domain.ValidationError; non-resident filers get an empty return
// marked unsupported.
func (e Engine) Compute(ctx context.Context, req Request) (Result, error) {
	if e.Config == nil {
		return Result{}, errors.New("config not loaded")
	}
	plan := e.Plan
	if plan == nil {
		plan = DefaultPlan()
	}
	if err := plan.Validate(); err != nil {
		return Result{}, err
	}
	if err := req.Input.Validate(); err != nil {
		return Result{}, err
	}
	if !req.Input.Resident {
		msg := "non-resident filers are not supported"
		e.logger().Printf("ERROR: %s", msg)
		return Result{Return: domain.Return{
			TaxYear:     e.Config.Year,
			Forms:       domain.FormState{},
			Worksheets:  domain.WorksheetState{},
			Warnings:    []string{msg},
			Unsupported: true,
		}}, nil
	}

	run, err := forms.NewRun(req.Input, e.Config, req.Prior, e.logger())
	if err != nil {
		return Result{}, err
	}
	if req.Prior != nil && req.Prior.TaxYear != e.Config.Year-1 {
		run.Warnf("prior return is for %d, expected %d", req.Prior.TaxYear, e.Config.Year-1)
	}

	trace := make([]StepTrace, 0, len(plan))
	for _, step := range plan {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if !step.When.holds(run) {
			trace = append(trace, StepTrace{Step: step.Name})
			continue
		}
		if err := step.Build(run); err != nil {
			return Result{}, fmt.Errorf("%s: %w", step.Name, err)
		}
		trace = append(trace, StepTrace{Step: step.Name, Ran: true})
	}
	return Result{Return: run.Return(), Trace: trace}, nil
}
