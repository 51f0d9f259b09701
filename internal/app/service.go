package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"taxline/internal/config"
	"taxline/internal/domain"
	"taxline/internal/engine"
	"taxline/internal/events"
	"taxline/internal/repo"
)

// ErrPriorMismatch reports an explicit prior-year return filed by someone else.
var ErrPriorMismatch = errors.New("prior return belongs to another filer")

// storedTimeLayout keeps created_at sortable as text.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z"

// returnNamespace derives stable return IDs from filer, year and time.
var returnNamespace = uuid.MustParse("6f1c3f0e-8d0b-4bb4-9a55-3c1f6f1f7a20")

// ResolveConfig loads the constants for a tax year: from file when given,
// otherwise the built-in year table.
func ResolveConfig(year int, file string) (*config.Config, error) {
	if file == "" {
		return config.ForYear(year)
	}
	cfg, err := config.FromFile(file)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", file, err)
	}
	if year != 0 && cfg.Year != year {
		return nil, fmt.Errorf("config %s is for tax year %d, not %d", file, cfg.Year, year)
	}
	return cfg, nil
}

// Service computes returns and keeps them in the local store. DB may be nil,
// in which case nothing is looked up or saved.
type Service struct {
	DB         *sql.DB
	Repo       repo.Repo
	Events     events.Writer
	ConfigFile string
	Logger     *log.Logger
	Now        func() time.Time
}

func New(db *sql.DB, configFile string, logger *log.Logger) Service {
	if logger == nil {
		logger = log.Default()
	}
	return Service{
		DB:         db,
		Repo:       repo.Repo{DB: db},
		Events:     events.Writer{DB: db},
		ConfigFile: configFile,
		Logger:     logger,
		Now:        time.Now,
	}
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

type ComputeRequest struct {
	Year  int
	Input domain.TaxpayerInput
	// PriorID selects a stored prior-year return. When empty, and Prior is
	// nil, the latest stored return for the previous year and the same SSN
	// is used if one exists.
	PriorID string
	Prior   *domain.Return
	Save    bool
	ActorID string
}

type ComputeResult struct {
	ID        string             `json:"id,omitempty"`
	CreatedAt string             `json:"created_at,omitempty"`
	PriorID   string             `json:"prior_id,omitempty"`
	Return    domain.Return      `json:"return"`
	Trace     []engine.StepTrace `json:"trace"`
}

// Compute runs the engine for one filer and optionally stores the return.
func (s Service) Compute(ctx context.Context, req ComputeRequest) (ComputeResult, error) {
	cfg, err := ResolveConfig(req.Year, s.ConfigFile)
	if err != nil {
		return ComputeResult{}, err
	}
	prior, priorID, err := s.resolvePrior(ctx, cfg.Year, req)
	if err != nil {
		return ComputeResult{}, err
	}
	res, err := engine.New(cfg, s.Logger).Compute(ctx, engine.Request{Input: req.Input, Prior: prior})
	if err != nil {
		return ComputeResult{}, err
	}
	out := ComputeResult{PriorID: priorID, Return: res.Return, Trace: res.Trace}
	if !req.Save {
		return out, nil
	}
	if s.DB == nil {
		return ComputeResult{}, errors.New("no return store configured")
	}
	rec, err := s.save(ctx, req, res.Return)
	if err != nil {
		return ComputeResult{}, err
	}
	out.ID = rec.ID
	out.CreatedAt = rec.CreatedAt
	return out, nil
}

func (s Service) resolvePrior(ctx context.Context, year int, req ComputeRequest) (*domain.Return, string, error) {
	if req.Prior != nil {
		return req.Prior, "", nil
	}
	if s.DB == nil {
		if req.PriorID != "" {
			return nil, "", errors.New("no return store configured")
		}
		return nil, "", nil
	}
	if req.PriorID != "" {
		rec, err := s.Repo.GetReturn(ctx, req.PriorID)
		if err != nil {
			return nil, "", fmt.Errorf("prior return %s: %w", req.PriorID, err)
		}
		if rec.SSN != req.Input.SSN {
			return nil, "", fmt.Errorf("prior return %s: %w", req.PriorID, ErrPriorMismatch)
		}
		return &rec.Return, rec.ID, nil
	}
	rec, err := s.Repo.LatestReturn(ctx, year-1, req.Input.SSN)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	return &rec.Return, rec.ID, nil
}

func (s Service) save(ctx context.Context, req ComputeRequest, ret domain.Return) (domain.ReturnRecord, error) {
	now := s.now().UTC()
	rec := domain.ReturnRecord{
		ID:        uuid.NewSHA1(returnNamespace, []byte(fmt.Sprintf("%s|%d|%d", req.Input.SSN, ret.TaxYear, now.UnixNano()))).String(),
		TaxYear:   ret.TaxYear,
		SSN:       req.Input.SSN,
		Name:      req.Input.FullName(),
		CreatedAt: now.Format(storedTimeLayout),
		Return:    ret,
	}
	actor := req.ActorID
	if actor == "" {
		actor = "local-user"
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ReturnRecord{}, err
	}
	defer tx.Rollback()
	if err := s.Repo.InsertReturnTx(ctx, tx, rec); err != nil {
		return domain.ReturnRecord{}, fmt.Errorf("insert return: %w", err)
	}
	if err := s.Events.Append(ctx, tx, events.ReturnComputed, "return", rec.ID, actor, events.EventPayload{
		"tax_year":    rec.TaxYear,
		"forms":       ret.Forms.Keys(),
		"unsupported": ret.Unsupported,
	}); err != nil {
		return domain.ReturnRecord{}, err
	}
	for _, w := range ret.Warnings {
		if err := s.Events.Append(ctx, tx, events.ReturnWarning, "return", rec.ID, actor, events.EventPayload{"message": w}); err != nil {
			return domain.ReturnRecord{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.ReturnRecord{}, err
	}
	return rec, nil
}

// DeleteReturn removes a stored return and records who removed it.
func (s Service) DeleteReturn(ctx context.Context, id, actorID string) error {
	if s.DB == nil {
		return errors.New("no return store configured")
	}
	if actorID == "" {
		actorID = "local-user"
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := s.Repo.DeleteReturnTx(ctx, tx, id); err != nil {
		return err
	}
	if err := s.Events.Append(ctx, tx, events.ReturnDeleted, "return", id, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}
