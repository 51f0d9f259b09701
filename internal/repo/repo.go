package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"taxline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r Repo) InsertReturn(ctx context.Context, rec domain.ReturnRecord) error {
	return insertReturn(ctx, r.DB, rec)
}

func (r Repo) InsertReturnTx(ctx context.Context, tx *sql.Tx, rec domain.ReturnRecord) error {
	return insertReturn(ctx, tx, rec)
}

func insertReturn(ctx context.Context, db execer, rec domain.ReturnRecord) error {
	formsJSON, err := json.Marshal(rec.Return.Forms)
	if err != nil {
		return fmt.Errorf("marshal forms: %w", err)
	}
	worksheetsJSON, err := json.Marshal(rec.Return.Worksheets)
	if err != nil {
		return fmt.Errorf("marshal worksheets: %w", err)
	}
	warnings := rec.Return.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}
	_, err = db.ExecContext(ctx, `INSERT INTO returns(id,tax_year,ssn,name,forms_json,worksheets_json,warnings_json,unsupported,created_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		rec.ID, rec.TaxYear, rec.SSN, rec.Name, string(formsJSON), string(worksheetsJSON), string(warningsJSON),
		boolToInt(rec.Return.Unsupported), rec.CreatedAt)
	return err
}

const returnColumns = `id,tax_year,ssn,name,forms_json,worksheets_json,warnings_json,unsupported,created_at`

func scanReturn(row *sql.Row) (domain.ReturnRecord, error) {
	var rec domain.ReturnRecord
	var formsJSON, worksheetsJSON, warningsJSON string
	var unsupported int
	err := row.Scan(&rec.ID, &rec.TaxYear, &rec.SSN, &rec.Name, &formsJSON, &worksheetsJSON, &warningsJSON, &unsupported, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, err
	}
	rec.Return.TaxYear = rec.TaxYear
	rec.Return.Unsupported = unsupported != 0
	if err := json.Unmarshal([]byte(formsJSON), &rec.Return.Forms); err != nil {
		return rec, fmt.Errorf("decode forms of %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(worksheetsJSON), &rec.Return.Worksheets); err != nil {
		return rec, fmt.Errorf("decode worksheets of %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(warningsJSON), &rec.Return.Warnings); err != nil {
		return rec, fmt.Errorf("decode warnings of %s: %w", rec.ID, err)
	}
	if len(rec.Return.Warnings) == 0 {
		rec.Return.Warnings = nil
	}
	return rec, nil
}

func (r Repo) GetReturn(ctx context.Context, id string) (domain.ReturnRecord, error) {
	return scanReturn(r.DB.QueryRowContext(ctx, `SELECT `+returnColumns+` FROM returns WHERE id=?`, id))
}

// LatestReturn returns the most recently stored return of a filer for a year.
func (r Repo) LatestReturn(ctx context.Context, year int, ssn string) (domain.ReturnRecord, error) {
	return scanReturn(r.DB.QueryRowContext(ctx, `SELECT `+returnColumns+` FROM returns WHERE tax_year=? AND ssn=? ORDER BY created_at DESC, rowid DESC LIMIT 1`, year, ssn))
}

// ReturnFilters narrow ListReturns; zero values match everything.
type ReturnFilters struct {
	TaxYear int
	SSN     string
	Limit   int
}

func (r Repo) ListReturns(ctx context.Context, f ReturnFilters) ([]domain.ReturnSummary, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.TaxYear != 0 {
		clauses = append(clauses, "tax_year=?")
		args = append(args, f.TaxYear)
	}
	if f.SSN != "" {
		clauses = append(clauses, "ssn=?")
		args = append(args, f.SSN)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := `SELECT id,tax_year,ssn,name,warnings_json,unsupported,created_at FROM returns ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ReturnSummary
	for rows.Next() {
		var s domain.ReturnSummary
		var warningsJSON string
		var unsupported int
		if err := rows.Scan(&s.ID, &s.TaxYear, &s.SSN, &s.Name, &warningsJSON, &unsupported, &s.CreatedAt); err != nil {
			return nil, err
		}
		var warnings []string
		if err := json.Unmarshal([]byte(warningsJSON), &warnings); err != nil {
			return nil, fmt.Errorf("decode warnings of %s: %w", s.ID, err)
		}
		s.Warnings = len(warnings)
		s.Unsupported = unsupported != 0
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) DeleteReturnTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM returns WHERE id=?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// LatestEvents returns the newest events, optionally for one entity.
func (r Repo) LatestEvents(ctx context.Context, limit int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if limit <= 0 {
		limit = 50
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
