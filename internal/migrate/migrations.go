package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"
)

//go:embed sql/*.sql
var migrationsFS embed.FS

// Migration is one embedded schema file, named <version>_<name>.sql.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
}

// Status describes the schema of a return store.
type Status struct {
	Version   int      `json:"version"`
	Name      string   `json:"name,omitempty"`
	AppliedAt string   `json:"applied_at,omitempty"`
	Pending   []string `json:"pending,omitempty"`
}

func loadMigrations() ([]Migration, error) {
	files, err := fs.ReadDir(migrationsFS, "sql")
	if err != nil {
		return nil, err
	}
	var migrations []Migration
	seen := map[int]string{}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		var v int
		if _, err := fmt.Sscanf(f.Name(), "%d_", &v); err != nil || v <= 0 {
			return nil, fmt.Errorf("invalid migration filename %s", f.Name())
		}
		if prev, ok := seen[v]; ok {
			return nil, fmt.Errorf("migrations %s and %s share version %d", prev, f.Name(), v)
		}
		seen[v] = f.Name()
		data, err := migrationsFS.ReadFile("sql/" + f.Name())
		if err != nil {
			return nil, err
		}
		migrations = append(migrations, Migration{Version: v, Name: f.Name(), UpSQL: string(data)})
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// readStatus reads the applied migration; an empty table reads as version 0.
func readStatus(ctx context.Context, q queryer) (Status, error) {
	var st Status
	err := q.QueryRowContext(ctx, `SELECT version,name,applied_at FROM schema_version LIMIT 1`).
		Scan(&st.Version, &st.Name, &st.AppliedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("read schema_version: %w", err)
	}
	return st, nil
}

// Migrate applies the embedded migrations newer than the recorded version in
// one transaction and records the last one applied.
func Migrate(db *sql.DB) error {
	ctx := context.Background()
	migrations, err := loadMigrations()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version(
		version INTEGER NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		applied_at TEXT NOT NULL DEFAULT ''
	)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}
	st, err := readStatus(ctx, tx)
	if err != nil {
		return err
	}
	if st.Version == 0 && st.Name == "" {
		if _, err := tx.ExecContext(ctx, `DELETE FROM schema_version`); err != nil {
			return fmt.Errorf("reset schema_version: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version(version) VALUES (0)`); err != nil {
			return fmt.Errorf("init schema_version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.Version <= st.Version {
			continue
		}
		if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
			return fmt.Errorf("migration %s: %w", m.Name, err)
		}
		applied := time.Now().UTC().Format(time.RFC3339)
		if _, err := tx.ExecContext(ctx, `UPDATE schema_version SET version=?, name=?, applied_at=?`, m.Version, m.Name, applied); err != nil {
			return fmt.Errorf("update schema_version: %w", err)
		}
		st.Version = m.Version
	}
	return tx.Commit()
}

// Current reports the applied migration and the embedded ones not yet
// applied. A database that was never migrated reports version 0.
func Current(ctx context.Context, db *sql.DB) (Status, error) {
	var exists int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'`).Scan(&exists); err != nil {
		return Status{}, fmt.Errorf("inspect schema: %w", err)
	}
	var st Status
	if exists > 0 {
		var err error
		if st, err = readStatus(ctx, db); err != nil {
			return Status{}, err
		}
	}
	migrations, err := loadMigrations()
	if err != nil {
		return Status{}, err
	}
	for _, m := range migrations {
		if m.Version > st.Version {
			st.Pending = append(st.Pending, m.Name)
		}
	}
	return st, nil
}
