package repo_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxline/internal/db"
	"taxline/internal/domain"
	"taxline/internal/events"
	"taxline/internal/migrate"
	"taxline/internal/repo"
)

func openRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	return repo.Repo{DB: conn}
}

func record(id string, year int, ssn, created string) domain.ReturnRecord {
	ws := domain.NewWorksheet(3)
	ws[2] = decimal.RequireFromString("12.5")
	return domain.ReturnRecord{
		ID:        id,
		TaxYear:   year,
		SSN:       ssn,
		Name:      "Ada Lovelace",
		CreatedAt: created,
		Return: domain.Return{
			TaxYear: year,
			Forms: domain.FormState{
				"f1040": domain.SinglePage(domain.Fields{"1": decimal.NewFromInt(50000), "single": true}),
				"f8949": domain.Paginated([]domain.Fields{{"I_name": "Ada"}, {"I_name": "Ada"}}),
			},
			Worksheets: domain.WorksheetState{"w": ws},
			Warnings:   []string{"something"},
		},
	}
}

func TestReturnRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := openRepo(t)
	require.NoError(t, r.InsertReturn(ctx, record("r1", 2020, "111", "2021-03-01T10:00:00.000000000Z")))

	got, err := r.GetReturn(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 2020, got.Return.TaxYear)
	assert.True(t, got.Return.Forms.Fields("f1040").Decimal("1").Equal(decimal.NewFromInt(50000)))
	assert.True(t, got.Return.Forms.Fields("f1040").Bool("single"))
	assert.True(t, got.Return.Forms["f8949"].Paginated())
	assert.Len(t, got.Return.Forms["f8949"].Pages(), 2)
	assert.True(t, got.Return.Worksheets["w"].Line(2).Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, []string{"something"}, got.Return.Warnings)

	_, err = r.GetReturn(ctx, "missing")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestLatestReturnAndList(t *testing.T) {
	ctx := context.Background()
	r := openRepo(t)
	require.NoError(t, r.InsertReturn(ctx, record("old", 2020, "111", "2021-03-01T10:00:00.000000000Z")))
	require.NoError(t, r.InsertReturn(ctx, record("new", 2020, "111", "2021-04-01T10:00:00.000000000Z")))
	require.NoError(t, r.InsertReturn(ctx, record("other", 2020, "222", "2021-05-01T10:00:00.000000000Z")))
	require.NoError(t, r.InsertReturn(ctx, record("next", 2021, "111", "2022-03-01T10:00:00.000000000Z")))

	latest, err := r.LatestReturn(ctx, 2020, "111")
	require.NoError(t, err)
	assert.Equal(t, "new", latest.ID)

	_, err = r.LatestReturn(ctx, 2019, "111")
	assert.ErrorIs(t, err, repo.ErrNotFound)

	items, err := r.ListReturns(ctx, repo.ReturnFilters{TaxYear: 2020})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "other", items[0].ID)
	assert.Equal(t, 1, items[0].Warnings)

	items, err = r.ListReturns(ctx, repo.ReturnFilters{SSN: "111", Limit: 2})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "next", items[0].ID)
	assert.Equal(t, "new", items[1].ID)
}

func TestDeleteReturnAndEvents(t *testing.T) {
	ctx := context.Background()
	r := openRepo(t)
	require.NoError(t, r.InsertReturn(ctx, record("r1", 2020, "111", "2021-03-01T10:00:00.000000000Z")))

	w := events.Writer{DB: r.DB}
	withTx(t, r.DB, func(tx *sql.Tx) error {
		if err := r.DeleteReturnTx(ctx, tx, "r1"); err != nil {
			return err
		}
		return w.Append(ctx, tx, events.ReturnDeleted, "return", "r1", "tester", nil)
	})

	_, err := r.GetReturn(ctx, "r1")
	assert.ErrorIs(t, err, repo.ErrNotFound)

	tx, err := r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, r.DeleteReturnTx(ctx, tx, "r1"), repo.ErrNotFound)
	require.NoError(t, tx.Rollback())

	evts, err := r.LatestEvents(ctx, 10, "", "return", "r1")
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, events.ReturnDeleted, evts[0].Type)
	assert.Equal(t, "tester", evts[0].ActorID)
	assert.Equal(t, "{}", evts[0].Payload)
}

func TestMigrateIsIdempotent(t *testing.T) {
	r := openRepo(t)
	require.NoError(t, migrate.Migrate(r.DB))
	st, err := migrate.Current(context.Background(), r.DB)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Version)
	assert.Equal(t, "0001_init.sql", st.Name)
	assert.NotEmpty(t, st.AppliedAt)
	assert.Empty(t, st.Pending)
}

func withTx(t *testing.T, conn *sql.DB, fn func(*sql.Tx) error) {
	t.Helper()
	tx, err := conn.Begin()
	require.NoError(t, err)
	if err := fn(tx); err != nil {
		tx.Rollback()
		t.Fatal(err)
	}
	require.NoError(t, tx.Commit())
}
