package migrate

import (
	"context"
	"reflect"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockManager(t *testing.T, migrations, seeds fstest.MapFS) (*Manager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewManager(db, migrations, seeds), mock
}

func expectEnsureTables(mock sqlmock.Sqlmock) {
	mock.ExpectExec(`create table if not exists schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`create table if not exists schema_seeds`).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestUpAppliesPendingInOrder(t *testing.T) {
	migrations := fstest.MapFS{
		"0002_tokens.up.sql":   {Data: []byte("create table refresh_tokens (id text);")},
		"0001_users.up.sql":    {Data: []byte("create table users (id text);\ncreate index idx_users on users (id);")},
		"0002_tokens.down.sql": {Data: []byte("drop table refresh_tokens;")},
	}
	m, mock := newMockManager(t, migrations, nil)

	expectEnsureTables(mock)
	mock.ExpectQuery(`select name from schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_users.up.sql"))

	// Only 0002 is pending; 0001 is skipped, and the down file is ignored.
	mock.ExpectBegin()
	mock.ExpectExec(`create table refresh_tokens`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec(`insert into schema_migrations`).
		WithArgs("0002_tokens.up.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := m.Up(context.Background()); err != nil {
		t.Fatalf("Up: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpRunsEachFileInOneTransaction(t *testing.T) {
	migrations := fstest.MapFS{
		"0001_users.up.sql": {Data: []byte("create table users (id text);\ncreate index idx_users on users (id);")},
	}
	m, mock := newMockManager(t, migrations, nil)

	expectEnsureTables(mock)
	mock.ExpectQuery(`select name from schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	mock.ExpectBegin()
	mock.ExpectExec(`create table users`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`create index idx_users`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec(`insert into schema_migrations`).
		WithArgs("0001_users.up.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := m.Up(context.Background()); err != nil {
		t.Fatalf("Up: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDownRollsBackLatest(t *testing.T) {
	migrations := fstest.MapFS{
		"0001_users.up.sql":    {Data: []byte("create table users (id text);")},
		"0001_users.down.sql":  {Data: []byte("drop table users;")},
		"0002_tokens.up.sql":   {Data: []byte("create table refresh_tokens (id text);")},
		"0002_tokens.down.sql": {Data: []byte("drop table refresh_tokens;")},
	}
	m, mock := newMockManager(t, migrations, nil)

	expectEnsureTables(mock)
	mock.ExpectQuery(`select name from schema_migrations order by applied_at`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).
			AddRow("0001_users.up.sql").
			AddRow("0002_tokens.up.sql"))

	mock.ExpectBegin()
	mock.ExpectExec(`drop table refresh_tokens`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec(`delete from schema_migrations`).
		WithArgs("0002_tokens.up.sql").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := m.Down(context.Background()); err != nil {
		t.Fatalf("Down: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDownWithNothingApplied(t *testing.T) {
	m, mock := newMockManager(t, fstest.MapFS{}, nil)

	expectEnsureTables(mock)
	mock.ExpectQuery(`select name from schema_migrations order by applied_at`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	if err := m.Down(context.Background()); err == nil {
		t.Fatal("expected error when no migrations are applied")
	}
}

func TestDownRequiresCounterpartFile(t *testing.T) {
	migrations := fstest.MapFS{
		"0001_users.up.sql": {Data: []byte("create table users (id text);")},
	}
	m, mock := newMockManager(t, migrations, nil)

	expectEnsureTables(mock)
	mock.ExpectQuery(`select name from schema_migrations order by applied_at`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_users.up.sql"))

	if err := m.Down(context.Background()); err == nil {
		t.Fatal("expected error when the down file is missing")
	}
}

func TestSeedSkipsAppliedFiles(t *testing.T) {
	seeds := fstest.MapFS{
		"categories.sql": {Data: []byte("insert into categories (slug) values ('politics');")},
		"admins.sql":     {Data: []byte("insert into admins (email) values ('root@nashra.news');")},
	}
	m, mock := newMockManager(t, nil, seeds)

	expectEnsureTables(mock)
	mock.ExpectQuery(`select name from schema_seeds`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("admins.sql"))

	mock.ExpectBegin()
	mock.ExpectExec(`insert into categories`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec(`insert into schema_seeds`).
		WithArgs("categories.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := m.Seed(context.Background()); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStatusReportsAppliedOrder(t *testing.T) {
	m, mock := newMockManager(t, fstest.MapFS{}, nil)

	expectEnsureTables(mock)
	mock.ExpectQuery(`select name from schema_migrations order by applied_at`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).
			AddRow("0001_users.up.sql").
			AddRow("0002_tokens.up.sql"))

	got, err := m.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	want := []string{"0001_users.up.sql", "0002_tokens.up.sql"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Status = %v, want %v", got, want)
	}
}

func TestSplitStatements(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"create table a (id text);", 1},
		{"create table a (id text); create table b (id text);", 2},
		{"insert into a values ('x;y'); insert into a values ('z');", 2},
		{"create table a (id text)", 1},
		{"", 0},
	}
	for _, tc := range cases {
		if got := len(splitStatements(tc.in)); got != tc.want {
			t.Fatalf("splitStatements(%q) produced %d statements, want %d", tc.in, got, tc.want)
		}
	}
}
