package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type simpleRow struct {
	scan func(dest ...any) error
}

func (r simpleRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

type testRowsBase struct{}

func (testRowsBase) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }

func (testRowsBase) Conn() *pgx.Conn { return nil }

func (testRowsBase) FieldDescriptions() []pgconn.FieldDescription { return nil }

func (testRowsBase) Values() ([]any, error) {
	return nil, fmt.Errorf("values not supported in test rows")
}

func (testRowsBase) RawValues() [][]byte { return nil }

// scriptedRows replays one scan function per row.
type scriptedRows struct {
	testRowsBase
	scans []func(dest ...any) error
	pos   int
}

func (r *scriptedRows) Next() bool {
	return r.pos < len(r.scans)
}

func (r *scriptedRows) Scan(dest ...any) error {
	scan := r.scans[r.pos]
	r.pos++
	return scan(dest...)
}

func (r *scriptedRows) Close() {}

func (r *scriptedRows) Err() error { return nil }

var _ pgx.Rows = (*scriptedRows)(nil)

// fakeSQL records the last statement and returns scripted results.
type fakeSQL struct {
	execTag   pgconn.CommandTag
	execErr   error
	row       simpleRow
	rows      *scriptedRows
	queryErr  error
	lastQuery string
	lastArgs  []any
}

func (f *fakeSQL) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	f.lastQuery = query
	f.lastArgs = args
	return f.execTag, f.execErr
}

func (f *fakeSQL) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	f.lastQuery = query
	f.lastArgs = args
	return f.row
}

func (f *fakeSQL) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	f.lastQuery = query
	f.lastArgs = args
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.rows == nil {
		return &scriptedRows{}, nil
	}
	return f.rows, nil
}
