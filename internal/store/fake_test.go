package store

import (
	"context"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ----------------------------------------------------------------------------
// Fake DBTX
// ----------------------------------------------------------------------------

type call struct {
	sql  string
	args []interface{}
}

type fakeDB struct {
	calls []call

	row     func(sql string, args []interface{}) pgx.Row
	rows    func(sql string, args []interface{}) (pgx.Rows, error)
	execErr error
	execTag string
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, call{sql, args})
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	if f.execTag != "" {
		return pgconn.NewCommandTag(f.execTag), nil
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDB) Query(_ context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	f.calls = append(f.calls, call{sql, args})
	if f.rows == nil {
		return &fakeRows{}, nil
	}
	return f.rows(sql, args)
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...interface{}) pgx.Row {
	f.calls = append(f.calls, call{sql, args})
	if f.row == nil {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return f.row(sql, args)
}

func (f *fakeDB) last() call {
	if len(f.calls) == 0 {
		return call{}
	}
	return f.calls[len(f.calls)-1]
}

// fakeRow scans values positionally. Each value must have the exact type of
// the destination.
type fakeRow struct {
	values []interface{}
	err    error
}

func (r fakeRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	return assign(dest, r.values)
}

func assign(dest, values []interface{}) error {
	if len(dest) != len(values) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(values))
	}
	for i, v := range values {
		d := reflect.ValueOf(dest[i]).Elem()
		src := reflect.ValueOf(v)
		if !src.Type().AssignableTo(d.Type()) {
			return fmt.Errorf("scan column %d: cannot assign %s to %s", i, src.Type(), d.Type())
		}
		d.Set(src)
	}
	return nil
}

type fakeRows struct {
	data [][]interface{}
	pos  int
	err  error
}

func (r *fakeRows) Close() {}
func (r *fakeRows) Err() error { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte { return nil }
func (r *fakeRows) Conn() *pgx.Conn { return nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...interface{}) error {
	return assign(dest, r.data[r.pos-1])
}

func (r *fakeRows) Values() ([]interface{}, error) {
	return r.data[r.pos-1], nil
}
