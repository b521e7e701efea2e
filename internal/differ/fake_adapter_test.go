package differ

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Limetric/dbsyncd/internal/dialect"
	"github.com/Limetric/dbsyncd/internal/model"
)

var errTableMissing = errors.New("table missing")

// fakeTable is an in-memory table: a descriptor plus its rows, in insertion
// order. Lookups by primary key scan the rows.
type fakeTable struct {
	desc model.TableDescriptor
	rows []dialect.Row
}

// fakeAdapter is a minimal in-memory dialect.Adapter used to exercise the
// Data Differ and Schema Differ without a live database. It only implements the subset of behavior the differ package
// actually calls; everything else panics so a test notices an unplanned
// dependency immediately.
type fakeAdapter struct {
	name      string
	tables    map[string]*fakeTable
	missing   map[string]bool // tables CountRows/GetTables should report absent on this side
	lastAlter string
}

func newFakeAdapter(name string) *fakeAdapter {
	return &fakeAdapter{name: name, tables: map[string]*fakeTable{}, missing: map[string]bool{}}
}

func (f *fakeAdapter) addTable(desc model.TableDescriptor, rows []dialect.Row) {
	cp := make([]dialect.Row, len(rows))
	copy(cp, rows)
	f.tables[desc.Name] = &fakeTable{desc: desc, rows: cp}
}

func (f *fakeAdapter) Dialect() dialect.Kind         { return dialect.MySQL }
func (f *fakeAdapter) ConnectionName() string        { return f.name }
func (f *fakeAdapter) Connect(context.Context) error { return nil }
func (f *fakeAdapter) Close() error                  { return nil }
func (f *fakeAdapter) IsConnected() bool             { return true }

func (f *fakeAdapter) Query(context.Context, string, ...any) ([]dialect.Row, error) {
	panic("not used by differ tests")
}
func (f *fakeAdapter) Exec(context.Context, string, ...any) (int64, error) {
	panic("not used by differ tests")
}

func (f *fakeAdapter) EscapeIdentifier(name string) string { return "`" + name + "`" }
func (f *fakeAdapter) Placeholder(int) string              { return "?" }

func (f *fakeAdapter) GetTables(context.Context) ([]model.TableDescriptor, error) {
	names := make([]string, 0, len(f.tables))
	for n := range f.tables {
		if !f.missing[n] {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	out := make([]model.TableDescriptor, 0, len(names))
	for _, n := range names {
		out = append(out, f.tables[n].desc)
	}
	return out, nil
}

func (f *fakeAdapter) GetColumns(_ context.Context, table string) ([]model.ColumnDescriptor, error) {
	return f.tables[table].desc.Columns, nil
}

func (f *fakeAdapter) GetIndexes(_ context.Context, table string) ([]model.IndexDescriptor, error) {
	return f.tables[table].desc.Indexes, nil
}

func (f *fakeAdapter) GetPrimaryKey(_ context.Context, table string) (string, error) {
	return f.tables[table].desc.PrimaryKeyColumn(), nil
}

func (f *fakeAdapter) GetProcedures(context.Context, model.RoutineKind) ([]model.RoutineDescriptor, error) {
	panic("not used by differ tests")
}
func (f *fakeAdapter) GetTriggers(context.Context) ([]model.RoutineDescriptor, error) {
	panic("not used by differ tests")
}
func (f *fakeAdapter) ExecuteRoutineDDL(context.Context, string) error { panic("not used by differ tests") }
func (f *fakeAdapter) DropRoutine(context.Context, model.RoutineKind, string) error {
	panic("not used by differ tests")
}

func (f *fakeAdapter) CreateTable(_ context.Context, ddl string) error {
	f.tables[ddl] = &fakeTable{desc: model.TableDescriptor{Name: ddl}}
	return nil
}

func (f *fakeAdapter) AlterTable(_ context.Context, ddl string) error {
	f.lastAlter = ddl
	return nil
}

func (f *fakeAdapter) DropTable(_ context.Context, table string) error {
	delete(f.tables, table)
	return nil
}

func (f *fakeAdapter) TruncateTable(_ context.Context, table string) error {
	f.tables[table].rows = nil
	return nil
}

func (f *fakeAdapter) BuildAddColumn(table string, col model.ColumnDescriptor) string {
	return "ADD " + table + "." + col.Name
}
func (f *fakeAdapter) BuildModifyColumn(table string, col model.ColumnDescriptor) string {
	return "MODIFY " + table + "." + col.Name
}
func (f *fakeAdapter) BuildDropColumn(table, columnName string) string {
	return "DROPCOL " + table + "." + columnName
}
func (f *fakeAdapter) BuildCreateIndex(table string, idx model.IndexDescriptor) string {
	return "CREATEIDX " + table + "." + idx.Name
}
func (f *fakeAdapter) BuildDropIndex(table, indexName string) string {
	return "DROPIDX " + table + "." + indexName
}

func (f *fakeAdapter) CountRows(_ context.Context, table string) (int64, error) {
	t, ok := f.tables[table]
	if !ok || f.missing[table] {
		return 0, errTableMissing
	}
	return int64(len(t.rows)), nil
}

func (f *fakeAdapter) SelectAll(_ context.Context, table string, columns []string) ([]dialect.Row, error) {
	return projectRows(f.tables[table].rows, columns), nil
}

func (f *fakeAdapter) SelectWhereGreater(_ context.Context, table, column string, value any, columns []string) ([]dialect.Row, error) {
	var out []dialect.Row
	for _, r := range f.tables[table].rows {
		v, ok := r[column]
		if !ok {
			continue
		}
		if greaterThan(v, value) {
			out = append(out, r)
		}
	}
	return projectRows(out, columns), nil
}

func (f *fakeAdapter) SelectColumnValues(_ context.Context, table, column string) ([]any, error) {
	var out []any
	for _, r := range f.tables[table].rows {
		out = append(out, r[column])
	}
	return out, nil
}

func (f *fakeAdapter) SelectRowsByKeys(_ context.Context, table, pkColumn string, keys []any, columns []string) ([]dialect.Row, error) {
	wanted := map[string]bool{}
	for _, k := range keys {
		wanted[toStr(k)] = true
	}
	var out []dialect.Row
	for _, r := range f.tables[table].rows {
		if wanted[toStr(r[pkColumn])] {
			out = append(out, r)
		}
	}
	return projectRows(out, columns), nil
}

func (f *fakeAdapter) InsertRows(_ context.Context, table string, columns []string, rows []dialect.Row) (int64, error) {
	t := f.tables[table]
	t.rows = append(t.rows, rows...)
	return int64(len(rows)), nil
}

func (f *fakeAdapter) UpsertRows(_ context.Context, table string, columns []string, primaryKey string, rows []dialect.Row) (int64, error) {
	t := f.tables[table]
	for _, row := range rows {
		found := false
		for i, existing := range t.rows {
			if toStr(existing[primaryKey]) == toStr(row[primaryKey]) {
				t.rows[i] = row
				found = true
				break
			}
		}
		if !found {
			t.rows = append(t.rows, row)
		}
	}
	return int64(len(rows)), nil
}

func (f *fakeAdapter) DeleteByKeys(_ context.Context, table, pkColumn string, keys []any) (int64, error) {
	wanted := map[string]bool{}
	for _, k := range keys {
		wanted[toStr(k)] = true
	}
	t := f.tables[table]
	var kept []dialect.Row
	var deleted int64
	for _, r := range t.rows {
		if wanted[toStr(r[pkColumn])] {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	t.rows = kept
	return deleted, nil
}

func projectRows(rows []dialect.Row, columns []string) []dialect.Row {
	out := make([]dialect.Row, len(rows))
	for i, r := range rows {
		nr := make(dialect.Row, len(columns))
		for _, c := range columns {
			nr[c] = r[c]
		}
		out[i] = nr
	}
	return out
}

func toStr(v any) string {
	if v == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%v", v)
}

// greaterThan compares the two common witness-column value shapes the
// fake store uses in tests: time.Time and int (a logical sequence number).
func greaterThan(a, b any) bool {
	switch av := a.(type) {
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.After(bv)
		}
	case int:
		if bv, ok := b.(int); ok {
			return av > bv
		}
	}
	return false
}
