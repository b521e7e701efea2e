package worker

import (
	"context"
	"fmt"

	"github.com/Limetric/dbsyncd/internal/dialect"
	"github.com/Limetric/dbsyncd/internal/model"
)

// fakeTable is an in-memory table used by fakeAdapter.
type fakeTable struct {
	desc model.TableDescriptor
	rows []dialect.Row
}

// fakeAdapter is a minimal in-memory dialect.Adapter, sufficient to drive
// a Worker's initial sync and ticks without a live database. Methods this
// package's tests never exercise panic, so an unplanned dependency is
// caught immediately rather than silently returning zero values.
type fakeAdapter struct {
	name   string
	tables map[string]*fakeTable
	closed bool
}

func newFakeAdapter(name string) *fakeAdapter {
	return &fakeAdapter{name: name, tables: map[string]*fakeTable{}}
}

func (f *fakeAdapter) addTable(desc model.TableDescriptor, rows []dialect.Row) {
	cp := make([]dialect.Row, len(rows))
	copy(cp, rows)
	f.tables[desc.Name] = &fakeTable{desc: desc, rows: cp}
}

func (f *fakeAdapter) Dialect() dialect.Kind         { return dialect.MySQL }
func (f *fakeAdapter) ConnectionName() string        { return f.name }
func (f *fakeAdapter) Connect(context.Context) error { return nil }
func (f *fakeAdapter) Close() error                  { f.closed = true; return nil }
func (f *fakeAdapter) IsConnected() bool             { return true }

func (f *fakeAdapter) Query(context.Context, string, ...any) ([]dialect.Row, error) {
	panic("not used by worker tests")
}
func (f *fakeAdapter) Exec(context.Context, string, ...any) (int64, error) {
	panic("not used by worker tests")
}

func (f *fakeAdapter) EscapeIdentifier(name string) string { return "`" + name + "`" }
func (f *fakeAdapter) Placeholder(int) string              { return "?" }

func (f *fakeAdapter) GetTables(context.Context) ([]model.TableDescriptor, error) {
	var out []model.TableDescriptor
	for _, t := range f.tables {
		out = append(out, t.desc)
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
	return nil, nil
}
func (f *fakeAdapter) GetTriggers(context.Context) ([]model.RoutineDescriptor, error) { return nil, nil }
func (f *fakeAdapter) ExecuteRoutineDDL(context.Context, string) error                { return nil }
func (f *fakeAdapter) DropRoutine(context.Context, model.RoutineKind, string) error   { return nil }

func (f *fakeAdapter) CreateTable(_ context.Context, ddl string) error {
	f.tables[ddl] = &fakeTable{desc: model.TableDescriptor{Name: ddl}}
	return nil
}
func (f *fakeAdapter) AlterTable(context.Context, string) error { return nil }
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
	if !ok {
		return 0, fmt.Errorf("table %s missing", table)
	}
	return int64(len(t.rows)), nil
}

func (f *fakeAdapter) SelectAll(_ context.Context, table string, columns []string) ([]dialect.Row, error) {
	return projectRows(f.tables[table].rows, columns), nil
}
func (f *fakeAdapter) SelectWhereGreater(context.Context, string, string, any, []string) ([]dialect.Row, error) {
	return nil, nil
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
		wanted[fmt.Sprintf("%v", k)] = true
	}
	var out []dialect.Row
	for _, r := range f.tables[table].rows {
		if wanted[fmt.Sprintf("%v", r[pkColumn])] {
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
	t.rows = append(t.rows, rows...)
	return int64(len(rows)), nil
}
func (f *fakeAdapter) DeleteByKeys(_ context.Context, table, pkColumn string, keys []any) (int64, error) {
	return 0, nil
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
