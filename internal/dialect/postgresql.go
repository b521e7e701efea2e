package dialect

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" as a database/sql driver

	"github.com/Limetric/dbsyncd/internal/dberrors"
	"github.com/Limetric/dbsyncd/internal/model"
)

// postgresqlAdapter is the PostgreSQL Dialect Adapter. Because a pair can
// run PostgreSQL as either side (including PG→MySQL), this adapter must be
// able to introspect PostgreSQL as a source as well as write into it as a
// target, so getTables/getColumns/getIndexes synthesize a canonical CREATE
// TABLE from real information_schema/pg_catalog introspection rather than
// assuming a schema it just created itself. pgx is registered via its
// stdlib shim so this adapter shares sqlBase's Query/Exec with the MySQL
// adapter instead of using pgxpool natively.
type postgresqlAdapter struct {
	sqlBase
	schema string
}

func newPostgreSQLAdapter(spec model.ConnectionSpec) *postgresqlAdapter {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		spec.User, spec.Password, spec.Host, spec.Port, spec.Database)

	return &postgresqlAdapter{
		sqlBase: sqlBase{spec: spec, driverName: "pgx", dsn: dsn},
		schema:  "public",
	}
}

func (a *postgresqlAdapter) Dialect() Kind { return PostgreSQL }

func (a *postgresqlAdapter) EscapeIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (a *postgresqlAdapter) Placeholder(position int) string {
	return "$" + strconv.Itoa(position)
}

func (a *postgresqlAdapter) GetTables(ctx context.Context) ([]model.TableDescriptor, error) {
	rows, err := a.Query(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		 ORDER BY table_name`, a.schema)
	if err != nil {
		return nil, err
	}

	var tables []model.TableDescriptor
	for _, r := range rows {
		name := str(r["table_name"])
		td := model.TableDescriptor{Name: name}

		cols, err := a.GetColumns(ctx, name)
		if err != nil {
			return nil, err
		}
		td.Columns = cols

		idx, err := a.GetIndexes(ctx, name)
		if err != nil {
			return nil, err
		}
		td.Indexes = idx

		td.CreateStatement, err = a.synthesizeCreateTable(td)
		if err != nil {
			return nil, err
		}

		tables = append(tables, td)
	}
	return tables, nil
}

// synthesizeCreateTable builds a canonical CREATE TABLE from already
// introspected columns, emitting column lines in ordinal order with
// default and nullability.
func (a *postgresqlAdapter) synthesizeCreateTable(td model.TableDescriptor) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", a.EscapeIdentifier(td.Name))
	for i, col := range td.Columns {
		fmt.Fprintf(&b, "  %s %s", a.EscapeIdentifier(col.Name), col.Type)
		if col.Default != "" {
			fmt.Fprintf(&b, " DEFAULT %s", col.Default)
		}
		if !col.Nullable {
			b.WriteString(" NOT NULL")
		}
		if i < len(td.Columns)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString(")")
	return b.String(), nil
}

func (a *postgresqlAdapter) GetColumns(ctx context.Context, table string) ([]model.ColumnDescriptor, error) {
	rows, err := a.Query(ctx,
		`SELECT c.column_name, c.data_type, c.is_nullable, c.column_default,
		        COALESCE(
		          (SELECT true FROM information_schema.key_column_usage kcu
		           JOIN information_schema.table_constraints tc
		             ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		           WHERE tc.constraint_type = 'PRIMARY KEY'
		             AND kcu.table_schema = $1 AND kcu.table_name = $2 AND kcu.column_name = c.column_name),
		          false
		        ) AS is_pk
		 FROM information_schema.columns c
		 WHERE c.table_schema = $1 AND c.table_name = $2
		 ORDER BY c.ordinal_position`, a.schema, table)
	if err != nil {
		return nil, err
	}

	var cols []model.ColumnDescriptor
	for _, r := range rows {
		c := model.ColumnDescriptor{
			Name:       str(r["column_name"]),
			Type:       strings.ToLower(str(r["data_type"])),
			Nullable:   str(r["is_nullable"]) == "YES",
			PrimaryKey: asBool(r["is_pk"]),
		}
		if r["column_default"] != nil {
			c.Default = str(r["column_default"])
		}
		cols = append(cols, c)
	}
	return cols, nil
}

func (a *postgresqlAdapter) GetIndexes(ctx context.Context, table string) ([]model.IndexDescriptor, error) {
	rows, err := a.Query(ctx,
		`SELECT i.relname AS index_name, ix.indisunique AS is_unique, ix.indisprimary AS is_primary,
		        a.attname AS column_name, am.amname AS index_type
		 FROM pg_index ix
		 JOIN pg_class t ON t.oid = ix.indrelid
		 JOIN pg_class i ON i.oid = ix.indexrelid
		 JOIN pg_am am ON am.oid = i.relam
		 JOIN pg_namespace n ON n.oid = t.relnamespace
		 JOIN unnest(ix.indkey) WITH ORDINALITY AS k(attnum, ord) ON true
		 JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
		 WHERE t.relname = $1 AND n.nspname = $2
		 ORDER BY i.relname, k.ord`, table, a.schema)
	if err != nil {
		return nil, err
	}

	order := make([]string, 0)
	byName := make(map[string]*model.IndexDescriptor)
	for _, r := range rows {
		if asBool(r["is_primary"]) {
			continue // surfaced via ColumnDescriptor.PrimaryKey
		}
		name := str(r["index_name"])
		idx, ok := byName[name]
		if !ok {
			idx = &model.IndexDescriptor{
				Name:   name,
				Unique: asBool(r["is_unique"]),
				Type:   strings.ToUpper(str(r["index_type"])),
			}
			byName[name] = idx
			order = append(order, name)
		}
		idx.Columns = append(idx.Columns, str(r["column_name"]))
	}

	var out []model.IndexDescriptor
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out, nil
}

func (a *postgresqlAdapter) GetPrimaryKey(ctx context.Context, table string) (string, error) {
	cols, err := a.GetColumns(ctx, table)
	if err != nil {
		return "", err
	}
	name := ""
	count := 0
	for _, c := range cols {
		if c.PrimaryKey {
			name = c.Name
			count++
		}
	}
	if count != 1 {
		return "", nil
	}
	return name, nil
}

func (a *postgresqlAdapter) GetProcedures(ctx context.Context, kind model.RoutineKind) ([]model.RoutineDescriptor, error) {
	routineType := "PROCEDURE"
	if kind == model.RoutineFunction {
		routineType = "FUNCTION"
	}

	rows, err := a.Query(ctx,
		`SELECT routine_name FROM information_schema.routines
		 WHERE routine_schema = $1 AND routine_type = $2
		 ORDER BY routine_name`, a.schema, routineType)
	if err != nil {
		return nil, err
	}

	var out []model.RoutineDescriptor
	for _, r := range rows {
		name := str(r["routine_name"])
		create, err := a.pgGetCreateFunction(ctx, name)
		if err != nil {
			create = "" // keep the routine listed but never let it trigger drop+recreate
		}
		out = append(out, model.RoutineDescriptor{Name: name, Kind: kind, CreateStatement: create})
	}
	return out, nil
}

// pgGetCreateFunction reconstructs the CREATE statement for a function or
// procedure via pg_get_functiondef, PostgreSQL's native "show me the source"
// builtin (the nearest equivalent to MySQL's SHOW CREATE).
func (a *postgresqlAdapter) pgGetCreateFunction(ctx context.Context, name string) (string, error) {
	rows, err := a.Query(ctx,
		`SELECT pg_get_functiondef(p.oid) AS def
		 FROM pg_proc p
		 JOIN pg_namespace n ON n.oid = p.pronamespace
		 WHERE n.nspname = $1 AND p.proname = $2
		 LIMIT 1`, a.schema, name)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", dberrors.New(dberrors.QueryFailed, nil, "pg_get_functiondef returned no rows for "+name)
	}
	return str(rows[0]["def"]), nil
}

func (a *postgresqlAdapter) GetTriggers(ctx context.Context) ([]model.RoutineDescriptor, error) {
	rows, err := a.Query(ctx,
		`SELECT trigger_name FROM information_schema.triggers
		 WHERE trigger_schema = $1 GROUP BY trigger_name ORDER BY trigger_name`, a.schema)
	if err != nil {
		return nil, err
	}

	var out []model.RoutineDescriptor
	for _, r := range rows {
		name := str(r["trigger_name"])
		create, err := a.pgGetTriggerDef(ctx, name)
		if err != nil {
			create = ""
		}
		out = append(out, model.RoutineDescriptor{Name: name, Kind: model.RoutineTrigger, CreateStatement: create})
	}
	return out, nil
}

func (a *postgresqlAdapter) pgGetTriggerDef(ctx context.Context, name string) (string, error) {
	rows, err := a.Query(ctx,
		`SELECT pg_get_triggerdef(t.oid) AS def
		 FROM pg_trigger t
		 JOIN pg_class c ON c.oid = t.tgrelid
		 JOIN pg_namespace n ON n.oid = c.relnamespace
		 WHERE n.nspname = $1 AND t.tgname = $2 AND NOT t.tgisinternal
		 LIMIT 1`, a.schema, name)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", dberrors.New(dberrors.QueryFailed, nil, "pg_get_triggerdef returned no rows for "+name)
	}
	return str(rows[0]["def"]), nil
}

func (a *postgresqlAdapter) ExecuteRoutineDDL(ctx context.Context, ddl string) error {
	_, err := a.Exec(ctx, ddl)
	return err
}

func (a *postgresqlAdapter) DropRoutine(ctx context.Context, kind model.RoutineKind, name string) error {
	switch kind {
	case model.RoutineTrigger:
		// Triggers are namespaced to their table in PostgreSQL.
		rows, err := a.Query(ctx,
			`SELECT c.relname AS table_name FROM pg_trigger t
			 JOIN pg_class c ON c.oid = t.tgrelid
			 JOIN pg_namespace n ON n.oid = c.relnamespace
			 WHERE n.nspname = $1 AND t.tgname = $2 AND NOT t.tgisinternal`, a.schema, name)
		if err != nil {
			return err
		}
		for _, r := range rows {
			q := fmt.Sprintf("DROP TRIGGER IF EXISTS %s ON %s", a.EscapeIdentifier(name), a.EscapeIdentifier(str(r["table_name"])))
			if _, err := a.Exec(ctx, q); err != nil {
				return err
			}
		}
		return nil
	default:
		keyword := "PROCEDURE"
		if kind == model.RoutineFunction {
			keyword = "FUNCTION"
		}
		_, err := a.Exec(ctx, fmt.Sprintf("DROP %s IF EXISTS %s", keyword, a.EscapeIdentifier(name)))
		return err
	}
}

func (a *postgresqlAdapter) CreateTable(ctx context.Context, ddl string) error {
	if _, err := a.Exec(ctx, ddl); err != nil {
		return dberrors.New(dberrors.SchemaIncompatible, err, "create table")
	}
	return nil
}

func (a *postgresqlAdapter) AlterTable(ctx context.Context, ddl string) error {
	if _, err := a.Exec(ctx, ddl); err != nil {
		return dberrors.New(dberrors.SchemaIncompatible, err, "alter table")
	}
	return nil
}

func (a *postgresqlAdapter) DropTable(ctx context.Context, table string) error {
	_, err := a.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", a.EscapeIdentifier(table)))
	return err
}

func (a *postgresqlAdapter) TruncateTable(ctx context.Context, table string) error {
	_, err := a.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s", a.EscapeIdentifier(table)))
	return err
}

func (a *postgresqlAdapter) BuildAddColumn(table string, col model.ColumnDescriptor) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", a.EscapeIdentifier(table), a.columnDefinition(col))
}

func (a *postgresqlAdapter) BuildModifyColumn(table string, col model.ColumnDescriptor) string {
	var stmts []string
	ident := a.EscapeIdentifier(col.Name)
	stmts = append(stmts, fmt.Sprintf("ALTER COLUMN %s TYPE %s USING %s::%s", ident, col.Type, ident, col.Type))
	if col.Nullable {
		stmts = append(stmts, fmt.Sprintf("ALTER COLUMN %s DROP NOT NULL", ident))
	} else {
		stmts = append(stmts, fmt.Sprintf("ALTER COLUMN %s SET NOT NULL", ident))
	}
	if col.Default != "" {
		stmts = append(stmts, fmt.Sprintf("ALTER COLUMN %s SET DEFAULT %s", ident, col.Default))
	} else {
		stmts = append(stmts, fmt.Sprintf("ALTER COLUMN %s DROP DEFAULT", ident))
	}
	return fmt.Sprintf("ALTER TABLE %s %s", a.EscapeIdentifier(table), strings.Join(stmts, ", "))
}

func (a *postgresqlAdapter) BuildDropColumn(table string, columnName string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", a.EscapeIdentifier(table), a.EscapeIdentifier(columnName))
}

func (a *postgresqlAdapter) columnDefinition(col model.ColumnDescriptor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", a.EscapeIdentifier(col.Name), col.Type)
	if !col.Nullable {
		b.WriteString(" NOT NULL")
	}
	if col.Default != "" {
		fmt.Fprintf(&b, " DEFAULT %s", col.Default)
	}
	return b.String()
}

func (a *postgresqlAdapter) BuildCreateIndex(table string, idx model.IndexDescriptor) string {
	kind := "INDEX"
	if idx.Unique {
		kind = "UNIQUE INDEX"
	}
	cols := make([]string, len(idx.Columns))
	for i, c := range idx.Columns {
		cols[i] = a.EscapeIdentifier(c)
	}
	return fmt.Sprintf("CREATE %s %s ON %s (%s)", kind, a.EscapeIdentifier(idx.Name), a.EscapeIdentifier(table), strings.Join(cols, ", "))
}

func (a *postgresqlAdapter) BuildDropIndex(table string, indexName string) string {
	return fmt.Sprintf("DROP INDEX IF EXISTS %s", a.EscapeIdentifier(indexName))
}

func (a *postgresqlAdapter) CountRows(ctx context.Context, table string) (int64, error) {
	rows, err := a.Query(ctx, fmt.Sprintf("SELECT COUNT(*) AS c FROM %s", a.EscapeIdentifier(table)))
	if err != nil {
		return 0, err
	}
	return toInt64(rows[0]["c"]), nil
}

func (a *postgresqlAdapter) SelectAll(ctx context.Context, table string, columns []string) ([]Row, error) {
	return a.Query(ctx, fmt.Sprintf("SELECT %s FROM %s", a.columnList(columns), a.EscapeIdentifier(table)))
}

func (a *postgresqlAdapter) SelectWhereGreater(ctx context.Context, table, column string, value any, columns []string) ([]Row, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s > $1", a.columnList(columns), a.EscapeIdentifier(table), a.EscapeIdentifier(column))
	return a.Query(ctx, q, value)
}

func (a *postgresqlAdapter) SelectColumnValues(ctx context.Context, table, column string) ([]any, error) {
	rows, err := a.Query(ctx, fmt.Sprintf("SELECT %s FROM %s", a.EscapeIdentifier(column), a.EscapeIdentifier(table)))
	if err != nil {
		return nil, err
	}
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r[column]
	}
	return out, nil
}

func (a *postgresqlAdapter) SelectRowsByKeys(ctx context.Context, table, pkColumn string, keys []any, columns []string) ([]Row, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(keys))
	for i := range keys {
		placeholders[i] = a.Placeholder(i + 1)
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)",
		a.columnList(columns), a.EscapeIdentifier(table), a.EscapeIdentifier(pkColumn), strings.Join(placeholders, ", "))
	return a.Query(ctx, q, keys...)
}

func (a *postgresqlAdapter) InsertRows(ctx context.Context, table string, columns []string, rows []Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	var total int64
	colList := a.columnList(columns)

	for _, r := range rows {
		args := make([]any, len(columns))
		placeholders := make([]string, len(columns))
		for i, c := range columns {
			args[i] = r[c]
			placeholders[i] = a.Placeholder(i + 1)
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", a.EscapeIdentifier(table), colList, strings.Join(placeholders, ", "))
		n, err := a.Exec(ctx, q, args...)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (a *postgresqlAdapter) UpsertRows(ctx context.Context, table string, columns []string, primaryKey string, rows []Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	colList := a.columnList(columns)

	var updates []string
	for _, c := range columns {
		if c == primaryKey {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", a.EscapeIdentifier(c), a.EscapeIdentifier(c)))
	}

	var total int64
	for _, r := range rows {
		args := make([]any, len(columns))
		placeholders := make([]string, len(columns))
		for i, c := range columns {
			args[i] = r[c]
			placeholders[i] = a.Placeholder(i + 1)
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
			a.EscapeIdentifier(table), colList, strings.Join(placeholders, ", "), a.EscapeIdentifier(primaryKey), strings.Join(updates, ", "))
		n, err := a.Exec(ctx, q, args...)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (a *postgresqlAdapter) DeleteByKeys(ctx context.Context, table, pkColumn string, keys []any) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	placeholders := make([]string, len(keys))
	for i := range keys {
		placeholders[i] = a.Placeholder(i + 1)
	}
	q := fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)", a.EscapeIdentifier(table), a.EscapeIdentifier(pkColumn), strings.Join(placeholders, ", "))
	return a.Exec(ctx, q, keys...)
}

func (a *postgresqlAdapter) columnList(columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = a.EscapeIdentifier(c)
	}
	return strings.Join(quoted, ", ")
}

func asBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "t" || b == "true"
	default:
		return false
	}
}
