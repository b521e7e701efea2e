package dialect

import (
	"context"
	"fmt"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"

	"github.com/Limetric/dbsyncd/internal/dberrors"
	"github.com/Limetric/dbsyncd/internal/model"
)

// mysqlAdapter is the MySQL Dialect Adapter. Introspection runs against
// INFORMATION_SCHEMA.TABLES / COLUMNS / STATISTICS / ROUTINES / TRIGGERS; table and
// routine DDL text comes straight from SHOW CREATE TABLE / SHOW CREATE
// {PROCEDURE,FUNCTION,TRIGGER}.
type mysqlAdapter struct {
	sqlBase
}

func newMySQLAdapter(spec model.ConnectionSpec) *mysqlAdapter {
	cfg := mysqldriver.NewConfig()
	cfg.User = spec.User
	cfg.Passwd = spec.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", spec.Host, spec.Port)
	cfg.DBName = spec.Database
	cfg.ParseTime = true
	cfg.InterpolateParams = true

	return &mysqlAdapter{sqlBase: sqlBase{
		spec:       spec,
		driverName: "mysql",
		dsn:        cfg.FormatDSN(),
	}}
}

func (a *mysqlAdapter) Dialect() Kind { return MySQL }

func (a *mysqlAdapter) EscapeIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (a *mysqlAdapter) Placeholder(int) string { return "?" }

func (a *mysqlAdapter) GetTables(ctx context.Context) ([]model.TableDescriptor, error) {
	rows, err := a.Query(ctx,
		`SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
		 WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE'
		 ORDER BY TABLE_NAME`)
	if err != nil {
		return nil, err
	}

	var tables []model.TableDescriptor
	for _, r := range rows {
		name := fmt.Sprintf("%v", r["TABLE_NAME"])
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

		create, err := a.showCreateTable(ctx, name)
		if err != nil {
			return nil, err
		}
		td.CreateStatement = create

		tables = append(tables, td)
	}
	return tables, nil
}

func (a *mysqlAdapter) showCreateTable(ctx context.Context, table string) (string, error) {
	rows, err := a.Query(ctx, fmt.Sprintf("SHOW CREATE TABLE %s", a.EscapeIdentifier(table)))
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", dberrors.New(dberrors.QueryFailed, nil, "SHOW CREATE TABLE returned no rows for "+table)
	}
	return fmt.Sprintf("%v", rows[0]["Create Table"]), nil
}

func (a *mysqlAdapter) GetColumns(ctx context.Context, table string) ([]model.ColumnDescriptor, error) {
	rows, err := a.Query(ctx,
		`SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE, COLUMN_DEFAULT, EXTRA, COLUMN_KEY
		 FROM INFORMATION_SCHEMA.COLUMNS
		 WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
		 ORDER BY ORDINAL_POSITION`, table)
	if err != nil {
		return nil, err
	}

	var cols []model.ColumnDescriptor
	for _, r := range rows {
		c := model.ColumnDescriptor{
			Name:       str(r["COLUMN_NAME"]),
			Type:       strings.ToLower(str(r["COLUMN_TYPE"])),
			Nullable:   str(r["IS_NULLABLE"]) == "YES",
			Extra:      strings.ToLower(str(r["EXTRA"])),
			PrimaryKey: str(r["COLUMN_KEY"]) == "PRI",
		}
		if r["COLUMN_DEFAULT"] != nil {
			c.Default = str(r["COLUMN_DEFAULT"])
		}
		cols = append(cols, c)
	}
	return cols, nil
}

func (a *mysqlAdapter) GetIndexes(ctx context.Context, table string) ([]model.IndexDescriptor, error) {
	rows, err := a.Query(ctx,
		`SELECT INDEX_NAME, NON_UNIQUE, SEQ_IN_INDEX, COLUMN_NAME, INDEX_TYPE
		 FROM INFORMATION_SCHEMA.STATISTICS
		 WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
		 ORDER BY INDEX_NAME, SEQ_IN_INDEX`, table)
	if err != nil {
		return nil, err
	}

	order := make([]string, 0)
	byName := make(map[string]*model.IndexDescriptor)
	for _, r := range rows {
		name := str(r["INDEX_NAME"])
		if name == "PRIMARY" {
			continue // primary key surfaces via ColumnDescriptor.PrimaryKey, not IndexDescriptor
		}
		idx, ok := byName[name]
		if !ok {
			idx = &model.IndexDescriptor{
				Name:   name,
				Unique: str(r["NON_UNIQUE"]) == "0",
				Type:   strings.ToUpper(str(r["INDEX_TYPE"])),
			}
			byName[name] = idx
			order = append(order, name)
		}
		idx.Columns = append(idx.Columns, str(r["COLUMN_NAME"]))
	}

	var out []model.IndexDescriptor
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out, nil
}

func (a *mysqlAdapter) GetPrimaryKey(ctx context.Context, table string) (string, error) {
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

func (a *mysqlAdapter) GetProcedures(ctx context.Context, kind model.RoutineKind) ([]model.RoutineDescriptor, error) {
	routineType := "PROCEDURE"
	showKeyword := "PROCEDURE"
	if kind == model.RoutineFunction {
		routineType = "FUNCTION"
		showKeyword = "FUNCTION"
	}

	rows, err := a.Query(ctx,
		`SELECT ROUTINE_NAME FROM INFORMATION_SCHEMA.ROUTINES
		 WHERE ROUTINE_SCHEMA = DATABASE() AND ROUTINE_TYPE = ?
		 ORDER BY ROUTINE_NAME`, routineType)
	if err != nil {
		return nil, err
	}

	var out []model.RoutineDescriptor
	for _, r := range rows {
		name := str(r["ROUTINE_NAME"])
		create, err := a.showCreateRoutine(ctx, showKeyword, name)
		if err != nil {
			create = "" // keep the routine listed but never let it trigger drop+recreate
		}
		out = append(out, model.RoutineDescriptor{Name: name, Kind: kind, CreateStatement: create})
	}
	return out, nil
}

func (a *mysqlAdapter) showCreateRoutine(ctx context.Context, keyword, name string) (string, error) {
	rows, err := a.Query(ctx, fmt.Sprintf("SHOW CREATE %s %s", keyword, a.EscapeIdentifier(name)))
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", dberrors.New(dberrors.QueryFailed, nil, "SHOW CREATE "+keyword+" returned no rows")
	}
	// MySQL names the result column "Create Procedure"/"Create Function"/
	// "Create Trigger"; scan for whichever key starts with "Create ".
	for k, v := range rows[0] {
		if strings.HasPrefix(k, "Create ") {
			return str(v), nil
		}
	}
	return "", dberrors.New(dberrors.QueryFailed, nil, "unexpected SHOW CREATE result shape")
}

func (a *mysqlAdapter) GetTriggers(ctx context.Context) ([]model.RoutineDescriptor, error) {
	rows, err := a.Query(ctx,
		`SELECT TRIGGER_NAME FROM INFORMATION_SCHEMA.TRIGGERS
		 WHERE TRIGGER_SCHEMA = DATABASE() ORDER BY TRIGGER_NAME`)
	if err != nil {
		return nil, err
	}

	var out []model.RoutineDescriptor
	for _, r := range rows {
		name := str(r["TRIGGER_NAME"])
		create, err := a.showCreateRoutine(ctx, "TRIGGER", name)
		if err != nil {
			create = ""
		}
		out = append(out, model.RoutineDescriptor{Name: name, Kind: model.RoutineTrigger, CreateStatement: create})
	}
	return out, nil
}

func (a *mysqlAdapter) ExecuteRoutineDDL(ctx context.Context, ddl string) error {
	_, err := a.Exec(ctx, ddl)
	return err
}

func (a *mysqlAdapter) DropRoutine(ctx context.Context, kind model.RoutineKind, name string) error {
	keyword := map[model.RoutineKind]string{
		model.RoutineProcedure: "PROCEDURE",
		model.RoutineFunction:  "FUNCTION",
		model.RoutineTrigger:   "TRIGGER",
	}[kind]
	_, err := a.Exec(ctx, fmt.Sprintf("DROP %s IF EXISTS %s", keyword, a.EscapeIdentifier(name)))
	return err
}

func (a *mysqlAdapter) CreateTable(ctx context.Context, ddl string) error {
	if _, err := a.Exec(ctx, ddl); err != nil {
		return dberrors.New(dberrors.SchemaIncompatible, err, "create table")
	}
	return nil
}

func (a *mysqlAdapter) AlterTable(ctx context.Context, ddl string) error {
	if _, err := a.Exec(ctx, ddl); err != nil {
		return dberrors.New(dberrors.SchemaIncompatible, err, "alter table")
	}
	return nil
}

func (a *mysqlAdapter) DropTable(ctx context.Context, table string) error {
	_, err := a.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", a.EscapeIdentifier(table)))
	return err
}

func (a *mysqlAdapter) TruncateTable(ctx context.Context, table string) error {
	_, err := a.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s", a.EscapeIdentifier(table)))
	return err
}

func (a *mysqlAdapter) BuildAddColumn(table string, col model.ColumnDescriptor) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", a.EscapeIdentifier(table), a.columnDefinition(col))
}

func (a *mysqlAdapter) BuildModifyColumn(table string, col model.ColumnDescriptor) string {
	return fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s", a.EscapeIdentifier(table), a.columnDefinition(col))
}

func (a *mysqlAdapter) BuildDropColumn(table string, columnName string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", a.EscapeIdentifier(table), a.EscapeIdentifier(columnName))
}

func (a *mysqlAdapter) columnDefinition(col model.ColumnDescriptor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", a.EscapeIdentifier(col.Name), col.Type)
	if !col.Nullable {
		b.WriteString(" NOT NULL")
	}
	if col.Default != "" {
		fmt.Fprintf(&b, " DEFAULT %s", col.Default)
	}
	if col.Extra != "" {
		fmt.Fprintf(&b, " %s", col.Extra)
	}
	return b.String()
}

func (a *mysqlAdapter) BuildCreateIndex(table string, idx model.IndexDescriptor) string {
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

func (a *mysqlAdapter) BuildDropIndex(table string, indexName string) string {
	return fmt.Sprintf("DROP INDEX %s ON %s", a.EscapeIdentifier(indexName), a.EscapeIdentifier(table))
}

func (a *mysqlAdapter) CountRows(ctx context.Context, table string) (int64, error) {
	rows, err := a.Query(ctx, fmt.Sprintf("SELECT COUNT(*) AS c FROM %s", a.EscapeIdentifier(table)))
	if err != nil {
		return 0, err
	}
	return toInt64(rows[0]["c"]), nil
}

func (a *mysqlAdapter) SelectAll(ctx context.Context, table string, columns []string) ([]Row, error) {
	return a.Query(ctx, fmt.Sprintf("SELECT %s FROM %s", a.columnList(columns), a.EscapeIdentifier(table)))
}

func (a *mysqlAdapter) SelectWhereGreater(ctx context.Context, table, column string, value any, columns []string) ([]Row, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s > ?", a.columnList(columns), a.EscapeIdentifier(table), a.EscapeIdentifier(column))
	return a.Query(ctx, q, value)
}

func (a *mysqlAdapter) SelectColumnValues(ctx context.Context, table, column string) ([]any, error) {
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

func (a *mysqlAdapter) SelectRowsByKeys(ctx context.Context, table, pkColumn string, keys []any, columns []string) ([]Row, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(keys))
	for i := range keys {
		placeholders[i] = "?"
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)",
		a.columnList(columns), a.EscapeIdentifier(table), a.EscapeIdentifier(pkColumn), strings.Join(placeholders, ", "))
	return a.Query(ctx, q, keys...)
}

func (a *mysqlAdapter) InsertRows(ctx context.Context, table string, columns []string, rows []Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	var total int64
	colList := a.columnList(columns)
	placeholderRow := "(" + strings.Repeat("?,", len(columns)-1) + "?)"

	for _, r := range rows {
		args := make([]any, len(columns))
		for i, c := range columns {
			args[i] = r[c]
		}
		q := fmt.Sprintf("REPLACE INTO %s (%s) VALUES %s", a.EscapeIdentifier(table), colList, placeholderRow)
		n, err := a.Exec(ctx, q, args...)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (a *mysqlAdapter) UpsertRows(ctx context.Context, table string, columns []string, primaryKey string, rows []Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	colList := a.columnList(columns)
	placeholderRow := "(" + strings.Repeat("?,", len(columns)-1) + "?)"

	var updates []string
	for _, c := range columns {
		if c == primaryKey {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = VALUES(%s)", a.EscapeIdentifier(c), a.EscapeIdentifier(c)))
	}

	var total int64
	for _, r := range rows {
		args := make([]any, len(columns))
		for i, c := range columns {
			args[i] = r[c]
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s ON DUPLICATE KEY UPDATE %s",
			a.EscapeIdentifier(table), colList, placeholderRow, strings.Join(updates, ", "))
		n, err := a.Exec(ctx, q, args...)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (a *mysqlAdapter) DeleteByKeys(ctx context.Context, table, pkColumn string, keys []any) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	placeholders := make([]string, len(keys))
	for i := range keys {
		placeholders[i] = "?"
	}
	q := fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)", a.EscapeIdentifier(table), a.EscapeIdentifier(pkColumn), strings.Join(placeholders, ", "))
	return a.Exec(ctx, q, keys...)
}

func (a *mysqlAdapter) columnList(columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = a.EscapeIdentifier(c)
	}
	return strings.Join(quoted, ", ")
}

func str(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
