// Package dialect implements the Dialect Adapter: the one boundary
// where MySQL/PostgreSQL differences live. Both concrete adapters share a
// database/sql connection (PostgreSQL via jackc/pgx/v5/stdlib registered as
// a database/sql driver) so the rest of the engine issues the same
// Query/Exec calls regardless of engine. The interface is a capability set
// with a constructor factory (New), extended with target-side mutators
// (createTable, alterTable, insertRows, upsertRows, ...) since either side
// of a pair can be written to, not just read from.
package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Limetric/dbsyncd/internal/dberrors"
	"github.com/Limetric/dbsyncd/internal/model"
)

// Kind discriminates the two supported engines. The rest of the engine
// branches on this explicit discriminator rather than on the adapter's
// concrete Go type.
type Kind string

const (
	MySQL      Kind = "mysql"
	PostgreSQL Kind = "postgresql"
)

// Row is a homogeneous column-keyed tuple, as returned by Query and the row
// I/O operations.
type Row map[string]any

// MaxPoolConns is the default bounded connection pool size.
const MaxPoolConns = 10

// Adapter is the capability set every engine implements. All operations
// that read from or write to a database flow through this interface.
type Adapter interface {
	Dialect() Kind
	ConnectionName() string

	Connect(ctx context.Context) error
	Close() error
	IsConnected() bool

	Query(ctx context.Context, query string, args ...any) ([]Row, error)
	Exec(ctx context.Context, query string, args ...any) (int64, error)

	EscapeIdentifier(name string) string
	Placeholder(position int) string

	GetTables(ctx context.Context) ([]model.TableDescriptor, error)
	GetColumns(ctx context.Context, table string) ([]model.ColumnDescriptor, error)
	GetIndexes(ctx context.Context, table string) ([]model.IndexDescriptor, error)
	GetPrimaryKey(ctx context.Context, table string) (string, error)

	GetProcedures(ctx context.Context, kind model.RoutineKind) ([]model.RoutineDescriptor, error)
	GetTriggers(ctx context.Context) ([]model.RoutineDescriptor, error)
	ExecuteRoutineDDL(ctx context.Context, ddl string) error
	DropRoutine(ctx context.Context, kind model.RoutineKind, name string) error

	CreateTable(ctx context.Context, ddl string) error
	AlterTable(ctx context.Context, ddl string) error
	DropTable(ctx context.Context, table string) error
	TruncateTable(ctx context.Context, table string) error

	// BuildAddColumn / BuildModifyColumn / BuildDropColumn generate the
	// dialect-native ALTER TABLE fragment for updateTableStructure.
	BuildAddColumn(table string, col model.ColumnDescriptor) string
	BuildModifyColumn(table string, col model.ColumnDescriptor) string
	BuildDropColumn(table string, columnName string) string
	BuildCreateIndex(table string, idx model.IndexDescriptor) string
	BuildDropIndex(table string, indexName string) string

	CountRows(ctx context.Context, table string) (int64, error)
	SelectAll(ctx context.Context, table string, columns []string) ([]Row, error)
	SelectWhereGreater(ctx context.Context, table, column string, value any, columns []string) ([]Row, error)
	SelectColumnValues(ctx context.Context, table, column string) ([]any, error)
	SelectRowsByKeys(ctx context.Context, table, pkColumn string, keys []any, columns []string) ([]Row, error)

	InsertRows(ctx context.Context, table string, columns []string, rows []Row) (int64, error)
	UpsertRows(ctx context.Context, table string, columns []string, primaryKey string, rows []Row) (int64, error)
	DeleteByKeys(ctx context.Context, table, pkColumn string, keys []any) (int64, error)
}

// New returns an Adapter for the given connection spec's engine kind.
func New(spec model.ConnectionSpec) (Adapter, error) {
	switch spec.Engine {
	case model.EngineMySQL:
		return newMySQLAdapter(spec), nil
	case model.EnginePostgreSQL:
		return newPostgreSQLAdapter(spec), nil
	default:
		return nil, dberrors.New(dberrors.ConfigurationInvalid, nil,
			fmt.Sprintf("unsupported engine kind %q (must be mysql or postgresql)", spec.Engine))
	}
}

// sqlBase is the database/sql plumbing shared by both adapters: pool
// lifecycle and a generic, column-keyed Query/Exec pair. Each concrete
// adapter embeds this and supplies its own driver name/DSN and all
// dialect-specific SQL generation.
type sqlBase struct {
	spec       model.ConnectionSpec
	driverName string
	dsn        string
	db         *sql.DB
}

func (b *sqlBase) ConnectionName() string { return b.spec.Name }

func (b *sqlBase) Connect(ctx context.Context) error {
	db, err := sql.Open(b.driverName, b.dsn)
	if err != nil {
		return dberrors.New(dberrors.ConnectionFailed, err, "open "+b.spec.Name)
	}
	db.SetMaxOpenConns(MaxPoolConns)
	db.SetMaxIdleConns(MaxPoolConns)
	db.SetConnMaxLifetime(time.Hour)

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, err := db.Conn(connCtx)
	if err != nil {
		db.Close()
		return dberrors.New(dberrors.ConnectionFailed, err, "connect "+b.spec.Name)
	}
	conn.Close()

	b.db = db
	return nil
}

func (b *sqlBase) Close() error {
	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}

func (b *sqlBase) IsConnected() bool {
	if b.db == nil {
		return false
	}
	return b.db.PingContext(context.Background()) == nil
}

func (b *sqlBase) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dberrors.New(dberrors.QueryFailed, err, query)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, dberrors.New(dberrors.QueryFailed, err, "columns")
	}

	var out []Row
	for rows.Next() {
		dest := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, dberrors.New(dberrors.QueryFailed, err, "scan")
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			row[c] = normalizeScanned(dest[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, dberrors.New(dberrors.QueryFailed, err, "iterate rows")
	}
	return out, nil
}

func (b *sqlBase) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := b.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, dberrors.New(dberrors.QueryFailed, err, query)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil // driver doesn't support RowsAffected; not an error condition
	}
	return n, nil
}

// normalizeScanned turns driver-returned []byte (common for TEXT/VARCHAR
// columns scanned into `any`) into string, so downstream comparisons and
// re-insertion don't have to special-case byte slices per driver.
func normalizeScanned(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
