// Package model holds the plain data shapes shared across dbsyncd's
// replication engine: connection and pair configuration, the descriptors an
// Adapter returns from introspection, and the in-memory per-table sync
// state a Pair Worker evolves between ticks.
package model

import "time"

// Engine identifies a supported database engine kind.
type Engine string

const (
	EngineMySQL      Engine = "mysql"
	EnginePostgreSQL Engine = "postgresql"
)

// ConnectionSpec describes one database connection. Immutable per run.
type ConnectionSpec struct {
	Name     string
	Engine   Engine
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// PairSpec describes one source→target replication stream.
type PairSpec struct {
	Name           string
	Source         string // connection name
	Target         string // connection name
	SyncSchema     bool
	SyncData       bool
	SyncProcedures bool
	SyncTriggers   bool
	IncludeTables  []string
	ExcludeTables  []string
	Enabled        bool
	LastSyncAt     time.Time
}

// IncludesTable reports whether t passes this pair's include/exclude filters.
// Matching is exact and case-sensitive. Include, if non-empty, is a
// whitelist; exclude is applied after include.
func (p *PairSpec) IncludesTable(t string) bool {
	if len(p.IncludeTables) > 0 {
		included := false
		for _, name := range p.IncludeTables {
			if name == t {
				included = true
				break
			}
		}
		if !included {
			return false
		}
	}
	for _, name := range p.ExcludeTables {
		if name == t {
			return false
		}
	}
	return true
}

// Settings holds daemon-wide tunables.
type Settings struct {
	PollInterval        time.Duration
	SchemaCheckInterval time.Duration
	LogLevel            string
	MaxRetries          int
	RetryDelay          time.Duration
}

// ColumnDescriptor describes one column of a table, as returned by an
// Adapter's introspection.
type ColumnDescriptor struct {
	Name       string
	Type       string
	Nullable   bool
	Default    string // empty means no default
	Extra      string
	PrimaryKey bool
}

// IndexDescriptor describes one index of a table.
type IndexDescriptor struct {
	Name    string
	Unique  bool
	Columns []string
	Type    string // e.g. BTREE, FULLTEXT
}

// TableDescriptor is the full introspected shape of one table.
type TableDescriptor struct {
	Name            string
	Columns         []ColumnDescriptor
	Indexes         []IndexDescriptor
	CreateStatement string
}

// PrimaryKeyColumn returns the name of the table's primary key column, or
// "" if the table has none (or has a composite key, which this engine
// treats the same as "no usable single-column key").
func (t *TableDescriptor) PrimaryKeyColumn() string {
	var found string
	count := 0
	for _, c := range t.Columns {
		if c.PrimaryKey {
			found = c.Name
			count++
		}
	}
	if count != 1 {
		return ""
	}
	return found
}

// RoutineKind discriminates the three kinds of procedural object replicated.
type RoutineKind string

const (
	RoutineProcedure RoutineKind = "PROCEDURE"
	RoutineFunction  RoutineKind = "FUNCTION"
	RoutineTrigger   RoutineKind = "TRIGGER"
)

// RoutineDescriptor is the canonical identity of one procedural object.
type RoutineDescriptor struct {
	Name            string
	Kind            RoutineKind
	CreateStatement string
}

// TableSyncState is per-table, per-pair, in-memory-only bookkeeping used to
// drive timestamp-window queries across ticks. It is seeded at initial sync
// and discarded when the worker stops.
type TableSyncState struct {
	LastSyncTime time.Time
	RowCount     int64 // affected rows in the most recent tick, not table cardinality
}
