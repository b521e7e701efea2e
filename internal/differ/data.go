// Package differ implements the Data Differ and Schema Differ: the
// per-table change-detection algorithm over heterogeneous engines, and
// the DDL reconciliation between a source and target TableDescriptor. The
// data side is an incremental set-difference reconciliation rather than a
// one-shot bulk copy, since a table may already hold rows from a previous
// tick by the time this runs.
package differ

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Limetric/dbsyncd/internal/dialect"
	"github.com/Limetric/dbsyncd/internal/model"
)

// deleteBatchSize bounds DELETE ... WHERE pk IN (...) batches.
const deleteBatchSize = 100

// countFallbackThreshold is the 0.5 factor in the count-based fallback
// rule: a primary-key upsert+delete reconciliation is attempted only when
// the row-count delta is less than half of the source's row count.
const countFallbackThreshold = 0.5

// TickResult summarizes one data tick across every selected table: a
// tick's success is true iff no table errored.
type TickResult struct {
	Success bool
	Errors  []string
	Tables  []TableResult
}

// TableResult is the outcome of one table within a tick.
type TableResult struct {
	Table    string
	Inserted int64
	Updated  int64
	Deleted  int64
	Warning  string
	Err      error
}

// DataDiffer runs the Data Differ algorithm for one pair.
type DataDiffer struct {
	log *zap.SugaredLogger
}

// New returns a DataDiffer logging through the given component logger.
func New(log *zap.SugaredLogger) *DataDiffer {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &DataDiffer{log: log}
}

// SelectTables filters a source table list by the pair's include/exclude
// rules.
func SelectTables(tables []model.TableDescriptor, pair *model.PairSpec) []model.TableDescriptor {
	var out []model.TableDescriptor
	for _, t := range tables {
		if pair.IncludesTable(t.Name) {
			out = append(out, t)
		}
	}
	return out
}

// InitialSync performs the one-shot per-table initial sync.
func (d *DataDiffer) InitialSync(ctx context.Context, source, target dialect.Adapter, pair *model.PairSpec, states map[string]*model.TableSyncState) TickResult {
	return d.run(ctx, source, target, pair, states, true)
}

// Tick performs one steady-state data poll.
func (d *DataDiffer) Tick(ctx context.Context, source, target dialect.Adapter, pair *model.PairSpec, states map[string]*model.TableSyncState) TickResult {
	return d.run(ctx, source, target, pair, states, false)
}

func (d *DataDiffer) run(ctx context.Context, source, target dialect.Adapter, pair *model.PairSpec, states map[string]*model.TableSyncState, initial bool) TickResult {
	result := TickResult{Success: true}

	sourceTables, err := source.GetTables(ctx)
	if err != nil {
		result.Success = false
		result.Errors = append(result.Errors, fmt.Sprintf("list source tables: %v", err))
		return result
	}

	selected := SelectTables(sourceTables, pair)
	for _, td := range selected {
		tr := d.tickTable(ctx, source, target, td, states, initial)
		result.Tables = append(result.Tables, tr)
		if tr.Err != nil {
			result.Success = false
			result.Errors = append(result.Errors, fmt.Sprintf("table %s: %v", tr.Table, tr.Err))
			d.log.Errorw("table tick failed", "table", tr.Table, "error", tr.Err)
			continue // a table-level error never aborts the tick
		}
		if tr.Warning != "" {
			d.log.Warnw(tr.Warning, "table", tr.Table)
		}
		if tr.Inserted > 0 {
			d.log.Infow(fmt.Sprintf("Inserted %d new rows in table: %s", tr.Inserted, tr.Table), "table", tr.Table)
		}
		if tr.Updated > 0 {
			d.log.Infow(fmt.Sprintf("Updated %d rows in table: %s", tr.Updated, tr.Table), "table", tr.Table)
		}
		if tr.Deleted > 0 {
			d.log.Infow(fmt.Sprintf("Deleted %d rows from table: %s", tr.Deleted, tr.Table), "table", tr.Table)
		}
	}
	return result
}

func (d *DataDiffer) tickTable(ctx context.Context, source, target dialect.Adapter, td model.TableDescriptor, states map[string]*model.TableSyncState, initial bool) TableResult {
	res := TableResult{Table: td.Name}

	targetCount, err := target.CountRows(ctx, td.Name)
	if err != nil {
		// Target missing the table: deferred to the next Schema Differ
		// tick; record and move on.
		res.Err = fmt.Errorf("count target rows (table likely missing on target, deferred to schema sync): %w", err)
		return res
	}

	if initial && targetCount == 0 {
		return d.bulkLoad(ctx, source, target, td, states)
	}

	// Whether a primary key is usable is a property of the target, not the
	// source: a pair with syncSchema disabled can have a target table that
	// never picked up the source's key, and the differ must not assume one
	// just because the source descriptor carries it.
	targetPK, err := target.GetPrimaryKey(ctx, td.Name)
	if err != nil {
		res.Err = fmt.Errorf("get target primary key: %w", err)
		return res
	}

	if targetPK == "" {
		if initial {
			// Initial sync, target non-empty, no primary key: leave the
			// pre-existing target data alone — without a key the differ
			// cannot safely merge, so it does not even warn here the way a
			// steady-state tick does.
			return TableResult{Table: td.Name}
		}
		return d.countBasedFallback(ctx, source, target, td, states)
	}

	return d.pkReconcile(ctx, source, target, td, targetPK, states)
}

// bulkLoad handles the initial-sync "target is empty" path.
func (d *DataDiffer) bulkLoad(ctx context.Context, source, target dialect.Adapter, td model.TableDescriptor, states map[string]*model.TableSyncState) TableResult {
	res := TableResult{Table: td.Name}

	if err := target.TruncateTable(ctx, td.Name); err != nil {
		res.Err = fmt.Errorf("truncate: %w", err)
		return res
	}

	columns := columnNames(td.Columns)
	rows, err := source.SelectAll(ctx, td.Name, columns)
	if err != nil {
		res.Err = fmt.Errorf("select all from source: %w", err)
		return res
	}
	if len(rows) == 0 {
		states[td.Name] = &model.TableSyncState{LastSyncTime: time.Now(), RowCount: 0}
		return res
	}

	n, err := target.InsertRows(ctx, td.Name, columns, rowsOf(rows))
	if err != nil {
		res.Err = fmt.Errorf("insert into target: %w", err)
		return res
	}
	res.Inserted = n
	states[td.Name] = &model.TableSyncState{LastSyncTime: time.Now(), RowCount: n}
	return res
}

// pkReconcile implements the primary-key-based reconciliation.
func (d *DataDiffer) pkReconcile(ctx context.Context, source, target dialect.Adapter, td model.TableDescriptor, pk string, states map[string]*model.TableSyncState) TableResult {
	res := TableResult{Table: td.Name}
	columns := columnNames(td.Columns)

	sourceKeys, err := source.SelectColumnValues(ctx, td.Name, pk)
	if err != nil {
		res.Err = fmt.Errorf("select source keys: %w", err)
		return res
	}
	targetKeys, err := target.SelectColumnValues(ctx, td.Name, pk)
	if err != nil {
		res.Err = fmt.Errorf("select target keys: %w", err)
		return res
	}

	sourceSet := toKeySet(sourceKeys)
	targetSet := toKeySet(targetKeys)

	var mutated bool

	// Inserts: S \ T.
	var inserts []any
	for k, v := range sourceSet {
		if _, ok := targetSet[k]; !ok {
			inserts = append(inserts, v)
		}
	}
	if len(inserts) > 0 {
		rows, err := source.SelectRowsByKeys(ctx, td.Name, pk, inserts, columns)
		if err != nil {
			res.Err = fmt.Errorf("select insert rows: %w", err)
			return res
		}
		n, err := target.InsertRows(ctx, td.Name, columns, rowsOf(rows))
		if err != nil {
			res.Err = fmt.Errorf("insert rows: %w", err)
			return res
		}
		res.Inserted = n
		mutated = mutated || n > 0
	}

	// Updates: only if a witness column exists and a prior sync time is
	// known.
	witness := witnessColumn(td.Columns)
	state := states[td.Name]
	if witness != "" && state != nil && !state.LastSyncTime.IsZero() {
		changed, err := source.SelectWhereGreater(ctx, td.Name, witness, state.LastSyncTime, columns)
		if err != nil {
			res.Err = fmt.Errorf("select changed rows: %w", err)
			return res
		}
		if len(changed) > 0 {
			n, err := target.UpsertRows(ctx, td.Name, columns, pk, rowsOf(changed))
			if err != nil {
				res.Err = fmt.Errorf("upsert changed rows: %w", err)
				return res
			}
			res.Updated = n
			mutated = mutated || n > 0
		}
	}

	// Deletes: T \ S, batched at 100 keys.
	var deletes []any
	for k, v := range targetSet {
		if _, ok := sourceSet[k]; !ok {
			deletes = append(deletes, v)
		}
	}
	for len(deletes) > 0 {
		batch := deletes
		if len(batch) > deleteBatchSize {
			batch = batch[:deleteBatchSize]
		}
		n, err := target.DeleteByKeys(ctx, td.Name, pk, batch)
		if err != nil {
			res.Err = fmt.Errorf("delete rows: %w", err)
			return res
		}
		res.Deleted += n
		mutated = mutated || n > 0
		deletes = deletes[len(batch):]
	}

	if mutated {
		states[td.Name] = &model.TableSyncState{
			LastSyncTime: time.Now(),
			RowCount:     res.Inserted + res.Updated + res.Deleted,
		}
	}
	return res
}

// countBasedFallback reconciles a table with no primary key by comparing
// row counts: an unequal count either upserts-and-deletes through the key
// or truncates and reloads the table wholesale. Its only caller has
// established that the target has no primary key; the upsert path runs
// only when the source descriptor still names one.
func (d *DataDiffer) countBasedFallback(ctx context.Context, source, target dialect.Adapter, td model.TableDescriptor, states map[string]*model.TableSyncState) TableResult {
	res := TableResult{Table: td.Name}

	sourceCount, err := source.CountRows(ctx, td.Name)
	if err != nil {
		res.Err = fmt.Errorf("count source rows: %w", err)
		return res
	}
	targetCount, err := target.CountRows(ctx, td.Name)
	if err != nil {
		res.Err = fmt.Errorf("count target rows: %w", err)
		return res
	}

	res.Warning = fmt.Sprintf("table %s has no primary key; falling back to count-based reconciliation", td.Name)

	if sourceCount == targetCount {
		return res // counts agree: no-op, matching the convergence/idempotence invariants
	}

	pk := td.PrimaryKeyColumn()
	delta := sourceCount - targetCount
	if delta < 0 {
		delta = -delta
	}

	if pk != "" && sourceCount > 0 && float64(delta) < countFallbackThreshold*float64(sourceCount) {
		columns := columnNames(td.Columns)
		allRows, err := source.SelectAll(ctx, td.Name, columns)
		if err != nil {
			res.Err = fmt.Errorf("select all from source: %w", err)
			return res
		}
		n, err := target.UpsertRows(ctx, td.Name, columns, pk, rowsOf(allRows))
		if err != nil {
			res.Err = fmt.Errorf("upsert all rows: %w", err)
			return res
		}
		res.Updated = n

		sourceKeys, err := source.SelectColumnValues(ctx, td.Name, pk)
		if err != nil {
			res.Err = fmt.Errorf("select source keys: %w", err)
			return res
		}
		targetKeys, err := target.SelectColumnValues(ctx, td.Name, pk)
		if err != nil {
			res.Err = fmt.Errorf("select target keys: %w", err)
			return res
		}
		sourceSet := toKeySet(sourceKeys)
		var deletes []any
		for k, v := range toKeySet(targetKeys) {
			if _, ok := sourceSet[k]; !ok {
				deletes = append(deletes, v)
			}
		}
		for len(deletes) > 0 {
			batch := deletes
			if len(batch) > deleteBatchSize {
				batch = batch[:deleteBatchSize]
			}
			dn, err := target.DeleteByKeys(ctx, td.Name, pk, batch)
			if err != nil {
				res.Err = fmt.Errorf("delete rows: %w", err)
				return res
			}
			res.Deleted += dn
			deletes = deletes[len(batch):]
		}
	} else {
		if err := target.TruncateTable(ctx, td.Name); err != nil {
			res.Err = fmt.Errorf("truncate: %w", err)
			return res
		}
		columns := columnNames(td.Columns)
		allRows, err := source.SelectAll(ctx, td.Name, columns)
		if err != nil {
			res.Err = fmt.Errorf("select all from source: %w", err)
			return res
		}
		n, err := target.InsertRows(ctx, td.Name, columns, rowsOf(allRows))
		if err != nil {
			res.Err = fmt.Errorf("reload: %w", err)
			return res
		}
		res.Inserted = n
	}

	states[td.Name] = &model.TableSyncState{LastSyncTime: time.Now(), RowCount: res.Inserted + res.Updated + res.Deleted}
	return res
}

func columnNames(cols []model.ColumnDescriptor) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

// toKeySet builds a lookup set keyed by a stable string form of each value
// (so ints, strings, etc. all compare correctly), mapping back to the
// original value for queries that need it verbatim.
func toKeySet(values []any) map[string]any {
	set := make(map[string]any, len(values))
	for _, v := range values {
		set[fmt.Sprintf("%v", v)] = v
	}
	return set
}

func rowsOf(rows []dialect.Row) []dialect.Row { return rows }
