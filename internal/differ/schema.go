package differ

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Limetric/dbsyncd/internal/dialect"
	"github.com/Limetric/dbsyncd/internal/model"
)

// SchemaTickResult summarizes one schema-diff pass.
type SchemaTickResult struct {
	Success bool
	Errors  []string
	Created []string
	Altered []string
}

// SchemaDiffer runs the Schema Differ algorithm for one pair.
type SchemaDiffer struct {
	log *zap.SugaredLogger
}

// NewSchemaDiffer returns a SchemaDiffer logging through the given
// component logger.
func NewSchemaDiffer(log *zap.SugaredLogger) *SchemaDiffer {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &SchemaDiffer{log: log}
}

// Tick compares the source and target table definitions for every table
// selected by the pair and reconciles the target toward the source.
func (d *SchemaDiffer) Tick(ctx context.Context, source, target dialect.Adapter, pair *model.PairSpec) SchemaTickResult {
	result := SchemaTickResult{Success: true}

	sourceTables, err := source.GetTables(ctx)
	if err != nil {
		result.Success = false
		result.Errors = append(result.Errors, fmt.Sprintf("list source tables: %v", err))
		return result
	}

	targetTables, err := target.GetTables(ctx)
	if err != nil {
		result.Success = false
		result.Errors = append(result.Errors, fmt.Sprintf("list target tables: %v", err))
		return result
	}

	for _, st := range SelectTables(sourceTables, pair) {
		tt := findTable(targetTables, st.Name)
		if tt == nil {
			if err := target.CreateTable(ctx, st.CreateStatement); err != nil {
				result.Success = false
				result.Errors = append(result.Errors, fmt.Sprintf("create table %s: %v", st.Name, err))
				d.log.Errorw("create table failed", "table", st.Name, "error", err)
				continue
			}
			result.Created = append(result.Created, st.Name)
			d.log.Infow("created table on target", "table", st.Name)
			continue
		}

		if columnsEqual(st.Columns, tt.Columns) && indexesEqual(st.Indexes, tt.Indexes) {
			continue
		}

		if err := d.updateTableStructure(ctx, target, st, *tt); err != nil {
			result.Success = false
			result.Errors = append(result.Errors, fmt.Sprintf("alter table %s: %v", st.Name, err))
			d.log.Errorw("alter table failed", "table", st.Name, "error", err)
			continue
		}
		result.Altered = append(result.Altered, st.Name)
		d.log.Infow("altered table structure on target", "table", st.Name)
	}

	return result
}

// updateTableStructure reconciles target toward source's column and index
// set: adds columns missing on target, modifies columns whose
// definition differs, drops columns absent from source, then reconciles
// indexes by name (drop-missing, create-missing).
func (d *SchemaDiffer) updateTableStructure(ctx context.Context, target dialect.Adapter, source, current model.TableDescriptor) error {
	currentByName := make(map[string]model.ColumnDescriptor, len(current.Columns))
	for _, c := range current.Columns {
		currentByName[c.Name] = c
	}
	sourceByName := make(map[string]model.ColumnDescriptor, len(source.Columns))
	for _, c := range source.Columns {
		sourceByName[c.Name] = c
	}

	for _, sc := range source.Columns {
		cc, ok := currentByName[sc.Name]
		if !ok {
			if err := target.AlterTable(ctx, target.BuildAddColumn(source.Name, sc)); err != nil {
				return fmt.Errorf("add column %s: %w", sc.Name, err)
			}
			continue
		}
		if !columnDefEqual(sc, cc) {
			if err := target.AlterTable(ctx, target.BuildModifyColumn(source.Name, sc)); err != nil {
				return fmt.Errorf("modify column %s: %w", sc.Name, err)
			}
		}
	}

	for _, cc := range current.Columns {
		if _, ok := sourceByName[cc.Name]; !ok {
			if err := target.AlterTable(ctx, target.BuildDropColumn(source.Name, cc.Name)); err != nil {
				return fmt.Errorf("drop column %s: %w", cc.Name, err)
			}
		}
	}

	return d.reconcileIndexes(ctx, target, source, current)
}

// reconcileIndexes groups indexes by name on both sides, drops any present
// only on target, and creates any present only on source.
func (d *SchemaDiffer) reconcileIndexes(ctx context.Context, target dialect.Adapter, source, current model.TableDescriptor) error {
	sourceByName := make(map[string]model.IndexDescriptor, len(source.Indexes))
	for _, idx := range source.Indexes {
		sourceByName[idx.Name] = idx
	}
	currentByName := make(map[string]model.IndexDescriptor, len(current.Indexes))
	for _, idx := range current.Indexes {
		currentByName[idx.Name] = idx
	}

	for _, ci := range current.Indexes {
		si, ok := sourceByName[ci.Name]
		if !ok || !indexDefEqual(si, ci) {
			if err := target.AlterTable(ctx, target.BuildDropIndex(source.Name, ci.Name)); err != nil {
				return fmt.Errorf("drop index %s: %w", ci.Name, err)
			}
		}
	}

	for _, si := range source.Indexes {
		ci, ok := currentByName[si.Name]
		if !ok || !indexDefEqual(si, ci) {
			if err := target.AlterTable(ctx, target.BuildCreateIndex(source.Name, si)); err != nil {
				return fmt.Errorf("create index %s: %w", si.Name, err)
			}
		}
	}

	return nil
}

func findTable(tables []model.TableDescriptor, name string) *model.TableDescriptor {
	for i := range tables {
		if tables[i].Name == name {
			return &tables[i]
		}
	}
	return nil
}

func columnsEqual(a, b []model.ColumnDescriptor) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || !columnDefEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func columnDefEqual(a, b model.ColumnDescriptor) bool {
	return a.Type == b.Type && a.Nullable == b.Nullable && a.Default == b.Default &&
		a.PrimaryKey == b.PrimaryKey && a.Extra == b.Extra
}

func indexesEqual(a, b []model.IndexDescriptor) bool {
	if len(a) != len(b) {
		return false
	}
	byName := make(map[string]model.IndexDescriptor, len(b))
	for _, idx := range b {
		byName[idx.Name] = idx
	}
	for _, idx := range a {
		other, ok := byName[idx.Name]
		if !ok || !indexDefEqual(idx, other) {
			return false
		}
	}
	return true
}

func indexDefEqual(a, b model.IndexDescriptor) bool {
	if a.Unique != b.Unique || a.Type != b.Type || len(a.Columns) != len(b.Columns) {
		return false
	}
	for i := range a.Columns {
		if a.Columns[i] != b.Columns[i] {
			return false
		}
	}
	return true
}
