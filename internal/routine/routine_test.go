package routine

import (
	"context"
	"testing"

	"github.com/Limetric/dbsyncd/internal/dialect"
	"github.com/Limetric/dbsyncd/internal/model"
)

// fakeRoutineAdapter implements only the subset of dialect.Adapter the
// Routine Syncer calls.
type fakeRoutineAdapter struct {
	dialect.Adapter
	procedures map[model.RoutineKind][]model.RoutineDescriptor
	triggers   []model.RoutineDescriptor
	created    []string
	dropped    []string
}

func (f *fakeRoutineAdapter) GetProcedures(_ context.Context, kind model.RoutineKind) ([]model.RoutineDescriptor, error) {
	return f.procedures[kind], nil
}

func (f *fakeRoutineAdapter) GetTriggers(context.Context) ([]model.RoutineDescriptor, error) {
	return f.triggers, nil
}

func (f *fakeRoutineAdapter) ExecuteRoutineDDL(_ context.Context, ddl string) error {
	f.created = append(f.created, ddl)
	return nil
}

func (f *fakeRoutineAdapter) DropRoutine(_ context.Context, kind model.RoutineKind, name string) error {
	f.dropped = append(f.dropped, name)
	return nil
}

func TestSyncerCreatesMissingProcedure(t *testing.T) {
	source := &fakeRoutineAdapter{procedures: map[model.RoutineKind][]model.RoutineDescriptor{
		model.RoutineProcedure: {{Name: "recalc_totals", Kind: model.RoutineProcedure, CreateStatement: "CREATE PROCEDURE recalc_totals() ..."}},
	}}
	target := &fakeRoutineAdapter{procedures: map[model.RoutineKind][]model.RoutineDescriptor{}}

	s := New(nil)
	result := s.Tick(context.Background(), source, target, false)

	if !result.Success {
		t.Fatalf("Tick() success = false, errors = %v", result.Errors)
	}
	if len(result.Created) != 1 || result.Created[0] != "recalc_totals" {
		t.Fatalf("Created = %v, want [recalc_totals]", result.Created)
	}
	if len(target.dropped) != 0 {
		t.Errorf("expected no drop for a routine absent on target, got %v", target.dropped)
	}
}

func TestSyncerDropsAndRecreatesWhenCreateTextDiffers(t *testing.T) {
	source := &fakeRoutineAdapter{procedures: map[model.RoutineKind][]model.RoutineDescriptor{
		model.RoutineFunction: {{Name: "total_price", Kind: model.RoutineFunction, CreateStatement: "CREATE FUNCTION total_price() RETURNS int AS $$ v2 $$"}},
	}}
	target := &fakeRoutineAdapter{procedures: map[model.RoutineKind][]model.RoutineDescriptor{
		model.RoutineFunction: {{Name: "total_price", Kind: model.RoutineFunction, CreateStatement: "CREATE FUNCTION total_price() RETURNS int AS $$ v1 $$"}},
	}}

	s := New(nil)
	result := s.Tick(context.Background(), source, target, false)

	if !result.Success {
		t.Fatalf("Tick() success = false, errors = %v", result.Errors)
	}
	if len(result.Dropped) != 1 || result.Dropped[0] != "total_price" {
		t.Fatalf("Dropped = %v, want [total_price]", result.Dropped)
	}
	if len(result.Created) != 1 || result.Created[0] != "total_price" {
		t.Fatalf("Created = %v, want [total_price] after recreate", result.Created)
	}
}

func TestSyncerLeavesMatchingRoutineAlone(t *testing.T) {
	same := model.RoutineDescriptor{Name: "noop", Kind: model.RoutineProcedure, CreateStatement: "CREATE PROCEDURE noop() BEGIN END"}
	source := &fakeRoutineAdapter{procedures: map[model.RoutineKind][]model.RoutineDescriptor{model.RoutineProcedure: {same}}}
	target := &fakeRoutineAdapter{procedures: map[model.RoutineKind][]model.RoutineDescriptor{model.RoutineProcedure: {same}}}

	s := New(nil)
	result := s.Tick(context.Background(), source, target, false)

	if !result.Success {
		t.Fatalf("Tick() success = false, errors = %v", result.Errors)
	}
	if len(result.Created) != 0 || len(result.Dropped) != 0 {
		t.Fatalf("expected no-op for identical CREATE text, got created=%v dropped=%v", result.Created, result.Dropped)
	}
}

func TestSyncerNeverDropsTargetOnlyRoutine(t *testing.T) {
	source := &fakeRoutineAdapter{procedures: map[model.RoutineKind][]model.RoutineDescriptor{}}
	target := &fakeRoutineAdapter{procedures: map[model.RoutineKind][]model.RoutineDescriptor{
		model.RoutineProcedure: {{Name: "legacy_only", Kind: model.RoutineProcedure, CreateStatement: "CREATE PROCEDURE legacy_only() BEGIN END"}},
	}}

	s := New(nil)
	result := s.Tick(context.Background(), source, target, false)

	if !result.Success {
		t.Fatalf("Tick() success = false, errors = %v", result.Errors)
	}
	if len(target.dropped) != 0 {
		t.Errorf("target-only routine must never be dropped, got dropped=%v", target.dropped)
	}
}

func TestSyncerHandlesTriggersWhenEnabled(t *testing.T) {
	source := &fakeRoutineAdapter{
		procedures: map[model.RoutineKind][]model.RoutineDescriptor{},
		triggers:   []model.RoutineDescriptor{{Name: "audit_trg", Kind: model.RoutineTrigger, CreateStatement: "CREATE TRIGGER audit_trg ..."}},
	}
	target := &fakeRoutineAdapter{procedures: map[model.RoutineKind][]model.RoutineDescriptor{}}

	s := New(nil)
	result := s.Tick(context.Background(), source, target, true)

	if !result.Success {
		t.Fatalf("Tick() success = false, errors = %v", result.Errors)
	}
	if len(result.Created) != 1 || result.Created[0] != "audit_trg" {
		t.Fatalf("Created = %v, want [audit_trg]", result.Created)
	}
}

func TestSyncerSkipsTriggersWhenDisabled(t *testing.T) {
	source := &fakeRoutineAdapter{
		procedures: map[model.RoutineKind][]model.RoutineDescriptor{},
		triggers:   []model.RoutineDescriptor{{Name: "audit_trg", Kind: model.RoutineTrigger, CreateStatement: "CREATE TRIGGER audit_trg ..."}},
	}
	target := &fakeRoutineAdapter{procedures: map[model.RoutineKind][]model.RoutineDescriptor{}}

	s := New(nil)
	result := s.Tick(context.Background(), source, target, false)

	if !result.Success {
		t.Fatalf("Tick() success = false, errors = %v", result.Errors)
	}
	if len(result.Created) != 0 {
		t.Fatalf("Created = %v, want none when syncTriggers is off", result.Created)
	}
}
