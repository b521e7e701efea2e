// Package routine implements the Routine Syncer: byte-for-byte
// CREATE-text comparison of procedures, functions, and triggers, with a
// conservative one-way drop+recreate policy, executed sequentially with
// per-step logging the same way any other multi-statement DDL batch runs
// against an adapter.
package routine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Limetric/dbsyncd/internal/dialect"
	"github.com/Limetric/dbsyncd/internal/model"
)

// TickResult summarizes one routine-sync pass across every kind handled.
type TickResult struct {
	Success bool
	Errors  []string
	Created []string
	Dropped []string
}

// Syncer runs the Routine Syncer algorithm for one pair.
type Syncer struct {
	log *zap.SugaredLogger
}

// New returns a Syncer logging through the given component logger.
func New(log *zap.SugaredLogger) *Syncer {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Syncer{log: log}
}

// Tick compares procedures and functions between source and target, and
// triggers if includeTriggers is set (the pair's syncTriggers toggle).
func (s *Syncer) Tick(ctx context.Context, source, target dialect.Adapter, includeTriggers bool) TickResult {
	result := TickResult{Success: true}

	for _, kind := range []model.RoutineKind{model.RoutineProcedure, model.RoutineFunction} {
		s.syncKind(ctx, source, target, kind, &result)
	}
	if includeTriggers {
		s.syncTriggers(ctx, source, target, &result)
	}
	return result
}

func (s *Syncer) syncKind(ctx context.Context, source, target dialect.Adapter, kind model.RoutineKind, result *TickResult) {
	sourceRoutines, err := source.GetProcedures(ctx, kind)
	if err != nil {
		s.fail(result, fmt.Sprintf("list source %s: %v", kind, err))
		return
	}
	targetRoutines, err := target.GetProcedures(ctx, kind)
	if err != nil {
		s.fail(result, fmt.Sprintf("list target %s: %v", kind, err))
		return
	}

	targetByName := make(map[string]model.RoutineDescriptor, len(targetRoutines))
	for _, r := range targetRoutines {
		targetByName[r.Name] = r
	}

	for _, sr := range sourceRoutines {
		tr, exists := targetByName[sr.Name]
		if !exists {
			s.create(ctx, target, kind, sr, result)
			continue
		}
		if tr.CreateStatement != sr.CreateStatement {
			s.dropAndRecreate(ctx, target, kind, sr, result)
		}
	}
}

func (s *Syncer) syncTriggers(ctx context.Context, source, target dialect.Adapter, result *TickResult) {
	sourceTriggers, err := source.GetTriggers(ctx)
	if err != nil {
		s.fail(result, fmt.Sprintf("list source triggers: %v", err))
		return
	}
	targetTriggers, err := target.GetTriggers(ctx)
	if err != nil {
		s.fail(result, fmt.Sprintf("list target triggers: %v", err))
		return
	}

	targetByName := make(map[string]model.RoutineDescriptor, len(targetTriggers))
	for _, r := range targetTriggers {
		targetByName[r.Name] = r
	}

	for _, sr := range sourceTriggers {
		tr, exists := targetByName[sr.Name]
		if !exists {
			s.create(ctx, target, model.RoutineTrigger, sr, result)
			continue
		}
		if tr.CreateStatement != sr.CreateStatement {
			s.dropAndRecreate(ctx, target, model.RoutineTrigger, sr, result)
		}
	}
}

func (s *Syncer) create(ctx context.Context, target dialect.Adapter, kind model.RoutineKind, routine model.RoutineDescriptor, result *TickResult) {
	if err := target.ExecuteRoutineDDL(ctx, routine.CreateStatement); err != nil {
		s.fail(result, fmt.Sprintf("create %s %s: %v", kind, routine.Name, err))
		return
	}
	result.Created = append(result.Created, routine.Name)
	s.log.Infow("created routine on target", "kind", kind, "name", routine.Name)
}

func (s *Syncer) dropAndRecreate(ctx context.Context, target dialect.Adapter, kind model.RoutineKind, routine model.RoutineDescriptor, result *TickResult) {
	if err := target.DropRoutine(ctx, kind, routine.Name); err != nil {
		s.fail(result, fmt.Sprintf("drop %s %s: %v", kind, routine.Name, err))
		return
	}
	result.Dropped = append(result.Dropped, routine.Name)
	if err := target.ExecuteRoutineDDL(ctx, routine.CreateStatement); err != nil {
		s.fail(result, fmt.Sprintf("recreate %s %s: %v", kind, routine.Name, err))
		return
	}
	result.Created = append(result.Created, routine.Name)
	s.log.Infow("recreated routine on target (CREATE text differed)", "kind", kind, "name", routine.Name)
}

func (s *Syncer) fail(result *TickResult, msg string) {
	result.Success = false
	result.Errors = append(result.Errors, msg)
	s.log.Errorw(msg)
}
