// Package worker implements the Pair Worker: the state machine
// responsible for one enabled sync pair — connecting both sides, running
// the initial sync in the same linear connect → schema → routines → data
// order a one-shot migration run would, then driving two independent
// periodic timers that invoke the Data Differ, Schema Differ, and Routine
// Syncer for as long as the pair stays enabled.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Limetric/dbsyncd/internal/dialect"
	"github.com/Limetric/dbsyncd/internal/differ"
	"github.com/Limetric/dbsyncd/internal/model"
	"github.com/Limetric/dbsyncd/internal/periodic"
	"github.com/Limetric/dbsyncd/internal/retry"
	"github.com/Limetric/dbsyncd/internal/routine"
)

// State is one stage of the Pair Worker's lifecycle.
type State string

const (
	StateIdle        State = "idle"
	StateConnecting  State = "connecting"
	StateInitialSync State = "initial_sync"
	StateRunning     State = "running"
	StateStopping    State = "stopping"
	StateStopped     State = "stopped"
)

// LastSyncRecorder is the slice of the configuration collaborator a worker
// needs: recording that a pair last synced just now.
type LastSyncRecorder interface {
	UpdateLastSync(pairName string, at time.Time) error
}

// Worker drives one sync pair through its lifecycle.
type Worker struct {
	pair       model.PairSpec
	sourceSpec model.ConnectionSpec
	targetSpec model.ConnectionSpec
	settings   model.Settings
	recorder   LastSyncRecorder
	log        *zap.SugaredLogger

	stateMu sync.Mutex
	state   State

	// tickMu serializes the data and schema timers against each other — only
	// one may execute on a given pair at any instant — and is taken by Stop
	// before closing adapters, so an in-flight tick runs to completion.
	tickMu sync.Mutex

	source dialect.Adapter
	target dialect.Adapter

	dataDiffer    *differ.DataDiffer
	schemaDiffer  *differ.SchemaDiffer
	routineSyncer *routine.Syncer
	tableStates   map[string]*model.TableSyncState

	dataTimer   periodic.Stopper
	schemaTimer periodic.Stopper
}

// New constructs a Worker for the given pair. sourceSpec/targetSpec must
// correspond to pair.Source/pair.Target.
func New(pair model.PairSpec, sourceSpec, targetSpec model.ConnectionSpec, settings model.Settings, recorder LastSyncRecorder, log *zap.SugaredLogger) *Worker {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Worker{
		pair:          pair,
		sourceSpec:    sourceSpec,
		targetSpec:    targetSpec,
		settings:      settings,
		recorder:      recorder,
		log:           log.With("pair", pair.Name),
		state:         StateIdle,
		dataDiffer:    differ.New(log),
		schemaDiffer:  differ.NewSchemaDiffer(log),
		routineSyncer: routine.New(log),
		tableStates:   map[string]*model.TableSyncState{},
	}
}

// State returns the worker's current lifecycle stage.
func (w *Worker) State() State {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	return w.state
}

func (w *Worker) setState(s State) {
	w.stateMu.Lock()
	w.state = s
	w.stateMu.Unlock()
}

// Start opens both adapters, runs the initial sync, and arms the two
// timers. On any failure during connect or initial sync, the worker
// transitions to Stopped and the error is returned for the Supervisor to
// log.
func (w *Worker) Start(ctx context.Context) error {
	if w.State() != StateIdle {
		return fmt.Errorf("pair %s: Start called from state %s, want idle", w.pair.Name, w.State())
	}
	w.setState(StateConnecting)

	source, err := dialect.New(w.sourceSpec)
	if err != nil {
		w.setState(StateStopped)
		return fmt.Errorf("pair %s: build source adapter: %w", w.pair.Name, err)
	}
	target, err := dialect.New(w.targetSpec)
	if err != nil {
		w.setState(StateStopped)
		return fmt.Errorf("pair %s: build target adapter: %w", w.pair.Name, err)
	}

	connect := func(a dialect.Adapter) error {
		return retry.WithRetries(ctx, w.settings.MaxRetries, w.settings.RetryDelay, retry.Always, func(ctx context.Context) error {
			return a.Connect(ctx)
		})
	}
	if err := connect(source); err != nil {
		w.setState(StateStopped)
		return fmt.Errorf("pair %s: connect source: %w", w.pair.Name, err)
	}
	if err := connect(target); err != nil {
		source.Close()
		w.setState(StateStopped)
		return fmt.Errorf("pair %s: connect target: %w", w.pair.Name, err)
	}

	w.source, w.target = source, target
	w.setState(StateInitialSync)

	if err := w.initialSync(ctx); err != nil {
		w.setState(StateStopping)
		source.Close()
		target.Close()
		w.setState(StateStopped)
		return fmt.Errorf("pair %s: initial sync: %w", w.pair.Name, err)
	}

	w.setState(StateRunning)
	w.dataTimer = periodic.Start(ctx, w.settings.PollInterval, func(periodic.Tick) { w.runDataTick(ctx) })
	w.schemaTimer = periodic.Start(ctx, w.settings.SchemaCheckInterval, func(periodic.Tick) { w.runSchemaTick(ctx) })
	return nil
}

// initialSync runs schema (if enabled), then routines (if enabled), then
// data (if enabled), in that order.
func (w *Worker) initialSync(ctx context.Context) error {
	if w.pair.SyncSchema {
		result := w.schemaDiffer.Tick(ctx, w.source, w.target, &w.pair)
		if !result.Success {
			return fmt.Errorf("schema: %v", result.Errors)
		}
	}
	if w.pair.SyncProcedures {
		result := w.routineSyncer.Tick(ctx, w.source, w.target, w.pair.SyncTriggers)
		if !result.Success {
			return fmt.Errorf("routines: %v", result.Errors)
		}
	}
	if w.pair.SyncData {
		result := w.dataDiffer.InitialSync(ctx, w.source, w.target, &w.pair, w.tableStates)
		if !result.Success {
			return fmt.Errorf("data: %v", result.Errors)
		}
	}
	return nil
}

func (w *Worker) runDataTick(ctx context.Context) {
	if !w.pair.SyncData {
		return
	}
	w.tickMu.Lock()
	defer w.tickMu.Unlock()

	runID := uuid.New().String()
	w.log.Debugw("data tick starting", "run_id", runID)

	result := w.dataDiffer.Tick(ctx, w.source, w.target, &w.pair, w.tableStates)
	if !result.Success {
		w.log.Errorw("data tick finished with errors", "run_id", runID, "errors", result.Errors)
	}
	if mutated(result) {
		w.reportLastSync()
	}
}

func (w *Worker) runSchemaTick(ctx context.Context) {
	w.tickMu.Lock()
	defer w.tickMu.Unlock()

	runID := uuid.New().String()
	w.log.Debugw("schema tick starting", "run_id", runID)

	var anyMutation bool

	if w.pair.SyncSchema {
		result := w.schemaDiffer.Tick(ctx, w.source, w.target, &w.pair)
		if !result.Success {
			w.log.Errorw("schema tick finished with errors", "run_id", runID, "errors", result.Errors)
		}
		anyMutation = anyMutation || len(result.Created) > 0 || len(result.Altered) > 0
	}
	if w.pair.SyncProcedures {
		result := w.routineSyncer.Tick(ctx, w.source, w.target, w.pair.SyncTriggers)
		if !result.Success {
			w.log.Errorw("routine tick finished with errors", "run_id", runID, "errors", result.Errors)
		}
		anyMutation = anyMutation || len(result.Created) > 0 || len(result.Dropped) > 0
	}

	if anyMutation {
		w.reportLastSync()
	}
}

func (w *Worker) reportLastSync() {
	if w.recorder == nil {
		return
	}
	if err := w.recorder.UpdateLastSync(w.pair.Name, time.Now()); err != nil {
		w.log.Warnw("failed to record last sync time", "error", err)
	}
}

func mutated(result differ.TickResult) bool {
	for _, t := range result.Tables {
		if t.Inserted > 0 || t.Updated > 0 || t.Deleted > 0 {
			return true
		}
	}
	return false
}

// Stop disarms both timers and closes both adapters. Safe to call from any
// state and idempotent; waits for any in-flight tick to finish before
// closing adapters out from under it.
func (w *Worker) Stop(context.Context) error {
	if w.State() == StateStopped || w.State() == StateIdle {
		w.setState(StateStopped)
		return nil
	}
	w.setState(StateStopping)

	if w.dataTimer != nil {
		w.dataTimer.Stop()
	}
	if w.schemaTimer != nil {
		w.schemaTimer.Stop()
	}

	w.tickMu.Lock()
	defer w.tickMu.Unlock()

	var g errgroup.Group
	if w.source != nil {
		g.Go(w.source.Close)
	}
	if w.target != nil {
		g.Go(w.target.Close)
	}
	err := g.Wait()

	w.setState(StateStopped)
	return err
}
