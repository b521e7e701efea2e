// Package daemon implements the Daemon Supervisor: the top-level
// object that loads configuration, starts one Pair Worker per enabled
// pair, and exposes a status/shutdown facade. Pairs are started one after
// another; a failure starting one pair is logged and does not stop the
// rest. Shutdown stops all workers in parallel.
package daemon

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Limetric/dbsyncd/internal/config"
	"github.com/Limetric/dbsyncd/internal/worker"
)

// PairStatus is one pair's observable state, for the control facade.
type PairStatus struct {
	Name  string
	State worker.State
}

// Supervisor owns the full set of running Pair Workers.
type Supervisor struct {
	store *config.Store
	log   *zap.SugaredLogger

	mu        sync.Mutex
	isRunning bool
	workers   map[string]*worker.Worker
}

// New returns a Supervisor backed by the given configuration store.
func New(store *config.Store, log *zap.SugaredLogger) *Supervisor {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Supervisor{store: store, log: log, workers: map[string]*worker.Worker{}}
}

// StartAll enumerates enabled pairs and starts a worker for each. A
// failure starting an individual pair is logged and does not prevent the
// remaining pairs from starting.
func (s *Supervisor) StartAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := s.store.GetSettings()

	for _, pair := range s.store.ListPairs() {
		if !pair.Enabled {
			continue
		}

		sourceSpec, ok := s.store.GetConnection(pair.Source)
		if !ok {
			s.log.Errorw("pair references unknown source connection", "pair", pair.Name, "connection", pair.Source)
			continue
		}
		targetSpec, ok := s.store.GetConnection(pair.Target)
		if !ok {
			s.log.Errorw("pair references unknown target connection", "pair", pair.Name, "connection", pair.Target)
			continue
		}

		w := worker.New(pair, sourceSpec, targetSpec, settings, s.store, s.log.Named(pair.Name))
		if err := w.Start(ctx); err != nil {
			s.log.Errorw("failed to start pair", "pair", pair.Name, "error", err)
			continue
		}
		s.workers[pair.Name] = w
		s.log.Infow("pair started", "pair", pair.Name)
	}

	s.isRunning = true
	return nil
}

// StopAll stops every running worker in parallel, then clears state.
// Idempotent.
func (s *Supervisor) StopAll(ctx context.Context) error {
	s.mu.Lock()
	workers := make([]*worker.Worker, 0, len(s.workers))
	for _, w := range s.workers {
		workers = append(workers, w)
	}
	s.mu.Unlock()

	var g errgroup.Group
	for _, w := range workers {
		w := w
		g.Go(func() error { return w.Stop(ctx) })
	}
	err := g.Wait()

	s.mu.Lock()
	s.workers = map[string]*worker.Worker{}
	s.isRunning = false
	s.mu.Unlock()

	return err
}

// Status reports the Supervisor's own running flag and every worker's
// current lifecycle state.
func (s *Supervisor) Status() (isRunning bool, pairs []PairStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, w := range s.workers {
		pairs = append(pairs, PairStatus{Name: name, State: w.State()})
	}
	return s.isRunning, pairs
}
