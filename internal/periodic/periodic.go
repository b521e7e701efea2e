// Package periodic drives a single repeating tick for the daemon's data-
// and schema-poll timers: at most one tick in flight at a time, and a tick
// that overruns its period delays the next fire instead of stacking
// backlog. Adapted from
// Icinga-icinga-go-library's periodic package, trimmed to the surface a
// Pair Worker actually needs (no Immediate/OnStop option set).
package periodic

import (
	"context"
	"sync"
	"time"
)

// Tick carries the time of one firing and how many ticks have fired so far.
type Tick struct {
	Time  time.Time
	Count int64
}

// Stopper stops a started periodic task. Stop is idempotent and may be
// called from any goroutine.
type Stopper interface {
	Stop()
}

// Start arms a ticker at interval and invokes callback on each fire. If
// callback is still running when the next tick is due, that fire is
// dropped — callback never runs concurrently with itself. interval must be
// greater than zero.
func Start(ctx context.Context, interval time.Duration, callback func(Tick)) Stopper {
	p := &periodic{}

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var count int64
		for {
			select {
			case tm := <-ticker.C:
				// The ticker channel is buffered for exactly one pending
				// tick, so a callback that outruns interval simply delays
				// the next fire instead of queuing a backlog; callback
				// never runs concurrently with itself because this loop
				// is single-threaded.
				count++
				callback(Tick{Time: tm, Count: count})
			case <-ctx.Done():
				return
			}
		}
	}()

	p.cancel = cancel
	return p
}

type periodic struct {
	cancel context.CancelFunc
	once   sync.Once
}

func (p *periodic) Stop() {
	p.once.Do(p.cancel)
}
