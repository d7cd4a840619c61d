package pool

import (
	"github.com/go-logr/logr"

	"context"
	"time"
)

// Reaper periodically evicts remote controls that stopped answering
// heartbeats and reclaims sessions left idle for too long.
type Reaper struct {
	Pool *GlobalPool
	// Interval between sweeps.
	Interval time.Duration
	// MaxIdle is how long a session may go without a command before it is reclaimed.
	MaxIdle time.Duration
	Log     logr.Logger
}

// Sweep runs one eviction pass followed by one idle-session pass.
func (r Reaper) Sweep(ctx context.Context) (evicted int, reclaimed int) {
	evicted = r.Pool.EvictUnresponsiveWorkers(ctx)
	reclaimed = r.Pool.RecycleIdleSessions(ctx, r.MaxIdle)
	if evicted > 0 || reclaimed > 0 {
		r.Log.Info("reaper sweep", "evicted", evicted, "reclaimed", reclaimed)
	}
	return evicted, reclaimed
}

// Run sweeps every Interval until ctx is done.
func (r Reaper) Run(ctx context.Context) {
	r.Log.Info("starting reaper", "interval", r.Interval.String(), "maxIdle", r.MaxIdle.String())
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Log.Info("stopping reaper")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}
