package qrunner

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/semaphore"
)

// Admission bounds concurrent executions per script name. Gates are created
// on first use and never removed.
type Admission struct {
	capacity int64
	gates    *xsync.MapOf[string, *semaphore.Weighted]
}

func NewAdmission(capacity int64) *Admission {
	if capacity < 1 {
		capacity = 1
	}
	return &Admission{
		capacity: capacity,
		gates:    xsync.NewMapOf[string, *semaphore.Weighted](),
	}
}

// Capacity is the number of simultaneous executions allowed per name.
func (a *Admission) Capacity() int64 { return a.capacity }

func (a *Admission) gate(name string) *semaphore.Weighted {
	g, _ := a.gates.LoadOrCompute(name, func() *semaphore.Weighted {
		return semaphore.NewWeighted(a.capacity)
	})
	return g
}

// Acquire takes one slot for name, waiting at most timeout. The returned
// release func must be called exactly once.
func (a *Admission) Acquire(ctx context.Context, name string, timeout time.Duration) (release func(), err error) {
	g := a.gate(name)

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := g.Acquire(waitCtx, 1); err != nil {
		return nil, err
	}
	return func() { g.Release(1) }, nil
}

// Gates returns the number of script names seen so far.
func (a *Admission) Gates() int { return a.gates.Size() }
