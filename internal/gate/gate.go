// Package gate implements the Concurrency Gate (spec.md §4.E): a counting
// semaphore bounding how many tasks can be actively processing at once,
// with a bounded wait for a free slot before failing fast.
package gate

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/domain"
)

// Gate bounds concurrent task execution to capacity slots.
type Gate struct {
	slots   chan struct{}
	waitCap time.Duration

	waitMillis metric.Float64Histogram
	rejected   metric.Int64Counter
}

// New builds a Gate with room for capacity concurrent holders
// (MAX_CONCURRENT_TASKS) and a bounded queue wait of waitCap
// (QUEUE_WAIT_TIMEOUT_S) before Acquire gives up.
func New(capacity int, waitCap time.Duration) *Gate {
	meter := otel.Meter("cogniblock-orchestrator")
	waitMillis, _ := meter.Float64Histogram("cogniblock_gate_wait_ms")
	rejected, _ := meter.Int64Counter("cogniblock_gate_rejected_total")
	return &Gate{
		slots:      make(chan struct{}, capacity),
		waitCap:    waitCap,
		waitMillis: waitMillis,
		rejected:   rejected,
	}
}

// Release is returned by Acquire; calling it frees the held slot.
type Release func()

// Acquire blocks until a slot is free, ctx is cancelled, or waitCap
// elapses — whichever comes first. On timeout it returns a
// *domain.PipelineError with code ErrCapacityExceeded.
func (g *Gate) Acquire(ctx context.Context) (Release, error) {
	start := time.Now()

	waitCtx, cancel := context.WithTimeout(ctx, g.waitCap)
	defer cancel()

	select {
	case g.slots <- struct{}{}:
		g.waitMillis.Record(ctx, float64(time.Since(start).Milliseconds()))
		released := false
		return func() {
			if released {
				return
			}
			released = true
			<-g.slots
		}, nil
	case <-waitCtx.Done():
		g.waitMillis.Record(ctx, float64(time.Since(start).Milliseconds()))
		g.rejected.Add(ctx, 1)
		if ctx.Err() != nil && waitCtx.Err() == ctx.Err() {
			if ctx.Err() == context.DeadlineExceeded {
				return nil, domain.NewPipelineError(domain.ErrTimeout, "task deadline exceeded while waiting for a processing slot", ctx.Err())
			}
			return nil, domain.NewPipelineError(domain.ErrCancelled, "cancelled while waiting for a processing slot", ctx.Err())
		}
		return nil, domain.NewPipelineError(domain.ErrCapacityExceeded, "timed out waiting for a free processing slot", waitCtx.Err())
	}
}

// InUse reports how many slots are currently held, mainly for diagnostics.
func (g *Gate) InUse() int {
	return len(g.slots)
}

// Capacity reports the total number of slots.
func (g *Gate) Capacity() int {
	return cap(g.slots)
}
