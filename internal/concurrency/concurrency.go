// Package concurrency provides the admission-control primitives described in
// §5: a global per-session concurrency cap, per-adapter capability
// semaphores, and a bounded worker group for the segmented-pipeline variant.
// Weighted semaphores give exact-capacity admission; errgroup gives
// cancellation-propagating fan-out/fan-in, the same combination the ancestor
// codebase reaches for whenever it needs bounded parallel work.
package concurrency

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// DefaultGlobalCap returns the default number of sessions allowed to run
// concurrently: the logical CPU count, falling back to runtime.NumCPU() if
// gopsutil cannot read it (e.g. in a sandboxed container).
func DefaultGlobalCap() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// AdapterSemaphores gates concurrent calls into each capability, keyed by
// the names used in config.AdaptersConfig (§5 backpressure defaults:
// transcoder 2, stt 2, llm_relevance 4, llm_generator 2).
type AdapterSemaphores struct {
	sems map[string]*semaphore.Weighted
}

// NewAdapterSemaphores builds one weighted semaphore per capability.
func NewAdapterSemaphores(caps map[string]int) *AdapterSemaphores {
	sems := make(map[string]*semaphore.Weighted, len(caps))
	for name, n := range caps {
		if n < 1 {
			n = 1
		}
		sems[name] = semaphore.NewWeighted(int64(n))
	}
	return &AdapterSemaphores{sems: sems}
}

// Acquire blocks until admission into the named capability or ctx is done.
// An unknown capability name is treated as unbounded (no gate configured).
func (a *AdapterSemaphores) Acquire(ctx context.Context, capability string) (release func(), err error) {
	sem, ok := a.sems[capability]
	if !ok {
		return func() {}, nil
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { sem.Release(1) }, nil
}

// SessionGate caps the number of sessions running concurrently process-wide.
type SessionGate struct {
	sem *semaphore.Weighted
}

// NewSessionGate builds a gate with the given capacity (≤0 uses DefaultGlobalCap).
func NewSessionGate(capacity int) *SessionGate {
	if capacity < 1 {
		capacity = DefaultGlobalCap()
	}
	return &SessionGate{sem: semaphore.NewWeighted(int64(capacity))}
}

// Acquire blocks until a session slot is available or ctx is done.
func (g *SessionGate) Acquire(ctx context.Context) (release func(), err error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { g.sem.Release(1) }, nil
}

// BoundedGroup runs fn once per item with at most `limit` concurrent
// invocations, returning the first error encountered and cancelling the
// group's context for all still-running invocations (the segmented-pipeline
// chunk concurrency of §4.1, default min(4, chunks)).
func BoundedGroup(ctx context.Context, limit, items int, fn func(ctx context.Context, index int) error) error {
	if limit < 1 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := 0; i < items; i++ {
		i := i
		g.Go(func() error {
			return fn(gctx, i)
		})
	}
	return g.Wait()
}
