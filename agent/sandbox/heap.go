package sandbox

import (
	"context"
	rtmetrics "runtime/metrics"

	"golang.org/x/sync/semaphore"
)

const heapObjectsMetric = "/memory/classes/heap/objects:bytes"

// heapObjects returns the bytes held by heap objects, live or not yet swept.
func heapObjects() uint64 {
	s := []rtmetrics.Sample{{Name: heapObjectsMetric}}
	rtmetrics.Read(s)
	if s[0].Value.Kind() != rtmetrics.KindUint64 {
		return 0
	}
	return s[0].Value.Uint64()
}

// heapSlot admits one heap-limited invocation at a time, process wide.
// goja has no per-runtime heap accounting, so growth of the process heap is
// only attributable to a script while no other script is running.
var heapSlot = semaphore.NewWeighted(1)

func acquireHeapSlot(ctx context.Context) error { return heapSlot.Acquire(ctx, 1) }

func releaseHeapSlot() { heapSlot.Release(1) }

// heapGuard reports growth over the baseline taken at creation.
type heapGuard struct {
	baseline uint64
	limit    uint64
}

func newHeapGuard(limit int64) *heapGuard {
	if limit <= 0 {
		return nil
	}
	return &heapGuard{baseline: heapObjects(), limit: uint64(limit)}
}

func (g *heapGuard) exceeded() bool {
	if g == nil {
		return false
	}
	now := heapObjects()
	return now > g.baseline && now-g.baseline > g.limit
}
