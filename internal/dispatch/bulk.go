package dispatch

import (
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/ebwi11/patterncache/internal/engine"
	"github.com/ebwi11/patterncache/internal/metrics"
	"github.com/ebwi11/patterncache/internal/pattern"
)

const bulkPoolSize = 64

// bulkPool is a single shared ants pool for bulk dispatch, sized the way
// the teacher's Ruleset sizes its pool against backlog (engine_core.go) —
// here a fixed size is enough since bulk calls are bounded, synchronous,
// and already parallelized at the slice level rather than a streaming
// backlog.
var (
	bulkPoolOnce sync.Once
	bulkPool     *ants.Pool
)

func sharedBulkPool() *ants.Pool {
	bulkPoolOnce.Do(func() {
		p, err := ants.NewPool(bulkPoolSize)
		if err != nil {
			// ants.NewPool only fails on a non-positive size, which
			// bulkPoolSize never is; a nil pool falls back to inline
			// execution in BulkFullMatch/BulkPartialMatch below.
			bulkPool = nil
			return
		}
		bulkPool = p
	})
	return bulkPool
}

// BulkInput is one slot of a bulk dispatch request. Absent marks a slot the
// caller could not address (null pointer, negative length at the origin
// API boundary); its result is always the zero value and iteration
// continues — SPEC_FULL.md §4.6's "never all-or-nothing."
type BulkInput struct {
	View   engine.View
	Absent bool
}

// BulkBoolResult is one slot's outcome from BulkFullMatch/BulkPartialMatch.
type BulkBoolResult struct {
	Matched bool
	Err     error
}

// BulkFullMatch dispatches FullMatch across N inputs against one handle,
// fanning out across a shared ants pool and writing into a pre-sized slice
// by index — "N in, N out," no slot drops, no batch failure on a per-slot
// error (property P6).
func (d *Dispatcher) BulkFullMatch(h *pattern.Handle, inputs []BulkInput) []BulkBoolResult {
	return d.bulkBool(h, inputs, d.FullMatch)
}

// BulkPartialMatch is BulkFullMatch's partial-match counterpart.
func (d *Dispatcher) BulkPartialMatch(h *pattern.Handle, inputs []BulkInput) []BulkBoolResult {
	return d.bulkBool(h, inputs, d.PartialMatch)
}

func (d *Dispatcher) bulkBool(h *pattern.Handle, inputs []BulkInput, op func(*pattern.Handle, engine.View) (bool, error)) []BulkBoolResult {
	start := time.Now()
	results := make([]BulkBoolResult, len(inputs))

	pool := sharedBulkPool()

	var wg sync.WaitGroup
	for i, in := range inputs {
		if in.Absent {
			results[i] = BulkBoolResult{Matched: false}
			continue
		}
		i, in := i, in
		task := func() {
			defer wg.Done()
			matched, err := op(h, in.View)
			results[i] = BulkBoolResult{Matched: matched, Err: err}
		}
		wg.Add(1)
		if pool == nil {
			task()
			continue
		}
		if err := pool.Submit(task); err != nil {
			// Pool exhausted or closed: never drop the slot, run inline.
			task()
		}
	}
	wg.Wait()

	// A bulk call's per-slot view kind is folded into the batch as a whole:
	// SPEC_FULL.md §6 treats "bulk" as its own input kind for the op-latency
	// histogram, distinct from the per-slot decoded-text/borrowed-memory
	// kind recorded inside each op call above.
	d.observe("bulk_match", metrics.InputBulk, start)
	return results
}
