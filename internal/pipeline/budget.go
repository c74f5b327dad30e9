package pipeline

import "sync/atomic"

// CallBudget caps generative backend calls for one run. It is passed into
// the orchestrator explicitly so several batches can share or isolate it.
type CallBudget struct {
	limit int64
	used  atomic.Int64
}

// NewCallBudget returns a budget of limit calls. A limit <= 0 is unlimited.
func NewCallBudget(limit int) *CallBudget {
	return &CallBudget{limit: int64(limit)}
}

// TryAcquire reserves one call, reporting false when the budget is spent.
func (b *CallBudget) TryAcquire() bool {
	if b == nil || b.limit <= 0 {
		if b != nil {
			b.used.Add(1)
		}
		return true
	}
	for {
		used := b.used.Load()
		if used >= b.limit {
			return false
		}
		if b.used.CompareAndSwap(used, used+1) {
			return true
		}
	}
}

// Used returns the number of reserved calls.
func (b *CallBudget) Used() int {
	if b == nil {
		return 0
	}
	return int(b.used.Load())
}

// Remaining returns the calls left, or -1 when unlimited.
func (b *CallBudget) Remaining() int {
	if b == nil || b.limit <= 0 {
		return -1
	}
	return int(b.limit - b.used.Load())
}
