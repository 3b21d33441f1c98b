// Package scheduler implements the peer's task scheduler: a priority
// queue feeding a single worker (the "round-robin" variant of spec
// §4.3.3), plus a pluggable advanced scheduler that swaps the ordering
// algorithm (FCFS/SJF/PRIORITY/RR) while the worker is hot-swapped.
// Modeled on the teacher's container lifecycle (stop the running
// component, reconfigure, start a fresh one) applied to a single worker
// goroutine instead of a whole service graph.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/Snider/Fabric/pkg/value"
)

// CompletionResult is delivered to a Job's OnComplete callback exactly
// once, never for a task that was cancelled before or caught cancelled
// immediately after execution.
type CompletionResult struct {
	TaskID      string
	Result      value.Value
	Err         error
	WaitingTime time.Duration
	Turnaround  time.Duration
}

// Job is one unit of scheduled work.
type Job struct {
	ID             string
	Priority       int
	EstimatedBurst time.Duration
	Arrival        time.Time

	Run        func(ctx context.Context) (value.Value, error)
	OnComplete func(CompletionResult)

	mu        sync.Mutex
	cancelled bool
	completed bool
}

// Cancel sets the cancellation flag, returning true iff it was not
// already set and the job has not yet completed.
func (j *Job) Cancel() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancelled || j.completed {
		return false
	}
	j.cancelled = true
	return true
}

func (j *Job) isCancelled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelled
}

// markCompleted marks the job as completed unless it was already
// cancelled, returning whether completion should proceed (callback
// invoked).
func (j *Job) markCompleted() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancelled {
		return false
	}
	j.completed = true
	return true
}
