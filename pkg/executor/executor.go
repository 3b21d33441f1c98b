// Package executor evaluates a named callable against a tagged Value
// argument list. The source program evaluates arbitrary code in-process;
// per the design note on dynamic code execution, this replaces that with
// a restricted registry of Go functions invoked by name — no in-process
// eval, no access to the host environment beyond what a registered
// function exposes.
package executor

import (
	"context"
	"sync"
	"time"

	"github.com/Snider/Fabric/pkg/ferrors"
	"github.com/Snider/Fabric/pkg/value"
)

// Function is a registered callable: given args, produce a result or an
// error. Implementations should be side-effect-free with respect to
// process state shared across tasks, since retries re-invoke them.
type Function func(ctx context.Context, args []value.Value) (value.Value, error)

// Registry holds named functions available to CPU_TASK submissions,
// keyed by "function_name" alone. A task's "program_source" does not
// select among functions (it only feeds the result-cache fingerprint),
// and registered functions run in-process with no sandbox.
type Registry struct {
	mu        sync.RWMutex
	functions map[string]Function
}

func NewRegistry() *Registry {
	return &Registry{functions: make(map[string]Function)}
}

// Register adds or replaces the function callable as name.
func (r *Registry) Register(name string, fn Function) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.functions[name] = fn
}

// Lookup returns the registered function, or a FunctionNotFound error.
func (r *Registry) Lookup(name string) (Function, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.functions[name]
	if !ok {
		return nil, ferrors.FunctionNotFound(name)
	}
	return fn, nil
}

// RetryBackoff is the fixed delay between execution attempts; the spec's
// design notes flag this as possibly wanting exponential backoff instead
// (see DESIGN.md's Open Questions section).
const RetryBackoff = 500 * time.Millisecond

// Evaluate looks up functionName and invokes it with args, retrying up
// to maxRetries times (so maxRetries=0 means exactly one attempt) with
// RetryBackoff between attempts. The final attempt's error, wrapped as
// ExecutionError if it isn't already a *FabricError, is returned if every
// attempt fails.
func Evaluate(ctx context.Context, reg *Registry, functionName string, args []value.Value, maxRetries int) (value.Value, error) {
	fn, err := reg.Lookup(functionName)
	if err != nil {
		return value.Null(), err
	}

	var lastErr error
	attempts := maxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		result, err := fn(ctx, args)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt < attempts-1 {
			select {
			case <-ctx.Done():
				return value.Null(), ctx.Err()
			case <-time.After(RetryBackoff):
			}
		}
	}

	if fe, ok := lastErr.(*ferrors.FabricError); ok {
		return value.Null(), fe
	}
	return value.Null(), ferrors.ExecutionError("%v", lastErr)
}
