// Package phase runs the fragments of one phase against a shared context.
// Fragments run strictly one after another in document order; each result
// is merged into the context before the next fragment starts.
package phase

import (
	"context"
	"sync"
	"time"

	"codeprompt/internal/fragment"
	"codeprompt/internal/logging"
	"codeprompt/internal/tactile"
	"codeprompt/internal/vars"
)

// Dispatcher routes fragments to executors by kind.
type Dispatcher struct {
	mu        sync.RWMutex
	fragments []fragment.Fragment
	executors map[fragment.Kind]tactile.Executor
	timeout   time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout bounds every fragment execution. Zero disables the bound.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// WithExecutor registers the executor for a fragment kind.
func WithExecutor(kind fragment.Kind, exec tactile.Executor) Option {
	return func(d *Dispatcher) { d.executors[kind] = exec }
}

// NewDispatcher creates a dispatcher over an extracted fragment list.
func NewDispatcher(frags []fragment.Fragment, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		fragments: frags,
		executors: make(map[fragment.Kind]tactile.Executor),
	}
	for _, opt := range opts {
		opt(d)
	}
	logging.PhaseDebug("Dispatcher created: %d fragments, %d executors", len(frags), len(d.executors))
	return d
}

// SetFragments replaces the fragment list wholesale, e.g. after a template
// reload.
func (d *Dispatcher) SetFragments(frags []fragment.Fragment) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fragments = frags
}

// Register sets the executor for kind, replacing any previous one.
func (d *Dispatcher) Register(kind fragment.Kind, exec tactile.Executor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.executors[kind] = exec
}

// Fragments returns the fragments of p in document order.
func (d *Dispatcher) Fragments(p fragment.Phase) []fragment.Fragment {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return fragment.Select(d.fragments, p)
}

// Run executes every fragment of phase p against v.
//
// The returned map is the context after the last successful fragment. On
// failure it is returned together with the executor's error, unwrapped, and
// no later fragment runs. The input map is never modified.
func (d *Dispatcher) Run(ctx context.Context, p fragment.Phase, v vars.Map) (vars.Map, error) {
	d.mu.RLock()
	frags := fragment.Select(d.fragments, p)
	executors := make(map[fragment.Kind]tactile.Executor, len(d.executors))
	for k, e := range d.executors {
		executors[k] = e
	}
	timeout := d.timeout
	d.mu.RUnlock()

	timer := logging.StartTimer(logging.CategoryPhase, "Phase "+p.String())
	defer timer.Stop()

	cur := v.Clone()
	for _, f := range frags {
		exec, ok := executors[f.Kind]
		if !ok {
			logging.PhaseDebug("Skipping fragment %s: no executor for kind %s", f, f.Kind)
			continue
		}

		logging.Phase("Running fragment %s with %s executor", f, exec.Name())
		partial, err := runOne(ctx, exec, cur, f.Body, timeout)
		if err != nil {
			logging.PhaseError("Fragment %s failed: %v", f, err)
			return cur, err
		}
		cur = vars.Merge(cur, partial)
	}
	return cur, nil
}

func runOne(ctx context.Context, exec tactile.Executor, v vars.Map, body string, timeout time.Duration) (vars.Map, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return exec.Execute(ctx, v.Clone(), body)
}
