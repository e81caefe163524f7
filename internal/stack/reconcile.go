package stack

import (
	"context"
	"fmt"
	"sync"

	"github.com/jbweber/dockvirt/internal/spec"
	"github.com/jbweber/dockvirt/internal/vm"
)

type upFunc func(ctx context.Context, env *vm.Environment, s spec.VMSpec, hasDockerfile bool) (spec.VMInstance, error)
type downFunc func(env *vm.Environment, name string) error

// Reconciler drives one spec.StackDecl's
// nodes through internal/vm's Up/Down, never the hypervisor driver
// directly.
type Reconciler struct {
	Env           *vm.Environment
	HasDockerfile bool

	up   upFunc
	down downFunc
}

// New returns a Reconciler wired to the real lifecycle engine.
func New(env *vm.Environment, hasDockerfile bool) *Reconciler {
	return &Reconciler{Env: env, HasDockerfile: hasDockerfile, up: vm.Up, down: vm.Down}
}

// Deploy brings every node in decl up in dependency order. A node whose
// dependency failed (ended in PhaseFailed) is marked PhaseSkipped and never
// attempted; a LeaseTimeout/HTTPTimeout warning on a dependency still counts
// as Running for gating purposes, since the domain itself came up.
func (r *Reconciler) Deploy(ctx context.Context, decl spec.StackDecl) (Result, error) {
	g, err := buildGraph(decl)
	if err != nil {
		return nil, err
	}
	entryByName := make(map[string]spec.StackEntry, len(decl.Entries))
	for _, e := range decl.Entries {
		entryByName[e.Spec.Name] = e
	}

	var mu sync.Mutex
	result := make(Result, len(g.names))

	runFn := func(name string) bool {
		entry := entryByName[name]
		instance, err := r.up(ctx, r.Env, entry.Spec, r.HasDockerfile)
		mu.Lock()
		result[name] = NodeStatus{Instance: instance, Err: err}
		mu.Unlock()
		return instance.Phase == spec.PhaseRunning || instance.Phase == spec.PhaseReady
	}
	skipFn := func(name string) {
		entry := entryByName[name]
		instance := spec.VMInstance{Spec: entry.Spec, Phase: spec.PhaseSkipped}
		mu.Lock()
		result[name] = NodeStatus{Instance: instance, Err: fmt.Errorf("skipped: a dependency of %q did not reach Running", name)}
		mu.Unlock()
	}

	workers := workerCount(g.independentSetSize())
	schedule(ctx, g.names, g.dependsOn, workers, runFn, skipFn)

	if result.Failed() || len(result.Skipped()) > 0 {
		return result, fmt.Errorf("stack deploy: %d node(s) failed or were skipped", len(result.Skipped())+failedCount(result))
	}
	return result, nil
}

// Destroy tears every node in decl down in reverse dependency order: a node
// is destroyed only after everything that depends on it has been destroyed.
// Destruction is best-effort — a failed Down does not block destroying the
// rest of the stack.
func (r *Reconciler) Destroy(ctx context.Context, decl spec.StackDecl) (Result, error) {
	g, err := buildGraph(decl)
	if err != nil {
		return nil, err
	}
	entryByName := make(map[string]spec.StackEntry, len(decl.Entries))
	for _, e := range decl.Entries {
		entryByName[e.Spec.Name] = e
	}

	var mu sync.Mutex
	result := make(Result, len(g.names))
	var anyErr error

	runFn := func(name string) bool {
		err := r.down(r.Env, name)
		phase := spec.PhaseTornDown
		if err != nil {
			phase = spec.PhaseFailed
		}
		mu.Lock()
		result[name] = NodeStatus{Instance: spec.VMInstance{Spec: entryByName[name].Spec, Phase: phase}, Err: err}
		if err != nil && anyErr == nil {
			anyErr = err
		}
		mu.Unlock()
		return true // best-effort: a failed teardown never blocks the rest of the stack
	}

	workers := workerCount(g.leafSetSize())
	schedule(ctx, g.names, g.dependents, workers, runFn, func(string) {})

	return result, anyErr
}

func failedCount(r Result) int {
	n := 0
	for _, s := range r {
		if s.Instance.Phase == spec.PhaseFailed {
			n++
		}
	}
	return n
}
