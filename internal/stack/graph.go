package stack

import (
	"fmt"

	"github.com/jbweber/dockvirt/internal/dockerr"
	"github.com/jbweber/dockvirt/internal/spec"
)

// graph is the adjacency representation of a StackDecl: dependsOn[name]
// lists the nodes name must wait for; dependents[name] lists the nodes
// that list name in their own dependsOn.
type graph struct {
	names      []string
	dependsOn  map[string][]string
	dependents map[string][]string
}

func buildGraph(decl spec.StackDecl) (*graph, error) {
	g := &graph{
		dependsOn:  make(map[string][]string, len(decl.Entries)),
		dependents: make(map[string][]string, len(decl.Entries)),
	}
	for _, e := range decl.Entries {
		g.names = append(g.names, e.Spec.Name)
		g.dependsOn[e.Spec.Name] = e.DependsOn
	}
	for _, e := range decl.Entries {
		for _, dep := range e.DependsOn {
			g.dependents[dep] = append(g.dependents[dep], e.Spec.Name)
		}
	}
	if cycle := g.findCycle(); cycle != nil {
		return nil, dockerr.New(dockerr.ConfigInvalid, cycle[0], "remove the circular depends_on reference", fmt.Errorf("cyclic dependency: %v", cycle))
	}
	return g, nil
}

// findCycle runs a three-color DFS over dependsOn edges, returning the
// nodes on a detected cycle (in traversal order) or nil if the graph is a
// DAG.
func (g *graph) findCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.names))
	var path []string
	var cycle []string

	var visit func(name string) bool
	visit = func(name string) bool {
		color[name] = gray
		path = append(path, name)
		for _, dep := range g.dependsOn[name] {
			switch color[dep] {
			case gray:
				cycle = append(append([]string{}, path...), dep)
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		color[name] = black
		return false
	}

	for _, n := range g.names {
		if color[n] == white {
			if visit(n) {
				return cycle
			}
		}
	}
	return nil
}

// independentSetSize returns the number of nodes with no dependencies,
// the basis for the default worker pool size, min(4, |independent set|).
func (g *graph) independentSetSize() int {
	count := 0
	for _, n := range g.names {
		if len(g.dependsOn[n]) == 0 {
			count++
		}
	}
	return count
}

// leafSetSize returns the number of nodes nothing depends on, the
// independent set for a reverse-order (Destroy) schedule.
func (g *graph) leafSetSize() int {
	count := 0
	for _, n := range g.names {
		if len(g.dependents[n]) == 0 {
			count++
		}
	}
	return count
}

func workerCount(n int) int {
	if n < 1 {
		return 1
	}
	if n > 4 {
		return 4
	}
	return n
}
