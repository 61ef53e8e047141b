package resolver

import (
	"fmt"
	"sort"

	"harbour/internal/pkgid"
)

// Resolve is the directed acyclic graph produced by the solver: nodes are
// PackageIds plus a reference to the loaded package summary; edges run
// from a package to its selected dependencies.
//
// Grounded on the original Rust implementation's resolver/resolve.rs
// (petgraph::graph::DiGraph wrapped with pkg_to_node/name_to_pkg maps),
// reimplemented here as a plain node arena with integer indices per
// spec.md §9's design note on cyclic-reference-safe graph representation.
type Resolve struct {
	nodes   []pkgid.PackageId
	index   map[pkgid.PackageId]int
	byName  map[string][]int
	edges   map[int][]int // source node index -> dependency node indices
	root    int
	hasRoot bool
}

// NewResolve returns an empty Resolve graph.
func NewResolve() *Resolve {
	return &Resolve{
		index:  make(map[pkgid.PackageId]int),
		byName: make(map[string][]int),
		edges:  make(map[int][]int),
	}
}

// AddPackage inserts id if not already present; idempotent, matching the
// original implementation's add_package behavior.
func (r *Resolve) AddPackage(id pkgid.PackageId) int {
	if i, ok := r.index[id]; ok {
		return i
	}
	i := len(r.nodes)
	r.nodes = append(r.nodes, id)
	r.index[id] = i
	r.byName[id.Name] = append(r.byName[id.Name], i)
	return i
}

// SetRoot marks id as the resolve root, inserting it if necessary.
func (r *Resolve) SetRoot(id pkgid.PackageId) {
	r.root = r.AddPackage(id)
	r.hasRoot = true
}

// AddEdge records that "from" depends on "to", deduping existing edges —
// matching the original implementation's add_edge.
func (r *Resolve) AddEdge(from, to pkgid.PackageId) {
	fi := r.AddPackage(from)
	ti := r.AddPackage(to)
	for _, existing := range r.edges[fi] {
		if existing == ti {
			return
		}
	}
	r.edges[fi] = append(r.edges[fi], ti)
}

// Root returns the resolve root, if one has been set.
func (r *Resolve) Root() (pkgid.PackageId, bool) {
	if !r.hasRoot {
		return pkgid.PackageId{}, false
	}
	return r.nodes[r.root], true
}

// Packages returns every PackageId in the graph, in insertion order.
func (r *Resolve) Packages() []pkgid.PackageId {
	out := make([]pkgid.PackageId, len(r.nodes))
	copy(out, r.nodes)
	return out
}

// Dependencies returns id's direct dependencies.
func (r *Resolve) Dependencies(id pkgid.PackageId) []pkgid.PackageId {
	i, ok := r.index[id]
	if !ok {
		return nil
	}
	var out []pkgid.PackageId
	for _, di := range r.edges[i] {
		out = append(out, r.nodes[di])
	}
	return out
}

// CycleError is returned by TopologicalOrder when the graph is not
// acyclic, naming the offending cycle for diagnostics.
type CycleError struct {
	Cycle []pkgid.PackageId
}

func (e *CycleError) Error() string {
	names := make([]string, len(e.Cycle))
	for i, id := range e.Cycle {
		names[i] = id.String()
	}
	return fmt.Sprintf("resolver: dependency cycle detected: %v", names)
}

// TopologicalOrder returns nodes ordered so every dependency precedes its
// dependents, computed via Kahn's algorithm with ties broken by
// PackageId order — spec.md §4.2's deterministic-tiebreak requirement.
// Any true dependency cycle is reported as a *CycleError.
func (r *Resolve) TopologicalOrder() ([]pkgid.PackageId, error) {
	n := len(r.nodes)

	// Edges point dependent -> dependency, so a node is ready once all
	// of its own dependencies have been emitted. Track that count per
	// node and run Kahn's over the reverse adjacency.
	remaining := make([]int, n)
	for i := range remaining {
		remaining[i] = len(r.edges[i])
	}
	// dependents[d] = nodes that list d as a dependency
	dependents := make([][]int, n)
	for from, deps := range r.edges {
		for _, d := range deps {
			dependents[d] = append(dependents[d], from)
		}
	}

	ready := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if remaining[i] == 0 {
			ready = append(ready, i)
		}
	}

	var order []pkgid.PackageId
	emitted := make([]bool, n)
	for len(order) < n {
		if len(ready) == 0 {
			return nil, r.detectCycle(emitted)
		}
		sort.Slice(ready, func(a, b int) bool { return r.nodes[ready[a]].Less(r.nodes[ready[b]]) })
		next := ready[0]
		ready = ready[1:]
		if emitted[next] {
			continue
		}
		emitted[next] = true
		order = append(order, r.nodes[next])
		for _, dependent := range dependents[next] {
			remaining[dependent]--
			if remaining[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}
	return order, nil
}

// ReverseTopologicalOrder returns the topological order reversed —
// dependents before dependencies — matching the original implementation's
// reverse_topological_order, used where link order wants
// dependents-before-dependencies (spec.md §4.6 link-order convention is
// the other direction; planner reverses explicitly where needed).
func (r *Resolve) ReverseTopologicalOrder() ([]pkgid.PackageId, error) {
	order, err := r.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order, nil
}

// TransitiveDeps returns every package reachable from id (excluding id
// itself), via iterative DFS — grounded on the original implementation's
// transitive_deps.
func (r *Resolve) TransitiveDeps(id pkgid.PackageId) []pkgid.PackageId {
	start, ok := r.index[id]
	if !ok {
		return nil
	}
	visited := map[int]bool{start: true}
	stack := append([]int{}, r.edges[start]...)
	var out []pkgid.PackageId
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[i] {
			continue
		}
		visited[i] = true
		out = append(out, r.nodes[i])
		stack = append(stack, r.edges[i]...)
	}
	return out
}

func (r *Resolve) detectCycle(emitted []bool) *CycleError {
	// Any not-yet-emitted node lies on or behind a cycle; walk edges from
	// the lowest-ordered such node until we revisit one to name it.
	var start = -1
	for i, done := range emitted {
		if !done {
			start = i
			break
		}
	}
	if start == -1 {
		return &CycleError{}
	}
	visited := map[int]bool{}
	path := []int{}
	cur := start
	for {
		if visited[cur] {
			// trim path to the cycle itself
			cycleStart := 0
			for idx, n := range path {
				if n == cur {
					cycleStart = idx
					break
				}
			}
			cycleIdx := path[cycleStart:]
			cycle := make([]pkgid.PackageId, len(cycleIdx))
			for i, n := range cycleIdx {
				cycle[i] = r.nodes[n]
			}
			return &CycleError{Cycle: cycle}
		}
		visited[cur] = true
		path = append(path, cur)
		deps := r.edges[cur]
		next := -1
		for _, d := range deps {
			if !emitted[d] {
				next = d
				break
			}
		}
		if next == -1 {
			return &CycleError{Cycle: []pkgid.PackageId{r.nodes[cur]}}
		}
		cur = next
	}
}
