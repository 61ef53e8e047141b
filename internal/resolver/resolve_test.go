package resolver

import (
	"testing"

	"harbour/internal/pkgid"
)

func pkg(name, version string) pkgid.PackageId {
	return pkgid.PackageId{Name: name, Version: version, Source: pkgid.SourceId{Kind: pkgid.Registry, RegistryURL: "default"}}
}

func TestTopologicalOrderDependenciesBeforeDependents(t *testing.T) {
	r := NewResolve()
	a, b, c := pkg("a", "1.0.0"), pkg("b", "1.0.0"), pkg("c", "1.0.0")
	r.AddEdge(a, b)
	r.AddEdge(b, c)

	order, err := r.TopologicalOrder()
	if err != nil {
		t.Fatalf("TopologicalOrder: %v", err)
	}

	pos := make(map[pkgid.PackageId]int)
	for i, id := range order {
		pos[id] = i
	}
	if !(pos[c] < pos[b] && pos[b] < pos[a]) {
		t.Fatalf("expected order c, b, a; got %v", order)
	}
}

func TestReverseTopologicalOrder(t *testing.T) {
	r := NewResolve()
	a, b, c := pkg("a", "1.0.0"), pkg("b", "1.0.0"), pkg("c", "1.0.0")
	r.AddEdge(a, b)
	r.AddEdge(b, c)

	order, err := r.ReverseTopologicalOrder()
	if err != nil {
		t.Fatalf("ReverseTopologicalOrder: %v", err)
	}
	pos := make(map[pkgid.PackageId]int)
	for i, id := range order {
		pos[id] = i
	}
	if !(pos[a] < pos[b] && pos[b] < pos[c]) {
		t.Fatalf("expected order a, b, c; got %v", order)
	}
}

func TestCycleDetected(t *testing.T) {
	r := NewResolve()
	a, b := pkg("a", "1.0.0"), pkg("b", "1.0.0")
	r.AddEdge(a, b)
	r.AddEdge(b, a)

	if _, err := r.TopologicalOrder(); err == nil {
		t.Fatalf("expected CycleError")
	}
}

func TestAddEdgeDedups(t *testing.T) {
	r := NewResolve()
	a, b := pkg("a", "1.0.0"), pkg("b", "1.0.0")
	r.AddEdge(a, b)
	r.AddEdge(a, b)
	if len(r.Dependencies(a)) != 1 {
		t.Fatalf("expected deduped single edge, got %v", r.Dependencies(a))
	}
}

func TestTransitiveDepsExcludesSelf(t *testing.T) {
	r := NewResolve()
	a, b, c := pkg("a", "1.0.0"), pkg("b", "1.0.0"), pkg("c", "1.0.0")
	r.AddEdge(a, b)
	r.AddEdge(b, c)

	deps := r.TransitiveDeps(a)
	found := map[pkgid.PackageId]bool{}
	for _, d := range deps {
		found[d] = true
		if d == a {
			t.Fatalf("TransitiveDeps should exclude the start node")
		}
	}
	if !found[b] || !found[c] {
		t.Fatalf("expected b and c reachable from a, got %v", deps)
	}
}
