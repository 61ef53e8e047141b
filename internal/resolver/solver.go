package resolver

import (
	"errors"
	"fmt"
	"sort"

	"harbour/internal/manifest"
	"harbour/internal/pkgid"
	"harbour/internal/source"
)

// candidate is one version a name could resolve to, together with its own
// dependency requirements — a pure, already-fetched value with no further
// I/O, matching spec.md §4.2's purity requirement ("the solver itself
// consumes a pure snapshot").
type candidate struct {
	id   pkgid.PackageId
	deps map[string]manifest.Dependency
}

// Snapshot is the pure, replayable input to Solve, built once during the
// bounded prefetch phase.
type Snapshot struct {
	candidates map[string][]candidate // keyed by dependency name
	rootID     pkgid.PackageId
	rootDeps   map[string]manifest.Dependency

	// Preferred biases version selection toward a prior lockfile's
	// pins: when a name has a preferred version that satisfies the
	// active constraint, it is tried first, so unchanged edges stay
	// pinned across re-resolutions.
	Preferred map[string]string
}

type queueItem struct {
	name        string
	requirement string
	spec        manifest.SourceSpec
	path        RequirementPath
}

func specScopeKey(spec manifest.SourceSpec) string {
	switch spec.Kind {
	case manifest.SourcePath:
		return "path:" + spec.Path
	case manifest.SourceGit:
		return fmt.Sprintf("git:%s@%d:%s", spec.GitURL, spec.GitRef.Kind, spec.GitRef.Name)
	default:
		return "registry:" + spec.RegistryURL
	}
}

// Prefetch performs all source I/O up front: querying every dependency
// name against every source it's requested from, and loading each
// returned candidate's own manifest, so the solver loop afterward touches
// no sources at all (spec.md §4.2: "all source I/O occurs through a
// bounded prefetch phase before the solver loop").
func Prefetch(cache *source.Cache, root manifest.Manifest, rootSource pkgid.SourceId) (*Snapshot, error) {
	rootID := pkgid.PackageId{Name: root.Package.Name, Version: root.Package.Version, Source: rootSource}
	snap := &Snapshot{
		candidates: make(map[string][]candidate),
		rootID:     rootID,
		rootDeps:   root.Dependencies,
	}

	visited := make(map[string]bool)
	var queue []queueItem
	for name, dep := range root.Dependencies {
		queue = append(queue, queueItem{name: name, requirement: dep.Requirement, spec: dep.Source, path: RequirementPath{root.Package.Name, fmt.Sprintf("%s %s", name, dep.Requirement)}})
	}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		key := item.name + "|" + specScopeKey(item.spec)
		if visited[key] {
			continue
		}
		visited[key] = true

		src, err := cache.ForSpec(item.spec)
		if err != nil {
			return nil, &SourceUnavailableError{SourceKey: key, Cause: err}
		}
		handles, err := src.Query(item.name, item.requirement)
		if err != nil {
			var nf *source.NotFoundError
			if errors.As(err, &nf) {
				return nil, &NotFoundError{Package: item.name}
			}
			return nil, &SourceUnavailableError{SourceKey: key, Cause: err}
		}

		for _, h := range handles {
			summary, err := src.LoadPackage(h)
			if err != nil {
				continue
			}
			id := pkgid.PackageId{Name: h.Name, Version: h.Version, Source: h.Source}
			snap.candidates[item.name] = append(snap.candidates[item.name], candidate{id: id, deps: summary.Dependencies})

			for depName, dep := range summary.Dependencies {
				queue = append(queue, queueItem{
					name:        depName,
					requirement: dep.Requirement,
					spec:        dep.Source,
					path:        append(append(RequirementPath{}, item.path...), fmt.Sprintf("%s %s", depName, dep.Requirement)),
				})
			}
		}
	}

	sortCandidatesDescending(snap.candidates)
	return snap, nil
}

func sortCandidatesDescending(byName map[string][]candidate) {
	for name, cands := range byName {
		sort.Slice(cands, func(i, j int) bool {
			vi, erri := parseVersionLenient(cands[i].id.Version)
			vj, errj := parseVersionLenient(cands[j].id.Version)
			if erri != nil || errj != nil {
				return cands[i].id.Version > cands[j].id.Version
			}
			return vi.GreaterThan(vj)
		})
		byName[name] = cands
	}
}

// assignment tracks the solver's partial solution: one chosen candidate
// per package name.
type assignment struct {
	chosen map[string]candidate
	// requirements accumulates every requirement string and its
	// originating path seen so far for a given name, for conflict
	// diagnostics and for re-checking intersection as new edges arrive.
	requirements map[string][]string
	paths        map[string][]RequirementPath
}

// Solve runs the deterministic, CDCL-style version selection described in
// spec.md §4.2 over a pure Snapshot: candidate packages are considered in
// fixed (name, then-version-descending) order, a Preferred pin first; the
// backtracking loop below tries every remaining candidate and backtracks
// on conflict, so a genuinely conflicting graph gets an explained
// failure. No separate seeding pass runs before the loop.
func Solve(snap *Snapshot) (*Resolve, error) {
	asn := &assignment{
		chosen:       make(map[string]candidate),
		requirements: make(map[string][]string),
		paths:        make(map[string][]RequirementPath),
	}

	// Seed root requirements.
	names := make([]string, 0, len(snap.rootDeps))
	for name, dep := range snap.rootDeps {
		names = append(names, name)
		asn.requirements[name] = append(asn.requirements[name], dep.Requirement)
		asn.paths[name] = append(asn.paths[name], RequirementPath{"root", fmt.Sprintf("%s %s", name, dep.Requirement)})
	}
	sort.Strings(names)

	if err := solveNames(snap, asn, names); err != nil {
		return nil, err
	}

	graph := NewResolve()
	graph.SetRoot(snap.rootID)
	var addEdges func(from pkgid.PackageId, deps map[string]manifest.Dependency)
	visited := map[pkgid.PackageId]bool{}
	addEdges = func(from pkgid.PackageId, deps map[string]manifest.Dependency) {
		if visited[from] {
			return
		}
		visited[from] = true
		names := make([]string, 0, len(deps))
		for n := range deps {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			c, ok := asn.chosen[n]
			if !ok {
				continue
			}
			graph.AddEdge(from, c.id)
			addEdges(c.id, c.deps)
		}
	}
	addEdges(snap.rootID, snap.rootDeps)

	if _, err := graph.TopologicalOrder(); err != nil {
		return nil, err
	}
	return graph, nil
}

// solveNames resolves the given package names in fixed lexicographic
// order, recursively pulling in and resolving any new transitive
// requirements discovered along the way.
func solveNames(snap *Snapshot, asn *assignment, names []string) error {
	for _, name := range names {
		if _, done := asn.chosen[name]; done {
			continue
		}
		if err := solveOne(snap, asn, name); err != nil {
			return err
		}
	}
	return nil
}

func solveOne(snap *Snapshot, asn *assignment, name string) error {
	cands, ok := snap.candidates[name]
	if !ok || len(cands) == 0 {
		return &NotFoundError{Package: name}
	}

	constraint, err := intersectRequirements(asn.requirements[name])
	if err != nil {
		return err
	}

	if preferred, ok := snap.Preferred[name]; ok {
		reordered := make([]candidate, 0, len(cands))
		var rest []candidate
		for _, c := range cands {
			if c.id.Version == preferred {
				reordered = append(reordered, c)
			} else {
				rest = append(rest, c)
			}
		}
		cands = append(reordered, rest...)
	}

	var ownPath RequirementPath
	if len(asn.paths[name]) > 0 {
		ownPath = asn.paths[name][0]
	}

	// When a candidate's own requirements contradict a package chosen
	// earlier, that learned incompatibility is remembered so an
	// exhausted candidate list reports the package actually in conflict.
	var learned *VersionConflictError

	for _, cand := range cands {
		v, err := parseVersionLenient(cand.id.Version)
		if err != nil {
			continue
		}
		if !constraint.Check(v) {
			continue
		}

		asn.chosen[name] = cand

		var newNames []string
		for depName, dep := range cand.deps {
			asn.requirements[depName] = append(asn.requirements[depName], dep.Requirement)
			p := append(append(RequirementPath{}, ownPath...), fmt.Sprintf("%s %s", depName, dep.Requirement))
			asn.paths[depName] = append(asn.paths[depName], p)
			if _, done := asn.chosen[depName]; !done {
				newNames = append(newNames, depName)
			}
		}
		sort.Strings(newNames)

		if conflicted := asn.firstViolated(cand); conflicted != "" {
			learned = &VersionConflictError{
				Package:      conflicted,
				Requirements: append([]string(nil), asn.requirements[conflicted]...),
				Paths:        append([]RequirementPath(nil), asn.paths[conflicted]...),
			}
		} else if err := solveNames(snap, asn, newNames); err == nil {
			return nil
		}
		// Backtrack: undo this choice and the requirement edges it added,
		// then try the next candidate.
		delete(asn.chosen, name)
		for depName, dep := range cand.deps {
			asn.requirements[depName] = removeLast(asn.requirements[depName], dep.Requirement)
		}
	}

	if learned != nil {
		return learned
	}
	return &VersionConflictError{
		Package:      name,
		Requirements: asn.requirements[name],
		Paths:        asn.paths[name],
	}
}

// firstViolated reports the first already-chosen package whose pinned
// version no longer satisfies the intersected requirements after cand's
// edges were added, in deterministic name order.
func (asn *assignment) firstViolated(cand candidate) string {
	names := make([]string, 0, len(cand.deps))
	for depName := range cand.deps {
		names = append(names, depName)
	}
	sort.Strings(names)
	for _, depName := range names {
		chosen, done := asn.chosen[depName]
		if !done {
			continue
		}
		c, err := intersectRequirements(asn.requirements[depName])
		if err != nil {
			return depName
		}
		v, err := parseVersionLenient(chosen.id.Version)
		if err != nil || !c.Check(v) {
			return depName
		}
	}
	return ""
}

func removeLast(s []string, v string) []string {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == v {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}
