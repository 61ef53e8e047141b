package ops

import (
	"fmt"
	"os"

	"harbour/internal/harbourcfg"
	"harbour/internal/manifest"
	"harbour/internal/pkgid"
	"harbour/internal/resolver"
	"harbour/internal/source"
)

// Graph bundles a Resolve with the loaded manifest and package root of
// every node, plus the name-to-node selection the surface resolver and
// planner follow TargetDep edges through.
type Graph struct {
	Resolve   *resolver.Resolve
	Manifests map[pkgid.PackageId]manifest.Manifest
	Roots     map[pkgid.PackageId]string
	ByName    map[string]pkgid.PackageId
}

// ResolveProject produces the resolve graph for a project, reusing a
// fresh lockfile when possible. force skips the freshness check and
// re-resolves unconditionally (the `update` command), still seeding the
// solver with the old lockfile's pins as preferences.
func ResolveProject(ctx *harbourcfg.Context, proj *Project, force bool) (*Graph, error) {
	cache := source.NewCache(ctx.CacheDir, ctx.HomeDir)

	var prior *resolver.Lockfile
	if data, err := os.ReadFile(proj.LockfilePath()); err == nil {
		prior, err = resolver.Parse(data)
		if err != nil {
			ctx.Log.Warn("ignoring corrupt lockfile", "path", proj.LockfilePath(), "err", err)
			prior = nil
		}
	}

	if !force && prior.IsFresh(proj.ManifestHash) && lockedSourcesValid(prior) {
		ctx.Log.Debug("lockfile fresh, skipping resolution")
		res, err := prior.ToResolve(proj.ID)
		if err == nil {
			return finishGraph(ctx, cache, proj, res)
		}
		ctx.Log.Warn("lockfile unusable, re-resolving", "err", err)
	}

	snap, err := resolver.Prefetch(cache, proj.Manifest, proj.ID.Source)
	if err != nil {
		return nil, phaseErr(PhaseResolve, err)
	}
	if prior != nil {
		snap.Preferred = make(map[string]string, len(prior.Packages))
		for _, e := range prior.Packages {
			snap.Preferred[e.Name] = e.Version
		}
	}

	res, err := resolver.Solve(snap)
	if err != nil {
		return nil, phaseErr(PhaseResolve, err)
	}

	lf, err := resolver.FromResolve(res, proj.ManifestHash)
	if err != nil {
		return nil, phaseErr(PhaseResolve, err)
	}
	data, err := resolver.Serialize(lf)
	if err != nil {
		return nil, phaseErr(PhaseResolve, err)
	}
	if err := os.WriteFile(proj.LockfilePath(), data, 0o644); err != nil {
		return nil, phaseErr(PhaseResolve, fmt.Errorf("write lockfile: %w", err))
	}

	return finishGraph(ctx, cache, proj, res)
}

// lockedSourcesValid verifies each entry's source still exists: path
// sources must be present on disk; git and registry entries are pinned
// by commit and revalidated only when actually fetched.
func lockedSourcesValid(lf *resolver.Lockfile) bool {
	for _, e := range lf.Packages {
		src, err := pkgid.ParseKey(e.SourceID)
		if err != nil {
			return false
		}
		if src.Kind == pkgid.Path {
			if _, err := os.Stat(src.Path); err != nil {
				return false
			}
		}
	}
	return true
}

// finishGraph loads every resolved package's manifest and root
// directory, walking the graph from the root so each dependency's
// requested source spec is taken from its parent's manifest.
func finishGraph(ctx *harbourcfg.Context, cache *source.Cache, proj *Project, res *resolver.Resolve) (*Graph, error) {
	g := &Graph{
		Resolve:   res,
		Manifests: make(map[pkgid.PackageId]manifest.Manifest),
		Roots:     make(map[pkgid.PackageId]string),
		ByName:    make(map[string]pkgid.PackageId),
	}
	for _, id := range res.Packages() {
		g.ByName[id.Name] = id
	}

	rootID, ok := res.Root()
	if !ok {
		return nil, phaseErr(PhaseResolve, fmt.Errorf("resolve graph has no root"))
	}
	g.Manifests[rootID] = proj.Manifest
	g.Roots[rootID] = proj.Root

	queue := []pkgid.PackageId{rootID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		parent := g.Manifests[id]
		for _, depID := range res.Dependencies(id) {
			if _, loaded := g.Manifests[depID]; loaded {
				continue
			}
			dep, ok := parent.Dependencies[depID.Name]
			if !ok {
				return nil, phaseErr(PhaseResolve, fmt.Errorf("package %s has edge to %s but no matching dependency entry", id, depID))
			}
			m, root, err := loadPackage(cache, dep.Source, depID)
			if err != nil {
				return nil, phaseErr(PhaseResolve, err)
			}
			g.Manifests[depID] = m
			g.Roots[depID] = root
			queue = append(queue, depID)
		}
	}
	return g, nil
}

// loadPackage materializes one resolved dependency and loads its
// manifest, verifying the materialized version matches the resolution.
func loadPackage(cache *source.Cache, spec manifest.SourceSpec, id pkgid.PackageId) (manifest.Manifest, string, error) {
	src, err := cache.ForSpec(spec)
	if err != nil {
		return manifest.Manifest{}, "", err
	}
	handles, err := src.Query(id.Name, id.Version)
	if err != nil {
		return manifest.Manifest{}, "", err
	}
	for _, h := range handles {
		if h.Version != id.Version {
			continue
		}
		root, err := src.PackagePath(h)
		if err != nil {
			return manifest.Manifest{}, "", err
		}
		data, err := os.ReadFile(manifestPathIn(root))
		if err != nil {
			return manifest.Manifest{}, "", err
		}
		m, err := manifest.Load(data)
		if err != nil {
			return manifest.Manifest{}, "", err
		}
		m.AbsolutizePaths(root)
		return m, root, nil
	}
	return manifest.Manifest{}, "", fmt.Errorf("source no longer offers %s@%s", id.Name, id.Version)
}

func manifestPathIn(root string) string {
	for _, name := range manifestNames {
		path := root + string(os.PathSeparator) + name
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return root + string(os.PathSeparator) + manifestNames[0]
}
