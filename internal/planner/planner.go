package planner

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"harbour/internal/fingerprint"
	"harbour/internal/manifest"
	"harbour/internal/pkgid"
	"harbour/internal/resolver"
	"harbour/internal/surface"
	"harbour/internal/toolchain"
)

// NoSourcesError reports that a native target's source globs matched
// nothing.
type NoSourcesError struct {
	Target   surface.TargetRef
	Patterns []string
}

func (e *NoSourcesError) Error() string {
	return fmt.Sprintf("planner: target %s: source patterns %v matched no files", e.Target, e.Patterns)
}

// Context is everything the planner needs: the resolve graph, loaded
// manifests and package roots, the surface resolver, the detected
// toolchain, and the build profile and output directory.
type Context struct {
	Resolve   *resolver.Resolve
	Manifests map[pkgid.PackageId]manifest.Manifest
	Roots     map[pkgid.PackageId]string
	ByName    map[string]pkgid.PackageId

	Surfaces  *surface.Resolver
	Toolchain toolchain.Toolchain
	Profile   manifest.Profile
	OutDir    string

	// EffectiveCppStd is the validated graph-wide C++ standard.
	EffectiveCppStd string
}

// BuildPlan walks the resolve graph in topological order and emits, for every
// target reachable from the root targets, its compile, archive, link, or
// external steps. The returned plan is immutable.
func BuildPlan(ctx *Context, rootTargets []surface.TargetRef) (*Plan, error) {
	order, err := ctx.Resolve.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	reachable, err := reachableTargets(ctx, rootTargets)
	if err != nil {
		return nil, err
	}

	plan := &Plan{}
	for _, id := range order {
		targets := reachable[id]
		if len(targets) == 0 {
			continue
		}
		sort.Strings(targets)
		for _, name := range targets {
			if err := planTarget(ctx, plan, surface.TargetRef{Package: id, Target: name}); err != nil {
				return nil, err
			}
		}
	}
	return plan, nil
}

// reachableTargets computes, per package, the set of target names
// reachable from the roots by following TargetDep edges.
func reachableTargets(ctx *Context, roots []surface.TargetRef) (map[pkgid.PackageId][]string, error) {
	seen := make(map[surface.TargetRef]bool)
	var visit func(ref surface.TargetRef) error
	visit = func(ref surface.TargetRef) error {
		if seen[ref] {
			return nil
		}
		seen[ref] = true
		tgt, err := lookupTarget(ctx, ref)
		if err != nil {
			return err
		}
		for _, dep := range tgt.Deps {
			depRef, err := resolveDepRef(ctx, ref, dep)
			if err != nil {
				return err
			}
			if err := visit(depRef); err != nil {
				return err
			}
		}
		return nil
	}
	for _, root := range roots {
		if err := visit(root); err != nil {
			return nil, err
		}
	}

	out := make(map[pkgid.PackageId][]string)
	for ref := range seen {
		out[ref.Package] = append(out[ref.Package], ref.Target)
	}
	return out, nil
}

func lookupTarget(ctx *Context, ref surface.TargetRef) (manifest.Target, error) {
	m, ok := ctx.Manifests[ref.Package]
	if !ok {
		return manifest.Target{}, fmt.Errorf("planner: no manifest loaded for %s", ref.Package)
	}
	tgt, ok := m.Targets[ref.Target]
	if !ok {
		return manifest.Target{}, fmt.Errorf("planner: package %s has no target %q", ref.Package, ref.Target)
	}
	return tgt, nil
}

func resolveDepRef(ctx *Context, from surface.TargetRef, dep manifest.TargetDep) (surface.TargetRef, error) {
	id, ok := ctx.ByName[dep.PackageName]
	if !ok {
		if dep.PackageName == from.Package.Name {
			id = from.Package
		} else {
			return surface.TargetRef{}, fmt.Errorf("planner: %s depends on unresolved package %q", from, dep.PackageName)
		}
	}
	name := dep.TargetName
	if name == "" {
		name = dep.PackageName
	}
	return surface.TargetRef{Package: id, Target: name}, nil
}

func planTarget(ctx *Context, plan *Plan, ref surface.TargetRef) error {
	tgt, err := lookupTarget(ctx, ref)
	if err != nil {
		return err
	}

	// Header-only targets contribute surfaces but no steps.
	if tgt.Kind == manifest.HeaderOnly {
		return nil
	}

	if tgt.Recipe == manifest.RecipeCMake || tgt.Recipe == manifest.RecipeCustom {
		plan.Steps = append(plan.Steps, &External{
			ID:      stepID(ref, "external"),
			Recipe:  tgt.Recipe,
			Workdir: ctx.Roots[ref.Package],
			Outputs: []string{artifactPath(ctx, ref, tgt.Kind)},
			Target:  ref,
		})
		return nil
	}

	res, err := ctx.Surfaces.Resolve(ref)
	if err != nil {
		return err
	}

	sources, err := expandGlobs(ctx.Roots[ref.Package], tgt.Sources)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return &NoSourcesError{Target: ref, Patterns: tgt.Sources}
	}

	std := tgt.CStd
	if tgt.Language == manifest.LangCpp {
		std = ctx.EffectiveCppStd
	}

	flags := res.CFlagList()
	var objects []string
	for _, src := range sources {
		obj := objectPath(ctx, ref, src, flags)
		objects = append(objects, obj)
		plan.Steps = append(plan.Steps, &Compile{
			ID:          stepID(ref, filepath.Base(obj)),
			Source:      src,
			Object:      obj,
			DepFile:     strings.TrimSuffix(obj, ctx.Toolchain.ObjectExt()) + ".d",
			Language:    tgt.Language,
			Std:         std,
			IncludeDirs: res.IncludePaths(),
			Defines:     res.DefineList(),
			Flags:       flags,
			Abi:         res.Abi,
			Target:      ref,
		})
	}

	switch tgt.Kind {
	case manifest.StaticLib:
		plan.Steps = append(plan.Steps, &Archive{
			ID:      stepID(ref, "archive"),
			Objects: objects,
			Output:  artifactPath(ctx, ref, tgt.Kind),
			Target:  ref,
		})
	case manifest.Exe, manifest.SharedLib:
		archives, err := closureArchives(ctx, ref)
		if err != nil {
			return err
		}
		plan.Steps = append(plan.Steps, &Link{
			ID:         stepID(ref, "link"),
			Objects:    objects,
			Archives:   archives,
			Libs:       res.LibList(),
			Groups:     groupList(res),
			Frameworks: res.FrameworkList(),
			LdFlags:    res.LdFlagList(),
			Output:     artifactPath(ctx, ref, tgt.Kind),
			Kind:       tgt.Kind,
			Language:   tgt.Language,
			Abi:        res.Abi,
			Target:     ref,
		})
	}
	return nil
}

func groupList(res *surface.Resolved) []manifest.LinkGroup {
	out := make([]manifest.LinkGroup, len(res.Groups))
	for i, g := range res.Groups {
		out[i] = g.Group
	}
	return out
}

// closureArchives returns the archive and shared-library artifacts of
// ref's transitive dependency closure, dependents before dependencies —
// the GCC link order, which MSVC tolerates unchanged.
func closureArchives(ctx *Context, ref surface.TargetRef) ([]string, error) {
	var (
		order   []surface.TargetRef
		visited = map[surface.TargetRef]bool{ref: true}
	)
	var visit func(r surface.TargetRef) error
	visit = func(r surface.TargetRef) error {
		tgt, err := lookupTarget(ctx, r)
		if err != nil {
			return err
		}
		// Deps are walked last to first and recorded in post-order; the
		// reversed list keeps sibling declaration order and puts every
		// dependent before all of its dependencies.
		for i := len(tgt.Deps) - 1; i >= 0; i-- {
			depRef, err := resolveDepRef(ctx, r, tgt.Deps[i])
			if err != nil {
				return err
			}
			if visited[depRef] {
				continue
			}
			visited[depRef] = true
			if err := visit(depRef); err != nil {
				return err
			}
			order = append(order, depRef)
		}
		return nil
	}
	if err := visit(ref); err != nil {
		return nil, err
	}
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}

	var archives []string
	for _, depRef := range order {
		tgt, err := lookupTarget(ctx, depRef)
		if err != nil {
			return nil, err
		}
		switch tgt.Kind {
		case manifest.StaticLib, manifest.SharedLib:
			archives = append(archives, artifactPath(ctx, depRef, tgt.Kind))
		}
	}
	return archives, nil
}

// objectPath is <out>/deps/<pkg>/<hash-of-src+flags><ext>, the layout
// spec.md §6 fixes for object files.
func objectPath(ctx *Context, ref surface.TargetRef, src string, flags []string) string {
	h := fingerprint.HashBytes([]byte(src + "\x00" + strings.Join(flags, "\x00")))
	return filepath.Join(ctx.OutDir, "deps", ref.Package.Name, h[:16]+ctx.Toolchain.ObjectExt())
}

// artifactPath places dependency artifacts under deps/<pkg>/ and the
// root's own artifacts at the output root.
func artifactPath(ctx *Context, ref surface.TargetRef, kind manifest.TargetKind) string {
	var name string
	switch kind {
	case manifest.StaticLib:
		name = ctx.Toolchain.StaticLibName(ref.Target)
	case manifest.SharedLib:
		name = ctx.Toolchain.SharedLibName(ref.Target)
	default:
		name = ctx.Toolchain.ExeName(ref.Target)
	}
	if root, ok := ctx.Resolve.Root(); ok && root == ref.Package {
		return filepath.Join(ctx.OutDir, name)
	}
	return filepath.Join(ctx.OutDir, "deps", ref.Package.Name, name)
}

func stepID(ref surface.TargetRef, suffix string) string {
	return fmt.Sprintf("%s@%s/%s/%s", ref.Package.Name, ref.Package.Version, ref.Target, suffix)
}

// expandGlobs expands source patterns against the package root.
// Patterns containing ** recurse; plain patterns use filepath.Glob.
// Results are sorted for deterministic plan order.
func expandGlobs(root string, patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			out = append(out, path)
		}
	}
	for _, pat := range patterns {
		full := pat
		if !filepath.IsAbs(full) {
			full = filepath.Join(root, pat)
		}
		if strings.Contains(pat, "**") {
			matches, err := expandRecursive(root, pat)
			if err != nil {
				return nil, err
			}
			for _, m := range matches {
				add(m)
			}
			continue
		}
		matches, err := filepath.Glob(full)
		if err != nil {
			return nil, fmt.Errorf("planner: bad source pattern %q: %w", pat, err)
		}
		for _, m := range matches {
			add(m)
		}
	}
	sort.Strings(out)
	return out, nil
}

// expandRecursive handles "dir/**/*.ext" patterns by walking the tree
// under the pattern's fixed prefix and matching the suffix against each
// file's basename.
func expandRecursive(root, pat string) ([]string, error) {
	idx := strings.Index(pat, "**")
	prefix := filepath.Join(root, strings.TrimSuffix(pat[:idx], "/"))
	suffix := strings.TrimPrefix(pat[idx+2:], "/")

	var out []string
	err := walkFiles(prefix, func(path string) error {
		ok, err := filepath.Match(suffix, filepath.Base(path))
		if err != nil {
			return fmt.Errorf("planner: bad source pattern %q: %w", pat, err)
		}
		if ok {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}

func walkFiles(dir string, fn func(path string) error) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtree matches nothing
		}
		if d.IsDir() {
			return nil
		}
		return fn(path)
	})
}
